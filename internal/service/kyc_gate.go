package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	ReasonVerified = "verified"
	ReasonBypassed = "below verification threshold"
	ReasonLocked   = "verification pending/rejected, cannot resubmit"
	ReasonRequired = "verification required"
)

// Decision is the outcome of a KYC gate evaluation.
type Decision struct {
	Proceed  bool
	Reason   string
	Bypassed bool
	Link     string
}

// KYCThresholdPolicy owns the bypass threshold for mobile-money orders.
type KYCThresholdPolicy struct {
	rates      ExchangeRateService
	defaultUSD decimal.Decimal
	cngnUSD    decimal.Decimal
}

func NewKYCThresholdPolicy(rates ExchangeRateService, defaultUSD, cngnUSD decimal.Decimal) *KYCThresholdPolicy {
	return &KYCThresholdPolicy{rates: rates, defaultUSD: defaultUSD, cngnUSD: cngnUSD}
}

// Threshold returns the bypass limit in the country's fiat currency.
func (p *KYCThresholdPolicy) Threshold(ctx context.Context, country domain.Country, asset string) (domain.Money, error) {
	usd := p.defaultUSD
	if a, ok := domain.LookupAsset(asset); ok && a.Symbol == domain.AssetCNGN {
		usd = p.cngnUSD
	}
	rate, err := p.rates.GetExchangeRate(ctx, "USD", country.Currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("kyc threshold: %w", err)
	}
	return domain.NewMoney(usd, "USD").Convert(country.Currency, rate), nil
}

// KYCGate decides whether an order may proceed given the wallet's KYC record.
type KYCGate struct {
	policy *KYCThresholdPolicy
	rates  ExchangeRateService
}

func NewKYCGate(policy *KYCThresholdPolicy, rates ExchangeRateService) *KYCGate {
	return &KYCGate{policy: policy, rates: rates}
}

// Evaluate applies the rules in order: verified, small mobile-money
// bypass, locked review states, then verification required.
func (g *KYCGate) Evaluate(ctx context.Context, order models.Order, record *models.KYCRecord) (Decision, error) {
	status := domain.KYCStatusUnset
	link := ""
	if record != nil {
		status = record.Status
		link = record.Message.Link
	}

	if status == domain.KYCStatusVerified {
		observability.IncrementKYCDecision("verified")
		return Decision{Proceed: true, Reason: ReasonVerified}, nil
	}

	if order.PaymentMethod == domain.PaymentMethodMobileMoney && bypassEligibleCountry(order.Country) {
		country, value, err := fiatValue(ctx, g.rates, order)
		if err != nil {
			return Decision{}, err
		}
		threshold, err := g.policy.Threshold(ctx, country, order.Asset)
		if err != nil {
			return Decision{}, err
		}
		if domain.NewMoney(value, country.Currency).LessThan(threshold) {
			observability.IncrementKYCDecision("bypassed")
			return Decision{Proceed: true, Reason: ReasonBypassed, Bypassed: true}, nil
		}
	}

	if status == domain.KYCStatusRejected || status == domain.KYCStatusInReview {
		observability.IncrementKYCDecision("locked")
		return Decision{Reason: ReasonLocked, Link: link}, nil
	}

	observability.IncrementKYCDecision("required")
	return Decision{Reason: ReasonRequired, Link: link}, nil
}

func bypassEligibleCountry(code string) bool {
	return code != domain.CountryNigeria && code != domain.CountrySouthAfrica
}

// fiatValue converts the order amount into the country's fiat currency.
func fiatValue(ctx context.Context, rates ExchangeRateService, order models.Order) (domain.Country, decimal.Decimal, error) {
	country, ok := domain.LookupCountry(order.Country)
	if !ok {
		return domain.Country{}, decimal.Zero, invalidField("country", "unsupported country")
	}
	amount, err := domain.ParseAmount(order.Amount)
	if err != nil {
		return country, decimal.Zero, &ValidationError{Field: "amount", Err: err}
	}
	if order.AmountUnit != domain.AmountUnitCrypto {
		return country, amount, nil
	}

	asset, ok := domain.LookupAsset(order.Asset)
	if !ok {
		return country, decimal.Zero, invalidField("asset", "unsupported asset")
	}
	rate, err := rates.GetExchangeRate(ctx, asset.PegCurrency, country.Currency)
	if err != nil {
		return country, decimal.Zero, err
	}
	return country, domain.NewMoney(amount, asset.Symbol).Convert(country.Currency, rate).Amount, nil
}

// cryptoValue converts the order amount into asset units.
func cryptoValue(ctx context.Context, rates ExchangeRateService, order models.Order) (decimal.Decimal, error) {
	amount, err := domain.ParseAmount(order.Amount)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Err: err}
	}
	if order.AmountUnit == domain.AmountUnitCrypto {
		return amount, nil
	}
	country, _ := domain.LookupCountry(order.Country)
	asset, ok := domain.LookupAsset(order.Asset)
	if !ok {
		return decimal.Zero, invalidField("asset", "unsupported asset")
	}
	rate, err := rates.GetExchangeRate(ctx, country.Currency, asset.PegCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(asset.Decimals), nil
}
