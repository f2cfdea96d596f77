package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ExchangeRateService defines the interface for fetching FX rates.
type ExchangeRateService interface {
	// GetExchangeRate returns the rate to convert from source to target currency.
	GetExchangeRate(ctx context.Context, sourceCurrency, targetCurrency string) (decimal.Decimal, error)
}

// FixedRateService serves a static table of units per USD.
type FixedRateService struct {
	perUSD map[string]decimal.Decimal
}

var defaultPerUSD = map[string]string{
	"USD": "1",
	"NGN": "1550",
	"ZAR": "18.2",
	"KES": "129.5",
	"GHS": "15.4",
	"UGX": "3700",
	"TZS": "2650",
	"RWF": "1380",
}

// NewFixedRateService builds the default table with overrides applied on top.
func NewFixedRateService(overrides map[string]decimal.Decimal) *FixedRateService {
	perUSD := make(map[string]decimal.Decimal, len(defaultPerUSD)+len(overrides))
	for cur, rate := range defaultPerUSD {
		perUSD[cur] = decimal.RequireFromString(rate)
	}
	for cur, rate := range overrides {
		if rate.IsPositive() {
			perUSD[strings.ToUpper(cur)] = rate
		}
	}
	return &FixedRateService{perUSD: perUSD}
}

// GetExchangeRate returns Target / Source.
// e.g. USD -> KES = 129.5 / 1 = 129.5
func (s *FixedRateService) GetExchangeRate(_ context.Context, source, target string) (decimal.Decimal, error) {
	source = strings.ToUpper(source)
	target = strings.ToUpper(target)
	if source == target {
		return decimal.NewFromInt(1), nil
	}

	sRate, ok := s.perUSD[source]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedRate, source)
	}
	tRate, ok := s.perUSD[target]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedRate, target)
	}
	return tRate.Div(sRate), nil
}
