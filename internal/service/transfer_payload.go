package service

import (
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
)

// PayloadInput is everything the builder reads.
type PayloadInput struct {
	Order   models.Order
	QuoteID string
	KYC     *models.KYCRecord
}

type payloadKey struct {
	country string
	method  domain.PaymentMethod
}

type payloadStrategy func(in PayloadInput, country domain.Country) (models.TransferRequest, error)

// TransferPayloadBuilder maps (country, payment method) to a payload strategy.
type TransferPayloadBuilder struct {
	strategies map[payloadKey]payloadStrategy
	defaults   map[domain.PaymentMethod]payloadStrategy
}

func NewTransferPayloadBuilder() *TransferPayloadBuilder {
	return &TransferPayloadBuilder{
		strategies: map[payloadKey]payloadStrategy{
			{domain.CountryNigeria, domain.PaymentMethodBank}:            phoneIdentifiedPayload,
			{domain.CountryNigeria, domain.PaymentMethodMobileMoney}:     phoneIdentifiedPayload,
			{domain.CountrySouthAfrica, domain.PaymentMethodBank}:        phoneIdentifiedPayload,
			{domain.CountrySouthAfrica, domain.PaymentMethodMobileMoney}: phoneIdentifiedPayload,
		},
		defaults: map[domain.PaymentMethod]payloadStrategy{
			domain.PaymentMethodBank:        bankPayload,
			domain.PaymentMethodMobileMoney: mobileMoneyPayload,
		},
	}
}

// Build returns a complete transfer request or an error, never a partial payload.
func (b *TransferPayloadBuilder) Build(in PayloadInput) (models.TransferRequest, error) {
	country, ok := domain.LookupCountry(in.Order.Country)
	if !ok {
		return models.TransferRequest{}, invalidField("country", "unsupported country")
	}
	if strings.TrimSpace(in.QuoteID) == "" {
		return models.TransferRequest{}, ErrNoQuote
	}

	strategy, ok := b.strategies[payloadKey{country.Code, in.Order.PaymentMethod}]
	if !ok {
		strategy, ok = b.defaults[in.Order.PaymentMethod]
	}
	if !ok {
		return models.TransferRequest{}, invalidField("payment_method", "unsupported payment method")
	}

	req, err := strategy(in, country)
	if err != nil {
		return models.TransferRequest{}, err
	}
	req.QuoteID = in.QuoteID
	req.Type = string(in.Order.PaymentMethod)
	return req, nil
}

// Check reports whether a payload can be built for the order once a quote
// exists.
func (b *TransferPayloadBuilder) Check(order models.Order, kyc *models.KYCRecord) error {
	_, err := b.Build(PayloadInput{Order: order, QuoteID: "pending", KYC: kyc})
	return err
}

// phoneIdentifiedPayload leaves bank fields blank and identifies the user
// by the verified phone number.
func phoneIdentifiedPayload(in PayloadInput, country domain.Country) (models.TransferRequest, error) {
	kyc, err := requireKYC(in.KYC)
	if err != nil {
		return models.TransferRequest{}, err
	}
	user := userDetailsFromKYC(kyc, country)
	req := models.TransferRequest{UserDetails: user}
	if in.Order.PaymentMethod == domain.PaymentMethodMobileMoney {
		req.MobileMoney = &models.MobileMoneyDetails{PhoneNumber: user.Phone, AccountName: user.Name}
	} else {
		req.Bank = &models.BankDetails{}
	}
	return req, nil
}

func bankPayload(in PayloadInput, country domain.Country) (models.TransferRequest, error) {
	if err := requireAccount(in.Order); err != nil {
		return models.TransferRequest{}, err
	}
	kyc, err := requireKYC(in.KYC)
	if err != nil {
		return models.TransferRequest{}, err
	}
	return models.TransferRequest{
		UserDetails: userDetailsFromKYC(kyc, country),
		Bank: &models.BankDetails{
			BankCode:      in.Order.Institution,
			AccountNumber: strings.TrimSpace(in.Order.AccountNumber),
			AccountName:   accountName(in.Order.AccountName, kyc),
		},
	}, nil
}

func mobileMoneyPayload(in PayloadInput, country domain.Country) (models.TransferRequest, error) {
	if err := requireAccount(in.Order); err != nil {
		return models.TransferRequest{}, err
	}
	phone := normalizePhone(in.Order.AccountNumber, country.DialingCode)

	var user models.UserDetails
	var name string
	if kyc, err := requireKYC(in.KYC); err == nil {
		user = userDetailsFromKYC(kyc, country)
		name = accountName(in.Order.AccountName, kyc)
	} else {
		// Bypassed orders: identify by the payout account itself.
		name = strings.TrimSpace(in.Order.AccountName)
		if name == "" || name == domain.AccountNamePlaceholder {
			return models.TransferRequest{}, err
		}
		user = models.UserDetails{Name: name, Country: country.Code, Phone: phone}
	}

	return models.TransferRequest{
		UserDetails: user,
		MobileMoney: &models.MobileMoneyDetails{
			Provider:    in.Order.Institution,
			PhoneNumber: phone,
			AccountName: name,
		},
	}, nil
}

func requireAccount(order models.Order) error {
	if strings.TrimSpace(order.Institution) == "" {
		return &ValidationError{Field: "institution", Message: ErrInstitutionRequired.Error(), Err: ErrInstitutionRequired}
	}
	if strings.TrimSpace(order.AccountNumber) == "" {
		return &ValidationError{Field: "account_number", Message: ErrAccountNumberRequired.Error(), Err: ErrAccountNumberRequired}
	}
	return nil
}

func requireKYC(record *models.KYCRecord) (*models.FullKYC, error) {
	if record == nil || record.FullKYC == nil {
		return nil, &ValidationError{Field: "kyc", Message: ErrKYCRecordRequired.Error(), Err: ErrKYCRecordRequired}
	}
	return record.FullKYC, nil
}

func userDetailsFromKYC(kyc *models.FullKYC, country domain.Country) models.UserDetails {
	user := models.UserDetails{
		Name:        kyc.LegalName(),
		Country:     country.Code,
		Address:     kyc.Address,
		Phone:       normalizePhone(kyc.Phone, country.DialingCode),
		DateOfBirth: kyc.DateOfBirth,
		IDNumber:    kyc.DocumentNumber,
	}

	if country.Code == domain.CountryNigeria {
		user.IDType = domain.IDTypeNIN
		user.AdditionalIDType = domain.IDTypeBVN
	} else {
		user.IDType = idTypeFor(kyc.DocumentType)
		sub := kyc.DocumentSubType
		if sub == "" {
			sub = kyc.DocumentType
		}
		user.AdditionalIDType = idTypeFor(sub)
	}

	user.AdditionalIDNumber = kyc.AdditionalDocumentNumber
	if user.AdditionalIDNumber == "" {
		user.AdditionalIDNumber = kyc.DocumentNumber
	}
	return user
}

func idTypeFor(docCode string) string {
	switch strings.ToUpper(strings.TrimSpace(docCode)) {
	case domain.DocCodeNationalID:
		return domain.IDTypeNIN
	case domain.DocCodePassport:
		return domain.IDTypePassport
	default:
		return domain.IDTypeLicense
	}
}

// accountName falls back to the verified legal name when account
// resolution only confirmed the account.
func accountName(resolved string, kyc *models.FullKYC) string {
	resolved = strings.TrimSpace(resolved)
	if resolved == "" || resolved == domain.AccountNamePlaceholder {
		return kyc.LegalName()
	}
	return resolved
}

func normalizePhone(raw, dialingCode string) string {
	raw = strings.TrimSpace(raw)
	international := strings.HasPrefix(raw, "+")
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" || international {
		return digits
	}
	return dialingCode + strings.TrimLeft(digits, "0")
}
