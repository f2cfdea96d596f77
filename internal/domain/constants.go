package domain

// Step is the lifecycle position of an order.
type Step string

const (
	StepInitial           Step = "Initial"
	StepGotQuote          Step = "GotQuote"
	StepWaitingForPayment Step = "WaitingForPayment"
	StepProcessingPayment Step = "ProcessingPayment"
	StepGotTransfer       Step = "GotTransfer"
	StepPaymentCompleted  Step = "PaymentCompleted"
	StepPaymentFailed     Step = "PaymentFailed"
)

// IsTerminal reports whether no further automatic transitions happen from s.
func (s Step) IsTerminal() bool {
	return s == StepPaymentCompleted || s == StepPaymentFailed
}

type AppState string

const (
	AppStateIdle       AppState = "Idle"
	AppStateProcessing AppState = "Processing"
)

// Direction mirrors the backend transferType.
type Direction string

const (
	TransferIn  Direction = "TransferIn"
	TransferOut Direction = "TransferOut"
)

// Flow is the user-facing product that started the order.
type Flow string

const (
	FlowBuy      Flow = "buy"
	FlowWithdraw Flow = "withdraw"
	FlowPay      Flow = "pay"
)

// Direction returns the value direction of the flow.
func (f Flow) Direction() Direction {
	if f == FlowBuy {
		return TransferIn
	}
	return TransferOut
}

func (f Flow) Valid() bool {
	switch f {
	case FlowBuy, FlowWithdraw, FlowPay:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodBank        PaymentMethod = "bank"
	PaymentMethodMobileMoney PaymentMethod = "mobile-money"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodBank || m == PaymentMethodMobileMoney
}

// AmountUnit tells whether the entered amount is fiat or crypto denominated.
type AmountUnit string

const (
	AmountUnitFiat   AmountUnit = "fiat"
	AmountUnitCrypto AmountUnit = "crypto"
)

type KYCStatus string

const (
	KYCStatusUnset    KYCStatus = ""
	KYCStatusPending  KYCStatus = "PENDING"
	KYCStatusInReview KYCStatus = "IN_REVIEW"
	KYCStatusVerified KYCStatus = "VERIFIED"
	KYCStatusRejected KYCStatus = "REJECTED"
)

// TransferStatus values reported by the status endpoint. Anything other
// than the two terminal values is treated as pending.
type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "TransferPending"
	TransferStatusComplete TransferStatus = "TransferComplete"
	TransferStatusFailed   TransferStatus = "TransferFailed"
)

// Countries that never qualify for the mobile-money KYC bypass and use
// phone-based identification payloads.
const (
	CountryNigeria     = "NG"
	CountrySouthAfrica = "ZA"
)

// AssetCNGN is the Nigeria-pegged stablecoin.
const AssetCNGN = "CNGN"

// AccountNamePlaceholder is returned by account resolution when the
// account is verified but no holder name is available.
const AccountNamePlaceholder = "OK"

// Document type codes as returned by the KYC provider and as expected by
// the transfer endpoint.
const (
	DocCodeNationalID = "ID"
	DocCodePassport   = "P"

	IDTypeNIN      = "NIN"
	IDTypeBVN      = "BVN"
	IDTypePassport = "Passport"
	IDTypeLicense  = "License"
)
