package models

import (
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/google/uuid"
)

// Selection is the user's current choice of rail and amount.
type Selection struct {
	Country       string               `json:"country"`
	Asset         string               `json:"asset"`
	Network       string               `json:"network"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Amount        string               `json:"amount"`
	AmountUnit    domain.AmountUnit    `json:"amount_unit"`
	Institution   string               `json:"institution,omitempty"`
	AccountNumber string               `json:"account_number,omitempty"`
	AccountName   string               `json:"account_name,omitempty"`
}

// Order is the unit of work driven by the order machine.
type Order struct {
	ID            uuid.UUID            `json:"id"`
	Flow          domain.Flow          `json:"flow,omitempty"`
	Direction     domain.Direction     `json:"direction,omitempty"`
	Step          domain.Step          `json:"step"`
	AppState      domain.AppState      `json:"app_state"`
	Country       string               `json:"country"`
	Asset         string               `json:"asset"`
	Network       string               `json:"network"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Amount        string               `json:"amount"`
	AmountUnit    domain.AmountUnit    `json:"amount_unit"`
	Institution   string               `json:"institution,omitempty"`
	AccountNumber string               `json:"account_number,omitempty"`
	AccountName   string               `json:"account_name,omitempty"`
	WalletAddress string               `json:"wallet_address"`
}

// Quote is a server-issued price quote. It is never mutated.
type Quote struct {
	QuoteID      string           `json:"quoteId"`
	FiatAmount   string           `json:"fiatAmount"`
	CryptoAmount string           `json:"cryptoAmount"`
	FiatType     string           `json:"fiatType"`
	CryptoType   string           `json:"cryptoType"`
	Network      string           `json:"network"`
	FeeInFiat    string           `json:"feeInFiat"`
	TransferType domain.Direction `json:"transferType"`
	Address      string           `json:"address"`
}

// Transfer is the backend's payout/collection instruction for a quote.
type Transfer struct {
	TransferID        string            `json:"transferId"`
	TransferAddress   string            `json:"transferAddress"`
	UserActionDetails map[string]string `json:"userActionDetails,omitempty"`
}

// FullKYC holds the verified identity fields.
type FullKYC struct {
	FirstName                string `json:"firstName"`
	LastName                 string `json:"lastName"`
	Nationality              string `json:"nationality"`
	DateOfBirth              string `json:"dateOfBirth"`
	Address                  string `json:"address"`
	Phone                    string `json:"phone"`
	DocumentNumber           string `json:"documentNumber"`
	DocumentType             string `json:"documentType"`
	DocumentSubType          string `json:"documentSubType"`
	AdditionalDocumentNumber string `json:"additionalDocumentNumber,omitempty"`
}

// LegalName returns the full verified name.
func (k FullKYC) LegalName() string {
	switch {
	case k.FirstName == "":
		return k.LastName
	case k.LastName == "":
		return k.FirstName
	}
	return k.FirstName + " " + k.LastName
}

type KYCMessage struct {
	Link string `json:"link,omitempty"`
}

// KYCRecord is the identity verification state for a wallet address.
type KYCRecord struct {
	Status  domain.KYCStatus `json:"kycStatus"`
	FullKYC *FullKYC         `json:"fullKYC,omitempty"`
	Message KYCMessage       `json:"message"`
}

// UserDetails is the normalized identity block carried by every transfer payload.
type UserDetails struct {
	Name               string `json:"name"`
	Country            string `json:"country"`
	Address            string `json:"address"`
	Phone              string `json:"phone"`
	DateOfBirth        string `json:"dob"`
	IDNumber           string `json:"idNumber"`
	IDType             string `json:"idType"`
	AdditionalIDType   string `json:"additionalIdType"`
	AdditionalIDNumber string `json:"additionalIdNumber"`
}

type BankDetails struct {
	BankCode      string `json:"bankCode"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
}

type MobileMoneyDetails struct {
	Provider    string `json:"provider"`
	PhoneNumber string `json:"phoneNumber"`
	AccountName string `json:"accountName"`
}

// TransferRequest is the body sent to the transfer endpoint. Exactly one of
// Bank and MobileMoney is set.
type TransferRequest struct {
	QuoteID     string              `json:"quoteId"`
	Type        string              `json:"type"`
	UserDetails UserDetails         `json:"userDetails"`
	Bank        *BankDetails        `json:"bank,omitempty"`
	MobileMoney *MobileMoneyDetails `json:"mobileMoney,omitempty"`
}

// PaymentInstruction is what the wallet is asked to sign.
type PaymentInstruction struct {
	OrderID      uuid.UUID `json:"order_id"`
	Recipient    string    `json:"recipient_address"`
	Amount       string    `json:"amount"`
	TokenAddress string    `json:"token_address"`
	Decimals     int32     `json:"decimals"`
	ChainID      int64     `json:"chain_id"`
	From         string    `json:"from"`
}

// OrderView is the read model served to the front-end.
type OrderView struct {
	SessionID   string              `json:"session_id"`
	Order       Order               `json:"order"`
	Quote       *Quote              `json:"quote,omitempty"`
	Transfer    *Transfer           `json:"transfer,omitempty"`
	TxHash      string              `json:"tx_hash,omitempty"`
	KYC         *KYCRecord          `json:"kyc,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	Pending     []string            `json:"pending,omitempty"`
	Instruction *PaymentInstruction `json:"payment_instruction,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// OrderEvent is one recorded transition.
type OrderEvent struct {
	OrderID   uuid.UUID   `json:"order_id"`
	SessionID string      `json:"session_id"`
	Flow      domain.Flow `json:"flow"`
	From      domain.Step `json:"from"`
	To        domain.Step `json:"to"`
	Action    string      `json:"action"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
