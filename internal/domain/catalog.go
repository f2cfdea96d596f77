package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Country describes a supported fiat rail.
type Country struct {
	Code        string
	Currency    string
	DialingCode string
	MinAmount   decimal.Decimal // fiat, inclusive
	MaxAmount   decimal.Decimal // fiat, inclusive
	Methods     []PaymentMethod
}

// SupportsMethod reports whether the country offers the payment method.
func (c Country) SupportsMethod(m PaymentMethod) bool {
	for _, method := range c.Methods {
		if method == m {
			return true
		}
	}
	return false
}

// Network is a settlement network for crypto assets.
type Network struct {
	Name    string
	ChainID int64
	OnChain bool
}

// Asset is a crypto asset deployed on one or more networks.
type Asset struct {
	Symbol       string
	PegCurrency  string
	Decimals     int32
	TokenAddress map[string]string // network name -> contract address
}

var countries = map[string]Country{
	"NG": {Code: "NG", Currency: "NGN", DialingCode: "234", MinAmount: decimal.NewFromInt(1_000), MaxAmount: decimal.NewFromInt(5_000_000), Methods: []PaymentMethod{PaymentMethodBank, PaymentMethodMobileMoney}},
	"ZA": {Code: "ZA", Currency: "ZAR", DialingCode: "27", MinAmount: decimal.NewFromInt(20), MaxAmount: decimal.NewFromInt(100_000), Methods: []PaymentMethod{PaymentMethodBank, PaymentMethodMobileMoney}},
	"KE": {Code: "KE", Currency: "KES", DialingCode: "254", MinAmount: decimal.NewFromInt(10), MaxAmount: decimal.NewFromInt(250_000), Methods: []PaymentMethod{PaymentMethodBank, PaymentMethodMobileMoney}},
	"GH": {Code: "GH", Currency: "GHS", DialingCode: "233", MinAmount: decimal.NewFromInt(5), MaxAmount: decimal.NewFromInt(50_000), Methods: []PaymentMethod{PaymentMethodBank, PaymentMethodMobileMoney}},
	"UG": {Code: "UG", Currency: "UGX", DialingCode: "256", MinAmount: decimal.NewFromInt(1_000), MaxAmount: decimal.NewFromInt(20_000_000), Methods: []PaymentMethod{PaymentMethodMobileMoney}},
	"TZ": {Code: "TZ", Currency: "TZS", DialingCode: "255", MinAmount: decimal.NewFromInt(1_000), MaxAmount: decimal.NewFromInt(15_000_000), Methods: []PaymentMethod{PaymentMethodMobileMoney}},
	"RW": {Code: "RW", Currency: "RWF", DialingCode: "250", MinAmount: decimal.NewFromInt(500), MaxAmount: decimal.NewFromInt(5_000_000), Methods: []PaymentMethod{PaymentMethodMobileMoney}},
}

var networks = map[string]Network{
	"base":     {Name: "base", ChainID: 8453, OnChain: true},
	"polygon":  {Name: "polygon", ChainID: 137, OnChain: true},
	"bsc":      {Name: "bsc", ChainID: 56, OnChain: true},
	"arbitrum": {Name: "arbitrum", ChainID: 42161, OnChain: true},
	"celo":     {Name: "celo", ChainID: 42220, OnChain: true},
	// Custodial balance held by the backend; settles without a wallet signature.
	"custodial": {Name: "custodial", OnChain: false},
}

var assets = map[string]Asset{
	"USDC": {Symbol: "USDC", PegCurrency: "USD", Decimals: 6, TokenAddress: map[string]string{
		"base":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		"polygon":  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		"arbitrum": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		"celo":     "0xcebA9300f2b948710d2653dD7B07f33A8B32118C",
	}},
	"USDT": {Symbol: "USDT", PegCurrency: "USD", Decimals: 6, TokenAddress: map[string]string{
		"polygon":  "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
		"bsc":      "0x55d398326f99059fF775485246999027B3197955",
		"arbitrum": "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
		"celo":     "0x48065fbBE25f71C9282ddf5e1cD6D6A887483D5e",
	}},
	AssetCNGN: {Symbol: AssetCNGN, PegCurrency: "NGN", Decimals: 6, TokenAddress: map[string]string{
		"base":    "0x46C85152bFe9f96829aA94755D9f915F9B10EF5F",
		"polygon": "0x52828daa48C1a9A06F37500882b42daf0bE04C3B",
		"bsc":     "0xa8AEA66B361a8d53e8865c62D142167Af28Af058",
	}},
}

// LookupCountry returns the catalog entry for an ISO country code.
func LookupCountry(code string) (Country, bool) {
	c, ok := countries[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

func LookupNetwork(name string) (Network, bool) {
	n, ok := networks[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

func LookupAsset(symbol string) (Asset, bool) {
	a, ok := assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return a, ok
}

// TokenOn returns the contract address of the asset on network.
func (a Asset) TokenOn(network string) (string, bool) {
	addr, ok := a.TokenAddress[strings.ToLower(network)]
	return addr, ok
}
