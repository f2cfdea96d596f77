package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidWallet    = errors.New("not a valid EVM address")
	ErrNoChallenge      = errors.New("no outstanding sign-in challenge for wallet")
	ErrInvalidSignature = errors.New("signature does not match wallet")
)

// Challenge is the message a wallet signs to prove key ownership.
type Challenge struct {
	Wallet    string    `json:"wallet_address"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeStore keeps one outstanding message per wallet. Take removes it.
type ChallengeStore interface {
	Put(ctx context.Context, wallet, message string, ttl time.Duration) error
	Take(ctx context.Context, wallet string) (string, error)
}

// WalletAuthenticator runs the sign-in handshake.
type WalletAuthenticator struct {
	store  ChallengeStore
	domain string
	ttl    time.Duration
	now    func() time.Time
}

func NewWalletAuthenticator(store ChallengeStore, domain string, ttl time.Duration) *WalletAuthenticator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WalletAuthenticator{store: store, domain: domain, ttl: ttl, now: time.Now}
}

// Challenge issues a fresh message for wallet, replacing any earlier one.
func (a *WalletAuthenticator) Challenge(ctx context.Context, wallet string) (Challenge, error) {
	if !common.IsHexAddress(wallet) {
		return Challenge{}, ErrInvalidWallet
	}
	address := common.HexToAddress(wallet).Hex()

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return Challenge{}, fmt.Errorf("generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	issued := a.now().UTC()
	c := Challenge{
		Wallet:    address,
		Nonce:     nonce,
		ExpiresAt: issued.Add(a.ttl),
	}
	c.Message = fmt.Sprintf("%s wants you to sign in with your wallet.\n\nWallet: %s\nNonce: %s\nIssued At: %s",
		a.domain, address, nonce, issued.Format(time.RFC3339))

	if err := a.store.Put(ctx, address, c.Message, a.ttl); err != nil {
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return c, nil
}

// Verify consumes the wallet's challenge and checks the personal_sign
// signature over it. It returns the checksummed address.
func (a *WalletAuthenticator) Verify(ctx context.Context, wallet, signature string) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", ErrInvalidWallet
	}
	address := common.HexToAddress(wallet)

	message, err := a.store.Take(ctx, address.Hex())
	if err != nil {
		return "", err
	}
	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return "", err
	}
	if signer != address {
		return "", ErrInvalidSignature
	}
	return address.Hex(), nil
}

// RecoverSigner returns the address that produced an EIP-191 personal_sign
// signature over message.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}
