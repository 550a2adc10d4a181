// Package ethereum implements walletcap.Capability with a local secp256k1 key
// and EIP-191 personal_sign signatures.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"minerva/internal/walletcap"
)

// Approver is consulted before every signature. Returning an error declines
// the prompt; walletcap.ErrUserRejected is the conventional answer.
type Approver func(ctx context.Context, message []byte) error

// Reject declines every prompt.
func Reject(context.Context, []byte) error {
	return walletcap.ErrUserRejected
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithApprover installs a signature prompt hook.
func WithApprover(a Approver) Option {
	return func(w *Wallet) { w.approver = a }
}

// Wallet holds one private key and reports its address while connected.
type Wallet struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	connected bool
	approver  Approver
	nextID    int
	listeners map[int]func(string)
}

var _ walletcap.Capability = (*Wallet)(nil)

// New wraps key. The wallet starts disconnected.
func New(key *ecdsa.PrivateKey, opts ...Option) *Wallet {
	w := &Wallet{key: key, listeners: make(map[int]func(string))}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Generate creates a wallet with a fresh random key.
func Generate(opts ...Option) (*Wallet, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return New(key, opts...), nil
}

// FromHex loads a wallet from a hex private key, with or without 0x.
func FromHex(hexKey string, opts ...Option) (*Wallet, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return New(key, opts...), nil
}

// KeyHex returns the private key for persisting a demo wallet.
func (w *Wallet) KeyHex() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return hexutil.Encode(ethcrypto.FromECDSA(w.key))
}

// Account returns the checksummed address regardless of connection state.
func (w *Wallet) Account() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return ethcrypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

// Connect starts reporting the address and notifies listeners.
func (w *Wallet) Connect(_ context.Context) error {
	w.mu.Lock()
	w.connected = true
	addr := ethcrypto.PubkeyToAddress(w.key.PublicKey).Hex()
	w.mu.Unlock()
	w.notify(addr)
	return nil
}

// Disconnect stops reporting the address and notifies listeners with "".
func (w *Wallet) Disconnect(_ context.Context) error {
	w.mu.Lock()
	was := w.connected
	w.connected = false
	w.mu.Unlock()
	if was {
		w.notify("")
	}
	return nil
}

// SwitchAccount replaces the key, as when the holder picks another account in
// the extension. Listeners see the new address if connected.
func (w *Wallet) SwitchAccount(key *ecdsa.PrivateKey) {
	w.mu.Lock()
	w.key = key
	connected := w.connected
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	w.mu.Unlock()
	if connected {
		w.notify(addr)
	}
}

func (w *Wallet) Address(_ context.Context) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return "", false
	}
	return ethcrypto.PubkeyToAddress(w.key.PublicKey).Hex(), true
}

// SignMessage returns a 65-byte [R || S || V] signature with V in {27, 28},
// hex encoded with a 0x prefix, as personal_sign does.
func (w *Wallet) SignMessage(ctx context.Context, message []byte) (string, error) {
	w.mu.RLock()
	connected, key, approver := w.connected, w.key, w.approver
	w.mu.RUnlock()
	if !connected {
		return "", walletcap.ErrUnavailable
	}
	if approver != nil {
		if err := approver(ctx, message); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sig, err := ethcrypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func (w *Wallet) OnAddressChange(fn func(string)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.listeners, id)
			w.mu.Unlock()
		})
	}
}

func (w *Wallet) notify(addr string) {
	w.mu.RLock()
	fns := make([]func(string), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.RUnlock()
	for _, fn := range fns {
		fn(addr)
	}
}

// Recover returns the address that produced a personal_sign signature over
// message.
func Recover(message []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", ethcrypto.SignatureLength, len(sig))
	}
	if sig[ethcrypto.RecoveryIDOffset] >= 27 {
		sig[ethcrypto.RecoveryIDOffset] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
