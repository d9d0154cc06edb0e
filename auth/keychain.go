package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"

	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/internal/uuid"
)

// DefaultKeychainService is the keyring service name used when none is configured.
const DefaultKeychainService = "keysafe"

// KeyringOpener opens the keyring for a service.
type KeyringOpener func(service string) (keyring.Keyring, error)

// OpenSystemKeyring opens the platform credential store. Only backends
// backed by the OS are allowed so the KEK never lands in a plain file.
func OpenSystemKeyring(service string) (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
		},
		KeychainTrustApplication:       false,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
	})
}

// Keychain keeps a random KEK in the OS keychain. Reading it triggers the
// platform's own presence check (Touch ID, Windows Hello, a session unlock).
type Keychain struct {
	Open KeyringOpener
}

func (Keychain) Variant() Variant { return VariantKeychain }

func (k Keychain) Approve(ctx context.Context, req Request) (*Proof, error) {
	cfg := req.Config.Keychain
	if cfg == nil {
		return nil, fmt.Errorf("%w: keychain parameters missing", ErrAuthenticationFailed)
	}
	ring, err := k.open(cfg.Service)
	if err != nil {
		return nil, err
	}
	item, err := ring.Get(cfg.Account)
	if err != nil {
		return nil, keyringError(err)
	}
	if len(item.Data) != util.AESKeySize {
		return nil, fmt.Errorf("%w: keychain item malformed", ErrAuthenticationFailed)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// item.Data may alias backend storage; the enclave wipes only the copy.
	return newProof(req.Config, util.CopyBytes(item.Data)), nil
}

func (k Keychain) Enroll(ctx context.Context, req EnrollRequest) (Config, *Proof, error) {
	service := req.Options.KeychainService
	if service == "" {
		service = DefaultKeychainService
	}
	ring, err := k.open(service)
	if err != nil {
		return Config{}, nil, err
	}
	kek, err := util.NewAESKey()
	if err != nil {
		return Config{}, nil, err
	}
	// Each enrollment gets its own item so revoking the previous one
	// never removes the replacement.
	keyID := uuid.New()
	cfg := Config{
		Variant:  VariantKeychain,
		KeyID:    keyID,
		Keychain: &KeychainConfig{Service: service, Account: "vault-" + req.VaultID + "/" + keyID},
	}
	err = ring.Set(keyring.Item{
		Key:         cfg.Keychain.Account,
		Data:        util.CopyBytes(kek),
		Label:       "keysafe vault key",
		Description: "Unlocks the keysafe private key",
	})
	if err != nil {
		util.WipeBytes(kek)
		return Config{}, nil, keyringError(err)
	}
	if ctx.Err() != nil {
		util.WipeBytes(kek)
		return Config{}, nil, ctx.Err()
	}
	return cfg, newProof(cfg, kek), nil
}

// Revoke deletes the keychain item. A missing item is not an error.
func (k Keychain) Revoke(_ context.Context, cfg Config) error {
	if cfg.Keychain == nil {
		return nil
	}
	ring, err := k.open(cfg.Keychain.Service)
	if err != nil {
		return err
	}
	if err := ring.Remove(cfg.Keychain.Account); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing keychain item: %w", err)
	}
	return nil
}

func (k Keychain) open(service string) (keyring.Keyring, error) {
	open := k.Open
	if open == nil {
		open = OpenSystemKeyring
	}
	ring, err := open(service)
	if err != nil {
		if errors.Is(err, keyring.ErrNoAvailImpl) {
			return nil, fmt.Errorf("%w: no OS keychain available", ErrNoAuthenticatorFound)
		}
		return nil, fmt.Errorf("%w: opening keychain: %v", ErrNoAuthenticatorFound, err)
	}
	return ring, nil
}

func keyringError(err error) error {
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return fmt.Errorf("%w: keychain item not found", ErrAuthenticationFailed)
	case strings.Contains(strings.ToLower(err.Error()), "cancel"):
		return ErrCancelled
	default:
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
}
