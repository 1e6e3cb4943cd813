package keystore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/AlexZinkM/local-keystore/internal/accountstore"
	"github.com/AlexZinkM/local-keystore/internal/crypto"
	"github.com/AlexZinkM/local-keystore/internal/model"
	"github.com/AlexZinkM/local-keystore/internal/multimutex"
	"github.com/AlexZinkM/local-keystore/internal/secretstore"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// generatedPasswordLen is the number of random bytes in generated passwords
const generatedPasswordLen = 32

// Config holds the service parameters
type Config struct {
	// KeystoreDir is where encrypted key files are kept
	KeystoreDir string

	// KDFIterations is the PBKDF2 iteration count of new records
	KDFIterations int
}

// Service is the keystore façade used by callers. It owns the account store
// and keeps the password of every account in the secret store.
type Service struct {
	accounts *accountstore.Store
	secrets  secretstore.Store
	codec    *crypto.Codec
	session  *Session

	// locks gives each account at most one in-flight mutating operation,
	// covering both its record and its stored password. It is always taken
	// before the account store's own per-account lock, never after.
	locks *multimutex.Mutex[common.Address]

	workers *fn.GoroutineManager
}

// New creates the service. It fails with model.ErrProtectionUnavailable when
// the secret store cannot be read.
func New(cfg Config, secrets secretstore.Store) (*Service, error) {
	codec := crypto.NewCodec(cfg.KDFIterations)

	accounts, err := accountstore.New(cfg.KeystoreDir, codec)
	if err != nil {
		return nil, err
	}

	session, err := NewSession(secrets)
	if err != nil {
		return nil, err
	}

	return &Service{
		accounts: accounts,
		secrets:  secrets,
		codec:    codec,
		session:  session,
		locks:    multimutex.New[common.Address](),
		workers:  fn.NewGoroutineManager(),
	}, nil
}

// Stop waits for in-flight background operations and refuses new ones
func (s *Service) Stop() {
	s.workers.Stop()
}

// Accounts lists the stored accounts
func (s *Service) Accounts() ([]model.Account, error) {
	return s.accounts.Accounts()
}

// RecentAccount returns the last selected, created or imported account
func (s *Service) RecentAccount() fn.Option[model.Account] {
	return s.session.Recent()
}

// SelectAccount marks account as recently used
func (s *Service) SelectAccount(account model.Account) error {
	has, err := s.accounts.Has(account)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: %v", model.ErrAccountNotFound, account)
	}
	return s.session.SetRecent(account)
}

// Password returns the stored password of account
func (s *Service) Password(account model.Account) (fn.Option[string], error) {
	return s.secrets.Get(account.Key())
}

// CreateAccount creates a new account encrypted with password and stores the
// password for later use.
func (s *Service) CreateAccount(password string) (model.Account, error) {
	pw := []byte(password)
	defer clear(pw)

	account, err := s.accounts.Create(pw)
	if err != nil {
		return model.Account{}, err
	}

	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	if err := s.persistNew(account, password); err != nil {
		return model.Account{}, err
	}
	return account, nil
}

// ImportSource is the input of ImportWallet: either a keystore JSON document
// with its password or a raw hex private key.
type ImportSource struct {
	keystore   string
	password   string
	privateKey string
}

// FromKeystore imports a serialized keystore encrypted with password
func FromKeystore(keystore, password string) ImportSource {
	return ImportSource{keystore: keystore, password: password}
}

// FromPrivateKey imports a raw private key given as hex, with or without 0x
func FromPrivateKey(hexKey string) ImportSource {
	return ImportSource{privateKey: hexKey}
}

// ImportWallet imports an account. Raw private keys are first wrapped into a
// keystore record under a throwaway password so both inputs share one import
// path. The stored record always gets a freshly generated password.
func (s *Service) ImportWallet(src ImportSource) (model.Account, error) {
	data, password, err := s.importData(src)
	if err != nil {
		return model.Account{}, err
	}
	defer clear(password)

	newPassword, err := GeneratePassword()
	if err != nil {
		return model.Account{}, &model.ImportError{Err: err}
	}
	pw := []byte(newPassword)
	defer clear(pw)

	account, err := s.accounts.Import(data, password, pw)
	if err != nil {
		return model.Account{}, err
	}

	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	if err := s.persistNew(account, newPassword); err != nil {
		return model.Account{}, err
	}
	return account, nil
}

func (s *Service) importData(src ImportSource) ([]byte, []byte, error) {
	if src.privateKey == "" {
		if src.keystore == "" {
			return nil, nil, &model.ImportError{Err: errors.New("empty import source")}
		}
		return []byte(src.keystore), []byte(src.password), nil
	}

	raw, err := parsePrivateKey(src.privateKey)
	if err != nil {
		return nil, nil, &model.ImportError{Err: err}
	}
	defer clear(raw)

	tmp, err := GeneratePassword()
	if err != nil {
		return nil, nil, &model.ImportError{Err: err}
	}
	password := []byte(tmp)

	file, err := s.codec.EncryptKey(raw, password)
	if err != nil {
		return nil, nil, &model.ImportError{Err: err}
	}
	data, err := crypto.Marshal(file)
	if err != nil {
		return nil, nil, &model.ImportError{Err: err}
	}
	return data, password, nil
}

// persistNew stores the password of a freshly written account. When that
// fails the record is removed again so no undecryptable account is left
// behind. Caller must hold the account lock.
func (s *Service) persistNew(account model.Account, password string) error {
	if err := s.setPassword(account, password); err != nil {
		log.Criticalf("Failed to store password of %v: %v", account, err)

		pw := []byte(password)
		defer clear(pw)
		if delErr := s.accounts.Delete(account, pw); delErr != nil {
			log.Errorf("Failed to roll back account %v: %v", account, delErr)
		}
		return err
	}

	if err := s.session.SetRecent(account); err != nil {
		log.Warnf("Unable to update recently used account: %v", err)
	}
	return nil
}

// ExportAccount returns the account's keystore JSON encrypted under
// newPassword. The stored record is unchanged.
func (s *Service) ExportAccount(account model.Account, newPassword string) ([]byte, error) {
	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	password, err := s.password(account)
	if err != nil {
		return nil, err
	}
	defer clear(password)

	npw := []byte(newPassword)
	defer clear(npw)

	return s.accounts.Export(account, password, npw)
}

// DeleteAccount removes the account's record and its stored password.
// The record goes first: if the password cannot be removed afterwards the
// account is still deleted and ErrPasswordPersistence is returned. The
// leftover password unlocks nothing and is replaced if the same account is
// created or imported again.
func (s *Service) DeleteAccount(account model.Account) error {
	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	password, err := s.password(account)
	if err != nil {
		return err
	}
	defer clear(password)

	if err := s.accounts.Delete(account, password); err != nil {
		return err
	}
	if err := s.session.ClearIf(account); err != nil {
		log.Warnf("Unable to clear recently used account: %v", err)
	}
	if err := s.secrets.Delete(account.Key()); err != nil {
		log.Errorf("Deleted %v but failed to delete its password: %v", account, err)
		return fmt.Errorf("%w: %v", model.ErrPasswordPersistence, err)
	}
	return nil
}

// UpdateAccount re-encrypts the account under newPassword and stores it. If
// the new password cannot be stored the record is switched back to the old
// password.
func (s *Service) UpdateAccount(account model.Account, newPassword string) error {
	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	oldPassword, err := s.password(account)
	if err != nil {
		return err
	}
	defer clear(oldPassword)

	npw := []byte(newPassword)
	defer clear(npw)

	if err := s.accounts.UpdatePassword(account, oldPassword, npw); err != nil {
		return err
	}

	if err := s.setPassword(account, newPassword); err != nil {
		log.Criticalf("Failed to store new password of %v: %v", account, err)
		if revErr := s.accounts.UpdatePassword(account, npw, oldPassword); revErr != nil {
			log.Criticalf("Failed to restore old password of %v: %v", account, revErr)
		}
		return err
	}
	return nil
}

// SignTransaction signs tx with the key of tx.Account and returns its
// canonical binary encoding. The key is unlocked only for the duration of the
// signature and locked again on every path.
func (s *Service) SignTransaction(tx model.SignableTx) (model.SignedTx, error) {
	if tx.ChainID == nil || tx.ChainID.Sign() <= 0 {
		return model.SignedTx{}, fmt.Errorf("%w: invalid chain id", model.ErrSigningFailed)
	}

	account := tx.Account
	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	password, err := s.password(account)
	if err != nil {
		return model.SignedTx{}, fmt.Errorf("%w: %w", model.ErrSigningFailed, err)
	}
	defer clear(password)

	release, err := s.accounts.Unlock(account, password)
	if err != nil {
		return model.SignedTx{}, fmt.Errorf("%w: %w", model.ErrSigningFailed, err)
	}
	defer release()

	signed, err := s.accounts.SignTx(account, newLegacyTx(tx), tx.ChainID)
	if err != nil {
		return model.SignedTx{}, fmt.Errorf("%w: %w", model.ErrSigningFailed, err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return model.SignedTx{}, fmt.Errorf("%w: %w", model.ErrSigningFailed, err)
	}

	log.Infof("Signed transaction %v from %v", signed.Hash(), account)
	return model.SignedTx{Raw: raw, Hash: signed.Hash()}, nil
}

// CreateAccountAsync runs CreateAccount in the background
func (s *Service) CreateAccountAsync(password string) *Operation[model.Account] {
	return Submit(s, func(context.Context) (model.Account, error) {
		return s.CreateAccount(password)
	})
}

// ImportWalletAsync runs ImportWallet in the background
func (s *Service) ImportWalletAsync(src ImportSource) *Operation[model.Account] {
	return Submit(s, func(context.Context) (model.Account, error) {
		return s.ImportWallet(src)
	})
}

// ExportAccountAsync runs ExportAccount in the background
func (s *Service) ExportAccountAsync(account model.Account, newPassword string) *Operation[[]byte] {
	return Submit(s, func(context.Context) ([]byte, error) {
		return s.ExportAccount(account, newPassword)
	})
}

// SignTransactionAsync runs SignTransaction in the background
func (s *Service) SignTransactionAsync(tx model.SignableTx) *Operation[model.SignedTx] {
	return Submit(s, func(context.Context) (model.SignedTx, error) {
		return s.SignTransaction(tx)
	})
}

func (s *Service) setPassword(account model.Account, password string) error {
	if err := s.secrets.Set(account.Key(), password, secretstore.AccessWhenUnlocked); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPasswordPersistence, err)
	}
	return nil
}

// password looks up the stored password of account. The caller must clear
// the returned slice.
func (s *Service) password(account model.Account) ([]byte, error) {
	stored, err := s.secrets.Get(account.Key())
	if err != nil {
		return nil, err
	}
	password, err := stored.UnwrapOrErr(
		fmt.Errorf("%w: no stored password for %v", model.ErrAccountNotFound, account),
	)
	if err != nil {
		return nil, err
	}
	return []byte(password), nil
}

func newLegacyTx(tx model.SignableTx) *types.Transaction {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    tx.Nonce,
		To:       tx.To,
		Value:    value,
		Gas:      tx.GasLimit,
		GasPrice: gasPrice,
		Data:     tx.Data,
	})
}

// parsePrivateKey decodes a 32-byte hex private key
func parsePrivateKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return nil, fmt.Errorf("%w: expected 64 hex characters", model.ErrInvalidPrivateKey)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPrivateKey, err)
	}
	return raw, nil
}

// GeneratePassword returns a random hex password for accounts whose password
// the user never sees
func GeneratePassword() (string, error) {
	b := make([]byte, generatedPasswordLen)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	defer clear(b)
	return hex.EncodeToString(b), nil
}
