package accountstore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AlexZinkM/local-keystore/internal/crypto"
	"github.com/AlexZinkM/local-keystore/internal/model"
	"github.com/AlexZinkM/local-keystore/internal/multimutex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const filePrefix = "UTC--"

// Store is a directory of keystore files, one per account
type Store struct {
	dir   string
	codec *crypto.Codec

	// locks serializes every operation touching one account's file. It is
	// the inner lock: keystore.Service takes its own per-account lock around
	// a whole operation and then calls in here, so the two tables must stay
	// separate (the mutex is not reentrant).
	locks *multimutex.Mutex[common.Address]

	unlockedMtx sync.Mutex
	unlocked    map[common.Address]*unlockedKey

	// writeFile atomically replaces path with data
	writeFile func(path string, data []byte) error
}

type unlockedKey struct {
	key     *ecdsa.PrivateKey
	holders int
}

type record struct {
	path    string
	file    *model.KeystoreFile
	address common.Address
}

// New opens the account store rooted at dir, creating it if needed
func New(dir string, codec *crypto.Codec) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore dir: %w", err)
	}

	return &Store{
		dir:       dir,
		codec:     codec,
		locks:     multimutex.New[common.Address](),
		unlocked:  make(map[common.Address]*unlockedKey),
		writeFile: writeKeyFile,
	}, nil
}

// Dir returns the directory holding the keystore files
func (s *Store) Dir() string {
	return s.dir
}

// Create generates a new key, encrypts it with password and stores it.
// password must be []byte for security (caller should zero it after use)
func (s *Store) Create(password []byte) (model.Account, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to generate key: %w", err)
	}
	raw := ethcrypto.FromECDSA(key)
	defer clear(raw)
	defer zeroKey(key)

	account := model.Account{Address: ethcrypto.PubkeyToAddress(key.PublicKey)}

	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	file, err := s.codec.EncryptKey(raw, password)
	if err != nil {
		return model.Account{}, err
	}
	if _, err := s.add(account.Address, file); err != nil {
		return model.Account{}, err
	}

	log.Infof("Created account %v", account)
	return account, nil
}

// Import decrypts a serialized keystore with password, re-encrypts the key
// under newPassword and stores it. If the address is already present the new
// record is removed again and the import fails with ErrDuplicateAccount.
func (s *Store) Import(data, password, newPassword []byte) (model.Account, error) {
	file, err := crypto.Unmarshal(data)
	if err != nil {
		return model.Account{}, &model.ImportError{Err: err}
	}

	raw, err := crypto.DecryptKey(file, password)
	if err != nil {
		return model.Account{}, &model.ImportError{Err: err}
	}
	defer clear(raw)

	address, err := crypto.AddressFromKey(raw)
	if err != nil {
		return model.Account{}, &model.ImportError{Err: err}
	}
	account := model.Account{Address: address}

	s.locks.Lock(address)
	defer s.locks.Unlock(address)

	stored, err := s.codec.EncryptKey(raw, newPassword)
	if err != nil {
		return model.Account{}, &model.ImportError{Err: err}
	}
	path, err := s.add(address, stored)
	if err != nil {
		return model.Account{}, &model.ImportError{Err: err}
	}

	records, err := s.recordsFor(address)
	if err != nil {
		return model.Account{}, &model.ImportError{Err: err}
	}
	if len(records) > 1 {
		if err := os.Remove(path); err != nil {
			log.Errorf("Failed to remove duplicate record %s: %v", path, err)
		}
		log.Warnf("Rejected duplicate import of %v", account)
		return model.Account{}, &model.ImportError{Err: model.ErrDuplicateAccount}
	}

	log.Infof("Imported account %v", account)
	return account, nil
}

// Accounts lists every stored account in storage order
func (s *Store) Accounts() ([]model.Account, error) {
	records, err := s.records()
	if err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(records))
	for _, r := range records {
		accounts = append(accounts, model.Account{Address: r.address})
	}
	return accounts, nil
}

// Has reports whether account has a stored record
func (s *Store) Has(account model.Account) (bool, error) {
	records, err := s.recordsFor(account.Address)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// Delete removes the account's record after checking password
func (s *Store) Delete(account model.Account, password []byte) error {
	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	r, err := s.find(account.Address)
	if err != nil {
		return err
	}

	raw, err := crypto.DecryptKey(r.file, password)
	if err != nil {
		return err
	}
	clear(raw)

	if err := os.Remove(r.path); err != nil {
		return fmt.Errorf("failed to remove keystore file: %w", err)
	}

	log.Infof("Deleted account %v", account)
	return nil
}

// UpdatePassword re-encrypts the account's record from oldPassword to
// newPassword. The file is replaced atomically: readers see either the old
// or the new record, never a partial one.
func (s *Store) UpdatePassword(account model.Account, oldPassword, newPassword []byte) error {
	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	r, err := s.find(account.Address)
	if err != nil {
		return err
	}

	updated, err := s.codec.Reencrypt(r.file, oldPassword, newPassword)
	if err != nil {
		return err
	}

	data, err := crypto.Marshal(updated)
	if err != nil {
		return err
	}
	if err := s.writeFile(r.path, data); err != nil {
		return fmt.Errorf("failed to write keystore file: %w", err)
	}

	log.Infof("Updated password of account %v", account)
	return nil
}

// Export returns the account's record re-encrypted under newPassword. The
// stored record is not modified.
func (s *Store) Export(account model.Account, password, newPassword []byte) ([]byte, error) {
	s.locks.Lock(account.Address)
	defer s.locks.Unlock(account.Address)

	r, err := s.find(account.Address)
	if err != nil {
		return nil, err
	}

	exported, err := s.codec.Reencrypt(r.file, password, newPassword)
	if err != nil {
		return nil, err
	}
	return crypto.Marshal(exported)
}

// Unlock decrypts the account's key and keeps it in memory until the
// returned release function is called. release is idempotent.
func (s *Store) Unlock(account model.Account, password []byte) (release func(), err error) {
	r, err := s.find(account.Address)
	if err != nil {
		return nil, err
	}

	raw, err := crypto.DecryptKey(r.file, password)
	if err != nil {
		return nil, err
	}
	defer clear(raw)

	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPrivateKey, err)
	}

	s.unlockedMtx.Lock()
	if u, ok := s.unlocked[account.Address]; ok {
		u.holders++
		zeroKey(key)
	} else {
		s.unlocked[account.Address] = &unlockedKey{key: key, holders: 1}
	}
	s.unlockedMtx.Unlock()

	log.Debugf("Unlocked account %v", account)

	var once sync.Once
	return func() {
		once.Do(func() { s.lock(account.Address) })
	}, nil
}

func (s *Store) lock(address common.Address) {
	s.unlockedMtx.Lock()
	defer s.unlockedMtx.Unlock()

	u, ok := s.unlocked[address]
	if !ok {
		return
	}
	u.holders--
	if u.holders > 0 {
		return
	}
	zeroKey(u.key)
	delete(s.unlocked, address)

	log.Debugf("Locked account %s", model.CanonicalAddress(address))
}

// IsUnlocked reports whether the account's key is currently in memory
func (s *Store) IsUnlocked(account model.Account) bool {
	s.unlockedMtx.Lock()
	defer s.unlockedMtx.Unlock()

	_, ok := s.unlocked[account.Address]
	return ok
}

// SignTx signs tx with the account's unlocked key using EIP-155 replay
// protection for chainID. It fails with ErrAccountLocked if the key is not
// unlocked.
func (s *Store) SignTx(account model.Account, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.unlockedMtx.Lock()
	defer s.unlockedMtx.Unlock()

	u, ok := s.unlocked[account.Address]
	if !ok {
		return nil, model.ErrAccountLocked
	}
	return types.SignTx(tx, types.NewEIP155Signer(chainID), u.key)
}

// add writes a new record file and returns its path
func (s *Store) add(address common.Address, file *model.KeystoreFile) (string, error) {
	data, err := crypto.Marshal(file)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, keyFileName(address))
	if err := s.writeFile(path, data); err != nil {
		return "", fmt.Errorf("failed to write keystore file: %w", err)
	}
	return path, nil
}

// find returns the single record for address
func (s *Store) find(address common.Address) (*record, error) {
	records, err := s.recordsFor(address)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, model.CanonicalAddress(address))
	}
	return &records[0], nil
}

func (s *Store) recordsFor(address common.Address) ([]record, error) {
	records, err := s.records()
	if err != nil {
		return nil, err
	}

	var matches []record
	for _, r := range records {
		if r.address == address {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// records reads every keystore file in the directory. Files that cannot be
// parsed are skipped.
func (s *Store) records() ([]record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore dir: %w", err)
	}

	records := make([]record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read file: %w", err)
		}

		file, err := crypto.Unmarshal(data)
		if err != nil {
			log.Warnf("Skipping unreadable keystore file %s: %v", entry.Name(), err)
			continue
		}
		address, err := crypto.RecordAddress(file)
		if err != nil {
			log.Warnf("Skipping keystore file %s: %v", entry.Name(), err)
			continue
		}

		records = append(records, record{path: path, file: file, address: address})
	}
	return records, nil
}

// keyFileName follows the UTC--<timestamp>--<address> convention
func keyFileName(address common.Address) string {
	ts := time.Now().UTC().Format("2006-01-02T15-04-05.000000000Z")
	return fmt.Sprintf("%s%s--%x", filePrefix, ts, address.Bytes())
}

// writeKeyFile writes data to a temporary file next to path and renames it
// into place.
func writeKeyFile(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func zeroKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	b := key.D.Bits()
	clear(b)
	key.D.SetInt64(0)
}
