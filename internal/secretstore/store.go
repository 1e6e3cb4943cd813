package secretstore

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/AlexZinkM/local-keystore/internal/model"

	"github.com/lightningnetwork/lnd/fn/v2"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// AccessPolicy is attached to a secret when it is written and decides when
// it can be read back.
type AccessPolicy byte

const (
	// AccessWhenUnlocked secrets are readable only while the store is
	// unlocked.
	AccessWhenUnlocked AccessPolicy = 1

	// AccessAfterFirstUnlock secrets stay readable after Lock once the
	// store has been unlocked in this process.
	AccessAfterFirstUnlock AccessPolicy = 2
)

func (p AccessPolicy) valid() bool {
	return p == AccessWhenUnlocked || p == AccessAfterFirstUnlock
}

// RecentlyUsedKey is the reserved key holding the last used account address.
const RecentlyUsedKey = "recently_used_account"

// Store persists short secrets keyed by account address.
type Store interface {
	// Get returns the secret for key, or None if nothing is stored.
	Get(key string) (fn.Option[string], error)

	// Set stores value under key with the given access policy.
	Set(key, value string, policy AccessPolicy) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

const (
	keySize   = 32
	nonceSize = 24
	saltSize  = 32
)

var (
	metaBucket    = []byte("meta")
	secretsBucket = []byte("secrets")

	saltKey   = []byte("salt")
	paramsKey = []byte("params")
	masterKey = []byte("master")

	// ErrInvalidKey is returned for an empty or oversized key
	ErrInvalidKey = errors.New("secret key must not be empty")
)

// Options configures the passphrase KDF and database open timeout
type Options struct {
	ScryptN int
	ScryptR int
	ScryptP int

	// Timeout bounds how long Open waits for the database file lock
	Timeout time.Duration
}

// DefaultOptions returns the production parameters.
//
// N=2^18 (~256MB RAM, 0.5-2s) keeps brute force of the device passphrase
// expensive while still fitting mobile memory limits.
func DefaultOptions() *Options {
	return &Options{
		ScryptN: 1 << 18,
		ScryptR: 8,
		ScryptP: 1,
		Timeout: time.Second,
	}
}

// BoltStore is a Store backed by a bbolt file. Every value is sealed with a
// random master key; the master key itself is sealed under a key derived
// from the device passphrase.
type BoltStore struct {
	db   *bbolt.DB
	opts Options

	mu       sync.RWMutex
	master   *[keySize]byte
	unlocked bool
}

var _ Store = (*BoltStore)(nil)

// Open opens or creates the secret store at path and unlocks it with
// passphrase. Any failure to reach unlocked state is reported as
// model.ErrProtectionUnavailable.
// passphrase must be []byte for security (caller should zero it after use)
func Open(path string, passphrase []byte, opts *Options) (*BoltStore, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", model.ErrProtectionUnavailable, path, err)
	}

	s := &BoltStore{db: db, opts: *opts}
	if err := s.init(passphrase); err != nil {
		db.Close()
		return nil, err
	}

	log.Infof("Secret store opened at %s", path)
	return s, nil
}

// init creates the buckets and master key on first use, otherwise it
// unlocks the existing master key.
func (s *BoltStore) init(passphrase []byte) error {
	var created bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(secretsBucket); err != nil {
			return err
		}
		if meta.Get(masterKey) != nil {
			return nil
		}

		created = true
		return s.createMaster(meta, passphrase)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrProtectionUnavailable, err)
	}
	if created {
		log.Infof("Created new secret store master key")
		return nil
	}

	return s.Unlock(passphrase)
}

func (s *BoltStore) createMaster(meta *bbolt.Bucket, passphrase []byte) error {
	var master [keySize]byte
	if _, err := io.ReadFull(rand.Reader, master[:]); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	kek, err := s.deriveKEK(passphrase, salt, s.opts.ScryptN, s.opts.ScryptR, s.opts.ScryptP)
	if err != nil {
		return err
	}
	defer clear(kek[:])

	sealed, err := seal(kek, master[:])
	if err != nil {
		return err
	}

	if err := meta.Put(saltKey, salt); err != nil {
		return err
	}
	if err := meta.Put(paramsKey, encodeParams(s.opts.ScryptN, s.opts.ScryptR, s.opts.ScryptP)); err != nil {
		return err
	}
	if err := meta.Put(masterKey, sealed); err != nil {
		return err
	}

	s.mu.Lock()
	s.master = &master
	s.unlocked = true
	s.mu.Unlock()
	return nil
}

// Unlock derives the key-encryption key from passphrase and opens the master
// key. A wrong passphrase yields model.ErrProtectionUnavailable.
func (s *BoltStore) Unlock(passphrase []byte) error {
	var salt, params, sealed []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return errors.New("missing meta bucket")
		}
		salt = append([]byte(nil), meta.Get(saltKey)...)
		params = append([]byte(nil), meta.Get(paramsKey)...)
		sealed = append([]byte(nil), meta.Get(masterKey)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrProtectionUnavailable, err)
	}

	n, r, p, err := decodeParams(params)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrProtectionUnavailable, err)
	}

	kek, err := s.deriveKEK(passphrase, salt, n, r, p)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrProtectionUnavailable, err)
	}
	defer clear(kek[:])

	plain, err := open(kek, sealed)
	if err != nil || len(plain) != keySize {
		return fmt.Errorf("%w: invalid passphrase", model.ErrProtectionUnavailable)
	}

	var master [keySize]byte
	copy(master[:], plain)
	clear(plain)

	s.mu.Lock()
	if s.master != nil {
		clear(s.master[:])
	}
	s.master = &master
	s.unlocked = true
	s.mu.Unlock()
	return nil
}

// Lock makes AccessWhenUnlocked secrets unreadable and blocks writes until
// the next Unlock.
func (s *BoltStore) Lock() {
	s.mu.Lock()
	s.unlocked = false
	s.mu.Unlock()
}

// IsUnlocked reports whether the store is currently unlocked
func (s *BoltStore) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlocked
}

// Close wipes the master key and closes the database
func (s *BoltStore) Close() error {
	s.mu.Lock()
	if s.master != nil {
		clear(s.master[:])
		s.master = nil
	}
	s.unlocked = false
	s.mu.Unlock()

	return s.db.Close()
}

// Get implements Store
func (s *BoltStore) Get(key string) (fn.Option[string], error) {
	if key == "" {
		return fn.None[string](), ErrInvalidKey
	}

	var record []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		record = append([]byte(nil), tx.Bucket(secretsBucket).Get([]byte(key))...)
		return nil
	})
	if err != nil {
		return fn.None[string](), fmt.Errorf("failed to read secret: %w", err)
	}
	if len(record) == 0 {
		return fn.None[string](), nil
	}
	if len(record) < nonceSize+secretbox.Overhead {
		return fn.None[string](), fmt.Errorf("%w: corrupted secret %q", model.ErrProtectionUnavailable, key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.master == nil {
		return fn.None[string](), fmt.Errorf("%w: store is locked", model.ErrProtectionUnavailable)
	}

	plain, err := open(s.master, record)
	if err != nil {
		return fn.None[string](), fmt.Errorf("%w: corrupted secret %q", model.ErrProtectionUnavailable, key)
	}
	defer clear(plain)

	policy, value, err := decodeSecret(key, plain)
	if err != nil {
		return fn.None[string](), fmt.Errorf("%w: corrupted secret %q: %v", model.ErrProtectionUnavailable, key, err)
	}
	if policy == AccessWhenUnlocked && !s.unlocked {
		return fn.None[string](), fmt.Errorf("%w: store is locked", model.ErrProtectionUnavailable)
	}

	return fn.Some(string(value)), nil
}

// Set implements Store
func (s *BoltStore) Set(key, value string, policy AccessPolicy) error {
	if key == "" || len(key) > math.MaxUint16 {
		return ErrInvalidKey
	}
	if !policy.valid() {
		return fmt.Errorf("unknown access policy %d", policy)
	}

	s.mu.RLock()
	if !s.unlocked {
		s.mu.RUnlock()
		return fmt.Errorf("%w: store is locked", model.ErrProtectionUnavailable)
	}
	plain := encodeSecret(key, value, policy)
	record, err := seal(s.master, plain)
	s.mu.RUnlock()
	clear(plain)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(secretsBucket).Put([]byte(key), record)
	})
}

// Delete implements Store
func (s *BoltStore) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if !s.IsUnlocked() {
		return fmt.Errorf("%w: store is locked", model.ErrProtectionUnavailable)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(secretsBucket).Delete([]byte(key))
	})
}

func (s *BoltStore) deriveKEK(passphrase, salt []byte, n, r, p int) (*[keySize]byte, error) {
	key, err := scrypt.Key(passphrase, salt, n, r, p, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	var kek [keySize]byte
	copy(kek[:], key)
	clear(key)
	return &kek, nil
}

// seal returns nonce || secretbox(plain)
func seal(key *[keySize]byte, plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, key), nil
}

func open(key *[keySize]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, errors.New("sealed value too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, errors.New("unable to open sealed value")
	}
	return plain, nil
}

// encodeSecret lays out the sealed plaintext of a record:
// policy || uint16 key length || key || value. The policy and key are sealed
// with the value so a record cannot be downgraded or moved to another key.
func encodeSecret(key, value string, policy AccessPolicy) []byte {
	b := make([]byte, 0, 3+len(key)+len(value))
	b = append(b, byte(policy))
	b = binary.LittleEndian.AppendUint16(b, uint16(len(key)))
	b = append(b, key...)
	return append(b, value...)
}

func decodeSecret(key string, plain []byte) (AccessPolicy, []byte, error) {
	if len(plain) < 3 {
		return 0, nil, errors.New("truncated secret")
	}
	policy := AccessPolicy(plain[0])
	if !policy.valid() {
		return 0, nil, fmt.Errorf("unknown access policy %d", policy)
	}
	n := int(binary.LittleEndian.Uint16(plain[1:3]))
	if len(plain) < 3+n || string(plain[3:3+n]) != key {
		return 0, nil, errors.New("secret bound to another key")
	}
	return policy, plain[3+n:], nil
}

func encodeParams(n, r, p int) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], uint64(n))
	binary.LittleEndian.PutUint64(b[8:16], uint64(r))
	binary.LittleEndian.PutUint64(b[16:24], uint64(p))
	return b
}

func decodeParams(b []byte) (n, r, p int, err error) {
	if len(b) != 24 {
		return 0, 0, 0, errors.New("malformed kdf parameters")
	}
	n = int(binary.LittleEndian.Uint64(b[0:8]))
	r = int(binary.LittleEndian.Uint64(b[8:16]))
	p = int(binary.LittleEndian.Uint64(b[16:24]))
	return n, r, p, nil
}
