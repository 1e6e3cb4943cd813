package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/AlexZinkM/local-keystore/internal/model"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version is the keystore format version written and accepted
	Version = 3

	// DefaultIterations is the PBKDF2 iteration count used unless configured
	// otherwise. It is deliberately low: unlocking must stay responsive on
	// small devices. Raise it with KDF_ITERATIONS.
	DefaultIterations = 2214

	CipherAES128CTR = "aes-128-ctr"
	KDFPBKDF2       = "pbkdf2"
	KDFScrypt       = "scrypt"
	PRFHMACSHA256   = "hmac-sha256"

	derivedKeyLen = 32
	saltLen       = 32
	privateKeyLen = 32
)

// Codec converts raw private keys to password-encrypted keystore records
type Codec struct {
	iterations int
}

// NewCodec returns a codec using the given PBKDF2 iteration count.
// A non-positive count selects DefaultIterations.
func NewCodec(iterations int) *Codec {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Codec{iterations: iterations}
}

// Iterations returns the PBKDF2 iteration count of new records
func (c *Codec) Iterations() int {
	return c.iterations
}

// EncryptKey encrypts a 32-byte secp256k1 private key under password.
// password must be []byte for security (caller should zero it after use)
func (c *Codec) EncryptKey(privateKey, password []byte) (*model.KeystoreFile, error) {
	if len(privateKey) != privateKeyLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", model.ErrInvalidPrivateKey, privateKeyLen, len(privateKey))
	}
	key, err := ethcrypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPrivateKey, err)
	}
	address := ethcrypto.PubkeyToAddress(key.PublicKey)

	// Generate salt and IV
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	// Derive key from password
	derivedKey := pbkdf2.Key(password, salt, c.iterations, derivedKeyLen, sha256.New)
	defer clear(derivedKey)

	ciphertext, err := aesCTRXOR(derivedKey[:16], privateKey, iv)
	if err != nil {
		return nil, err
	}

	mac := ethcrypto.Keccak256(derivedKey[16:32], ciphertext)

	return &model.KeystoreFile{
		Address: hex.EncodeToString(address.Bytes()),
		Crypto: model.CryptoJSON{
			Cipher:     CipherAES128CTR,
			CipherText: hex.EncodeToString(ciphertext),
			CipherParams: model.CipherParamsJSON{
				IV: hex.EncodeToString(iv),
			},
			KDF: KDFPBKDF2,
			KDFParams: model.KDFParamsJSON{
				PRF:   PRFHMACSHA256,
				C:     c.iterations,
				Salt:  hex.EncodeToString(salt),
				DKLen: derivedKeyLen,
			},
			MAC: hex.EncodeToString(mac),
		},
		ID:      uuid.NewString(),
		Version: Version,
	}, nil
}

// Reencrypt decrypts file with password and encrypts the key again under
// newPassword with fresh salt and IV. The record id is kept.
func (c *Codec) Reencrypt(file *model.KeystoreFile, password, newPassword []byte) (*model.KeystoreFile, error) {
	privateKey, err := DecryptKey(file, password)
	if err != nil {
		return nil, err
	}
	defer clear(privateKey)

	out, err := c.EncryptKey(privateKey, newPassword)
	if err != nil {
		return nil, err
	}
	if file.ID != "" {
		out.ID = file.ID
	}
	return out, nil
}

// Marshal serializes a keystore record to JSON
func Marshal(file *model.KeystoreFile) ([]byte, error) {
	data, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keystore: %w", err)
	}
	return data, nil
}

func aesCTRXOR(key, in, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}
