package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AlexZinkM/local-keystore/internal/model"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Bounds on KDF parameters read from untrusted records. scrypt needs
// 128*r*n bytes of memory.
const (
	maxDerivedKeyLen    = 64
	maxPBKDF2Iterations = 1 << 20
	maxScryptN          = 1 << 18
	maxScryptR          = 8
	maxScryptP          = 16
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Unmarshal parses keystore JSON. A leading UTF-8 BOM is skipped.
func Unmarshal(data []byte) (*model.KeystoreFile, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var file model.KeystoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", model.ErrDecryptionFailed, model.ErrMalformedRecord, err)
	}
	return &file, nil
}

// DecryptKey recovers the raw private key from a keystore record.
// Every failure matches model.ErrDecryptionFailed; a wrong password and a
// tampered record produce the same error.
// password must be []byte for security (caller should zero it after use)
func DecryptKey(file *model.KeystoreFile, password []byte) ([]byte, error) {
	if file == nil || file.Version != Version {
		return nil, malformed("unsupported version")
	}
	if file.Crypto.Cipher != CipherAES128CTR {
		return nil, fmt.Errorf("%w: %w: %q", model.ErrDecryptionFailed, model.ErrUnsupportedCipher, file.Crypto.Cipher)
	}

	mac, err := hex.DecodeString(file.Crypto.MAC)
	if err != nil {
		return nil, malformed("mac")
	}
	iv, err := hex.DecodeString(file.Crypto.CipherParams.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, malformed("iv")
	}
	ciphertext, err := hex.DecodeString(file.Crypto.CipherText)
	if err != nil || len(ciphertext) == 0 {
		return nil, malformed("ciphertext")
	}

	derivedKey, err := deriveKey(&file.Crypto, password)
	if err != nil {
		return nil, err
	}
	defer clear(derivedKey)

	calculatedMAC := ethcrypto.Keccak256(derivedKey[16:32], ciphertext)
	if subtle.ConstantTimeCompare(calculatedMAC, mac) != 1 {
		return nil, model.ErrDecryptionFailed
	}

	plaintext, err := aesCTRXOR(derivedKey[:16], ciphertext, iv)
	if err != nil {
		return nil, err
	}

	key, err := ethcrypto.ToECDSA(plaintext)
	if err != nil {
		clear(plaintext)
		return nil, fmt.Errorf("%w: %w", model.ErrDecryptionFailed, model.ErrInvalidPrivateKey)
	}

	// A record naming a different address than its key is treated as tampered
	if file.Address != "" {
		stored, err := model.ParseAddress(file.Address)
		if err != nil || stored != ethcrypto.PubkeyToAddress(key.PublicKey) {
			clear(plaintext)
			return nil, model.ErrDecryptionFailed
		}
	}

	return plaintext, nil
}

// RecordAddress returns the address stored in a record without decrypting it
func RecordAddress(file *model.KeystoreFile) (common.Address, error) {
	if file == nil || file.Address == "" {
		return common.Address{}, fmt.Errorf("%w: missing address", model.ErrMalformedRecord)
	}
	return model.ParseAddress(file.Address)
}

// AddressFromKey derives the account address of a raw private key
func AddressFromKey(privateKey []byte) (common.Address, error) {
	key, err := ethcrypto.ToECDSA(privateKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", model.ErrInvalidPrivateKey, err)
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

func deriveKey(cryptoJSON *model.CryptoJSON, password []byte) ([]byte, error) {
	params := cryptoJSON.KDFParams
	if params.DKLen < derivedKeyLen || params.DKLen > maxDerivedKeyLen {
		return nil, malformed("dklen")
	}
	salt, err := hex.DecodeString(params.Salt)
	if err != nil || len(salt) == 0 {
		return nil, malformed("salt")
	}

	switch strings.ToLower(cryptoJSON.KDF) {
	case KDFPBKDF2:
		if params.PRF != PRFHMACSHA256 {
			return nil, fmt.Errorf("%w: %w: prf %q", model.ErrDecryptionFailed, model.ErrUnsupportedKDF, params.PRF)
		}
		if params.C <= 0 || params.C > maxPBKDF2Iterations {
			return nil, malformed("iteration count")
		}
		return pbkdf2.Key(password, salt, params.C, params.DKLen, sha256.New), nil

	case KDFScrypt:
		if params.N > maxScryptN || params.R > maxScryptR || params.P > maxScryptP {
			return nil, malformed("scrypt cost")
		}
		key, err := scrypt.Key(password, salt, params.N, params.R, params.P, params.DKLen)
		if err != nil {
			return nil, malformed(err.Error())
		}
		return key, nil

	default:
		return nil, fmt.Errorf("%w: %w: %q", model.ErrDecryptionFailed, model.ErrUnsupportedKDF, cryptoJSON.KDF)
	}
}

func malformed(what string) error {
	return fmt.Errorf("%w: %w: %s", model.ErrDecryptionFailed, model.ErrMalformedRecord, what)
}
