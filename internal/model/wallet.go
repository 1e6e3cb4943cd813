package model

// KeystoreFile represents the version 3 keystore JSON document
type KeystoreFile struct {
	Address string     `json:"address,omitempty"` // lower-case hex without 0x, as written by geth
	Crypto  CryptoJSON `json:"crypto"`
	ID      string     `json:"id"`
	Version int        `json:"version"`
}

// CryptoJSON holds the cipher and KDF parameters of a keystore record
type CryptoJSON struct {
	Cipher       string           `json:"cipher"`
	CipherText   string           `json:"ciphertext"`
	CipherParams CipherParamsJSON `json:"cipherparams"`
	KDF          string           `json:"kdf"`
	KDFParams    KDFParamsJSON    `json:"kdfparams"`
	MAC          string           `json:"mac"`
}

// CipherParamsJSON holds the counter-mode initialization vector
type CipherParamsJSON struct {
	IV string `json:"iv"`
}

// KDFParamsJSON is the union of the pbkdf2 and scrypt parameter sets.
// Only the fields of the named KDF are written.
type KDFParamsJSON struct {
	PRF   string `json:"prf,omitempty"`
	C     int    `json:"c,omitempty"`
	N     int    `json:"n,omitempty"`
	R     int    `json:"r,omitempty"`
	P     int    `json:"p,omitempty"`
	Salt  string `json:"salt"`
	DKLen int    `json:"dklen"`
}
