package model

// AccountResponse represents one account in API responses
type AccountResponse struct {
	Address string `json:"address"`
}

// AccountListResponse represents response for GET /accounts
type AccountListResponse struct {
	Accounts []AccountResponse `json:"accounts"`
}

// CreateAccountRequest represents request for POST /accounts.
// An empty password makes the service generate one.
type CreateAccountRequest struct {
	Password string `json:"password,omitempty"`
}

// ImportRequest represents request for POST /accounts/import.
// Exactly one of Keystore or PrivateKey must be set.
type ImportRequest struct {
	Keystore   string `json:"keystore,omitempty"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// ExportRequest represents request for POST /accounts/export
type ExportRequest struct {
	Address     string `json:"address" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ExportResponse carries the exported keystore JSON
type ExportResponse struct {
	Keystore string `json:"keystore"`
}

// AddressRequest is used by the delete and select endpoints
type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

// UpdatePasswordRequest represents request for POST /accounts/password
type UpdatePasswordRequest struct {
	Address     string `json:"address" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// QRResponse represents response for GET /accounts/qr
type QRResponse struct {
	Address string `json:"address"`
	QR      string `json:"QR"` // base64 PNG
}

// SignRequest represents request for POST /transactions/sign
type SignRequest struct {
	From     string `json:"from" binding:"required"`
	To       string `json:"to,omitempty"` // empty for contract creation
	Value    string `json:"value"`        // ether, decimal string
	GasLimit uint64 `json:"gasLimit" binding:"required"`
	GasPrice string `json:"gasPrice"` // gwei, decimal string
	Nonce    uint64 `json:"nonce"`
	Data     string `json:"data,omitempty"` // hex
	ChainID  uint64 `json:"chainId,omitempty"`
}

// SignResponse represents response for POST /transactions/sign
type SignResponse struct {
	RawTx  string `json:"rawTx"`
	TxHash string `json:"txHash"`
}

// SuccessResponse is returned by endpoints without a payload
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
