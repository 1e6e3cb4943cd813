package handler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/AlexZinkM/local-keystore/internal/common"
	"github.com/AlexZinkM/local-keystore/internal/keystore"
	"github.com/AlexZinkM/local-keystore/internal/model"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// KeystoreHandler exposes the keystore service over HTTP
type KeystoreHandler struct {
	svc            *keystore.Service
	defaultChainID uint64
}

// NewKeystoreHandler creates a new KeystoreHandler
func NewKeystoreHandler(svc *keystore.Service, defaultChainID uint64) (*KeystoreHandler, error) {
	if svc == nil {
		return nil, errors.New("keystore service not set")
	}
	return &KeystoreHandler{
		svc:            svc,
		defaultChainID: defaultChainID,
	}, nil
}

// Accounts handles GET /accounts and POST /accounts
// @Summary      List or create accounts
// @Description  GET lists stored accounts. POST creates a new account; an empty password is replaced by a generated one
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request  body      model.CreateAccountRequest  false  "Account password"
// @Success      200      {object}  model.AccountListResponse
// @Success      201      {object}  model.AccountResponse
// @Router       /accounts [get]
// @Router       /accounts [post]
func (h *KeystoreHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAccounts(w)
	case http.MethodPost:
		h.createAccount(w, r)
	default:
		http.Error(w, "Method not allowed. Should be GET or POST", http.StatusMethodNotAllowed)
	}
}

func (h *KeystoreHandler) listAccounts(w http.ResponseWriter) {
	accounts, err := h.svc.Accounts()
	if err != nil {
		writeError(w, err)
		return
	}

	resp := model.AccountListResponse{Accounts: make([]model.AccountResponse, 0, len(accounts))}
	for _, a := range accounts {
		resp.Accounts = append(resp.Accounts, model.AccountResponse{Address: a.Key()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *KeystoreHandler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAccountRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	password := req.Password
	if password == "" {
		generated, err := keystore.GeneratePassword()
		if err != nil {
			writeError(w, err)
			return
		}
		password = generated
	}

	account, err := h.svc.CreateAccountAsync(password).Wait(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.AccountResponse{Address: account.Key()})
}

// Import handles POST /accounts/import
// @Summary      Import account
// @Description  Imports a keystore JSON with its password, or a raw hex private key
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request  body      model.ImportRequest  true  "Keystore or private key"
// @Success      201      {object}  model.AccountResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /accounts/import [post]
func (h *KeystoreHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var src keystore.ImportSource
	switch {
	case req.PrivateKey != "" && req.Keystore != "":
		writeBadRequest(w, "set either keystore or privateKey, not both")
		return
	case req.PrivateKey != "":
		src = keystore.FromPrivateKey(req.PrivateKey)
	case req.Keystore != "":
		src = keystore.FromKeystore(req.Keystore, req.Password)
	default:
		writeBadRequest(w, "keystore or privateKey is required")
		return
	}

	account, err := h.svc.ImportWalletAsync(src).Wait(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.AccountResponse{Address: account.Key()})
}

// Export handles POST /accounts/export
// @Summary      Export account
// @Description  Returns the account keystore JSON encrypted under a new password. The stored record is unchanged
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request  body      model.ExportRequest  true  "Account and export password"
// @Success      200      {object}  model.ExportResponse
// @Router       /accounts/export [post]
func (h *KeystoreHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.NewPassword == "" {
		writeBadRequest(w, "newPassword is required")
		return
	}
	account, err := model.ParseAccount(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := h.svc.ExportAccountAsync(account, req.NewPassword).Wait(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ExportResponse{Keystore: string(data)})
}

// Delete handles POST /accounts/delete
// @Summary      Delete account
// @Description  Removes the account key file and its stored password
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request  body      model.AddressRequest  true  "Account"
// @Success      200      {object}  model.SuccessResponse
// @Router       /accounts/delete [post]
func (h *KeystoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	account, ok := decodeAddress(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteAccount(account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true, Message: "Account deleted"})
}

// UpdatePassword handles POST /accounts/password
// @Summary      Change account password
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request  body      model.UpdatePasswordRequest  true  "Account and new password"
// @Success      200      {object}  model.SuccessResponse
// @Router       /accounts/password [post]
func (h *KeystoreHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.UpdatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.NewPassword == "" {
		writeBadRequest(w, "newPassword is required")
		return
	}
	account, err := model.ParseAccount(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.UpdateAccount(account, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true, Message: "Password updated"})
}

// Select handles POST /accounts/select
// @Summary      Select account
// @Description  Marks the account as recently used
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request  body      model.AddressRequest  true  "Account"
// @Success      200      {object}  model.AccountResponse
// @Router       /accounts/select [post]
func (h *KeystoreHandler) Select(w http.ResponseWriter, r *http.Request) {
	account, ok := decodeAddress(w, r)
	if !ok {
		return
	}

	if err := h.svc.SelectAccount(account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AccountResponse{Address: account.Key()})
}

// Recent handles GET /accounts/recent
// @Summary      Recently used account
// @Tags         accounts
// @Produce      json
// @Success      200  {object}  model.AccountResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /accounts/recent [get]
func (h *KeystoreHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	account, err := h.svc.RecentAccount().UnwrapOrErr(model.ErrAccountNotFound)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AccountResponse{Address: account.Key()})
}

// QRCode handles GET /accounts/qr
// @Summary      Address QR code
// @Description  Renders the account address as a base64 PNG QR code
// @Tags         accounts
// @Produce      json
// @Param        address  query     string  true  "Account address"
// @Success      200      {object}  model.QRResponse
// @Router       /accounts/qr [get]
func (h *KeystoreHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	account, err := model.ParseAccount(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, err)
		return
	}

	qr, err := common.AddressQRCode(account.Key())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.QRResponse{Address: account.Key(), QR: qr})
}

// Sign handles POST /transactions/sign
// @Summary      Sign transaction
// @Description  Signs a legacy EIP-155 transaction with the stored account key. Value is in ether, gas price in gwei
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        request  body      model.SignRequest  true  "Transaction"
// @Success      200      {object}  model.SignResponse
// @Router       /transactions/sign [post]
func (h *KeystoreHandler) Sign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	tx, err := h.signableTx(&req)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	signed, err := h.svc.SignTransactionAsync(tx).Wait(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SignResponse{
		RawTx:  "0x" + hex.EncodeToString(signed.Raw),
		TxHash: signed.Hash.Hex(),
	})
}

func (h *KeystoreHandler) signableTx(req *model.SignRequest) (model.SignableTx, error) {
	from, err := model.ParseAccount(req.From)
	if err != nil {
		return model.SignableTx{}, err
	}

	var to *ethcommon.Address
	if req.To != "" {
		addr, err := model.ParseAddress(req.To)
		if err != nil {
			return model.SignableTx{}, err
		}
		to = &addr
	}

	value := new(big.Int)
	if req.Value != "" {
		if value, err = common.EtherToWei(req.Value); err != nil {
			return model.SignableTx{}, errors.New("invalid value: " + err.Error())
		}
	}

	gasPrice := new(big.Int)
	if req.GasPrice != "" {
		if gasPrice, err = common.GweiToWei(req.GasPrice); err != nil {
			return model.SignableTx{}, errors.New("invalid gasPrice: " + err.Error())
		}
	}

	var data []byte
	if req.Data != "" {
		if data, err = hex.DecodeString(strings.TrimPrefix(req.Data, "0x")); err != nil {
			return model.SignableTx{}, errors.New("invalid data: " + err.Error())
		}
	}

	chainID := req.ChainID
	if chainID == 0 {
		chainID = h.defaultChainID
	}

	return model.SignableTx{
		Account:  from,
		Nonce:    req.Nonce,
		To:       to,
		Value:    value,
		GasLimit: req.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
		ChainID:  new(big.Int).SetUint64(chainID),
	}, nil
}

func decodeAddress(w http.ResponseWriter, r *http.Request) (model.Account, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return model.Account{}, false
	}

	var req model.AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err.Error())
		return model.Account{}, false
	}
	account, err := model.ParseAccount(req.Address)
	if err != nil {
		writeError(w, err)
		return model.Account{}, false
	}
	return account, true
}
