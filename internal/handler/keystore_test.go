package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AlexZinkM/local-keystore/internal/keystore"
	"github.com/AlexZinkM/local-keystore/internal/model"
	"github.com/AlexZinkM/local-keystore/internal/secretstore"

	"github.com/stretchr/testify/require"
)

const (
	vectorKey     = "0x4646464646464646464646464646464646464646464646464646464646464646"
	vectorAddress = "0x9d8a62f656a8d1615c1294fd71e9cfb3e4855a4f"
	vectorRawTx   = "0xf86c098504a817c800825208943535353535353535353535353535353535353535880de0b6b3a76400008025a028ef61340bd939bc2195fe537567866003e1a15d3c71ff63e1590620aa636276a067cbe9d8997f761aecb703304b3800ccf555c9f3dc64214b297fb1966a3b6d83"
)

func newTestHandler(t *testing.T) *KeystoreHandler {
	t.Helper()

	dir := t.TempDir()
	secrets, err := secretstore.Open(filepath.Join(dir, "secrets.db"), []byte("device"), &secretstore.Options{
		ScryptN: 1 << 4,
		ScryptR: 8,
		ScryptP: 1,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = secrets.Close() })

	svc, err := keystore.New(keystore.Config{
		KeystoreDir:   filepath.Join(dir, "keystore"),
		KDFIterations: 16,
	}, secrets)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	h, err := NewKeystoreHandler(svc, 1)
	require.NoError(t, err)
	return h
}

func do(t *testing.T, hf http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	hf(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestCreateAndListAccounts(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Accounts, http.MethodPost, "/accounts", model.CreateAccountRequest{Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.AccountResponse](t, rec)
	require.True(t, strings.HasPrefix(created.Address, "0x"))

	// No body means a generated password.
	rec = do(t, h.Accounts, http.MethodPost, "/accounts", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h.Accounts, http.MethodGet, "/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.AccountListResponse](t, rec)
	require.Len(t, list.Accounts, 2)

	rec = do(t, h.Recent, http.MethodGet, "/accounts/recent", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.Accounts, http.MethodDelete, "/accounts", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestImportDuplicateConflict(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{PrivateKey: vectorKey})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, vectorAddress, decode[model.AccountResponse](t, rec).Address)

	rec = do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{PrivateKey: vectorKey})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "DUPLICATE_ACCOUNT", decode[model.ErrorResponse](t, rec).Code)
}

func TestImportValidation(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{PrivateKey: "0x1234"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{
		Keystore: `{"version":3}`,
		Password: "pw",
	})
	require.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	require.NotEqual(t, http.StatusInternalServerError, rec.Code)
}

func TestExportAndReimport(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{PrivateKey: vectorKey})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h.Export, http.MethodPost, "/accounts/export", model.ExportRequest{
		Address:     vectorAddress,
		NewPassword: "export-pw",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	exported := decode[model.ExportResponse](t, rec)

	rec = do(t, h.Delete, http.MethodPost, "/accounts/delete", model.AddressRequest{Address: vectorAddress})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{
		Keystore: exported.Keystore,
		Password: "export-pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, vectorAddress, decode[model.AccountResponse](t, rec).Address)
}

func TestUnknownAccount(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Delete, http.MethodPost, "/accounts/delete", model.AddressRequest{Address: vectorAddress})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h.Select, http.MethodPost, "/accounts/select", model.AddressRequest{Address: "not-an-address"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Recent, http.MethodGet, "/accounts/recent", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePasswordAndSelect(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{PrivateKey: vectorKey})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h.UpdatePassword, http.MethodPost, "/accounts/password", model.UpdatePasswordRequest{
		Address: vectorAddress,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.UpdatePassword, http.MethodPost, "/accounts/password", model.UpdatePasswordRequest{
		Address:     vectorAddress,
		NewPassword: "rotated",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.Select, http.MethodPost, "/accounts/select", model.AddressRequest{
		Address: strings.ToUpper(vectorAddress[2:]),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, vectorAddress, decode[model.AccountResponse](t, rec).Address)
}

func TestQRCode(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.QRCode, http.MethodGet, "/accounts/qr?address="+vectorAddress, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[model.QRResponse](t, rec)
	require.Equal(t, vectorAddress, resp.Address)
	require.NotEmpty(t, resp.QR)
}

func TestSignTransaction(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{PrivateKey: vectorKey})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h.Sign, http.MethodPost, "/transactions/sign", model.SignRequest{
		From:     vectorAddress,
		To:       "0x3535353535353535353535353535353535353535",
		Value:    "1",
		GasLimit: 21000,
		GasPrice: "20",
		Nonce:    9,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[model.SignResponse](t, rec)
	require.Equal(t, vectorRawTx, resp.RawTx)
	require.True(t, strings.HasPrefix(resp.TxHash, "0x"))

	rec = do(t, h.Sign, http.MethodPost, "/transactions/sign", model.SignRequest{
		From:     vectorAddress,
		Value:    "1.0000000000000000001",
		GasLimit: 21000,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportWrongPasswordStatusMatchesCode(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{PrivateKey: vectorKey})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h.Export, http.MethodPost, "/accounts/export", model.ExportRequest{
		Address:     vectorAddress,
		NewPassword: "export-pw",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	exported := decode[model.ExportResponse](t, rec)

	rec = do(t, h.Delete, http.MethodPost, "/accounts/delete", model.AddressRequest{Address: vectorAddress})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.Import, http.MethodPost, "/accounts/import", model.ImportRequest{
		Keystore: exported.Keystore,
		Password: "wrong",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "DECRYPTION_FAILED", decode[model.ErrorResponse](t, rec).Code)
}

func TestWriteErrorStatusFollowsCode(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{
			err:    &model.ImportError{Err: fmt.Errorf("%w: bad mac", model.ErrDecryptionFailed)},
			code:   "DECRYPTION_FAILED",
			status: http.StatusUnprocessableEntity,
		},
		{
			err:    &model.ImportError{Err: model.ErrDuplicateAccount},
			code:   "DUPLICATE_ACCOUNT",
			status: http.StatusConflict,
		},
		{
			err:    &model.ImportError{Err: model.ErrInvalidPrivateKey},
			code:   "IMPORT_FAILED",
			status: http.StatusBadRequest,
		},
		{
			err:    fmt.Errorf("%w: %w", model.ErrSigningFailed, model.ErrAccountNotFound),
			code:   "ACCOUNT_NOT_FOUND",
			status: http.StatusNotFound,
		},
		{
			err:    model.ErrInvalidAddress,
			code:   "INVALID_INPUT",
			status: http.StatusBadRequest,
		},
		{
			err:    model.ErrShuttingDown,
			code:   "UNAVAILABLE",
			status: http.StatusServiceUnavailable,
		},
		{
			err:    context.DeadlineExceeded,
			code:   "UNAVAILABLE",
			status: http.StatusServiceUnavailable,
		},
		{
			err:    errors.New("disk on fire"),
			code:   "INTERNAL",
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.code, decode[model.ErrorResponse](t, rec).Code)
		})
	}
}
