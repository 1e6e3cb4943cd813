package api

import (
	"net/http"

	_ "github.com/AlexZinkM/local-keystore/docs"
	"github.com/AlexZinkM/local-keystore/internal/handler"
	"github.com/AlexZinkM/local-keystore/internal/keystore"

	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers
func SetupRouter(svc *keystore.Service, defaultChainID uint64) (http.Handler, error) {
	keystoreHandler, err := handler.NewKeystoreHandler(svc, defaultChainID)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Account endpoints
	mux.HandleFunc("/accounts", keystoreHandler.Accounts)
	mux.HandleFunc("/accounts/import", keystoreHandler.Import)
	mux.HandleFunc("/accounts/export", keystoreHandler.Export)
	mux.HandleFunc("/accounts/delete", keystoreHandler.Delete)
	mux.HandleFunc("/accounts/password", keystoreHandler.UpdatePassword)
	mux.HandleFunc("/accounts/select", keystoreHandler.Select)
	mux.HandleFunc("/accounts/recent", keystoreHandler.Recent)
	mux.HandleFunc("/accounts/qr", keystoreHandler.QRCode)

	// Transaction endpoints
	mux.HandleFunc("/transactions/sign", keystoreHandler.Sign)

	return mux, nil
}
