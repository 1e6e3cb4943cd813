// Package docs registers the swagger document served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/accounts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "List or create accounts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.AccountListResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "List or create accounts",
                "parameters": [
                    {"description": "Account password", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/model.CreateAccountRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.AccountResponse"}}
                }
            }
        },
        "/accounts/import": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Import account",
                "parameters": [
                    {"description": "Keystore or private key", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ImportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.AccountResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/accounts/export": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Export account",
                "parameters": [
                    {"description": "Account and export password", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ExportRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.ExportResponse"}}
                }
            }
        },
        "/accounts/delete": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Delete account",
                "parameters": [
                    {"description": "Account", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.AddressRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SuccessResponse"}}
                }
            }
        },
        "/accounts/password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Change account password",
                "parameters": [
                    {"description": "Account and new password", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.UpdatePasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SuccessResponse"}}
                }
            }
        },
        "/accounts/select": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Select account",
                "parameters": [
                    {"description": "Account", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.AddressRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.AccountResponse"}}
                }
            }
        },
        "/accounts/recent": {
            "get": {
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Recently used account",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.AccountResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/accounts/qr": {
            "get": {
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Address QR code",
                "parameters": [
                    {"type": "string", "description": "Account address", "name": "address", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.QRResponse"}}
                }
            }
        },
        "/transactions/sign": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Sign transaction",
                "parameters": [
                    {"description": "Transaction", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.SignRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SignResponse"}}
                }
            }
        }
    },
    "definitions": {
        "model.AccountListResponse": {
            "type": "object",
            "properties": {
                "accounts": {"type": "array", "items": {"$ref": "#/definitions/model.AccountResponse"}}
            }
        },
        "model.AccountResponse": {
            "type": "object",
            "properties": {"address": {"type": "string"}}
        },
        "model.AddressRequest": {
            "type": "object",
            "properties": {"address": {"type": "string"}}
        },
        "model.CreateAccountRequest": {
            "type": "object",
            "properties": {"password": {"type": "string"}}
        },
        "model.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "error": {"type": "string"}}
        },
        "model.ExportRequest": {
            "type": "object",
            "properties": {"address": {"type": "string"}, "newPassword": {"type": "string"}}
        },
        "model.ExportResponse": {
            "type": "object",
            "properties": {"keystore": {"type": "string"}}
        },
        "model.ImportRequest": {
            "type": "object",
            "properties": {"keystore": {"type": "string"}, "password": {"type": "string"}, "privateKey": {"type": "string"}}
        },
        "model.QRResponse": {
            "type": "object",
            "properties": {"QR": {"type": "string"}, "address": {"type": "string"}}
        },
        "model.SignRequest": {
            "type": "object",
            "properties": {
                "chainId": {"type": "integer"},
                "data": {"type": "string"},
                "from": {"type": "string"},
                "gasLimit": {"type": "integer"},
                "gasPrice": {"type": "string"},
                "nonce": {"type": "integer"},
                "to": {"type": "string"},
                "value": {"type": "string"}
            }
        },
        "model.SignResponse": {
            "type": "object",
            "properties": {"rawTx": {"type": "string"}, "txHash": {"type": "string"}}
        },
        "model.SuccessResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}, "success": {"type": "boolean"}}
        },
        "model.UpdatePasswordRequest": {
            "type": "object",
            "properties": {"address": {"type": "string"}, "newPassword": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Local Keystore API",
	Description:      "Local key custody and transaction signing.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
