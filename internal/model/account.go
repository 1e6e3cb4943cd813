package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Account identifies a wallet by its address
type Account struct {
	Address common.Address `json:"address"`
}

// Key returns the canonical form of the account address: 0x followed by
// lower-case hex. It is used for secret store keys and equality.
func (a Account) Key() string {
	return CanonicalAddress(a.Address)
}

// Equal compares two accounts by address
func (a Account) Equal(other Account) bool {
	return a.Address == other.Address
}

func (a Account) String() string {
	return a.Key()
}

// CanonicalAddress formats an address in its canonical lower-case form
func CanonicalAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// ParseAddress accepts hex addresses with or without the 0x prefix, in any case
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseAccount parses an address into an Account
func ParseAccount(s string) (Account, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return Account{}, err
	}
	return Account{Address: addr}, nil
}

// SignableTx is a transient signing request. A nil To creates a contract.
type SignableTx struct {
	Account  Account
	Nonce    uint64
	To       *common.Address
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Data     []byte
	ChainID  *big.Int
}

// SignedTx is the canonical binary encoding of a signed transaction
type SignedTx struct {
	Raw  []byte
	Hash common.Hash
}
