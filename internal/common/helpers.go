package common

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	EtherDecimals = 18 // wei per ether
	GweiDecimals  = 9  // wei per gwei
)

// WeiToEther converts wei to an ether string without float precision loss
func WeiToEther(wei *big.Int) string {
	return formatWithDecimals(wei, EtherDecimals)
}

// EtherToWei converts an ether string to wei without float precision loss
func EtherToWei(ether string) (*big.Int, error) {
	return parseWithDecimals(ether, EtherDecimals)
}

// GweiToWei converts a gwei string to wei without float precision loss
func GweiToWei(gwei string) (*big.Int, error) {
	return parseWithDecimals(gwei, GweiDecimals)
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(24981836, 9) = "0.024981836"
func formatWithDecimals(value *big.Int, decimals int) string {
	if value == nil {
		value = new(big.Int)
	}
	s := new(big.Int).Abs(value).String()

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	out := s[:pos] + "." + s[pos:]
	if value.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// parseWithDecimals converts decimal string to integer by removing decimal point
// Example: parseWithDecimals("0.024981836", 9) = 24981836
// Digits beyond the given precision are rejected rather than truncated.
func parseWithDecimals(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty string")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid decimal format")
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("too many decimal places (max %d)", decimals)
	}

	// Pad fractional part to exact decimals
	frac += strings.Repeat("0", decimals-len(frac))

	combined := whole + frac
	for _, r := range combined {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid digit %q", r)
		}
	}

	n, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}
