package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	NullEthereumAddress    = "0000000000000000000000000000000000000000"
	NullEthereumAddressHex = fmt.Sprintf("0x%s", NullEthereumAddress)
)

var (
	txHashRegex  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

func AreAddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

func IsValidTxHash(h string) bool {
	return txHashRegex.MatchString(h)
}

func IsValidAddress(a string) bool {
	return addressRegex.MatchString(a)
}

// NormalizeAddress lower-cases a hex address. Returns an error for anything that is not 20 bytes of hex.
func NormalizeAddress(a string) (string, error) {
	a = strings.TrimSpace(a)
	if !IsValidAddress(a) {
		return "", fmt.Errorf("invalid address '%s'", a)
	}
	return strings.ToLower(a), nil
}

func NormalizeTxHash(h string) (string, error) {
	h = strings.TrimSpace(h)
	if !IsValidTxHash(h) {
		return "", fmt.Errorf("invalid transaction hash '%s'", h)
	}
	return strings.ToLower(h), nil
}
