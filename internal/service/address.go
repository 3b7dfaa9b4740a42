package service

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/wallet-pnl/internal/errors"
)

// NormalizeAddress trims the wallet address and, when validateEVM is set,
// requires a 0x-prefixed 20-byte hex address and lowercases it.
func NormalizeAddress(address string, validateEVM bool) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", apperrors.NewInvalidParameterError("address", "address is required")
	}
	if !validateEVM {
		return address, nil
	}

	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return "", apperrors.NewInvalidAddressError(address)
	}
	if !common.IsHexAddress(address) {
		return "", apperrors.NewInvalidAddressError(address)
	}
	return strings.ToLower(address), nil
}
