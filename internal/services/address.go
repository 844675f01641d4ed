package services

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/likefeed/backend/internal/apperr"
)

// normalizeAddress returns the EIP-55 form of a hex account address. Every
// address is stored and compared in this form.
func normalizeAddress(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", apperr.New(apperr.KindInvalidArgument, "%s must be a 20-byte hex address", field)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return "", apperr.New(apperr.KindInvalidArgument, "%s must not be the zero address", field)
	}
	return addr.Hex(), nil
}
