package chain

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// NativeDecimals is the precision of the chain's native currency (wei).
const NativeDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

var decimalRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ToBaseUnits converts a decimal token amount ("3", "0.25") into integer base
// units for a token with the given decimals. Amounts that need more precision
// than the token supports are rejected rather than rounded.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if !decimalRe.MatchString(amount) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// ValidateAmount checks that amount is a positive plain decimal without
// knowing the token's precision yet.
func ValidateAmount(amount string) error {
	amount = strings.TrimSpace(amount)
	if !decimalRe.MatchString(amount) {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if strings.Trim(amount, "0.") == "" {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return nil
}

// FormatUnits renders base units as a decimal string.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(v, scale).FloatString(int(decimals))
}
