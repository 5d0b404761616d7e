package txbuilder

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"
)

// ParseWei accepts a decimal or 0x-prefixed hex amount.
func ParseWei(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("wei value is empty")
	}
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		digits := strings.TrimLeft(value[2:], "0")
		if digits == "" {
			return new(uint256.Int), nil
		}
		return uint256.FromHex("0x" + digits)
	}
	return uint256.FromDecimal(value)
}
