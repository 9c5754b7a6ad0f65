package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ParseAddresses converts string addresses into common.Address, skipping
// blanks.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		addr, err := parseAddress(input)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseAddress converts a hex address.
func ParseAddress(input string) (common.Address, error) {
	return parseAddress(strings.TrimSpace(input))
}

// ParseAmount parses a decimal or 0x-prefixed hex amount in the smallest
// value unit.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		value, err := uint256.FromHex(input)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", input, err)
		}
		return value, nil
	}
	value := new(uint256.Int)
	if err := parseAmount(value, input); err != nil {
		return nil, err
	}
	return value, nil
}

func parseAddress(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}
	return common.HexToAddress(input), nil
}

func parseAmount(dst *uint256.Int, input string) error {
	if input == "" {
		dst.Clear()
		return nil
	}
	value, err := uint256.FromDecimal(input)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", input, err)
	}
	dst.Set(value)
	return nil
}
