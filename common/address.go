package common

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// ParseAddress parses a 0x prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a valid address", s)
	}
	return common.HexToAddress(s), nil
}

// ParseAddresses parses every element of list, failing on the first
// invalid one.
func ParseAddresses(list []string) ([]common.Address, error) {
	result := make([]common.Address, 0, len(list))
	for _, s := range list {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		result = append(result, addr)
	}
	return result, nil
}

// ParseSalt reads a salt either as 0x prefixed hex of at most 32 bytes or as
// a decimal number.
func ParseSalt(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return common.Hash{}, fmt.Errorf("invalid salt %q: %w", s, err)
		}
		if len(b) > common.HashLength {
			return common.Hash{}, fmt.Errorf("salt %q is longer than 32 bytes", s)
		}
		return common.BytesToHash(b), nil
	}
	n, err := StringToBigInt(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid salt %q: %w", s, err)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return common.Hash{}, fmt.Errorf("salt %q is out of range", s)
	}
	return common.BigToHash(n), nil
}

// RandomSalt returns a fresh unpredictable salt.
func RandomSalt() common.Hash {
	id := uuid.New()
	return crypto.Keccak256Hash(id[:])
}
