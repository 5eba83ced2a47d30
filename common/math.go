package common

import (
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals of the ledger's native unit.
const EtherDecimals = 18

// FloatStringToBig converts a decimal string to an integer amount with the
// given number of decimals.
// Example:
// - FloatStringToBig("1.5", 3) = 1500
func FloatStringToBig(value string, decimal uint64) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(value))
	if !ok {
		return nil, fmt.Errorf("couldn't parse %q as a number", value)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", value)
	}
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(
		big.NewInt(10), big.NewInt(int64(decimal)), nil,
	)))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimal)
	}
	return new(big.Int).Set(r.Num()), nil
}

// BigToFloatString formats an integer amount with decimal decimals,
// dropping trailing zeros.
// Example:
// - BigToFloatString(1100, 3) = "1.1"
func BigToFloatString(value *big.Int, decimal uint64) string {
	power := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimal)), nil)
	out := new(big.Rat).SetFrac(value, power).FloatString(int(decimal))
	if strings.Contains(out, ".") {
		out = strings.TrimRight(strings.TrimRight(out, "0"), ".")
	}
	return out
}

// ParseEther parses an amount given in ether into wei.
func ParseEther(value string) (*big.Int, error) {
	return FloatStringToBig(value, EtherDecimals)
}

// FormatEther renders wei as ether.
func FormatEther(wei *big.Int) string {
	return BigToFloatString(wei, EtherDecimals)
}

func StringToBigInt(str string) (*big.Int, error) {
	result, success := big.NewInt(0).SetString(str, 10)
	if !success {
		return nil, fmt.Errorf("parsed %s to big int failed", str)
	}
	return result, nil
}
