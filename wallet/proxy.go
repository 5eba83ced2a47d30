package wallet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EIP-1167 minimal proxy, split around the 20 byte implementation address.
var (
	proxyInitPrefix    = hexutil.MustDecode("0x3d602d80600a3d3981f3")
	proxyRuntimePrefix = hexutil.MustDecode("0x363d3d373d3d3d363d73")
	proxyRuntimeSuffix = hexutil.MustDecode("0x5af43d82803e903d91602b57fd5bf3")
)

// ProxyRuntimeCode is the code every wallet delegating to impl ends up with.
func ProxyRuntimeCode(impl common.Address) []byte {
	code := make([]byte, 0, len(proxyRuntimePrefix)+common.AddressLength+len(proxyRuntimeSuffix))
	code = append(code, proxyRuntimePrefix...)
	code = append(code, impl.Bytes()...)
	return append(code, proxyRuntimeSuffix...)
}

// ProxyCreationCode is the init code of a wallet proxy for impl. Its hash is
// the template identity folded into every counterfactual address.
func ProxyCreationCode(impl common.Address) []byte {
	runtime := ProxyRuntimeCode(impl)
	return append(append(make([]byte, 0, len(proxyInitPrefix)+len(runtime)), proxyInitPrefix...), runtime...)
}
