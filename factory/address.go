package factory

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/wallet"
)

// canonicalModules sorts modules and drops duplicates so that the same set
// always derives the same address.
func canonicalModules(modules []common.Address) []common.Address {
	out := slices.Clone(modules)
	slices.SortFunc(out, func(a, b common.Address) int { return a.Cmp(b) })
	return slices.Compact(out)
}

// walletSalt folds the wallet parameters into the caller's salt:
// keccak256(keccak256(owner ‖ modules... ‖ guardian?) ‖ salt). Each module is
// left padded to 32 bytes. A zero guardian is left out.
func walletSalt(owner common.Address, modules []common.Address, guardian common.Address, salt common.Hash) common.Hash {
	mods := canonicalModules(modules)
	packed := make([]byte, 0, common.AddressLength*2+32*len(mods))
	packed = append(packed, owner.Bytes()...)
	for _, m := range mods {
		packed = append(packed, common.LeftPadBytes(m.Bytes(), 32)...)
	}
	if guardian != (common.Address{}) {
		packed = append(packed, guardian.Bytes()...)
	}
	return crypto.Keccak256Hash(crypto.Keccak256(packed), salt.Bytes())
}

// DeriveAddress is the counterfactual address of a wallet deployed by the
// factory at factoryAddr for the template impl. It reads no state. A zero
// guardian selects the scheme without guardian.
func DeriveAddress(factoryAddr, impl, owner common.Address, modules []common.Address, guardian common.Address, salt common.Hash) common.Address {
	return ledger.DeriveCreate2Address(
		factoryAddr,
		walletSalt(owner, modules, guardian, salt),
		wallet.ProxyCreationCode(impl),
	)
}

func validateOwnerModules(owner common.Address, modules []common.Address) error {
	if owner == (common.Address{}) {
		return reject(ErrEmptyOwner, "")
	}
	if len(modules) == 0 {
		return reject(ErrNoModules, "")
	}
	return nil
}

// AddressForCounterfactualWallet returns the address CreateCounterfactualWallet
// would create for the same owner, modules and salt.
func (f *Factory) AddressForCounterfactualWallet(owner common.Address, modules []common.Address, salt common.Hash) (common.Address, error) {
	if err := validateOwnerModules(owner, modules); err != nil {
		return common.Address{}, err
	}
	return DeriveAddress(f.address, f.template.Implementation(), owner, modules, common.Address{}, salt), nil
}

// AddressForCounterfactualWalletWithGuardian is AddressForCounterfactualWallet
// with guardian folded into the address.
func (f *Factory) AddressForCounterfactualWalletWithGuardian(owner common.Address, modules []common.Address, guardian common.Address, salt common.Hash) (common.Address, error) {
	if err := validateOwnerModules(owner, modules); err != nil {
		return common.Address{}, err
	}
	if guardian == (common.Address{}) {
		return common.Address{}, reject(ErrNullGuardian, "")
	}
	return DeriveAddress(f.address, f.template.Implementation(), owner, modules, guardian, salt), nil
}
