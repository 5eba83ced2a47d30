// Package access keeps owner and manager roles of ledger contracts.
//
// A contract has exactly one owner, set when it is deployed, and any number
// of managers that the owner grants. Both roles live in the contract's own
// storage so they survive restarts of a persistent ledger.
package access

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/ledger"
)

var (
	ErrNotOwner    = errors.New("must be owner")
	ErrNotManager  = errors.New("must be manager")
	ErrZeroAddress = errors.New("address cannot be null")
)

var (
	ownerTag   = []byte("access/owner")
	managerTag = []byte("access/manager/")
)

func ownerKey(contract common.Address) []byte {
	return ledger.StorageKey(contract, ownerTag)
}

func managerKey(contract, manager common.Address) []byte {
	return ledger.StorageKey(contract, managerTag, manager.Bytes())
}

// InitOwner sets the first owner of a freshly deployed contract.
func InitOwner(st *ledger.State, contract, owner common.Address) error {
	if owner == (common.Address{}) {
		return ErrZeroAddress
	}
	return st.Put(ownerKey(contract), owner.Bytes())
}

// Owner returns the owner of contract.
func Owner(st *ledger.State, contract common.Address) (common.Address, error) {
	v, _, err := st.Get(ownerKey(contract))
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(v), nil
}

// OnlyOwner fails with ErrNotOwner unless caller owns contract.
func OnlyOwner(st *ledger.State, contract, caller common.Address) error {
	owner, err := Owner(st, contract)
	if err != nil {
		return err
	}
	if owner == (common.Address{}) || owner != caller {
		return ErrNotOwner
	}
	return nil
}

// ChangeOwner hands contract over to newOwner.
func ChangeOwner(st *ledger.State, contract, caller, newOwner common.Address) error {
	if err := OnlyOwner(st, contract, caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	return st.Put(ownerKey(contract), newOwner.Bytes())
}

// AddManager grants the manager role. Only the owner may do so.
func AddManager(st *ledger.State, contract, caller, manager common.Address) error {
	if err := OnlyOwner(st, contract, caller); err != nil {
		return err
	}
	if manager == (common.Address{}) {
		return ErrZeroAddress
	}
	return st.Put(managerKey(contract, manager), []byte{1})
}

// RevokeManager removes the manager role. Only the owner may do so.
func RevokeManager(st *ledger.State, contract, caller, manager common.Address) error {
	if err := OnlyOwner(st, contract, caller); err != nil {
		return err
	}
	return st.Delete(managerKey(contract, manager))
}

// IsManager reports whether addr holds the manager role on contract.
func IsManager(st *ledger.State, contract, addr common.Address) (bool, error) {
	return st.Has(managerKey(contract, addr))
}

// OnlyManager fails with ErrNotManager unless caller is a manager.
func OnlyManager(st *ledger.State, contract, caller common.Address) error {
	ok, err := IsManager(st, contract, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotManager
	}
	return nil
}
