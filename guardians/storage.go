// Package guardians keeps the guardians of each wallet. Guardians can only
// be changed by a module the wallet itself has authorised.
package guardians

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/ledger"
)

var (
	ErrNotAuthorisedModule = errors.New("GS: must be an authorized module to call this method")
	ErrNullGuardian        = errors.New("GS: guardian cannot be null")
	ErrAlreadyGuardian     = errors.New("GS: already a guardian")
	ErrNotGuardian         = errors.New("GS: not a guardian")
)

var guardiansTag = []byte("guardians/")

// ModuleAuthority answers whether a module may act on a wallet.
type ModuleAuthority interface {
	IsAuthorised(st *ledger.State, wallet, module common.Address) (bool, error)
}

type Storage struct {
	address   common.Address
	authority ModuleAuthority
}

// Deploy deploys a guardian store that trusts authority for module checks.
func Deploy(st *ledger.State, deployer common.Address, authority ModuleAuthority) (*Storage, error) {
	addr, err := st.Create(deployer, ledger.NewArtifact("GuardianStorage"))
	if err != nil {
		return nil, err
	}
	return &Storage{address: addr, authority: authority}, nil
}

// At binds the store deployed at addr.
func At(addr common.Address, authority ModuleAuthority) *Storage {
	return &Storage{address: addr, authority: authority}
}

func (s *Storage) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

func (s *Storage) key(wallet common.Address) []byte {
	return ledger.StorageKey(s.address, guardiansTag, wallet.Bytes())
}

func (s *Storage) onlyModule(st *ledger.State, wallet, caller common.Address) error {
	ok, err := s.authority.IsAuthorised(st, wallet, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorisedModule
	}
	return nil
}

// Guardians returns the guardians of wallet in the order they were added.
func (s *Storage) Guardians(st *ledger.State, wallet common.Address) ([]common.Address, error) {
	var list []common.Address
	if _, err := st.GetRLP(s.key(wallet), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GuardianCount returns how many guardians wallet has.
func (s *Storage) GuardianCount(st *ledger.State, wallet common.Address) (int, error) {
	list, err := s.Guardians(st, wallet)
	return len(list), err
}

// IsGuardian reports whether guardian protects wallet.
func (s *Storage) IsGuardian(st *ledger.State, wallet, guardian common.Address) (bool, error) {
	list, err := s.Guardians(st, wallet)
	if err != nil {
		return false, err
	}
	return indexOf(list, guardian) >= 0, nil
}

// AddGuardian adds guardian to wallet on behalf of caller, which must be a
// module authorised by the wallet.
func (s *Storage) AddGuardian(st *ledger.State, caller, wallet, guardian common.Address) error {
	if err := s.onlyModule(st, wallet, caller); err != nil {
		return err
	}
	if guardian == (common.Address{}) {
		return ErrNullGuardian
	}
	list, err := s.Guardians(st, wallet)
	if err != nil {
		return err
	}
	if indexOf(list, guardian) >= 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyGuardian, guardian.Hex())
	}
	return st.PutRLP(s.key(wallet), append(list, guardian))
}

// RevokeGuardian removes guardian from wallet on behalf of caller.
func (s *Storage) RevokeGuardian(st *ledger.State, caller, wallet, guardian common.Address) error {
	if err := s.onlyModule(st, wallet, caller); err != nil {
		return err
	}
	list, err := s.Guardians(st, wallet)
	if err != nil {
		return err
	}
	i := indexOf(list, guardian)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotGuardian, guardian.Hex())
	}
	list = append(list[:i], list[i+1:]...)
	if len(list) == 0 {
		return st.Delete(s.key(wallet))
	}
	return st.PutRLP(s.key(wallet), list)
}

func indexOf(list []common.Address, addr common.Address) int {
	for i, a := range list {
		if a == addr {
			return i
		}
	}
	return -1
}
