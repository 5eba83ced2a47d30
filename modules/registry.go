// Package modules implements the registry of modules wallets may be
// created with. Only the registry owner approves or withdraws modules; the
// factory only ever reads it.
package modules

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tranvictor/walletfactory/access"
	"github.com/tranvictor/walletfactory/ledger"
)

const ABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"module","type":"address"},{"indexed":false,"name":"name","type":"string"}],"name":"ModuleRegistered","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"module","type":"address"}],"name":"ModuleDeRegistered","type":"event"}
]`

var ABI = ledger.MustParseABI(ABIJSON)

var (
	ErrAlreadyRegistered = errors.New("MR: module already exists")
	ErrNotRegistered     = errors.New("MR: module does not exist")
	ErrNullModule        = errors.New("MR: module cannot be null")
)

var entryTag = []byte("modules/entry/")

// Registration is what the registry knows about a module.
type Registration struct {
	Module   common.Address
	Name     string
	Approved bool
}

type entry struct {
	Name     string
	Approved bool
}

type Registry struct {
	address common.Address
}

// Deploy deploys a registry owned by deployer.
func Deploy(st *ledger.State, deployer common.Address) (*Registry, error) {
	addr, err := st.Create(deployer, ledger.NewArtifact("ModuleRegistry"))
	if err != nil {
		return nil, err
	}
	if err := access.InitOwner(st, addr, deployer); err != nil {
		return nil, err
	}
	return &Registry{address: addr}, nil
}

// At binds the registry deployed at addr.
func At(addr common.Address) *Registry {
	return &Registry{address: addr}
}

func (r *Registry) Address() common.Address {
	if r == nil {
		return common.Address{}
	}
	return r.address
}

func (r *Registry) key(module common.Address) []byte {
	return ledger.StorageKey(r.address, entryTag, module.Bytes())
}

// Register approves module under a human readable name. A module that was
// deregistered earlier is approved again.
func (r *Registry) Register(st *ledger.State, caller, module common.Address, name string) error {
	if err := access.OnlyOwner(st, r.address, caller); err != nil {
		return err
	}
	if module == (common.Address{}) {
		return ErrNullModule
	}
	var e entry
	found, err := st.GetRLP(r.key(module), &e)
	if err != nil {
		return err
	}
	if found && e.Approved {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, module.Hex())
	}
	if err := st.PutRLP(r.key(module), &entry{Name: name, Approved: true}); err != nil {
		return err
	}
	return st.Emit(r.address, ABI, "ModuleRegistered", module, name)
}

// Deregister withdraws the approval of module. The registration itself is
// kept so its name stays known.
func (r *Registry) Deregister(st *ledger.State, caller, module common.Address) error {
	if err := access.OnlyOwner(st, r.address, caller); err != nil {
		return err
	}
	var e entry
	found, err := st.GetRLP(r.key(module), &e)
	if err != nil {
		return err
	}
	if !found || !e.Approved {
		return fmt.Errorf("%w: %s", ErrNotRegistered, module.Hex())
	}
	e.Approved = false
	if err := st.PutRLP(r.key(module), &e); err != nil {
		return err
	}
	return st.Emit(r.address, ABI, "ModuleDeRegistered", module)
}

// IsRegisteredModule reports whether module is currently approved.
func (r *Registry) IsRegisteredModule(st *ledger.State, module common.Address) (bool, error) {
	var e entry
	found, err := st.GetRLP(r.key(module), &e)
	if err != nil {
		return false, err
	}
	return found && e.Approved, nil
}

// ModuleInfo returns the registration of module, if any.
func (r *Registry) ModuleInfo(st *ledger.State, module common.Address) (Registration, bool, error) {
	var e entry
	found, err := st.GetRLP(r.key(module), &e)
	if err != nil || !found {
		return Registration{}, false, err
	}
	return Registration{Module: module, Name: e.Name, Approved: e.Approved}, true, nil
}

// Modules lists every committed registration in address order.
func (r *Registry) Modules(l *ledger.Ledger) ([]Registration, error) {
	var out []Registration
	err := l.Iterate(r.address, entryTag, func(key, value []byte) error {
		var e entry
		if err := rlp.DecodeBytes(value, &e); err != nil {
			return err
		}
		out = append(out, Registration{
			Module:   common.BytesToAddress(key),
			Name:     e.Name,
			Approved: e.Approved,
		})
		return nil
	})
	return out, err
}
