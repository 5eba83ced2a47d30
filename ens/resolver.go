package ens

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/access"
	"github.com/tranvictor/walletfactory/ledger"
)

const ResolverABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"node","type":"bytes32"},{"indexed":false,"name":"a","type":"address"}],"name":"AddrChanged","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"node","type":"bytes32"},{"indexed":false,"name":"name","type":"string"}],"name":"NameChanged","type":"event"}
]`

var ResolverABI = ledger.MustParseABI(ResolverABIJSON)

var (
	addrTag = []byte("ens/addr/")
	nameTag = []byte("ens/name/")
)

// Resolver holds forward (node to address) and reverse (node to name)
// records. Only its managers write records.
type Resolver struct {
	address common.Address
}

// DeployResolver deploys a resolver owned by deployer.
func DeployResolver(st *ledger.State, deployer common.Address) (*Resolver, error) {
	addr, err := st.Create(deployer, ledger.NewArtifact("ArgentENSResolver"))
	if err != nil {
		return nil, err
	}
	if err := access.InitOwner(st, addr, deployer); err != nil {
		return nil, err
	}
	return &Resolver{address: addr}, nil
}

// ResolverAt binds the resolver deployed at addr.
func ResolverAt(addr common.Address) *Resolver {
	return &Resolver{address: addr}
}

func (r *Resolver) Address() common.Address {
	if r == nil {
		return common.Address{}
	}
	return r.address
}

// AddManager lets manager write records.
func (r *Resolver) AddManager(st *ledger.State, caller, manager common.Address) error {
	return access.AddManager(st, r.address, caller, manager)
}

// SetAddr sets the address node resolves to.
func (r *Resolver) SetAddr(st *ledger.State, caller common.Address, node common.Hash, addr common.Address) error {
	if err := access.OnlyManager(st, r.address, caller); err != nil {
		return err
	}
	if err := st.Put(ledger.StorageKey(r.address, addrTag, node.Bytes()), addr.Bytes()); err != nil {
		return err
	}
	return st.Emit(r.address, ResolverABI, "AddrChanged", node, addr)
}

// SetName sets the name record of node.
func (r *Resolver) SetName(st *ledger.State, caller common.Address, node common.Hash, name string) error {
	if err := access.OnlyManager(st, r.address, caller); err != nil {
		return err
	}
	if err := st.Put(ledger.StorageKey(r.address, nameTag, node.Bytes()), []byte(name)); err != nil {
		return err
	}
	return st.Emit(r.address, ResolverABI, "NameChanged", node, name)
}

// Addr returns the address node resolves to.
func (r *Resolver) Addr(st *ledger.State, node common.Hash) (common.Address, error) {
	v, _, err := st.Get(ledger.StorageKey(r.address, addrTag, node.Bytes()))
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(v), nil
}

// Name returns the name record of node.
func (r *Resolver) Name(st *ledger.State, node common.Hash) (string, error) {
	v, _, err := st.Get(ledger.StorageKey(r.address, nameTag, node.Bytes()))
	return string(v), err
}
