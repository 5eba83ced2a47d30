package ens

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/ledger"
)

const RegistryABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"node","type":"bytes32"},{"indexed":true,"name":"label","type":"bytes32"},{"indexed":false,"name":"owner","type":"address"}],"name":"NewOwner","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"node","type":"bytes32"},{"indexed":false,"name":"owner","type":"address"}],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"node","type":"bytes32"},{"indexed":false,"name":"resolver","type":"address"}],"name":"NewResolver","type":"event"}
]`

var RegistryABI = ledger.MustParseABI(RegistryABIJSON)

var ErrNotNodeOwner = errors.New("ENS: caller does not own the node")

var nodeTag = []byte("ens/node/")

type nodeRecord struct {
	Owner    common.Address
	Resolver common.Address
}

// Registry maps nodes to their owner and resolver.
type Registry struct {
	address common.Address
}

// DeployRegistry deploys a registry whose root node belongs to deployer.
func DeployRegistry(st *ledger.State, deployer common.Address) (*Registry, error) {
	addr, err := st.Create(deployer, ledger.NewArtifact("ENSRegistry"))
	if err != nil {
		return nil, err
	}
	r := &Registry{address: addr}
	return r, r.store(st, common.Hash{}, &nodeRecord{Owner: deployer})
}

// RegistryAt binds the registry deployed at addr.
func RegistryAt(addr common.Address) *Registry {
	return &Registry{address: addr}
}

func (r *Registry) Address() common.Address {
	if r == nil {
		return common.Address{}
	}
	return r.address
}

func (r *Registry) key(node common.Hash) []byte {
	return ledger.StorageKey(r.address, nodeTag, node.Bytes())
}

func (r *Registry) load(st *ledger.State, node common.Hash) (*nodeRecord, error) {
	rec := &nodeRecord{}
	if _, err := st.GetRLP(r.key(node), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Registry) store(st *ledger.State, node common.Hash, rec *nodeRecord) error {
	return st.PutRLP(r.key(node), rec)
}

func (r *Registry) authorised(st *ledger.State, node common.Hash, caller common.Address) (*nodeRecord, error) {
	rec, err := r.load(st, node)
	if err != nil {
		return nil, err
	}
	if rec.Owner == (common.Address{}) || rec.Owner != caller {
		return nil, ErrNotNodeOwner
	}
	return rec, nil
}

// Owner returns the owner of node, or the zero address.
func (r *Registry) Owner(st *ledger.State, node common.Hash) (common.Address, error) {
	rec, err := r.load(st, node)
	if err != nil {
		return common.Address{}, err
	}
	return rec.Owner, nil
}

// Resolver returns the resolver set for node.
func (r *Registry) Resolver(st *ledger.State, node common.Hash) (common.Address, error) {
	rec, err := r.load(st, node)
	if err != nil {
		return common.Address{}, err
	}
	return rec.Resolver, nil
}

// SetOwner transfers node to owner.
func (r *Registry) SetOwner(st *ledger.State, caller common.Address, node common.Hash, owner common.Address) error {
	rec, err := r.authorised(st, node, caller)
	if err != nil {
		return err
	}
	rec.Owner = owner
	if err := r.store(st, node, rec); err != nil {
		return err
	}
	return st.Emit(r.address, RegistryABI, "Transfer", node, owner)
}

// SetSubnodeOwner assigns the subnode label of node to owner and returns
// the subnode.
func (r *Registry) SetSubnodeOwner(st *ledger.State, caller common.Address, node, label common.Hash, owner common.Address) (common.Hash, error) {
	if _, err := r.authorised(st, node, caller); err != nil {
		return common.Hash{}, err
	}
	sub := Subnode(node, label)
	rec, err := r.load(st, sub)
	if err != nil {
		return common.Hash{}, err
	}
	rec.Owner = owner
	if err := r.store(st, sub, rec); err != nil {
		return common.Hash{}, err
	}
	return sub, st.Emit(r.address, RegistryABI, "NewOwner", node, label, owner)
}

// SetResolver points node at resolver.
func (r *Registry) SetResolver(st *ledger.State, caller common.Address, node common.Hash, resolver common.Address) error {
	rec, err := r.authorised(st, node, caller)
	if err != nil {
		return err
	}
	rec.Resolver = resolver
	if err := r.store(st, node, rec); err != nil {
		return err
	}
	return st.Emit(r.address, RegistryABI, "NewResolver", node, resolver)
}
