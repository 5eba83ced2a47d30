// Package ens implements the naming service wallets are registered with: an
// ENS style registry of nodes, a resolver for forward and reverse records,
// and the manager that hands out labels under a root domain.
//
// Names follow EIP-137: a label "alice" under the root "argent.xyz" is the
// node namehash("alice.argent.xyz").
package ens

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/access"
	"github.com/tranvictor/walletfactory/ledger"
)

const DefaultRootName = "argent.xyz"

const ManagerABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":false,"name":"ens","type":"string"}],"name":"Registered","type":"event"}
]`

var ManagerABI = ledger.MustParseABI(ManagerABIJSON)

var (
	ErrLabelAlreadyOwned = errors.New("AEM: _label is alrealdy owned")
	ErrEmptyLabel        = errors.New("AEM: _label cannot be empty")
	ErrNotManager        = errors.New("AEM: not an ENS manager")
	ErrDottedLabel       = errors.New("AEM: _label must be a single label")
)

var managerTag = []byte("ens/manager")

type managerRecord struct {
	RootName string
	Registry common.Address
	Resolver common.Address
}

// Manager registers labels under its root domain. The manager must own the
// root node in the registry and be a manager of the resolver.
type Manager struct {
	address  common.Address
	rootName string
	rootNode common.Hash
	registry *Registry
	resolver *Resolver
}

// DeployManager deploys a manager for rootName owned by deployer.
func DeployManager(st *ledger.State, deployer common.Address, rootName string, registry *Registry, resolver *Resolver) (*Manager, error) {
	addr, err := st.Create(deployer, ledger.NewArtifact("ArgentENSManager"))
	if err != nil {
		return nil, err
	}
	if err := access.InitOwner(st, addr, deployer); err != nil {
		return nil, err
	}
	rec := &managerRecord{
		RootName: Normalize(rootName),
		Registry: registry.Address(),
		Resolver: resolver.Address(),
	}
	if err := st.PutRLP(ledger.StorageKey(addr, managerTag), rec); err != nil {
		return nil, err
	}
	return newManager(addr, rec), nil
}

// LoadManager binds the manager deployed at addr from its stored settings.
func LoadManager(st *ledger.State, addr common.Address) (*Manager, error) {
	rec := &managerRecord{}
	found, err := st.GetRLP(ledger.StorageKey(addr, managerTag), rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotManager, addr.Hex())
	}
	return newManager(addr, rec), nil
}

func newManager(addr common.Address, rec *managerRecord) *Manager {
	return &Manager{
		address:  addr,
		rootName: rec.RootName,
		rootNode: Namehash(rec.RootName),
		registry: RegistryAt(rec.Registry),
		resolver: ResolverAt(rec.Resolver),
	}
}

func (m *Manager) Address() common.Address {
	if m == nil {
		return common.Address{}
	}
	return m.address
}

func (m *Manager) RootName() string {
	return m.rootName
}

func (m *Manager) RootNode() common.Hash {
	return m.rootNode
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// AddManager lets manager register labels. Only the owner may grant it.
func (m *Manager) AddManager(st *ledger.State, caller, manager common.Address) error {
	return access.AddManager(st, m.address, caller, manager)
}

// RevokeManager withdraws the right to register labels.
func (m *Manager) RevokeManager(st *ledger.State, caller, manager common.Address) error {
	return access.RevokeManager(st, m.address, caller, manager)
}

// IsManager reports whether addr may register labels.
func (m *Manager) IsManager(st *ledger.State, addr common.Address) (bool, error) {
	return access.IsManager(st, m.address, addr)
}

// FullName returns label qualified with the root domain.
func (m *Manager) FullName(label string) string {
	return Normalize(label) + "." + m.rootName
}

func (m *Manager) node(label string) common.Hash {
	return Subnode(m.rootNode, LabelHash(label))
}

// IsAvailable reports whether label can still be registered.
func (m *Manager) IsAvailable(st *ledger.State, label string) (bool, error) {
	owner, err := m.registry.Owner(st, m.node(label))
	if err != nil {
		return false, err
	}
	return owner == (common.Address{}), nil
}

// Register gives label to owner: the subnode is owned by owner, resolves to
// owner, and owner's reverse record points back at the full name.
func (m *Manager) Register(st *ledger.State, caller common.Address, label string, owner common.Address) error {
	if err := access.OnlyManager(st, m.address, caller); err != nil {
		return err
	}
	if Normalize(label) == "" {
		return ErrEmptyLabel
	}
	if !IsSingleLabel(label) {
		return fmt.Errorf("%w: %s", ErrDottedLabel, Normalize(label))
	}
	available, err := m.IsAvailable(st, label)
	if err != nil {
		return err
	}
	if !available {
		return fmt.Errorf("%w: %s", ErrLabelAlreadyOwned, m.FullName(label))
	}
	node, err := m.registry.SetSubnodeOwner(st, m.address, m.rootNode, LabelHash(label), m.address)
	if err != nil {
		return err
	}
	if err := m.registry.SetResolver(st, m.address, node, m.resolver.Address()); err != nil {
		return err
	}
	if err := m.resolver.SetAddr(st, m.address, node, owner); err != nil {
		return err
	}
	if err := m.registry.SetOwner(st, m.address, node, owner); err != nil {
		return err
	}
	name := m.FullName(label)
	if err := m.resolver.SetName(st, m.address, ReverseNode(owner), name); err != nil {
		return err
	}
	return st.Emit(m.address, ManagerABI, "Registered", owner, name)
}

// Resolve returns the address label resolves to, or the zero address.
func (m *Manager) Resolve(st *ledger.State, label string) (common.Address, error) {
	return m.resolver.Addr(st, m.node(label))
}

// ReverseName returns the name addr was registered under, if any.
func (m *Manager) ReverseName(st *ledger.State, addr common.Address) (string, error) {
	return m.resolver.Name(st, ReverseNode(addr))
}
