// Package wallet implements the wallet template: the account logic every
// wallet created by the factory delegates to through a minimal proxy.
//
// A wallet is initialised exactly once with an owner and a set of modules.
// From then on only its authorised modules can change its authorisation
// set or owner.
package wallet

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/ledger"
)

const ABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"module","type":"address"},{"indexed":false,"name":"value","type":"bool"}],"name":"AuthorisedModule","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"value","type":"uint256"},{"indexed":true,"name":"sender","type":"address"},{"indexed":false,"name":"data","type":"bytes"}],"name":"Received","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"}],"name":"OwnerChanged","type":"event"}
]`

// ABI describes the events wallets emit.
var ABI = ledger.MustParseABI(ABIJSON)

var (
	ErrNotWallet           = errors.New("BW: address is not a wallet")
	ErrAlreadyInitialised  = errors.New("BW: wallet already initialised")
	ErrNoModules           = errors.New("BW: construction requires at least 1 module")
	ErrNullOwner           = errors.New("BW: owner cannot be null")
	ErrNotAuthorisedModule = errors.New("BW: sender not an authorized module")
)

var recordTag = []byte("wallet/record")

type record struct {
	Owner   common.Address
	Modules []common.Address
}

func (r *record) authorised(module common.Address) bool {
	for _, m := range r.Modules {
		if m == module {
			return true
		}
	}
	return false
}

// Template is a deployed wallet implementation. It is stateless apart from
// its address; all wallet data lives in each wallet's own storage.
type Template struct {
	impl common.Address
}

// DeployTemplate deploys the wallet implementation.
func DeployTemplate(st *ledger.State, deployer common.Address) (*Template, error) {
	impl, err := st.Create(deployer, ledger.NewArtifact("BaseWallet"))
	if err != nil {
		return nil, err
	}
	return &Template{impl: impl}, nil
}

// TemplateAt binds a template that is already deployed at impl.
func TemplateAt(impl common.Address) *Template {
	return &Template{impl: impl}
}

// Implementation returns the address wallets delegate to.
func (t *Template) Implementation() common.Address {
	return t.impl
}

// CreationCode returns the init code of a wallet proxy.
func (t *Template) CreationCode() []byte {
	return ProxyCreationCode(t.impl)
}

// Artifact returns what the factory deploys for each new wallet.
func (t *Template) Artifact() ledger.Artifact {
	return ledger.Artifact{
		Name:     "Proxy",
		InitCode: t.CreationCode(),
		Code:     ProxyRuntimeCode(t.impl),
	}
}

// Install makes l surface value sent to live wallets as Received events.
func (t *Template) Install(l *ledger.Ledger) {
	l.RegisterReceiveHook(ProxyRuntimeCode(t.impl), t.receive)
}

func (t *Template) receive(st *ledger.State, to, from common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return st.Emit(to, ABI, "Received", amount, from, []byte{})
}

// IsWallet reports whether addr holds a proxy to this template.
func (t *Template) IsWallet(st *ledger.State, addr common.Address) (bool, error) {
	return st.HasCodeOf(addr, ProxyRuntimeCode(t.impl))
}

func (t *Template) load(st *ledger.State, w common.Address) (*record, error) {
	ok, err := t.IsWallet(st, w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotWallet, w.Hex())
	}
	rec := &record{}
	if _, err := st.GetRLP(ledger.StorageKey(w, recordTag), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *Template) store(st *ledger.State, w common.Address, rec *record) error {
	return st.PutRLP(ledger.StorageKey(w, recordTag), rec)
}

// Init sets the owner and initial modules of the wallet at w. Duplicate
// modules collapse into one authorisation. A balance already sitting at w
// is announced with a Received event from the zero address.
func (t *Template) Init(st *ledger.State, w, owner common.Address, modules []common.Address) error {
	rec, err := t.load(st, w)
	if err != nil {
		return err
	}
	if rec.Owner != (common.Address{}) || len(rec.Modules) > 0 {
		return ErrAlreadyInitialised
	}
	if owner == (common.Address{}) {
		return ErrNullOwner
	}
	if len(modules) == 0 {
		return ErrNoModules
	}
	rec.Owner = owner
	for _, m := range modules {
		if rec.authorised(m) {
			continue
		}
		rec.Modules = append(rec.Modules, m)
		if err := st.Emit(w, ABI, "AuthorisedModule", m, true); err != nil {
			return err
		}
	}
	if err := t.store(st, w, rec); err != nil {
		return err
	}
	if err := st.Emit(w, ABI, "OwnerChanged", owner); err != nil {
		return err
	}
	balance, err := st.Balance(w)
	if err != nil {
		return err
	}
	if balance.Sign() > 0 {
		return st.Emit(w, ABI, "Received", balance, common.Address{}, []byte{})
	}
	return nil
}

// AuthoriseModule adds or removes module. The caller must itself be an
// authorised module of the wallet.
func (t *Template) AuthoriseModule(st *ledger.State, caller, w, module common.Address, value bool) error {
	rec, err := t.load(st, w)
	if err != nil {
		return err
	}
	if !rec.authorised(caller) {
		return ErrNotAuthorisedModule
	}
	if rec.authorised(module) == value {
		return nil
	}
	if value {
		rec.Modules = append(rec.Modules, module)
	} else {
		kept := rec.Modules[:0]
		for _, m := range rec.Modules {
			if m != module {
				kept = append(kept, m)
			}
		}
		rec.Modules = kept
	}
	if err := t.store(st, w, rec); err != nil {
		return err
	}
	return st.Emit(w, ABI, "AuthorisedModule", module, value)
}

// SetOwner replaces the wallet owner on behalf of an authorised module.
func (t *Template) SetOwner(st *ledger.State, caller, w, owner common.Address) error {
	rec, err := t.load(st, w)
	if err != nil {
		return err
	}
	if !rec.authorised(caller) {
		return ErrNotAuthorisedModule
	}
	if owner == (common.Address{}) {
		return ErrNullOwner
	}
	rec.Owner = owner
	if err := t.store(st, w, rec); err != nil {
		return err
	}
	return st.Emit(w, ABI, "OwnerChanged", owner)
}

// IsAuthorised reports whether module may act on the wallet at w. It is
// false for addresses that are not wallets of this template.
func (t *Template) IsAuthorised(st *ledger.State, w, module common.Address) (bool, error) {
	rec, err := t.load(st, w)
	if errors.Is(err, ErrNotWallet) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.authorised(module), nil
}

// Owner returns the owner of the wallet at w.
func (t *Template) Owner(st *ledger.State, w common.Address) (common.Address, error) {
	rec, err := t.load(st, w)
	if err != nil {
		return common.Address{}, err
	}
	return rec.Owner, nil
}

// Modules returns the authorised modules of the wallet at w in the order
// they were authorised.
func (t *Template) Modules(st *ledger.State, w common.Address) ([]common.Address, error) {
	rec, err := t.load(st, w)
	if err != nil {
		return nil, err
	}
	return rec.Modules, nil
}
