// Package factory creates wallets. A creation request is validated against
// the module registry and the naming service before anything is written,
// then the wallet is materialized, initialised, given its guardian and
// registered under its label in a single ledger operation, so a failure at
// any point leaves no trace.
//
// Wallets can also be created counterfactually: their address is a pure
// function of the factory, the wallet template, the owner, the module set,
// the guardian (if any) and a salt, so it can be computed and funded before
// the wallet exists.
package factory

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tranvictor/walletfactory/access"
	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/wallet"
)

const ABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"wallet","type":"address"},{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"guardian","type":"address"},{"indexed":false,"name":"label","type":"string"}],"name":"WalletCreated","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"addr","type":"address"}],"name":"ModuleRegistryChanged","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"addr","type":"address"}],"name":"ENSManagerChanged","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"addr","type":"address"}],"name":"GuardianStorageChanged","type":"event"}
]`

var ABI = ledger.MustParseABI(ABIJSON)

const (
	VariantCreate                     = "create"
	VariantCreateWithGuardian         = "create_with_guardian"
	VariantCounterfactual             = "counterfactual"
	VariantCounterfactualWithGuardian = "counterfactual_with_guardian"
)

// ModuleRegistry tells which modules wallets may be created with.
type ModuleRegistry interface {
	Address() common.Address
	IsRegisteredModule(st *ledger.State, module common.Address) (bool, error)
}

// NamingService hands out labels. The factory must be one of its managers.
type NamingService interface {
	Address() common.Address
	IsAvailable(st *ledger.State, label string) (bool, error)
	Register(st *ledger.State, caller common.Address, label string, owner common.Address) error
	IsManager(st *ledger.State, addr common.Address) (bool, error)
}

// GuardianStore records wallet guardians.
type GuardianStore interface {
	Address() common.Address
	AddGuardian(st *ledger.State, caller, wallet, guardian common.Address) error
	IsGuardian(st *ledger.State, wallet, guardian common.Address) (bool, error)
}

// Config is the set of collaborators the factory works with. GuardianStore
// may be nil, in which case wallets with a guardian cannot be created.
type Config struct {
	ModuleRegistry ModuleRegistry
	NamingService  NamingService
	GuardianStore  GuardianStore
}

// Recorder observes creation outcomes.
type Recorder interface {
	WalletCreated(variant string)
	CreationRejected(variant, code string)
}

type nopRecorder struct{}

func (nopRecorder) WalletCreated(string)            {}
func (nopRecorder) CreationRejected(string, string) {}

type Option func(*Factory)

func WithLogger(l zerolog.Logger) Option {
	return func(f *Factory) {
		f.log = l
	}
}

func WithRecorder(r Recorder) Option {
	return func(f *Factory) {
		f.recorder = r
	}
}

// Settings are the collaborator addresses the factory persists.
type Settings struct {
	Implementation common.Address
	ModuleRegistry common.Address
	NamingService  common.Address
	GuardianStore  common.Address
}

var settingsTag = []byte("factory/settings")

func settingsKey(addr common.Address) []byte {
	return ledger.StorageKey(addr, settingsTag)
}

// LoadSettings reads the persisted settings of the factory at addr.
func LoadSettings(st *ledger.State, addr common.Address) (Settings, error) {
	var s Settings
	found, err := st.GetRLP(settingsKey(addr), &s)
	if err != nil {
		return Settings{}, err
	}
	if !found {
		return Settings{}, fmt.Errorf("no wallet factory at %s", addr.Hex())
	}
	return s, nil
}

type Factory struct {
	address  common.Address
	ledger   *ledger.Ledger
	template *wallet.Template
	deps     atomic.Pointer[Config]
	log      zerolog.Logger
	recorder Recorder
}

// Install deploys a factory owned by deployer inside an ongoing operation
// and returns its address. Bind it with At once the operation committed.
func Install(st *ledger.State, deployer common.Address, template *wallet.Template, cfg Config) (common.Address, error) {
	if cfg.ModuleRegistry == nil || cfg.NamingService == nil {
		return common.Address{}, reject(ErrNullConfigTarget, "module registry and naming service are required")
	}
	addr, err := st.Create(deployer, ledger.NewArtifact("WalletFactory"))
	if err != nil {
		return common.Address{}, err
	}
	if err := access.InitOwner(st, addr, deployer); err != nil {
		return common.Address{}, err
	}
	s := Settings{
		Implementation: template.Implementation(),
		ModuleRegistry: cfg.ModuleRegistry.Address(),
		NamingService:  cfg.NamingService.Address(),
	}
	if cfg.GuardianStore != nil {
		s.GuardianStore = cfg.GuardianStore.Address()
	}
	return addr, st.PutRLP(settingsKey(addr), &s)
}

// Deploy deploys a factory owned by deployer and binds it.
func Deploy(l *ledger.Ledger, deployer common.Address, template *wallet.Template, cfg Config, opts ...Option) (*Factory, error) {
	var addr common.Address
	_, err := l.Execute(func(st *ledger.State) error {
		var err error
		addr, err = Install(st, deployer, template, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return At(l, addr, template, cfg, opts...), nil
}

// At binds the factory deployed at addr. cfg must match what the factory
// persisted; see LoadSettings.
func At(l *ledger.Ledger, addr common.Address, template *wallet.Template, cfg Config, opts ...Option) *Factory {
	f := &Factory{
		address:  addr,
		ledger:   l,
		template: template,
		log:      zerolog.Nop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.deps.Store(&cfg)
	return f
}

func (f *Factory) Address() common.Address {
	return f.address
}

func (f *Factory) Template() *wallet.Template {
	return f.template
}

func (f *Factory) ModuleRegistry() ModuleRegistry {
	return f.deps.Load().ModuleRegistry
}

func (f *Factory) NamingService() NamingService {
	return f.deps.Load().NamingService
}

// GuardianStore returns the configured guardian store or nil.
func (f *Factory) GuardianStore() GuardianStore {
	return f.deps.Load().GuardianStore
}

type request struct {
	variant  string
	caller   common.Address
	owner    common.Address
	modules  []common.Address
	label    string
	guardian common.Address
	salt     *common.Hash
}

func (r *request) withGuardian() bool {
	return r.variant == VariantCreateWithGuardian || r.variant == VariantCounterfactualWithGuardian
}

// CreateWallet creates a wallet for owner with modules and registers label
// for it. Only factory managers may create wallets.
func (f *Factory) CreateWallet(caller, owner common.Address, modules []common.Address, label string) (common.Address, error) {
	return f.create(&request{
		variant: VariantCreate,
		caller:  caller,
		owner:   owner,
		modules: modules,
		label:   label,
	})
}

// CreateWalletWithGuardian is CreateWallet with guardian set as the only
// guardian of the new wallet.
func (f *Factory) CreateWalletWithGuardian(caller, owner common.Address, modules []common.Address, label string, guardian common.Address) (common.Address, error) {
	return f.create(&request{
		variant:  VariantCreateWithGuardian,
		caller:   caller,
		owner:    owner,
		modules:  modules,
		label:    label,
		guardian: guardian,
	})
}

// CreateCounterfactualWallet creates the wallet at the address returned by
// AddressForCounterfactualWallet for the same owner, modules and salt.
func (f *Factory) CreateCounterfactualWallet(caller, owner common.Address, modules []common.Address, label string, salt common.Hash) (common.Address, error) {
	return f.create(&request{
		variant: VariantCounterfactual,
		caller:  caller,
		owner:   owner,
		modules: modules,
		label:   label,
		salt:    &salt,
	})
}

// CreateCounterfactualWalletWithGuardian creates the wallet at the address
// returned by AddressForCounterfactualWalletWithGuardian.
func (f *Factory) CreateCounterfactualWalletWithGuardian(caller, owner common.Address, modules []common.Address, label string, guardian common.Address, salt common.Hash) (common.Address, error) {
	return f.create(&request{
		variant:  VariantCounterfactualWithGuardian,
		caller:   caller,
		owner:    owner,
		modules:  modules,
		label:    label,
		guardian: guardian,
		salt:     &salt,
	})
}

func (f *Factory) create(req *request) (common.Address, error) {
	var w common.Address
	receipt, err := f.ledger.Execute(func(st *ledger.State) error {
		deps := f.deps.Load()
		if err := f.validate(st, deps, req); err != nil {
			return err
		}
		var err error
		w, err = f.materialize(st, deps, req)
		return classify(err)
	})
	if err != nil {
		f.recorder.CreationRejected(req.variant, CodeOf(err))
		f.log.Warn().
			Str("variant", req.variant).
			Str("owner", req.owner.Hex()).
			Str("label", req.label).
			Str("code", CodeOf(err)).
			Err(err).
			Msg("wallet creation rejected")
		return common.Address{}, err
	}
	f.recorder.WalletCreated(req.variant)
	f.log.Info().
		Str("variant", req.variant).
		Str("wallet", w.Hex()).
		Str("owner", req.owner.Hex()).
		Str("label", req.label).
		Uint64("block", receipt.Number).
		Msg("wallet created")
	return w, nil
}

// validate runs every check that can fail before the first write.
func (f *Factory) validate(st *ledger.State, deps *Config, req *request) error {
	if err := access.OnlyManager(st, f.address, req.caller); err != nil {
		if errors.Is(err, access.ErrNotManager) {
			return reject(ErrNotManager, req.caller.Hex())
		}
		return err
	}
	if req.withGuardian() && deps.GuardianStore == nil {
		return reject(ErrGuardianStoreUnconfigured, "")
	}
	if err := validateOwnerModules(req.owner, req.modules); err != nil {
		return err
	}
	if ens.Normalize(req.label) == "" {
		return reject(ErrEmptyLabel, "")
	}
	if !ens.IsSingleLabel(req.label) {
		return reject(ErrDottedLabel, ens.Normalize(req.label))
	}
	if req.withGuardian() && req.guardian == (common.Address{}) {
		return reject(ErrNullGuardian, "")
	}
	for _, m := range req.modules {
		ok, err := deps.ModuleRegistry.IsRegisteredModule(st, m)
		if err != nil {
			return err
		}
		if !ok {
			return reject(ErrUnapprovedModule, m.Hex())
		}
	}
	authorised, err := deps.NamingService.IsManager(st, f.address)
	if err != nil {
		return err
	}
	if !authorised {
		return reject(ErrFactoryUnauthorised, deps.NamingService.Address().Hex())
	}
	available, err := deps.NamingService.IsAvailable(st, req.label)
	if err != nil {
		return err
	}
	if !available {
		return reject(ErrLabelAlreadyOwned, req.label)
	}
	return nil
}

// materialize deploys and wires the wallet. The factory authorises itself
// on the wallet for as long as it needs to register the guardian.
func (f *Factory) materialize(st *ledger.State, deps *Config, req *request) (common.Address, error) {
	var (
		w   common.Address
		err error
	)
	if req.salt == nil {
		w, err = st.Create(f.address, f.template.Artifact())
	} else {
		w, err = st.Create2(f.address, walletSalt(req.owner, req.modules, req.guardian, *req.salt), f.template.Artifact())
	}
	if err != nil {
		return common.Address{}, err
	}

	extended := append(slices.Clone(req.modules), f.address)
	if err := f.template.Init(st, w, req.owner, extended); err != nil {
		return common.Address{}, err
	}
	if req.withGuardian() {
		if err := deps.GuardianStore.AddGuardian(st, f.address, w, req.guardian); err != nil {
			return common.Address{}, err
		}
	}
	if err := f.template.AuthoriseModule(st, f.address, w, f.address, false); err != nil {
		return common.Address{}, err
	}
	if err := deps.NamingService.Register(st, f.address, req.label, w); err != nil {
		return common.Address{}, err
	}
	return w, st.Emit(f.address, ABI, "WalletCreated", w, req.owner, req.guardian, req.label)
}
