package factory_test

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/factory"
	"github.com/tranvictor/walletfactory/guardians"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/modules"
	"github.com/tranvictor/walletfactory/wallet"
)

var (
	admin      = common.HexToAddress("0xad00000000000000000000000000000000000001")
	manager    = common.HexToAddress("0x3a00000000000000000000000000000000000002")
	owner      = common.HexToAddress("0x0100000000000000000000000000000000000003")
	guardian   = common.HexToAddress("0x9a00000000000000000000000000000000000004")
	stranger   = common.HexToAddress("0x5700000000000000000000000000000000000005")
	module1    = common.HexToAddress("0xe100000000000000000000000000000000000006")
	module2    = common.HexToAddress("0xe200000000000000000000000000000000000007")
	unapproved = common.HexToAddress("0xee00000000000000000000000000000000000008")
)

type countingRecorder struct {
	mu       sync.Mutex
	created  map[string]int
	rejected map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{created: map[string]int{}, rejected: map[string]int{}}
}

func (r *countingRecorder) WalletCreated(variant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created[variant]++
}

func (r *countingRecorder) CreationRejected(variant, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[variant+"/"+code]++
}

type env struct {
	sys      *infra.System
	f        *factory.Factory
	recorder *countingRecorder
	logs     []*types.Log
}

func newEnv(t *testing.T, cfg infra.Config) *env {
	t.Helper()
	rec := newCountingRecorder()
	sys, err := infra.Deploy(ledger.NewMemory(), admin, cfg, factory.WithRecorder(rec))
	if err != nil {
		t.Fatalf("deploy infrastructure: %s", err)
	}
	_, err = sys.Ledger.Execute(func(st *ledger.State) error {
		if err := sys.Modules.Register(st, admin, module1, "GuardianManager"); err != nil {
			return err
		}
		if err := sys.Modules.Register(st, admin, module2, "TransferManager"); err != nil {
			return err
		}
		return sys.Factory.AddManagerIn(st, admin, manager)
	})
	if err != nil {
		t.Fatalf("register modules: %s", err)
	}
	e := &env{sys: sys, f: sys.Factory, recorder: rec}
	cancel := sys.Ledger.Subscribe(func(r *ledger.Receipt) {
		e.logs = append(e.logs, r.Logs...)
	})
	t.Cleanup(cancel)
	return e
}

func (e *env) view(t *testing.T, fn func(st *ledger.State) error) {
	t.Helper()
	if err := e.sys.Ledger.View(fn); err != nil {
		t.Fatal(err)
	}
}

func (e *env) isAvailable(t *testing.T, label string) bool {
	t.Helper()
	var ok bool
	e.view(t, func(st *ledger.State) error {
		var err error
		ok, err = e.sys.Naming.IsAvailable(st, label)
		return err
	})
	return ok
}

func assertRejected(t *testing.T, err error, want error, kind factory.Kind) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
	if got := factory.KindOf(err); got != kind {
		t.Errorf("want kind %s, got %s", kind, got)
	}
}

func TestCreateWallet(t *testing.T) {
	e := newEnv(t, infra.Config{})
	w, err := e.f.CreateWallet(manager, owner, []common.Address{module1, module2}, "wallet1")
	if err != nil {
		t.Fatalf("create wallet: %s", err)
	}

	e.view(t, func(st *ledger.State) error {
		got, err := e.sys.Template.Owner(st, w)
		if err != nil {
			return err
		}
		if got != owner {
			t.Errorf("owner %s, want %s", got.Hex(), owner.Hex())
		}
		for _, m := range []common.Address{module1, module2} {
			ok, err := e.sys.Template.IsAuthorised(st, w, m)
			if err != nil {
				return err
			}
			if !ok {
				t.Errorf("module %s not authorised", m.Hex())
			}
		}
		ok, err := e.sys.Template.IsAuthorised(st, w, e.f.Address())
		if err != nil {
			return err
		}
		if ok {
			t.Errorf("factory is still authorised on the wallet")
		}
		resolved, err := e.sys.Naming.Resolve(st, "wallet1")
		if err != nil {
			return err
		}
		if resolved != w {
			t.Errorf("wallet1 resolves to %s, want %s", resolved.Hex(), w.Hex())
		}
		return nil
	})

	created := ledger.FilterLogs(e.logs, e.f.Address(), factory.ABI, "WalletCreated")
	if len(created) != 1 {
		t.Fatalf("want 1 WalletCreated event, got %d", len(created))
	}
	var ev struct {
		Wallet   common.Address
		Owner    common.Address
		Guardian common.Address
		Label    string
	}
	if err := ledger.UnpackLog(factory.ABI, &ev, "WalletCreated", created[0]); err != nil {
		t.Fatal(err)
	}
	if ev.Wallet != w || ev.Owner != owner || ev.Label != "wallet1" || ev.Guardian != (common.Address{}) {
		t.Errorf("unexpected event %+v", ev)
	}
	if e.recorder.created[factory.VariantCreate] != 1 {
		t.Errorf("recorder saw %d creations", e.recorder.created[factory.VariantCreate])
	}
}

func TestCreateWalletCollapsesDuplicateModules(t *testing.T) {
	e := newEnv(t, infra.Config{})
	w, err := e.f.CreateWallet(manager, owner, []common.Address{module1, module1, module2}, "dup")
	if err != nil {
		t.Fatal(err)
	}
	e.view(t, func(st *ledger.State) error {
		mods, err := e.sys.Template.Modules(st, w)
		if err != nil {
			return err
		}
		if len(mods) != 2 {
			t.Errorf("want 2 authorised modules, got %v", mods)
		}
		return nil
	})
}

func TestCreateWalletInputValidation(t *testing.T) {
	e := newEnv(t, infra.Config{})
	mods := []common.Address{module1}

	_, err := e.f.CreateWallet(manager, owner, nil, "nomodules")
	assertRejected(t, err, factory.ErrNoModules, factory.InputValidation)

	_, err = e.f.CreateWallet(manager, common.Address{}, mods, "noowner")
	assertRejected(t, err, factory.ErrEmptyOwner, factory.InputValidation)

	_, err = e.f.CreateWallet(manager, owner, mods, "")
	assertRejected(t, err, factory.ErrEmptyLabel, factory.InputValidation)

	_, err = e.f.CreateWalletWithGuardian(manager, owner, mods, "noguardian", common.Address{})
	assertRejected(t, err, factory.ErrNullGuardian, factory.InputValidation)

	if got := e.recorder.rejected[factory.VariantCreate+"/NoModules"]; got != 1 {
		t.Errorf("recorder saw %d NoModules rejections", got)
	}
}

func TestUnapprovedModuleLeavesNoTrace(t *testing.T) {
	e := newEnv(t, infra.Config{})
	before := e.sys.Ledger.BlockNumber()

	_, err := e.f.CreateWalletWithGuardian(manager, owner, []common.Address{module1, unapproved}, "ghost", guardian)
	assertRejected(t, err, factory.ErrUnapprovedModule, factory.RegistryState)

	if !e.isAvailable(t, "ghost") {
		t.Errorf("label was reserved by a rejected request")
	}
	if after := e.sys.Ledger.BlockNumber(); after != before {
		t.Errorf("rejected request committed block %d", after)
	}
	if len(e.logs) != 0 {
		t.Errorf("rejected request emitted %d logs", len(e.logs))
	}
}

func TestDeregisteredModuleIsRejected(t *testing.T) {
	e := newEnv(t, infra.Config{})
	_, err := e.sys.Ledger.Execute(func(st *ledger.State) error {
		return e.sys.Modules.Deregister(st, admin, module2)
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.f.CreateWallet(manager, owner, []common.Address{module2}, "late")
	assertRejected(t, err, factory.ErrUnapprovedModule, factory.RegistryState)
}

func TestLabelCanOnlyBeUsedOnce(t *testing.T) {
	e := newEnv(t, infra.Config{})
	first, err := e.f.CreateWallet(manager, owner, []common.Address{module1}, "taken")
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.f.CreateWalletWithGuardian(manager, stranger, []common.Address{module2}, "TAKEN", guardian)
	assertRejected(t, err, factory.ErrLabelAlreadyOwned, factory.RegistryState)

	e.view(t, func(st *ledger.State) error {
		resolved, err := e.sys.Naming.Resolve(st, "taken")
		if err != nil {
			return err
		}
		if resolved != first {
			t.Errorf("label moved to %s", resolved.Hex())
		}
		ok, err := e.sys.Guardians.IsGuardian(st, first, guardian)
		if err != nil {
			return err
		}
		if ok {
			t.Errorf("guardian registered by a rejected request")
		}
		return nil
	})
}

func TestCreateWalletWithGuardian(t *testing.T) {
	e := newEnv(t, infra.Config{})
	w, err := e.f.CreateWalletWithGuardian(manager, owner, []common.Address{module1}, "guarded", guardian)
	if err != nil {
		t.Fatal(err)
	}
	e.view(t, func(st *ledger.State) error {
		list, err := e.sys.Guardians.Guardians(st, w)
		if err != nil {
			return err
		}
		if len(list) != 1 || list[0] != guardian {
			t.Errorf("want sole guardian %s, got %v", guardian.Hex(), list)
		}
		return nil
	})
}

func TestGuardianStoreUnconfiguredComesFirst(t *testing.T) {
	e := newEnv(t, infra.Config{WithoutGuardianStorage: true})
	_, err := e.f.CreateWalletWithGuardian(manager, common.Address{}, nil, "", common.Address{})
	assertRejected(t, err, factory.ErrGuardianStoreUnconfigured, factory.RegistryState)

	_, err = e.f.CreateCounterfactualWalletWithGuardian(manager, owner, []common.Address{module1}, "cf", guardian, common.HexToHash("0x01"))
	assertRejected(t, err, factory.ErrGuardianStoreUnconfigured, factory.RegistryState)

	if _, err := e.f.CreateWallet(manager, owner, []common.Address{module1}, "plain"); err != nil {
		t.Errorf("wallet without guardian should still be created: %s", err)
	}
}

func TestOnlyManagersCreate(t *testing.T) {
	e := newEnv(t, infra.Config{})
	_, err := e.f.CreateWallet(stranger, owner, []common.Address{module1}, "sneaky")
	assertRejected(t, err, factory.ErrNotManager, factory.Authorization)

	if err := e.f.RevokeManager(admin, manager); err != nil {
		t.Fatal(err)
	}
	_, err = e.f.CreateWallet(manager, owner, []common.Address{module1}, "revoked")
	assertRejected(t, err, factory.ErrNotManager, factory.Authorization)
}

func TestCounterfactualWalletLandsAtDerivedAddress(t *testing.T) {
	e := newEnv(t, infra.Config{})
	salt := common.HexToHash("0x2a")
	mods := []common.Address{module2, module1}

	want, err := e.f.AddressForCounterfactualWallet(owner, mods, salt)
	if err != nil {
		t.Fatal(err)
	}
	again, err := e.f.AddressForCounterfactualWallet(owner, []common.Address{module1, module2, module1}, salt)
	if err != nil {
		t.Fatal(err)
	}
	if again != want {
		t.Errorf("module order changed the address: %s vs %s", again.Hex(), want.Hex())
	}

	got, err := e.f.CreateCounterfactualWallet(manager, owner, mods, "cf", salt)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("wallet created at %s, derived %s", got.Hex(), want.Hex())
	}

	_, err = e.f.CreateCounterfactualWallet(manager, owner, mods, "cf2", salt)
	assertRejected(t, err, factory.ErrAddressAlreadyInUse, factory.Collision)
	if !e.isAvailable(t, "cf2") {
		t.Errorf("label reserved by a colliding request")
	}
}

func TestCounterfactualWithGuardianLandsAtDerivedAddress(t *testing.T) {
	e := newEnv(t, infra.Config{})
	salt := common.HexToHash("0x07")
	mods := []common.Address{module1}

	want, err := e.f.AddressForCounterfactualWalletWithGuardian(owner, mods, guardian, salt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.f.CreateCounterfactualWalletWithGuardian(manager, owner, mods, "cfg", guardian, salt)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("wallet created at %s, derived %s", got.Hex(), want.Hex())
	}
	e.view(t, func(st *ledger.State) error {
		ok, err := e.sys.Guardians.IsGuardian(st, got, guardian)
		if err != nil {
			return err
		}
		if !ok {
			t.Errorf("guardian missing")
		}
		return nil
	})
}

func TestPrefundedWalletAnnouncesBalance(t *testing.T) {
	e := newEnv(t, infra.Config{})
	salt := common.HexToHash("0x99")
	mods := []common.Address{module1}
	target, err := e.f.AddressForCounterfactualWallet(owner, mods, salt)
	if err != nil {
		t.Fatal(err)
	}
	amount := big.NewInt(10000000000000)
	_, err = e.sys.Ledger.Execute(func(st *ledger.State) error {
		return st.Credit(target, amount)
	})
	if err != nil {
		t.Fatal(err)
	}

	w, err := e.f.CreateCounterfactualWallet(manager, owner, mods, "funded", salt)
	if err != nil {
		t.Fatal(err)
	}
	received := ledger.FilterLogs(e.logs, w, wallet.ABI, "Received")
	if len(received) != 1 {
		t.Fatalf("want exactly 1 Received event, got %d", len(received))
	}
	var ev struct {
		Value  *big.Int
		Sender common.Address
		Data   []byte
	}
	if err := ledger.UnpackLog(wallet.ABI, &ev, "Received", received[0]); err != nil {
		t.Fatal(err)
	}
	if ev.Value.Cmp(amount) != 0 || ev.Sender != (common.Address{}) {
		t.Errorf("unexpected Received event %+v", ev)
	}
}

func TestSettersAreOwnerOnly(t *testing.T) {
	e := newEnv(t, infra.Config{})

	err := e.f.ChangeModuleRegistry(stranger, e.sys.Modules)
	assertRejected(t, err, factory.ErrNotAdministrator, factory.Authorization)

	err = e.f.ChangeENSManager(admin, nil)
	assertRejected(t, err, factory.ErrNullConfigTarget, factory.InputValidation)

	err = e.f.ChangeGuardianStorage(stranger, nil)
	assertRejected(t, err, factory.ErrNullConfigTarget, factory.InputValidation)

	err = e.f.AddManager(stranger, stranger)
	assertRejected(t, err, factory.ErrNotAdministrator, factory.Authorization)
}

func TestChangeModuleRegistryTakesEffect(t *testing.T) {
	e := newEnv(t, infra.Config{})
	var fresh *modules.Registry
	_, err := e.sys.Ledger.Execute(func(st *ledger.State) error {
		var err error
		fresh, err = modules.Deploy(st, admin)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.f.ChangeModuleRegistry(admin, fresh); err != nil {
		t.Fatal(err)
	}
	if e.f.ModuleRegistry().Address() != fresh.Address() {
		t.Fatalf("registry not swapped")
	}

	_, err = e.f.CreateWallet(manager, owner, []common.Address{module1}, "swap")
	assertRejected(t, err, factory.ErrUnapprovedModule, factory.RegistryState)

	_, err = e.sys.Ledger.Execute(func(st *ledger.State) error {
		return fresh.Register(st, admin, module1, "GuardianManager")
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.f.CreateWallet(manager, owner, []common.Address{module1}, "swap"); err != nil {
		t.Fatal(err)
	}

	changed := ledger.FilterLogs(e.logs, e.f.Address(), factory.ABI, "ModuleRegistryChanged")
	if len(changed) != 1 {
		t.Errorf("want 1 ModuleRegistryChanged event, got %d", len(changed))
	}

	reloaded, err := infra.Load(e.sys.Ledger)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Factory.ModuleRegistry().Address() != fresh.Address() {
		t.Errorf("reloaded factory uses %s", reloaded.Factory.ModuleRegistry().Address().Hex())
	}
}

func TestSettersRejectTypedNilTargets(t *testing.T) {
	e := newEnv(t, infra.Config{})

	err := e.f.ChangeModuleRegistry(admin, (*modules.Registry)(nil))
	assertRejected(t, err, factory.ErrNullConfigTarget, factory.InputValidation)
	err = e.f.ChangeENSManager(admin, (*ens.Manager)(nil))
	assertRejected(t, err, factory.ErrNullConfigTarget, factory.InputValidation)
	err = e.f.ChangeGuardianStorage(admin, (*guardians.Storage)(nil))
	assertRejected(t, err, factory.ErrNullConfigTarget, factory.InputValidation)

	if e.f.ModuleRegistry().Address() != e.sys.Modules.Address() {
		t.Errorf("rejected change replaced the module registry")
	}
}

func TestChangeENSManagerTakesEffect(t *testing.T) {
	e := newEnv(t, infra.Config{})
	var fresh *ens.Manager
	_, err := e.sys.Ledger.Execute(func(st *ledger.State) error {
		var err error
		fresh, err = ens.DeployManager(st, admin, "wallets.test", e.sys.ENSRegistry, e.sys.Resolver)
		if err != nil {
			return err
		}
		tld, err := e.sys.ENSRegistry.SetSubnodeOwner(st, admin, common.Hash{}, ens.LabelHash("test"), admin)
		if err != nil {
			return err
		}
		if _, err := e.sys.ENSRegistry.SetSubnodeOwner(st, admin, tld, ens.LabelHash("wallets"), fresh.Address()); err != nil {
			return err
		}
		return e.sys.Resolver.AddManager(st, admin, fresh.Address())
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.f.ChangeENSManager(admin, fresh); err != nil {
		t.Fatal(err)
	}
	if e.f.NamingService().Address() != fresh.Address() {
		t.Fatalf("naming service not swapped")
	}

	// The factory is not yet allowed to register labels with fresh.
	_, err = e.f.CreateWallet(manager, owner, []common.Address{module1}, "swap")
	assertRejected(t, err, factory.ErrFactoryUnauthorised, factory.RegistryState)
	if errors.Is(err, factory.ErrNotManager) {
		t.Errorf("a factory manager was reported as not being one: %v", err)
	}
	if code := factory.CodeOf(err); code != "FactoryUnauthorised" {
		t.Errorf("code %s", code)
	}
	if got := e.recorder.rejected[factory.VariantCreate+"/FactoryUnauthorised"]; got != 1 {
		t.Errorf("want 1 recorded rejection, got %d", got)
	}

	_, err = e.sys.Ledger.Execute(func(st *ledger.State) error {
		return fresh.AddManager(st, admin, e.f.Address())
	})
	if err != nil {
		t.Fatal(err)
	}
	w, err := e.f.CreateWallet(manager, owner, []common.Address{module1}, "swap")
	if err != nil {
		t.Fatal(err)
	}
	e.view(t, func(st *ledger.State) error {
		name, err := fresh.ReverseName(st, w)
		if err != nil {
			return err
		}
		if name != "swap.wallets.test" {
			t.Errorf("reverse name %q", name)
		}
		return nil
	})
	if n := len(ledger.FilterLogs(e.logs, e.f.Address(), factory.ABI, "ENSManagerChanged")); n != 1 {
		t.Errorf("want 1 ENSManagerChanged event, got %d", n)
	}

	reloaded, err := infra.Load(e.sys.Ledger)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Factory.NamingService().Address() != fresh.Address() {
		t.Errorf("reloaded factory uses %s", reloaded.Factory.NamingService().Address().Hex())
	}
}

func TestDottedLabelIsRejected(t *testing.T) {
	e := newEnv(t, infra.Config{})
	_, err := e.f.CreateWallet(manager, owner, []common.Address{module1}, "a.b")
	assertRejected(t, err, factory.ErrDottedLabel, factory.InputValidation)
	if code := factory.CodeOf(err); code != "DottedLabel" {
		t.Errorf("code %s", code)
	}
}

func TestChangeGuardianStorageEnablesGuardians(t *testing.T) {
	e := newEnv(t, infra.Config{WithoutGuardianStorage: true})
	if e.f.GuardianStore() != nil {
		t.Fatalf("guardian store should be unconfigured")
	}
	var store factory.GuardianStore
	_, err := e.sys.Ledger.Execute(func(st *ledger.State) error {
		gs, err := deployGuardians(st, e.sys.Template)
		store = gs
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.f.ChangeGuardianStorage(admin, store); err != nil {
		t.Fatal(err)
	}
	w, err := e.f.CreateWalletWithGuardian(manager, owner, []common.Address{module1}, "late-guard", guardian)
	if err != nil {
		t.Fatal(err)
	}
	e.view(t, func(st *ledger.State) error {
		ok, err := store.IsGuardian(st, w, guardian)
		if err != nil {
			return err
		}
		if !ok {
			t.Errorf("guardian missing")
		}
		return nil
	})
}

func TestChangeOwnerHandsOverAdministration(t *testing.T) {
	e := newEnv(t, infra.Config{})
	if err := e.f.ChangeOwner(admin, stranger); err != nil {
		t.Fatal(err)
	}
	got, err := e.f.Owner()
	if err != nil {
		t.Fatal(err)
	}
	if got != stranger {
		t.Errorf("owner %s, want %s", got.Hex(), stranger.Hex())
	}
	err = e.f.AddManager(admin, owner)
	assertRejected(t, err, factory.ErrNotAdministrator, factory.Authorization)
	if err := e.f.AddManager(stranger, owner); err != nil {
		t.Fatal(err)
	}
	ok, err := e.f.IsManager(owner)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Errorf("new manager not recorded")
	}
}
