package infra

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/ledger"
)

var (
	admin   = common.HexToAddress("0xad00000000000000000000000000000000000001")
	owner   = common.HexToAddress("0x0100000000000000000000000000000000000003")
	module1 = common.HexToAddress("0xe100000000000000000000000000000000000006")
)

func registerModule(t *testing.T, sys *System) {
	t.Helper()
	_, err := sys.Ledger.Execute(func(st *ledger.State) error {
		return sys.Modules.Register(st, admin, module1, "GuardianManager")
	})
	if err != nil {
		t.Fatalf("register module: %s", err)
	}
}

func TestRootLabels(t *testing.T) {
	labels, err := rootLabels(" Argent.XYZ ")
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 2 || labels[0] != "xyz" || labels[1] != "argent" {
		t.Errorf("unexpected labels %v", labels)
	}
	for _, bad := range []string{"", "argent..xyz", ".xyz"} {
		if _, err := rootLabels(bad); err == nil {
			t.Errorf("root %q should be rejected", bad)
		}
	}
}

func TestDeployTwiceFails(t *testing.T) {
	l := ledger.NewMemory()
	if _, err := Deploy(l, admin, Config{}); err != nil {
		t.Fatal(err)
	}
	if _, err := Deploy(l, admin, Config{}); !errors.Is(err, ErrAlreadyInitialised) {
		t.Errorf("want ErrAlreadyInitialised, got %v", err)
	}
}

func TestLoadEmptyLedger(t *testing.T) {
	if _, err := Load(ledger.NewMemory()); !errors.Is(err, ErrNotInitialised) {
		t.Errorf("want ErrNotInitialised, got %v", err)
	}
}

func TestCustomRootName(t *testing.T) {
	sys, err := Deploy(ledger.NewMemory(), admin, Config{RootName: "wallets.example.eth"})
	if err != nil {
		t.Fatal(err)
	}
	registerModule(t, sys)
	if err := sys.Factory.AddManager(admin, admin); err != nil {
		t.Fatal(err)
	}
	addr, err := sys.Factory.CreateWallet(admin, owner, []common.Address{module1}, "alice")
	if err != nil {
		t.Fatal(err)
	}

	err = sys.Ledger.View(func(st *ledger.State) error {
		owned, err := sys.ENSRegistry.Owner(st, ens.Namehash("wallets.example.eth"))
		if err != nil {
			return err
		}
		if owned != sys.Naming.Address() {
			t.Errorf("root owned by %s, want the naming manager", owned.Hex())
		}
		resolved, err := sys.Naming.Resolve(st, "alice")
		if err != nil {
			return err
		}
		if resolved != addr {
			t.Errorf("alice resolved to %s, want %s", resolved.Hex(), addr.Hex())
		}
		name, err := sys.Naming.ReverseName(st, addr)
		if err != nil {
			return err
		}
		if name != "alice.wallets.example.eth" {
			t.Errorf("unexpected reverse name %q", name)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithoutGuardianStorage(t *testing.T) {
	sys, err := Deploy(ledger.NewMemory(), admin, Config{WithoutGuardianStorage: true})
	if err != nil {
		t.Fatal(err)
	}
	if sys.Guardians != nil || sys.Factory.GuardianStore() != nil {
		t.Errorf("no guardian store should be configured")
	}
}

func TestReopenPersistentLedger(t *testing.T) {
	dir := t.TempDir()
	l, err := ledger.OpenLevelDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	sys, err := Deploy(l, admin, Config{})
	if err != nil {
		t.Fatal(err)
	}
	registerModule(t, sys)
	if err := sys.Factory.AddManager(admin, admin); err != nil {
		t.Fatal(err)
	}
	salt := common.HexToHash("0x07")
	addr, err := sys.Factory.CreateCounterfactualWallet(admin, owner, []common.Address{module1}, "bob", salt)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = ledger.OpenLevelDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	reloaded, err := Load(l)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Admin != admin || reloaded.Factory.Address() != sys.Factory.Address() {
		t.Errorf("reloaded a different system")
	}
	if reloaded.Guardians == nil {
		t.Errorf("guardian store lost across restart")
	}
	again, err := reloaded.Factory.AddressForCounterfactualWallet(owner, []common.Address{module1}, salt)
	if err != nil {
		t.Fatal(err)
	}
	if again != addr {
		t.Errorf("derivation changed across restart: %s != %s", again.Hex(), addr.Hex())
	}
	if _, err := reloaded.Factory.CreateWallet(admin, owner, []common.Address{module1}, "bob"); !errors.Is(err, ens.ErrLabelAlreadyOwned) {
		t.Errorf("want ErrLabelAlreadyOwned after restart, got %v", err)
	}
	err = l.View(func(st *ledger.State) error {
		resolved, err := reloaded.Naming.Resolve(st, "bob")
		if err != nil {
			return err
		}
		if resolved != addr {
			t.Errorf("bob resolved to %s, want %s", resolved.Hex(), addr.Hex())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
