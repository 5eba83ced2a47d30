package wallet_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/wallet"
)

var (
	deployer = common.HexToAddress("0x1000000000000000000000000000000000000001")
	owner    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	module1  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	module2  = common.HexToAddress("0x4000000000000000000000000000000000000004")
	stranger = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

type receivedEvent struct {
	Value  *big.Int
	Sender common.Address
	Data   []byte
}

func setup(t *testing.T) (*ledger.Ledger, *wallet.Template) {
	t.Helper()
	l := ledger.NewMemory()
	var tmpl *wallet.Template
	_, err := l.Execute(func(st *ledger.State) error {
		var err error
		tmpl, err = wallet.DeployTemplate(st, deployer)
		return err
	})
	if err != nil {
		t.Fatalf("deploy template: %s", err)
	}
	tmpl.Install(l)
	return l, tmpl
}

func deployWallet(t *testing.T, l *ledger.Ledger, tmpl *wallet.Template, salt common.Hash) common.Address {
	t.Helper()
	var addr common.Address
	_, err := l.Execute(func(st *ledger.State) error {
		var err error
		addr, err = st.Create2(deployer, salt, tmpl.Artifact())
		return err
	})
	if err != nil {
		t.Fatalf("deploy proxy: %s", err)
	}
	return addr
}

func TestProxyCodeEmbedsImplementation(t *testing.T) {
	impl := common.HexToAddress("0xbebebebebebebebebebebebebebebebebebebebe")
	got := common.Bytes2Hex(wallet.ProxyCreationCode(impl))
	want := "3d602d80600a3d3981f3363d3d373d3d3d363d73bebebebebebebebebebebebebebebebebebebebe5af43d82803e903d91602b57fd5bf3"
	if got != want {
		t.Errorf("creation code mismatch:\n  want: %s\n   got: %s", want, got)
	}
}

func TestInitCollapsesDuplicatesAndRunsOnce(t *testing.T) {
	l, tmpl := setup(t)
	w := deployWallet(t, l, tmpl, common.HexToHash("0x01"))

	receipt, err := l.Execute(func(st *ledger.State) error {
		return tmpl.Init(st, w, owner, []common.Address{module1, module2, module1})
	})
	if err != nil {
		t.Fatalf("init: %s", err)
	}
	if n := len(ledger.FilterLogs(receipt.Logs, w, wallet.ABI, "AuthorisedModule")); n != 2 {
		t.Errorf("want 2 AuthorisedModule events, got %d", n)
	}
	if n := len(ledger.FilterLogs(receipt.Logs, w, wallet.ABI, "Received")); n != 0 {
		t.Errorf("unfunded wallet emitted %d Received events", n)
	}

	err = l.View(func(st *ledger.State) error {
		mods, err := tmpl.Modules(st, w)
		if err != nil {
			return err
		}
		if len(mods) != 2 || mods[0] != module1 || mods[1] != module2 {
			t.Errorf("unexpected modules %v", mods)
		}
		got, err := tmpl.Owner(st, w)
		if err != nil {
			return err
		}
		if got != owner {
			t.Errorf("owner %s, want %s", got.Hex(), owner.Hex())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = l.Execute(func(st *ledger.State) error {
		return tmpl.Init(st, w, stranger, []common.Address{stranger})
	})
	if !errors.Is(err, wallet.ErrAlreadyInitialised) {
		t.Fatalf("want ErrAlreadyInitialised, got %v", err)
	}
}

func TestInitAnnouncesPrefundedBalance(t *testing.T) {
	l, tmpl := setup(t)
	salt := common.HexToHash("0x02")
	target := ledger.DeriveCreate2Address(deployer, salt, tmpl.CreationCode())
	amount := big.NewInt(10000000000000)

	_, err := l.Execute(func(st *ledger.State) error {
		return st.Credit(target, amount)
	})
	if err != nil {
		t.Fatal(err)
	}
	w := deployWallet(t, l, tmpl, salt)
	if w != target {
		t.Fatalf("proxy deployed at %s, want %s", w.Hex(), target.Hex())
	}

	receipt, err := l.Execute(func(st *ledger.State) error {
		return tmpl.Init(st, w, owner, []common.Address{module1})
	})
	if err != nil {
		t.Fatal(err)
	}
	logs := ledger.FilterLogs(receipt.Logs, w, wallet.ABI, "Received")
	if len(logs) != 1 {
		t.Fatalf("want exactly 1 Received event, got %d", len(logs))
	}
	var ev receivedEvent
	if err := ledger.UnpackLog(wallet.ABI, &ev, "Received", logs[0]); err != nil {
		t.Fatal(err)
	}
	if ev.Value.Cmp(amount) != 0 {
		t.Errorf("value %s, want %s", ev.Value, amount)
	}
	if ev.Sender != (common.Address{}) {
		t.Errorf("sender %s, want zero address", ev.Sender.Hex())
	}
}

func TestAuthoriseModuleRequiresModule(t *testing.T) {
	l, tmpl := setup(t)
	w := deployWallet(t, l, tmpl, common.HexToHash("0x03"))
	_, err := l.Execute(func(st *ledger.State) error {
		return tmpl.Init(st, w, owner, []common.Address{module1})
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = l.Execute(func(st *ledger.State) error {
		return tmpl.AuthoriseModule(st, stranger, w, module2, true)
	})
	if !errors.Is(err, wallet.ErrNotAuthorisedModule) {
		t.Fatalf("want ErrNotAuthorisedModule, got %v", err)
	}

	_, err = l.Execute(func(st *ledger.State) error {
		if err := tmpl.AuthoriseModule(st, module1, w, module2, true); err != nil {
			return err
		}
		return tmpl.AuthoriseModule(st, module2, w, module1, false)
	})
	if err != nil {
		t.Fatal(err)
	}
	err = l.View(func(st *ledger.State) error {
		one, _ := tmpl.IsAuthorised(st, w, module1)
		two, _ := tmpl.IsAuthorised(st, w, module2)
		if one || !two {
			t.Errorf("module1=%v module2=%v, want false/true", one, two)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValueSentToLiveWalletIsReceived(t *testing.T) {
	l, tmpl := setup(t)
	w := deployWallet(t, l, tmpl, common.HexToHash("0x04"))
	receipt, err := l.Execute(func(st *ledger.State) error {
		if err := st.Credit(stranger, big.NewInt(3)); err != nil {
			return err
		}
		return st.Transfer(stranger, w, big.NewInt(3))
	})
	if err != nil {
		t.Fatal(err)
	}
	logs := ledger.FilterLogs(receipt.Logs, w, wallet.ABI, "Received")
	if len(logs) != 1 {
		t.Fatalf("want 1 Received event, got %d", len(logs))
	}
	var ev receivedEvent
	if err := ledger.UnpackLog(wallet.ABI, &ev, "Received", logs[0]); err != nil {
		t.Fatal(err)
	}
	if ev.Sender != stranger {
		t.Errorf("sender %s, want %s", ev.Sender.Hex(), stranger.Hex())
	}
}
