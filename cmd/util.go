package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	wfcommon "github.com/tranvictor/walletfactory/common"
	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/events"
	"github.com/tranvictor/walletfactory/factory"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/modules"
)

func openLedger() (*ledger.Ledger, error) {
	dir := filepath.Join(settings.DataDir, "ledger")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return ledger.OpenLevelDB(dir, ledger.WithLogger(log))
}

// openSession opens the ledger and, when a broker is configured, starts
// publishing its events. The returned func undoes both.
func openSession() (*ledger.Ledger, func() error, error) {
	l, err := openLedger()
	if err != nil {
		return nil, nil, err
	}
	var pub *events.Publisher
	if settings.Events.Broker != "" {
		clientID := "walletfactory-" + uuid.NewString()
		if pub, err = events.Dial(settings.Events.Broker, clientID, settings.Events.Prefix, log); err != nil {
			l.Close()
			return nil, nil, err
		}
		pub.Attach(l)
	}
	return l, func() error {
		if pub != nil {
			pub.Close()
		}
		return l.Close()
	}, nil
}

func factoryOptions() []factory.Option {
	return []factory.Option{factory.WithLogger(log), factory.WithRecorder(recorder)}
}

// withSystem runs fn against the infrastructure deployed in the data
// directory and closes the ledger afterwards.
func withSystem(fn func(sys *infra.System) error) (err error) {
	l, closeSession, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeSession(); err == nil {
			err = cerr
		}
	}()
	sys, err := infra.Load(l, factoryOptions()...)
	if err != nil {
		if errors.Is(err, infra.ErrNotInitialised) {
			return fmt.Errorf("%w, run walletfactory init first", err)
		}
		return err
	}
	return fn(sys)
}

// callerAddress is --from, falling back to the configured admin.
func callerAddress() (common.Address, error) {
	from := config.From
	if from == "" {
		from = settings.Admin
	}
	if from == "" {
		return common.Address{}, fmt.Errorf("no caller: pass --from or set admin in the config file")
	}
	return wfcommon.ParseAddress(from)
}

type moduleSource []modules.Registration

func (s moduleSource) String(i int) string {
	return s[i].Name
}

func (s moduleSource) Len() int {
	return len(s)
}

// lookupModule finds a registration by address or by a fuzzy match on its
// name.
func lookupModule(regs []modules.Registration, input string) (modules.Registration, error) {
	input = strings.TrimSpace(input)
	if common.IsHexAddress(input) {
		addr := common.HexToAddress(input)
		for _, r := range regs {
			if r.Module == addr {
				return r, nil
			}
		}
		return modules.Registration{}, fmt.Errorf("module %s is not registered", addr.Hex())
	}
	matches := fuzzy.FindFrom(strings.ReplaceAll(input, " ", ""), moduleSource(regs))
	if len(matches) == 0 {
		return modules.Registration{}, fmt.Errorf("no module is found with '%s'", input)
	}
	return regs[matches[0].Index], nil
}

// resolveModules turns module arguments into addresses. Addresses are
// passed through untouched so the factory decides on their approval; names
// are looked up among the registered modules.
func resolveModules(regs []modules.Registration, inputs []string) ([]common.Address, error) {
	result := make([]common.Address, 0, len(inputs))
	for _, in := range inputs {
		if common.IsHexAddress(strings.TrimSpace(in)) {
			result = append(result, common.HexToAddress(strings.TrimSpace(in)))
			continue
		}
		reg, err := lookupModule(regs, in)
		if err != nil {
			return nil, err
		}
		result = append(result, reg.Module)
	}
	return result, nil
}

// walletParams reads --owner, --modules and --guardian. hasGuardian is set
// whenever --guardian was given, even as the zero address, so the factory
// gets to reject a null guardian.
func walletParams(sys *infra.System, hasGuardian bool) (owner common.Address, mods []common.Address, guardian common.Address, err error) {
	if config.Owner == "" {
		return owner, nil, guardian, fmt.Errorf("--owner is required")
	}
	if owner, err = wfcommon.ParseAddress(config.Owner); err != nil {
		return
	}
	regs, err := sys.Modules.Modules(sys.Ledger)
	if err != nil {
		return
	}
	if mods, err = resolveModules(regs, config.Modules); err != nil {
		return
	}
	if hasGuardian {
		guardian, err = wfcommon.ParseAddress(config.Guardian)
	}
	return
}

// saltParam reads --salt or --random-salt. ok is false when neither is
// given.
func saltParam() (salt common.Hash, ok bool, err error) {
	switch {
	case config.Salt != "" && config.RandomSalt:
		return salt, false, fmt.Errorf("--salt and --random-salt are exclusive")
	case config.RandomSalt:
		return wfcommon.RandomSalt(), true, nil
	case config.Salt != "":
		salt, err = wfcommon.ParseSalt(config.Salt)
		return salt, err == nil, err
	}
	return salt, false, nil
}

func optionalAddress(a common.Address) string {
	if a == (common.Address{}) {
		return "-"
	}
	return a.Hex()
}
