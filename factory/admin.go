package factory

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/access"
	"github.com/tranvictor/walletfactory/ledger"
)

// configure runs a configuration change. mutate edits a copy of the current
// collaborators and the settings persisted with them; the copy replaces the
// live one only once the operation is committed.
func (f *Factory) configure(caller, target common.Address, event string, mutate func(cfg *Config, s *Settings)) error {
	_, err := f.ledger.Execute(func(st *ledger.State) error {
		if target == (common.Address{}) {
			return reject(ErrNullConfigTarget, event)
		}
		if err := f.onlyOwner(st, caller); err != nil {
			return err
		}
		s, err := LoadSettings(st, f.address)
		if err != nil {
			return err
		}
		next := *f.deps.Load()
		mutate(&next, &s)
		if err := st.PutRLP(settingsKey(f.address), &s); err != nil {
			return err
		}
		if err := st.Emit(f.address, ABI, event, target); err != nil {
			return err
		}
		st.OnCommit(func() { f.deps.Store(&next) })
		return nil
	})
	if err != nil {
		f.log.Warn().Str("change", event).Str("target", target.Hex()).Err(err).Msg("configuration change rejected")
		return err
	}
	f.log.Info().Str("change", event).Str("target", target.Hex()).Msg("configuration changed")
	return nil
}

func (f *Factory) onlyOwner(st *ledger.State, caller common.Address) error {
	if err := access.OnlyOwner(st, f.address, caller); err != nil {
		if errors.Is(err, access.ErrNotOwner) {
			return reject(ErrNotAdministrator, caller.Hex())
		}
		return err
	}
	return nil
}

func addressOf(c interface{ Address() common.Address }) common.Address {
	if c == nil {
		return common.Address{}
	}
	return c.Address()
}

// ChangeModuleRegistry points the factory at registry.
func (f *Factory) ChangeModuleRegistry(caller common.Address, registry ModuleRegistry) error {
	target := addressOf(registry)
	return f.configure(caller, target, "ModuleRegistryChanged", func(cfg *Config, s *Settings) {
		cfg.ModuleRegistry = registry
		s.ModuleRegistry = target
	})
}

// ChangeENSManager points the factory at another naming service. The
// factory must be a manager of it for creations to succeed.
func (f *Factory) ChangeENSManager(caller common.Address, naming NamingService) error {
	target := addressOf(naming)
	return f.configure(caller, target, "ENSManagerChanged", func(cfg *Config, s *Settings) {
		cfg.NamingService = naming
		s.NamingService = target
	})
}

// ChangeGuardianStorage points the factory at store.
func (f *Factory) ChangeGuardianStorage(caller common.Address, store GuardianStore) error {
	target := addressOf(store)
	return f.configure(caller, target, "GuardianStorageChanged", func(cfg *Config, s *Settings) {
		cfg.GuardianStore = store
		s.GuardianStore = target
	})
}

// Owner returns the factory administrator.
func (f *Factory) Owner() (common.Address, error) {
	var owner common.Address
	err := f.ledger.View(func(st *ledger.State) error {
		var err error
		owner, err = access.Owner(st, f.address)
		return err
	})
	return owner, err
}

// ChangeOwner hands the factory over to a new administrator.
func (f *Factory) ChangeOwner(caller, newOwner common.Address) error {
	_, err := f.ledger.Execute(func(st *ledger.State) error {
		if newOwner == (common.Address{}) {
			return reject(ErrNullConfigTarget, "owner")
		}
		if err := f.onlyOwner(st, caller); err != nil {
			return err
		}
		return access.ChangeOwner(st, f.address, caller, newOwner)
	})
	return err
}

// AddManager allows manager to create wallets.
func (f *Factory) AddManager(caller, manager common.Address) error {
	_, err := f.ledger.Execute(func(st *ledger.State) error {
		return f.AddManagerIn(st, caller, manager)
	})
	return err
}

// AddManagerIn is AddManager inside an ongoing operation.
func (f *Factory) AddManagerIn(st *ledger.State, caller, manager common.Address) error {
	if manager == (common.Address{}) {
		return reject(ErrNullConfigTarget, "manager")
	}
	if err := f.onlyOwner(st, caller); err != nil {
		return err
	}
	return access.AddManager(st, f.address, caller, manager)
}

// RevokeManager withdraws the right to create wallets.
func (f *Factory) RevokeManager(caller, manager common.Address) error {
	_, err := f.ledger.Execute(func(st *ledger.State) error {
		if err := f.onlyOwner(st, caller); err != nil {
			return err
		}
		return access.RevokeManager(st, f.address, caller, manager)
	})
	return err
}

// IsManager reports whether addr may create wallets.
func (f *Factory) IsManager(addr common.Address) (bool, error) {
	var ok bool
	err := f.ledger.View(func(st *ledger.State) error {
		var err error
		ok, err = access.IsManager(st, f.address, addr)
		return err
	})
	return ok, err
}
