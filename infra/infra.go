// Package infra deploys the complete wallet infrastructure on a ledger and
// binds to it again after a restart.
package infra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/factory"
	"github.com/tranvictor/walletfactory/guardians"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/modules"
	"github.com/tranvictor/walletfactory/wallet"
)

var (
	ErrNotInitialised     = errors.New("infra: ledger holds no wallet infrastructure")
	ErrAlreadyInitialised = errors.New("infra: ledger already holds wallet infrastructure")
)

var systemKey = ledger.StorageKey(common.Address{}, []byte("infra/system"))

type Config struct {
	// RootName is the domain wallet labels are registered under.
	RootName string
	// WithoutGuardianStorage deploys the factory with no guardian store.
	WithoutGuardianStorage bool
}

type record struct {
	Admin       common.Address
	Template    common.Address
	ENSRegistry common.Address
	Factory     common.Address
}

// System is the set of deployed contracts.
type System struct {
	Admin       common.Address
	Ledger      *ledger.Ledger
	Template    *wallet.Template
	Modules     *modules.Registry
	ENSRegistry *ens.Registry
	Resolver    *ens.Resolver
	Naming      *ens.Manager
	Guardians   *guardians.Storage
	Factory     *factory.Factory
}

// rootLabels splits root into labels ordered from the top level down.
func rootLabels(root string) ([]string, error) {
	root = ens.Normalize(root)
	if root == "" {
		return nil, fmt.Errorf("infra: root name cannot be empty")
	}
	labels := strings.Split(root, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	for _, lb := range labels {
		if lb == "" {
			return nil, fmt.Errorf("infra: invalid root name %q", root)
		}
	}
	return labels, nil
}

// Deploy deploys every contract with admin as owner, claims the root domain
// for the naming service and makes the factory a manager of it.
func Deploy(l *ledger.Ledger, admin common.Address, cfg Config, opts ...factory.Option) (*System, error) {
	if cfg.RootName == "" {
		cfg.RootName = ens.DefaultRootName
	}
	labels, err := rootLabels(cfg.RootName)
	if err != nil {
		return nil, err
	}
	sys := &System{Admin: admin, Ledger: l}
	var (
		factoryAddr common.Address
		factoryCfg  factory.Config
	)
	_, err = l.Execute(func(st *ledger.State) error {
		if found, err := st.Has(systemKey); err != nil || found {
			if err == nil {
				err = ErrAlreadyInitialised
			}
			return err
		}
		var err error
		if sys.Template, err = wallet.DeployTemplate(st, admin); err != nil {
			return err
		}
		if sys.Modules, err = modules.Deploy(st, admin); err != nil {
			return err
		}
		if sys.ENSRegistry, err = ens.DeployRegistry(st, admin); err != nil {
			return err
		}
		if sys.Resolver, err = ens.DeployResolver(st, admin); err != nil {
			return err
		}
		if sys.Naming, err = ens.DeployManager(st, admin, cfg.RootName, sys.ENSRegistry, sys.Resolver); err != nil {
			return err
		}
		node := common.Hash{}
		for i, lb := range labels {
			owner := admin
			if i == len(labels)-1 {
				owner = sys.Naming.Address()
			}
			if node, err = sys.ENSRegistry.SetSubnodeOwner(st, admin, node, ens.LabelHash(lb), owner); err != nil {
				return err
			}
		}
		if err := sys.Resolver.AddManager(st, admin, sys.Naming.Address()); err != nil {
			return err
		}

		factoryCfg = factory.Config{ModuleRegistry: sys.Modules, NamingService: sys.Naming}
		if !cfg.WithoutGuardianStorage {
			if sys.Guardians, err = guardians.Deploy(st, admin, sys.Template); err != nil {
				return err
			}
			factoryCfg.GuardianStore = sys.Guardians
		}
		if factoryAddr, err = factory.Install(st, admin, sys.Template, factoryCfg); err != nil {
			return err
		}
		if err := sys.Naming.AddManager(st, admin, factoryAddr); err != nil {
			return err
		}
		return st.PutRLP(systemKey, &record{
			Admin:       admin,
			Template:    sys.Template.Implementation(),
			ENSRegistry: sys.ENSRegistry.Address(),
			Factory:     factoryAddr,
		})
	})
	if err != nil {
		return nil, err
	}
	sys.Template.Install(l)
	sys.Factory = factory.At(l, factoryAddr, sys.Template, factoryCfg, opts...)
	return sys, nil
}

// Load binds the infrastructure previously deployed on l. The factory is
// bound to the collaborators it currently has configured.
func Load(l *ledger.Ledger, opts ...factory.Option) (*System, error) {
	sys := &System{Ledger: l}
	var (
		rec        record
		settings   factory.Settings
		factoryCfg factory.Config
	)
	err := l.View(func(st *ledger.State) error {
		found, err := st.GetRLP(systemKey, &rec)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotInitialised
		}
		if settings, err = factory.LoadSettings(st, rec.Factory); err != nil {
			return err
		}
		sys.Admin = rec.Admin
		sys.Template = wallet.TemplateAt(rec.Template)
		sys.ENSRegistry = ens.RegistryAt(rec.ENSRegistry)
		sys.Modules = modules.At(settings.ModuleRegistry)
		if sys.Naming, err = ens.LoadManager(st, settings.NamingService); err != nil {
			return err
		}
		sys.Resolver = sys.Naming.Resolver()
		factoryCfg = factory.Config{ModuleRegistry: sys.Modules, NamingService: sys.Naming}
		if settings.GuardianStore != (common.Address{}) {
			sys.Guardians = guardians.At(settings.GuardianStore, sys.Template)
			factoryCfg.GuardianStore = sys.Guardians
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sys.Template.Install(l)
	sys.Factory = factory.At(l, rec.Factory, sys.Template, factoryCfg, opts...)
	return sys, nil
}
