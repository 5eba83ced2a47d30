package factory

import (
	"errors"
	"strings"

	"github.com/tranvictor/walletfactory/access"
	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/guardians"
	"github.com/tranvictor/walletfactory/ledger"
)

// Kind classifies why the factory rejected an operation.
type Kind int

const (
	KindUnknown Kind = iota
	// InputValidation failures are decided from the request alone.
	InputValidation
	// RegistryState failures depend on collaborator state.
	RegistryState
	// Collision means the target address is already materialized.
	Collision
	// Authorization failures come from calling without the required role.
	Authorization
)

func (k Kind) String() string {
	switch k {
	case InputValidation:
		return "input_validation"
	case RegistryState:
		return "registry_state"
	case Collision:
		return "collision"
	case Authorization:
		return "authorization"
	}
	return "unknown"
}

var (
	ErrEmptyOwner       = errors.New("WF: owner cannot be null")
	ErrNoModules        = errors.New("WF: cannot assign with less than 1 module")
	ErrEmptyLabel       = errors.New("WF: ENS lable must be defined")
	ErrDottedLabel      = errors.New("WF: ENS label must be a single label")
	ErrNullGuardian     = errors.New("WF: guardian cannot be null")
	ErrNullConfigTarget = errors.New("WF: address cannot be null")

	ErrUnapprovedModule          = errors.New("WF: one or more modules are not registered")
	ErrLabelAlreadyOwned         = ens.ErrLabelAlreadyOwned
	ErrGuardianStoreUnconfigured = errors.New("GuardianStorage address not defined")
	ErrFactoryUnauthorised       = errors.New("WF: factory is not authorised by a collaborator")

	ErrAddressAlreadyInUse = errors.New("WF: wallet address already in use")

	ErrNotAdministrator = errors.New("WF: must be owner")
	ErrNotManager       = errors.New("WF: must be manager")
)

type reason struct {
	kind Kind
	code string
}

var reasons = map[error]reason{
	ErrEmptyOwner:                {InputValidation, "EmptyOwner"},
	ErrNoModules:                 {InputValidation, "NoModules"},
	ErrEmptyLabel:                {InputValidation, "EmptyLabel"},
	ErrDottedLabel:               {InputValidation, "DottedLabel"},
	ErrNullGuardian:              {InputValidation, "NullGuardian"},
	ErrNullConfigTarget:          {InputValidation, "NullConfigTarget"},
	ErrUnapprovedModule:          {RegistryState, "UnapprovedModule"},
	ErrLabelAlreadyOwned:         {RegistryState, "LabelAlreadyOwned"},
	ErrGuardianStoreUnconfigured: {RegistryState, "GuardianStoreUnconfigured"},
	ErrFactoryUnauthorised:       {RegistryState, "FactoryUnauthorised"},
	ErrAddressAlreadyInUse:       {Collision, "AddressAlreadyInUse"},
	ErrNotAdministrator:          {Authorization, "NotAdministrator"},
	ErrNotManager:                {Authorization, "NotManager"},
}

// Error is a rejection with its classification. It unwraps to one of the
// Err* sentinels.
type Error struct {
	Kind   Kind
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code is the short reason code of the rejection, e.g. "NoModules".
func (e *Error) Code() string {
	if r, ok := reasons[e.Err]; ok {
		return r.code
	}
	return "Unknown"
}

func reject(sentinel error, detail string) *Error {
	return &Error{Kind: reasons[sentinel].kind, Err: sentinel, Detail: detail}
}

// classify maps collaborator failures the factory reports as its own
// rejections and leaves everything else untouched.
func classify(err error) error {
	var fe *Error
	switch {
	case err == nil || errors.As(err, &fe):
		return err
	case errors.Is(err, ledger.ErrAddressInUse):
		return reject(ErrAddressAlreadyInUse, detailOf(err, ledger.ErrAddressInUse))
	case errors.Is(err, ErrLabelAlreadyOwned):
		return reject(ErrLabelAlreadyOwned, detailOf(err, ErrLabelAlreadyOwned))
	case errors.Is(err, access.ErrNotManager), errors.Is(err, access.ErrNotOwner),
		errors.Is(err, guardians.ErrNotAuthorisedModule):
		// A collaborator refused the factory itself.
		return reject(ErrFactoryUnauthorised, err.Error())
	}
	return err
}

func detailOf(err, sentinel error) string {
	return strings.TrimPrefix(strings.TrimPrefix(err.Error(), sentinel.Error()), ": ")
}

// KindOf returns the kind of a factory rejection, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf returns the reason code of a factory rejection, or "Unknown".
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code()
	}
	return "Unknown"
}
