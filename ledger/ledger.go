// Package ledger is a small sequential state machine modelled on an
// Ethereum chain: accounts, code, CREATE/CREATE2 deployments and event logs
// over a go-ethereum key-value store.
//
// Every mutating operation runs through Ledger.Execute, which serializes
// operations and commits each one atomically: either all of its writes and
// logs become visible or none do.
package ledger

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var headKey = []byte("LastBlock")

// Artifact describes deployable code. InitCode feeds CREATE2 address
// derivation and Code is what ends up stored at the address.
type Artifact struct {
	Name     string
	InitCode []byte
	Code     []byte
}

// NewArtifact returns an artifact for a system contract that is identified
// by name only.
func NewArtifact(name string) Artifact {
	return Artifact{
		Name:     name,
		InitCode: []byte(name),
		Code:     crypto.Keccak256([]byte("runtime:" + name)),
	}
}

// DeriveCreate2Address computes the CREATE2 address of initCode deployed by
// deployer with salt. It is pure and needs no ledger access.
func DeriveCreate2Address(deployer common.Address, salt common.Hash, initCode []byte) common.Address {
	return crypto.CreateAddress2(deployer, salt, crypto.Keccak256(initCode))
}

// ReceiveHook is invoked when value lands on an address whose code hash it
// was registered for.
type ReceiveHook func(st *State, to, from common.Address, amount *big.Int) error

// Receipt summarizes a committed operation.
type Receipt struct {
	ID     uuid.UUID
	Number uint64
	Logs   []*types.Log
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for commit tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(lg *Ledger) {
		lg.log = l
	}
}

type Ledger struct {
	mu      sync.RWMutex
	db      ethdb.KeyValueStore
	hooks   map[common.Hash]ReceiveHook
	subs    map[uint64]func(*Receipt)
	nextSub uint64
	number  uint64
	log     zerolog.Logger
}

// New opens a ledger on db, resuming from the last committed block.
func New(db ethdb.KeyValueStore, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		db:    db,
		hooks: map[common.Hash]ReceiveHook{},
		subs:  map[uint64]func(*Receipt){},
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	has, err := db.Has(headKey)
	if err != nil {
		return nil, err
	}
	if has {
		enc, err := db.Get(headKey)
		if err != nil {
			return nil, err
		}
		if len(enc) != 8 {
			return nil, fmt.Errorf("ledger: corrupted head marker (%d bytes)", len(enc))
		}
		l.number = binary.BigEndian.Uint64(enc)
	}
	return l, nil
}

// NewMemory returns a ledger backed by an in-memory database.
func NewMemory(opts ...Option) *Ledger {
	l, err := New(memorydb.New(), opts...)
	if err != nil {
		// an empty memory database cannot fail to read its head
		panic(err)
	}
	return l
}

// OpenLevelDB opens (or creates) a persistent ledger in dir.
func OpenLevelDB(dir string, opts ...Option) (*Ledger, error) {
	db, err := leveldb.New(dir, 16, 16, "walletfactory/ledger/", false)
	if err != nil {
		return nil, fmt.Errorf("open ledger at %s: %w", dir, err)
	}
	l, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

// BlockNumber returns the number of the last committed operation.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.number
}

// RegisterReceiveHook calls hook whenever value is sent to an address
// holding code.
func (l *Ledger) RegisterReceiveHook(code []byte, hook ReceiveHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks[crypto.Keccak256Hash(code)] = hook
}

// Subscribe delivers the receipt of every operation committed from now on
// to fn, in commit order. fn runs while the ledger is locked and must not
// call back into it. The returned func cancels the subscription.
func (l *Ledger) Subscribe(fn func(*Receipt)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// Execute runs fn as one indivisible operation. Operations never interleave.
// If fn fails nothing it wrote is kept and no receipt is produced.
func (l *Ledger) Execute(fn func(st *State) error) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := newState(l.db, l.hooks, l.number+1, false)
	if err := fn(st); err != nil {
		l.log.Debug().Uint64("block", st.number).Err(err).Msg("operation discarded")
		return nil, err
	}

	keys := make([]string, 0, len(st.dirty))
	for k := range st.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := l.db.NewBatch()
	for _, k := range keys {
		v := st.dirty[k]
		var err error
		if v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), v)
		}
		if err != nil {
			return nil, err
		}
	}
	head := make([]byte, 8)
	binary.BigEndian.PutUint64(head, st.number)
	if err := batch.Put(headKey, head); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, fmt.Errorf("ledger: commit block %d: %w", st.number, err)
	}
	l.number = st.number

	receipt := &Receipt{
		ID:     uuid.New(),
		Number: st.number,
		Logs:   st.logs,
	}
	txHash := crypto.Keccak256Hash(receipt.ID[:])
	for _, lg := range receipt.Logs {
		lg.TxHash = txHash
	}
	for _, fn := range st.onCommit {
		fn()
	}
	for _, sub := range l.subs {
		sub(receipt)
	}
	l.log.Debug().
		Uint64("block", receipt.Number).
		Str("id", receipt.ID.String()).
		Int("writes", len(keys)).
		Int("logs", len(receipt.Logs)).
		Msg("operation committed")
	return receipt, nil
}

// View runs fn against a read-only snapshot of the committed state. Views
// may run concurrently with each other.
func (l *Ledger) View(fn func(st *State) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(newState(l.db, l.hooks, l.number, true))
}

// Iterate walks committed storage of contract under tag in key order.
func (l *Ledger) Iterate(contract common.Address, tag []byte, fn func(key, value []byte) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prefix := StorageKey(contract, tag)
	it := l.db.NewIterator(prefix, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key()[len(prefix):], it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}
