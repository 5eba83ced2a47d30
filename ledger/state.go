package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrReadOnly            = errors.New("ledger: state is read-only")
	ErrAddressInUse        = errors.New("ledger: address already in use")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrNegativeAmount      = errors.New("ledger: negative amount")
)

var (
	accountPrefix = []byte("a")
	codePrefix    = []byte("c")
	storagePrefix = []byte("s")
)

// Account is the per-address record kept by the ledger. An address with a
// balance but no code and a zero nonce is still free for deployment, which
// is what lets value be sent to a wallet before it exists.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	CodeHash common.Hash
}

// HasCode reports whether code has been deployed at the account.
func (a *Account) HasCode() bool {
	return a.CodeHash != (common.Hash{}) && a.CodeHash != types.EmptyCodeHash
}

// StorageKey builds the key of a storage slot owned by contract. Parts are
// concatenated as-is so callers should use fixed width parts (addresses,
// hashes) after any variable width tag.
func StorageKey(contract common.Address, parts ...[]byte) []byte {
	key := make([]byte, 0, len(storagePrefix)+common.AddressLength+32*len(parts))
	key = append(key, storagePrefix...)
	key = append(key, contract.Bytes()...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func accountKey(addr common.Address) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}

func codeKey(hash common.Hash) []byte {
	return append(append([]byte{}, codePrefix...), hash.Bytes()...)
}

// State is the view one operation has of the ledger. Writes are buffered in
// an overlay and only reach the database when the operation that owns the
// State returns without error.
type State struct {
	db       ethdb.KeyValueReader
	dirty    map[string][]byte
	logs     []*types.Log
	onCommit []func()
	hooks    map[common.Hash]ReceiveHook
	number   uint64
	readOnly bool
}

func newState(db ethdb.KeyValueReader, hooks map[common.Hash]ReceiveHook, number uint64, readOnly bool) *State {
	return &State{
		db:       db,
		dirty:    map[string][]byte{},
		hooks:    hooks,
		number:   number,
		readOnly: readOnly,
	}
}

// BlockNumber is the number of the block this state is building, or the
// last committed block for read-only states.
func (s *State) BlockNumber() uint64 {
	return s.number
}

// ReadOnly reports whether writes are rejected.
func (s *State) ReadOnly() bool {
	return s.readOnly
}

// Get returns the value at key. Missing keys return (nil, false, nil).
func (s *State) Get(key []byte) ([]byte, bool, error) {
	if v, ok := s.dirty[string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return common.CopyBytes(v), true, nil
	}
	has, err := s.db.Has(key)
	if err != nil {
		return nil, false, err
	}
	if !has {
		return nil, false, nil
	}
	v, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Has reports whether key holds a value.
func (s *State) Has(key []byte) (bool, error) {
	_, found, err := s.Get(key)
	return found, err
}

// Put stores value at key.
func (s *State) Put(key, value []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	s.dirty[string(key)] = common.CopyBytes(value)
	return nil
}

// Delete removes key.
func (s *State) Delete(key []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.dirty[string(key)] = nil
	return nil
}

// GetRLP decodes the value at key into out. It returns false when the key
// is missing, leaving out untouched.
func (s *State) GetRLP(key []byte, out any) (bool, error) {
	v, found, err := s.Get(key)
	if err != nil || !found {
		return false, err
	}
	if err := rlp.DecodeBytes(v, out); err != nil {
		return false, fmt.Errorf("decode %x: %w", key, err)
	}
	return true, nil
}

// PutRLP stores the RLP encoding of v at key.
func (s *State) PutRLP(key []byte, v any) error {
	enc, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	return s.Put(key, enc)
}

// Account returns the account at addr. Unknown addresses yield an empty
// account with a zero balance.
func (s *State) Account(addr common.Address) (*Account, error) {
	acc := &Account{Balance: new(big.Int)}
	if _, err := s.GetRLP(accountKey(addr), acc); err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = new(big.Int)
	}
	return acc, nil
}

func (s *State) setAccount(addr common.Address, acc *Account) error {
	return s.PutRLP(accountKey(addr), acc)
}

// Balance returns the balance held at addr.
func (s *State) Balance(addr common.Address) (*big.Int, error) {
	acc, err := s.Account(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance, nil
}

// Nonce returns the nonce of addr.
func (s *State) Nonce(addr common.Address) (uint64, error) {
	acc, err := s.Account(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// CodeHash returns the hash of the code deployed at addr, or the zero hash.
func (s *State) CodeHash(addr common.Address) (common.Hash, error) {
	acc, err := s.Account(addr)
	if err != nil {
		return common.Hash{}, err
	}
	if !acc.HasCode() {
		return common.Hash{}, nil
	}
	return acc.CodeHash, nil
}

// Code returns the code deployed at addr.
func (s *State) Code(addr common.Address) ([]byte, error) {
	hash, err := s.CodeHash(addr)
	if err != nil || hash == (common.Hash{}) {
		return nil, err
	}
	code, _, err := s.Get(codeKey(hash))
	return code, err
}

// Occupied reports whether a deployment at addr would collide with an
// existing account. Only code or a used nonce occupy an address.
func (s *State) Occupied(addr common.Address) (bool, error) {
	acc, err := s.Account(addr)
	if err != nil {
		return false, err
	}
	return acc.Nonce != 0 || acc.HasCode(), nil
}

// IncrementNonce bumps the nonce of addr and returns the previous value.
func (s *State) IncrementNonce(addr common.Address) (uint64, error) {
	acc, err := s.Account(addr)
	if err != nil {
		return 0, err
	}
	nonce := acc.Nonce
	acc.Nonce++
	return nonce, s.setAccount(addr, acc)
}

// Credit mints amount into to. It is how value enters the ledger.
func (s *State) Credit(to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	acc, err := s.Account(to)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	if err := s.setAccount(to, acc); err != nil {
		return err
	}
	return s.notifyReceive(to, common.Address{}, amount)
}

// Transfer moves amount from one address to another.
func (s *State) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	src, err := s.Account(from)
	if err != nil {
		return err
	}
	if src.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), src.Balance, amount)
	}
	src.Balance = new(big.Int).Sub(src.Balance, amount)
	if err := s.setAccount(from, src); err != nil {
		return err
	}
	dst, err := s.Account(to)
	if err != nil {
		return err
	}
	dst.Balance = new(big.Int).Add(dst.Balance, amount)
	if err := s.setAccount(to, dst); err != nil {
		return err
	}
	return s.notifyReceive(to, from, amount)
}

func (s *State) notifyReceive(to, from common.Address, amount *big.Int) error {
	hash, err := s.CodeHash(to)
	if err != nil || hash == (common.Hash{}) {
		return err
	}
	hook, ok := s.hooks[hash]
	if !ok {
		return nil
	}
	return hook(s, to, from, amount)
}

// AddLog appends a log emitted by contract.
func (s *State) AddLog(contract common.Address, topics []common.Hash, data []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.logs = append(s.logs, &types.Log{
		Address:     contract,
		Topics:      topics,
		Data:        data,
		BlockNumber: s.number,
		Index:       uint(len(s.logs)),
	})
	return nil
}

// Logs returns the logs emitted so far by the operation.
func (s *State) Logs() []*types.Log {
	return s.logs
}

// OnCommit registers fn to run after the operation's writes reach the
// database, while the ledger is still locked.
func (s *State) OnCommit(fn func()) {
	s.onCommit = append(s.onCommit, fn)
}

func (s *State) deploy(addr common.Address, art Artifact) error {
	acc, err := s.Account(addr)
	if err != nil {
		return err
	}
	if acc.Nonce != 0 || acc.HasCode() {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr.Hex())
	}
	code := art.Code
	if len(code) == 0 {
		code = crypto.Keccak256([]byte(art.Name))
	}
	hash := crypto.Keccak256Hash(code)
	if err := s.Put(codeKey(hash), code); err != nil {
		return err
	}
	acc.Nonce = 1
	acc.CodeHash = hash
	return s.setAccount(addr, acc)
}

// Create deploys art at the address derived from deployer's nonce.
func (s *State) Create(deployer common.Address, art Artifact) (common.Address, error) {
	nonce, err := s.IncrementNonce(deployer)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.CreateAddress(deployer, nonce)
	return addr, s.deploy(addr, art)
}

// Create2 deploys art at the address derived from deployer, salt and the
// artifact's init code. It fails with ErrAddressInUse when the address is
// occupied.
func (s *State) Create2(deployer common.Address, salt common.Hash, art Artifact) (common.Address, error) {
	addr := DeriveCreate2Address(deployer, salt, art.InitCode)
	return addr, s.deploy(addr, art)
}

// HasCodeOf reports whether the code at addr is exactly code.
func (s *State) HasCodeOf(addr common.Address, code []byte) (bool, error) {
	actual, err := s.Code(addr)
	if err != nil {
		return false, err
	}
	return len(actual) > 0 && bytes.Equal(actual, code), nil
}
