package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MustParseABI parses a JSON ABI definition that is known at compile time.
func MustParseABI(def string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("ledger: invalid abi: %s", err))
	}
	return &parsed
}

// Emit encodes event name of contractABI with args (in declaration order)
// and appends it to the operation's logs.
func (s *State) Emit(contract common.Address, contractABI *abi.ABI, name string, args ...any) error {
	event, ok := contractABI.Events[name]
	if !ok {
		return fmt.Errorf("ledger: unknown event %s", name)
	}
	if len(args) != len(event.Inputs) {
		return fmt.Errorf("ledger: event %s takes %d arguments, got %d", name, len(event.Inputs), len(args))
	}
	var (
		indexed    [][]any
		nonIndexed []any
	)
	for i, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, []any{args[i]})
		} else {
			nonIndexed = append(nonIndexed, args[i])
		}
	}
	topics := []common.Hash{event.ID}
	if len(indexed) > 0 {
		rules, err := abi.MakeTopics(indexed...)
		if err != nil {
			return fmt.Errorf("ledger: event %s topics: %w", name, err)
		}
		for _, rule := range rules {
			topics = append(topics, rule[0])
		}
	}
	data, err := event.Inputs.NonIndexed().Pack(nonIndexed...)
	if err != nil {
		return fmt.Errorf("ledger: event %s data: %w", name, err)
	}
	return s.AddLog(contract, topics, data)
}

// UnpackLog decodes lg as event name of contractABI into out, filling both
// indexed and non-indexed fields.
func UnpackLog(contractABI *abi.ABI, out any, name string, lg *types.Log) error {
	event, ok := contractABI.Events[name]
	if !ok {
		return fmt.Errorf("ledger: unknown event %s", name)
	}
	if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
		return fmt.Errorf("ledger: log is not a %s event", name)
	}
	if len(lg.Data) > 0 {
		if err := contractABI.UnpackIntoInterface(out, name, lg.Data); err != nil {
			return err
		}
	}
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	return abi.ParseTopics(out, indexed, lg.Topics[1:])
}

// FilterLogs returns the logs of event name emitted by contract.
func FilterLogs(logs []*types.Log, contract common.Address, contractABI *abi.ABI, name string) []*types.Log {
	event, ok := contractABI.Events[name]
	if !ok {
		return nil
	}
	var out []*types.Log
	for _, lg := range logs {
		if lg.Address == contract && len(lg.Topics) > 0 && lg.Topics[0] == event.ID {
			out = append(out, lg)
		}
	}
	return out
}
