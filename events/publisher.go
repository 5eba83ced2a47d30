// Package events forwards the events of committed ledger operations to an
// MQTT broker, one JSON message per log, on <prefix>/<EventName>.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/factory"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/modules"
	"github.com/tranvictor/walletfactory/wallet"
)

const (
	DefaultPrefix = "walletfactory"
	publishWait   = 5 * time.Second
	queueSize     = 64
)

// Client is the part of a paho client the publisher needs.
type Client interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the payload published for one log.
type Message struct {
	Event    string            `json:"event"`
	Contract string            `json:"contract"`
	Block    uint64            `json:"block"`
	Index    uint              `json:"index"`
	Receipt  string            `json:"receipt"`
	Fields   map[string]string `json:"fields"`
}

// KnownABIs are the contracts whose events are decoded.
func KnownABIs() []*abi.ABI {
	return []*abi.ABI{factory.ABI, wallet.ABI, modules.ABI, ens.ManagerABI}
}

type Publisher struct {
	client Client
	prefix string
	qos    byte
	abis   []*abi.ABI
	log    zerolog.Logger

	queue   chan *ledger.Receipt
	done    chan struct{}
	cancel  func()
	once    sync.Once
	dropped atomic.Uint64
}

// Dial connects to broker, e.g. tcp://localhost:1883.
func Dial(broker, clientID, prefix string, log zerolog.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, token.Error())
	}
	return NewPublisher(client, prefix, log), nil
}

func NewPublisher(client Client, prefix string, log zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    1,
		abis:   KnownABIs(),
		log:    log.With().Str("component", "events").Logger(),
	}
}

// Attach publishes every receipt l commits from now on until Close.
// Receipts are queued so the ledger never waits on the broker; when the
// queue is full the receipt is dropped and counted.
func (p *Publisher) Attach(l *ledger.Ledger) {
	p.queue = make(chan *ledger.Receipt, queueSize)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		for r := range p.queue {
			if err := p.Publish(r); err != nil {
				p.log.Warn().Err(err).Uint64("block", r.Number).Msg("publishing events failed")
			}
		}
	}()
	p.cancel = l.Subscribe(func(r *ledger.Receipt) {
		select {
		case p.queue <- r:
		default:
			p.dropped.Add(1)
			p.log.Warn().Uint64("block", r.Number).Msg("event queue full, receipt dropped")
		}
	})
}

// Dropped is the number of receipts that found the queue full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Publish sends one message per decodable log of r.
func (p *Publisher) Publish(r *ledger.Receipt) error {
	var errs []error
	for _, lg := range r.Logs {
		msg, ok := p.decode(lg)
		if !ok {
			continue
		}
		msg.Receipt = r.ID.String()
		payload, err := json.Marshal(msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		topic := p.prefix + "/" + msg.Event
		token := p.client.Publish(topic, p.qos, false, payload)
		if !token.WaitTimeout(publishWait) {
			errs = append(errs, fmt.Errorf("publish %s: timed out", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
			continue
		}
		p.log.Debug().Str("topic", topic).Uint64("block", msg.Block).Msg("event published")
	}
	return errors.Join(errs...)
}

func (p *Publisher) decode(lg *types.Log) (*Message, bool) {
	if len(lg.Topics) == 0 {
		return nil, false
	}
	for _, a := range p.abis {
		ev, err := a.EventByID(lg.Topics[0])
		if err != nil {
			continue
		}
		values := map[string]interface{}{}
		var indexed abi.Arguments
		for _, arg := range ev.Inputs {
			if arg.Indexed {
				indexed = append(indexed, arg)
			}
		}
		if err := abi.ParseTopicsIntoMap(values, indexed, lg.Topics[1:]); err != nil {
			p.log.Warn().Err(err).Str("event", ev.Name).Msg("undecodable topics")
			return nil, false
		}
		if err := a.UnpackIntoMap(values, ev.Name, lg.Data); err != nil {
			p.log.Warn().Err(err).Str("event", ev.Name).Msg("undecodable data")
			return nil, false
		}
		fields := make(map[string]string, len(values))
		for k, v := range values {
			fields[k] = format(v)
		}
		return &Message{
			Event:    ev.Name,
			Contract: lg.Address.Hex(),
			Block:    lg.BlockNumber,
			Index:    lg.Index,
			Fields:   fields,
		}, true
	}
	return nil, false
}

func format(v interface{}) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case [32]byte:
		return common.Hash(x).Hex()
	case *big.Int:
		return x.String()
	case []byte:
		return hexutil.Encode(x)
	default:
		return fmt.Sprint(x)
	}
}

// Close stops following the ledger, flushes queued receipts and disconnects.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
			close(p.queue)
			<-p.done
		}
		if p.client.IsConnected() {
			p.client.Disconnect(250)
		}
	})
}
