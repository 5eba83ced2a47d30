package metrics

import "errors"

var errInfluxUnhealthy = errors.New("influx: server is not healthy")

// Recorder is the set of factory outcomes the recorders here observe.
type Recorder interface {
	WalletCreated(variant string)
	CreationRejected(variant, code string)
}

// MultiRecorder fans every observation out to all Recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) WalletCreated(variant string) {
	for _, r := range m {
		r.WalletCreated(variant)
	}
}

func (m MultiRecorder) CreationRejected(variant, code string) {
	for _, r := range m {
		r.CreationRejected(variant, code)
	}
}
