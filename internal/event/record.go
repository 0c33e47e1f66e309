package event

import "encoding/json"

// Record is one emitted pool event, ready for serialization. Payload
// holds the kind-specific data encoded as JSON.
type Record struct {
	Pool      string          `json:"pool"`
	Kind      string          `json:"kind"`
	Sequence  uint64          `json:"sequence"`
	Timestamp uint64          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// PoolInfo describes a pool for the metadata store.
type PoolInfo struct {
	Address string `json:"address"`
	AssetA  string `json:"asset_a"`
	AssetB  string `json:"asset_b"`
	SymbolA string `json:"symbol_a"`
	SymbolB string `json:"symbol_b"`
}

// Sink receives emitted events. Implementations must tolerate being
// called from inside a pool operation that still holds the pool lock.
type Sink interface {
	PutEventBatch(events []Record) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) PutEventBatch([]Record) error { return nil }

// MultiSink fans a batch out to several sinks, stopping at the first
// failure.
type MultiSink []Sink

func (m MultiSink) PutEventBatch(events []Record) error {
	for _, sink := range m {
		if err := sink.PutEventBatch(events); err != nil {
			return err
		}
	}
	return nil
}

// Encode builds a Record from a payload struct.
func Encode(pool string, kind string, seq uint64, ts uint64, payload any) (Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{Pool: pool, Kind: kind, Sequence: seq, Timestamp: ts, Payload: raw}, nil
}
