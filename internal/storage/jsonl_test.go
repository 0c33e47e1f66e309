package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"pairpool/internal/event"
)

func TestJsonlSinkAppendsAcrossBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	sink := NewJsonlSink(path)

	batch1 := []event.Record{
		{Pool: "0x01", Kind: event.KindMint, Sequence: 1, Timestamp: 1_700_000_000},
		{Pool: "0x01", Kind: event.KindSync, Sequence: 2, Timestamp: 1_700_000_000},
	}
	batch2 := []event.Record{
		{Pool: "0x01", Kind: event.KindSwap, Sequence: 3, Timestamp: 1_700_000_010},
	}

	if err := sink.PutEventBatch(batch1); err != nil {
		t.Fatalf("put batch 1: %v", err)
	}
	if err := sink.PutEventBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := sink.PutEventBatch(batch2); err != nil {
		t.Fatalf("put batch 2: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()

	var got []event.Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r event.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, r)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("lines = %d, want 3", len(got))
	}
	for i, want := range []uint64{1, 2, 3} {
		if got[i].Sequence != want {
			t.Fatalf("line %d sequence = %d, want %d", i, got[i].Sequence, want)
		}
	}
	if got[2].Kind != event.KindSwap {
		t.Fatalf("last kind = %s, want %s", got[2].Kind, event.KindSwap)
	}
}
