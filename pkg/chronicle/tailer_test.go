package chronicle_test

import "testing"

// sequential_equivalence: a Tailer draining a store with an interleaved
// mix of ordinary and padding-inducing writes must surface exactly the
// non-padding records, in order, with the padding entries skipped
// transparently and never surfaced as a distinct NextIndex result.
func TestTailer_SequentialEquivalence(t *testing.T) {
	store := openTestStore(t)

	a, err := store.CreateAppender()
	if err != nil {
		t.Fatalf("CreateAppender: %v", err)
	}

	var want [][]byte
	for i := 0; i < 5; i++ {
		p := bytesOf(byte(i+1), 20)
		want = append(want, p)
		appendRecord(t, a, p)
	}

	// Force a block rollover (padding) partway through: DataBlockSize is
	// 4096 and only 100 bytes are used so far, so a record sized to leave
	// a small remainder forces a padding entry.
	big := bytesOf(0xF0, 4000)
	want = append(want, big)
	appendRecord(t, a, big)

	tail := bytesOf(0xF1, 16)
	want = append(want, tail)
	appendRecord(t, a, tail)

	tailer, err := store.CreateTailer()
	if err != nil {
		t.Fatalf("CreateTailer: %v", err)
	}
	defer tailer.Close()

	for i, p := range want {
		rec, ok, err := tailer.NextIndex()
		if err != nil {
			t.Fatalf("NextIndex #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("NextIndex #%d: ok=false, want a record", i)
		}
		if string(rec.Bytes) != string(p) {
			t.Fatalf("NextIndex #%d bytes = %x, want %x", i, rec.Bytes, p)
		}
	}

	if _, ok, err := tailer.NextIndex(); err != nil || ok {
		t.Fatalf("NextIndex (end) ok=%v err=%v, want ok=false", ok, err)
	}
}

// A Tailer polling ahead of the appender sees "not ready" rather than an
// error, and retries the same slot on the next call.
func TestTailer_NotReadyDoesNotAdvance(t *testing.T) {
	store := openTestStore(t)

	tailer, err := store.CreateTailer()
	if err != nil {
		t.Fatalf("CreateTailer: %v", err)
	}
	defer tailer.Close()

	if _, ok, err := tailer.NextIndex(); err != nil || ok {
		t.Fatalf("NextIndex (empty store) ok=%v err=%v, want ok=false", ok, err)
	}

	if got, want := tailer.Seq(), int64(0); got != want {
		t.Fatalf("Seq = %d, want %d", got, want)
	}

	a, err := store.CreateAppender()
	if err != nil {
		t.Fatalf("CreateAppender: %v", err)
	}
	defer a.Close()

	payload := bytesOf(0x42, 8)
	appendRecord(t, a, payload)

	rec, ok, err := tailer.NextIndex()
	if err != nil {
		t.Fatalf("NextIndex (after append): %v", err)
	}
	if !ok || string(rec.Bytes) != string(payload) {
		t.Fatalf("NextIndex (after append) = %+v ok=%v, want %x", rec, ok, payload)
	}
}
