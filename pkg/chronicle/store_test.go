package chronicle_test

import (
	"path/filepath"
	"testing"

	"github.com/huskylabs/chronicle/pkg/chronicle"
)

func testConfig() chronicle.Config {
	return chronicle.Config{
		DataBlockSize:  4096,
		IndexBlockSize: 4096,
		CacheLineSize:  64,
	}
}

func openTestStore(t *testing.T) *chronicle.ChronicleStore {
	t.Helper()

	dir := t.TempDir()
	store, err := chronicle.Open(filepath.Join(dir, "log"), testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func appendRecord(t *testing.T, a *chronicle.Appender, payload []byte) {
	t.Helper()

	buf, err := a.StartExcerpt(len(payload))
	if err != nil {
		t.Fatalf("StartExcerpt: %v", err)
	}

	copy(buf, payload)

	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

// S1: append 3 small records, check lastWrittenIndex and random read.
func TestStore_SmallWrites(t *testing.T) {
	store := openTestStore(t)

	a, err := store.CreateAppender()
	if err != nil {
		t.Fatalf("CreateAppender: %v", err)
	}

	payloads := [][]byte{
		bytesOf(0x01, 10),
		bytesOf(0x02, 10),
		bytesOf(0x03, 10),
	}

	for _, p := range payloads {
		appendRecord(t, a, p)
	}

	if got, want := store.LastWrittenIndex(), int64(2); got != want {
		t.Fatalf("LastWrittenIndex = %d, want %d", got, want)
	}

	excerpt, err := store.CreateExcerpt()
	if err != nil {
		t.Fatalf("CreateExcerpt: %v", err)
	}
	defer excerpt.Close()

	ok, err := excerpt.Index(1)
	if err != nil {
		t.Fatalf("Index(1): %v", err)
	}

	if !ok {
		t.Fatalf("Index(1) = false, want true")
	}

	if got, want := excerpt.Bytes(), payloads[1]; string(got) != string(want) {
		t.Fatalf("Bytes = %x, want %x", got, want)
	}
}

// recovery_idempotence (invariant 4): close and reopen yields the same
// lastWrittenIndex after a normal shutdown.
func TestStore_RecoveryIdempotence(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "log")

	store, err := chronicle.Open(base, testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a, err := store.CreateAppender()
	if err != nil {
		t.Fatalf("CreateAppender: %v", err)
	}

	for i := 0; i < 5; i++ {
		appendRecord(t, a, bytesOf(byte(i), 10))
	}

	want := store.LastWrittenIndex()

	if err := a.Close(); err != nil {
		t.Fatalf("Appender.Close: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Store.Close: %v", err)
	}

	reopened, err := chronicle.Open(base, testConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.LastWrittenIndex(); got != want {
		t.Fatalf("LastWrittenIndex after reopen = %d, want %d", got, want)
	}
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}

	return out
}
