package chronicle_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/huskylabs/chronicle/pkg/chronicle"
)

// S4: a torn write that zeroes a committed slot must be recovered as "that
// slot never happened" rather than surfaced as corruption, and the next
// append must reuse the data offset the zeroed slot had claimed.
func TestStore_RecoversFromZeroedTrailingSlot(t *testing.T) {
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

	records := [][]byte{
		bytesOf(0x01, 10),
		bytesOf(0x02, 10),
		bytesOf(0x03, 10),
	}
	for _, r := range records {
		appendRecord(t, a, r)
	}

	if got, want := store.LastWrittenIndex(), int64(2); got != want {
		t.Fatalf("LastWrittenIndex before corruption = %d, want %d", got, want)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Appender.Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Store.Close: %v", err)
	}

	// Slot 2 lives in index block 0, line 0: base occupies bytes [0,8), and
	// each 4-byte slot follows in order, so slot 2 is at [16,20). Zeroing it
	// simulates a write that started but never completed its release-store.
	zeroSlot(t, base+".index", 16)

	reopened, err := chronicle.Open(base, testConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got, want := reopened.LastWrittenIndex(), int64(1); got != want {
		t.Fatalf("LastWrittenIndex after zeroing slot 2 = %d, want %d", got, want)
	}

	a2, err := reopened.CreateAppender()
	if err != nil {
		t.Fatalf("CreateAppender (reopened): %v", err)
	}
	defer a2.Close()

	replacement := bytesOf(0xFF, 10)
	appendRecord(t, a2, replacement)

	if got, want := reopened.LastWrittenIndex(), int64(2); got != want {
		t.Fatalf("LastWrittenIndex after replacement append = %d, want %d", got, want)
	}

	excerpt, err := reopened.CreateExcerpt()
	if err != nil {
		t.Fatalf("CreateExcerpt: %v", err)
	}
	defer excerpt.Close()

	ok, err := excerpt.Index(2)
	if err != nil {
		t.Fatalf("Index(2): %v", err)
	}
	if !ok || string(excerpt.Bytes()) != string(replacement) {
		t.Fatalf("Index(2) bytes = %x, want %x", excerpt.Bytes(), replacement)
	}

	// Record 1, untouched by the corruption, must still be intact.
	ok, err = excerpt.Index(1)
	if err != nil {
		t.Fatalf("Index(1): %v", err)
	}
	if !ok || string(excerpt.Bytes()) != string(records[1]) {
		t.Fatalf("Index(1) bytes = %x, want %x", excerpt.Bytes(), records[1])
	}
}

// A non-zero line base appearing after a line that was never opened cannot
// arise from normal operation, since a single appender opens lines strictly
// in order; recovery must reject it as corruption instead of guessing.
func TestStore_RecoveryRejectsBaseAfterUnopenedLine(t *testing.T) {
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

	appendRecord(t, a, bytesOf(0x01, 10))

	if err := a.Close(); err != nil {
		t.Fatalf("Appender.Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Store.Close: %v", err)
	}

	// Line 0 (file offset 0) holds the record just appended and is left
	// alone. Line 1 (file offset 64) is never opened by any real write and
	// stays zero. Line 2's base (file offset 128) is fabricated nonzero,
	// which is only reachable if line 1 was skipped -- impossible for a
	// single writer opening lines in order.
	writeFabricatedBase(t, base+".index", 128, 4096)

	if _, err := chronicle.Open(base, testConfig()); !errors.Is(err, chronicle.ErrCorrupt) {
		t.Fatalf("reopen err = %v, want ErrCorrupt", err)
	}
}

func zeroSlot(t *testing.T, path string, offset int64) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("OpenFile %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(make([]byte, 4), offset); err != nil {
		t.Fatalf("WriteAt %s@%d: %v", path, offset, err)
	}
}

func writeFabricatedBase(t *testing.T, path string, offset int64, value int64) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("OpenFile %s: %v", path, err)
	}
	defer f.Close()

	buf := make([]byte, 8)
	binary.NativeEndian.PutUint64(buf, uint64(value))

	if _, err := f.WriteAt(buf, offset); err != nil {
		t.Fatalf("WriteAt %s@%d: %v", path, offset, err)
	}
}
