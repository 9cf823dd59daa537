package chronicle_test

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/huskylabs/chronicle/pkg/chronicle"
)

func keyBytes(k int64, rest int) []byte {
	out := make([]byte, 8+rest)
	binary.BigEndian.PutUint64(out[:8], uint64(k))
	return out
}

func keyComparator(key int64) chronicle.Comparator {
	return func(data []byte) int {
		if len(data) < 8 {
			return -1
		}
		v := int64(binary.BigEndian.Uint64(data[:8]))
		switch {
		case v < key:
			return -1
		case v > key:
			return 1
		default:
			return 0
		}
	}
}

// S6: binary search over a sorted run of keyed records, some keys
// repeated, via Excerpt.FindRange.
func TestExcerpt_FindRange(t *testing.T) {
	store := openTestStore(t)

	a, err := store.CreateAppender()
	if err != nil {
		t.Fatalf("CreateAppender: %v", err)
	}

	keys := []int64{10, 10, 10, 20, 30, 30, 40, 50}
	for _, k := range keys {
		appendRecord(t, a, keyBytes(k, 4))
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Appender.Close: %v", err)
	}

	excerpt, err := store.CreateExcerpt()
	if err != nil {
		t.Fatalf("CreateExcerpt: %v", err)
	}
	defer excerpt.Close()

	lo, hi, found, err := excerpt.FindRange(keyComparator(10))
	if err != nil {
		t.Fatalf("FindRange(10): %v", err)
	}
	if !found {
		t.Fatalf("FindRange(10) found=false, want true")
	}
	if diff := cmp.Diff([2]int64{0, 3}, [2]int64{lo, hi}); diff != "" {
		t.Fatalf("FindRange(10) range mismatch (-want +got):\n%s", diff)
	}

	lo, hi, found, err = excerpt.FindRange(keyComparator(30))
	if err != nil {
		t.Fatalf("FindRange(30): %v", err)
	}
	if !found {
		t.Fatalf("FindRange(30) found=false, want true")
	}
	if diff := cmp.Diff([2]int64{4, 6}, [2]int64{lo, hi}); diff != "" {
		t.Fatalf("FindRange(30) range mismatch (-want +got):\n%s", diff)
	}

	if _, _, found, err := excerpt.FindRange(keyComparator(25)); err != nil {
		t.Fatalf("FindRange(25): %v", err)
	} else if found {
		t.Fatalf("FindRange(25) found=true, want false (no such key)")
	}
}

// FindMatch returns any single matching record.
func TestExcerpt_FindMatch(t *testing.T) {
	store := openTestStore(t)

	a, err := store.CreateAppender()
	if err != nil {
		t.Fatalf("CreateAppender: %v", err)
	}

	keys := []int64{1, 2, 3, 4, 5}
	for _, k := range keys {
		appendRecord(t, a, keyBytes(k, 0))
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Appender.Close: %v", err)
	}

	excerpt, err := store.CreateExcerpt()
	if err != nil {
		t.Fatalf("CreateExcerpt: %v", err)
	}
	defer excerpt.Close()

	seq, found, err := excerpt.FindMatch(keyComparator(4))
	if err != nil {
		t.Fatalf("FindMatch(4): %v", err)
	}
	if !found || seq != 3 {
		t.Fatalf("FindMatch(4) = seq=%d found=%v, want seq=3 found=true", seq, found)
	}

	if _, found, err := excerpt.FindMatch(keyComparator(99)); err != nil {
		t.Fatalf("FindMatch(99): %v", err)
	} else if found {
		t.Fatalf("FindMatch(99) found=true, want false")
	}
}
