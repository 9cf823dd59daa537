package chronicle

// Excerpt is a random-access reader over a ChronicleStore. It resolves
// seq -> (data address, length) directly from the index, without scanning,
// and additionally supports binary search over sorted records via a
// user-supplied [Comparator].
type Excerpt struct {
	store *ChronicleStore
	cfg   Config
	lay   layout

	curIndexBlockIdx int64
	curIndexBlock    *Block

	curDataBlockIdx int64
	curDataBlock    *Block

	seq     int64
	bytes   []byte
	padding bool
	closed  bool

	cmpFn Comparator // valid only during FindMatch/FindRange
}

func newExcerpt(store *ChronicleStore) *Excerpt {
	return &Excerpt{store: store, cfg: store.cfg, lay: store.lay, seq: -1}
}

// Seq returns the sequence number of the record currently positioned on,
// or -1 if Index has not yet succeeded.
func (e *Excerpt) Seq() int64 {
	return e.seq
}

// Bytes returns the currently positioned record's bytes, or nil.
func (e *Excerpt) Bytes() []byte {
	return e.bytes
}

// Padding reports whether the most recent Index call landed on a padding
// entry.
func (e *Excerpt) Padding() bool {
	return e.padding
}

// Index positions the excerpt at seq, returning true if seq names a
// committed, non-padding record. A negative seq resets the excerpt to
// "before start" and always returns false.
//
// A record whose preceding slot in the same index line is a padding entry
// (the first record of a data block after a rollover, unless it opens a
// new line) is not resolved: Index returns ErrCorrupt for it, although the
// files themselves are intact. A [Tailer] reads such records normally.
func (e *Excerpt) Index(seq int64) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}

	if seq < 0 {
		e.seq = -1
		e.bytes = nil
		e.padding = false

		return false, nil
	}

	addr := e.lay.resolve(seq)

	if err := e.ensureIndexBlock(addr.block); err != nil {
		return false, err
	}

	lineOff := addr.line * e.cfg.CacheLineSize
	base := atomicLoadInt64(e.curIndexBlock.Bytes[lineOff : lineOff+8])

	slotOff := lineOff + 8 + addr.slot*4
	val := atomicLoadInt32(e.curIndexBlock.Bytes[slotOff : slotOff+4])

	if val == 0 {
		e.seq = seq
		e.bytes = nil
		e.padding = false

		return false, nil
	}

	if val < 0 {
		e.seq = seq
		e.bytes = nil
		e.padding = true

		return false, nil
	}

	var start int64

	if addr.slot == 0 {
		start = base
	} else {
		prevSlotOff := lineOff + 8 + (addr.slot-1)*4
		prevVal := atomicLoadInt32(e.curIndexBlock.Bytes[prevSlotOff : prevSlotOff+4])

		if prevVal < 0 {
			return false, errf(ErrCorrupt, "seq %d: previous slot is a padding sentinel", seq)
		}

		if prevVal == 0 {
			return false, errf(ErrCorrupt, "seq %d: previous slot is unwritten", seq)
		}

		start = base + int64(prevVal)
	}

	end := base + int64(val)

	blockIdx := start / e.cfg.DataBlockSize
	if err := e.ensureDataBlock(blockIdx); err != nil {
		return false, err
	}

	offInBlock := start % e.cfg.DataBlockSize
	endInBlock := offInBlock + (end - start)

	e.seq = seq
	e.bytes = e.curDataBlock.Bytes[offInBlock:endInBlock]
	e.padding = false

	return true, nil
}

// resolveNonPadding positions the excerpt on the nearest non-padding slot
// at or before seq, stepping backward over padding entries so binary
// search never compares against one.
func (e *Excerpt) resolveNonPadding(seq int64) (int64, bool, error) {
	for s := seq; s >= 0; s-- {
		ok, err := e.Index(s)
		if err != nil {
			return 0, false, err
		}

		if ok {
			return s, true, nil
		}

		if !e.padding {
			return s, false, nil
		}
	}

	return -1, false, nil
}

// FindMatch binary searches committed records for one where cmp returns
// zero, using standard lower-bound semantics.
func (e *Excerpt) FindMatch(cmp Comparator) (int64, bool, error) {
	size := e.store.Size()
	if size == 0 {
		return -1, false, nil
	}

	lo, hi := int64(0), size-1
	match := int64(-1)

	for lo <= hi {
		mid := lo + (hi-lo)/2

		s, ok, err := e.resolveNonPadding(mid)
		if err != nil {
			return -1, false, err
		}

		if !ok {
			hi = mid - 1
			continue
		}

		c := cmp(e.bytes)

		switch {
		case c == 0:
			match = s
			hi = mid - 1
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}

	if match < 0 {
		return -1, false, nil
	}

	if _, err := e.Index(match); err != nil {
		return -1, false, err
	}

	return match, true, nil
}

// FindRange returns the half-open range [lo, hi) of committed records for
// which cmp returns zero, using lower-bound/upper-bound binary search.
func (e *Excerpt) FindRange(cmp Comparator) (int64, int64, bool, error) {
	size := e.store.Size()
	if size == 0 {
		return 0, 0, false, nil
	}

	e.cmpFn = cmp
	defer func() { e.cmpFn = nil }()

	lo, err := e.boundSearch(size, func(c int) bool { return c >= 0 })
	if err != nil {
		return 0, 0, false, err
	}

	hi, err := e.boundSearch(size, func(c int) bool { return c > 0 })
	if err != nil {
		return 0, 0, false, err
	}

	if lo >= hi {
		return lo, lo, false, nil
	}

	return lo, hi, true, nil
}

// boundSearch finds the leftmost seq in [0, size) for which pred(cmp(rec))
// holds, assuming pred is monotonically non-decreasing over seq order. A
// padding slot at a probe point is compared through the nearest earlier
// non-padding record (see resolveNonPadding); an unwritten slot, or a probe
// with no earlier record, is treated as "less than" the search key, pushing
// the search rightward.
func (e *Excerpt) boundSearch(size int64, pred func(int) bool) (int64, error) {
	lo, hi := int64(0), size

	for lo < hi {
		mid := lo + (hi-lo)/2

		_, ok, err := e.resolveNonPadding(mid)
		if err != nil {
			return 0, err
		}

		c := -1
		if ok {
			c = e.cmpFn(e.bytes)
		}

		if pred(c) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	return lo, nil
}

func (e *Excerpt) ensureIndexBlock(blockIdx int64) error {
	if e.curIndexBlock != nil && e.curIndexBlockIdx == blockIdx {
		return nil
	}

	if e.curIndexBlock != nil {
		e.store.indexMap.release(e.curIndexBlock)
	}

	blk, err := e.store.indexMap.acquire(blockIdx)
	if err != nil {
		return err
	}

	e.curIndexBlock = blk
	e.curIndexBlockIdx = blockIdx

	return nil
}

func (e *Excerpt) ensureDataBlock(blockIdx int64) error {
	if e.curDataBlock != nil && e.curDataBlockIdx == blockIdx {
		return nil
	}

	if e.curDataBlock != nil {
		e.store.dataMap.release(e.curDataBlock)
	}

	blk, err := e.store.dataMap.acquire(blockIdx)
	if err != nil {
		return err
	}

	e.curDataBlock = blk
	e.curDataBlockIdx = blockIdx

	return nil
}

// Close releases the excerpt's pinned blocks.
func (e *Excerpt) Close() error {
	if e.closed {
		return nil
	}

	e.closed = true

	if e.curIndexBlock != nil {
		e.store.indexMap.release(e.curIndexBlock)
	}

	if e.curDataBlock != nil {
		e.store.dataMap.release(e.curDataBlock)
	}

	return nil
}
