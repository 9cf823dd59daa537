package chronicle

// Tailer is a sequential forward reader over a ChronicleStore. It polls
// the next index slot; a "not ready" result means
// the appender has not published that far yet, and the caller should poll
// again later. Padding entries are skipped transparently.
type Tailer struct {
	store *ChronicleStore
	cfg   Config
	lay   layout

	seq int64

	curIndexBlockIdx int64
	curIndexBlock    *Block
	curIndexAddr     int64

	curDataBlockIdx int64
	curDataBlock    *Block

	baseDataOffset int64
	posInLine      int64

	padding bool
	closed  bool
}

func newTailer(store *ChronicleStore) *Tailer {
	return &Tailer{store: store, cfg: store.cfg, lay: store.lay}
}

// Seq returns the sequence number the tailer will attempt to read next.
func (t *Tailer) Seq() int64 {
	return t.seq
}

// Padding reports whether the most recent NextIndex call stepped over a
// padding entry, whether that call then returned a record or ok=false.
func (t *Tailer) Padding() bool {
	return t.padding
}

// NextIndex attempts to read the next committed record. ok is false when
// the appender has not published that far yet ("not ready"); the tailer's
// position does not advance across a not-ready result, so the next call
// retries the same slot.
func (t *Tailer) NextIndex() (Record, bool, error) {
	if t.closed {
		return Record{}, false, ErrClosed
	}

	t.padding = false

	for {
		if err := t.ensureIndexBlock(); err != nil {
			return Record{}, false, err
		}

		if t.curIndexAddr%t.cfg.CacheLineSize == 0 {
			isFirstLine := t.curIndexBlockIdx == 0 && t.curIndexAddr == 0 && t.seq == 0

			base := atomicLoadInt64(t.curIndexBlock.Bytes[t.curIndexAddr : t.curIndexAddr+8])
			if base == 0 && !isFirstLine {
				return Record{}, false, nil
			}

			t.baseDataOffset = base
			t.posInLine = base
			t.curIndexAddr += 8

			continue
		}

		slotOff := t.curIndexAddr

		val := atomicLoadInt32(t.curIndexBlock.Bytes[slotOff : slotOff+4])
		if val == 0 {
			// Safety-net reread: Go's atomic load already has acquire
			// semantics, so this second load is a belt-and-suspenders
			// guard against an unpublished slot racing with the first read.
			val = atomicLoadInt32(t.curIndexBlock.Bytes[slotOff : slotOff+4])
		}

		if val == 0 {
			return Record{}, false, nil
		}

		t.curIndexAddr += 4
		mySeq := t.seq
		t.seq++

		start := t.posInLine

		var end int64
		if val > 0 {
			// Positive slots store an offset relative to the line's base.
			end = t.baseDataOffset + int64(val)
		} else {
			// Padding slots store a literal byte length, not a base-relative
			// offset: it advances from wherever the cursor already was.
			end = t.posInLine + int64(-val)
		}

		t.posInLine = end

		if val < 0 {
			t.padding = true
			continue
		}

		blockIdx := start / t.cfg.DataBlockSize
		if err := t.ensureDataBlock(blockIdx); err != nil {
			return Record{}, false, err
		}

		offInBlock := start % t.cfg.DataBlockSize
		endInBlock := offInBlock + (end - start)

		return Record{Seq: mySeq, Bytes: t.curDataBlock.Bytes[offInBlock:endInBlock]}, true, nil
	}
}

// ensureIndexBlock pins the tailer's current index block, advancing to the
// next one when curIndexAddr has run past the end of the current one.
func (t *Tailer) ensureIndexBlock() error {
	if t.curIndexBlock == nil {
		blk, err := t.store.indexMap.acquire(t.curIndexBlockIdx)
		if err != nil {
			return err
		}

		t.curIndexBlock = blk

		return nil
	}

	if t.curIndexAddr < t.cfg.IndexBlockSize {
		return nil
	}

	t.store.indexMap.release(t.curIndexBlock)
	t.curIndexBlockIdx++
	t.curIndexAddr = 0

	blk, err := t.store.indexMap.acquire(t.curIndexBlockIdx)
	if err != nil {
		return err
	}

	t.curIndexBlock = blk

	return nil
}

// ensureDataBlock pins blockIdx of the data file, releasing whichever
// block was previously pinned if it differs.
func (t *Tailer) ensureDataBlock(blockIdx int64) error {
	if t.curDataBlock != nil && t.curDataBlockIdx == blockIdx {
		return nil
	}

	if t.curDataBlock != nil {
		t.store.dataMap.release(t.curDataBlock)
	}

	blk, err := t.store.dataMap.acquire(blockIdx)
	if err != nil {
		return err
	}

	t.curDataBlock = blk
	t.curDataBlockIdx = blockIdx

	return nil
}

// Close releases the tailer's pinned blocks.
func (t *Tailer) Close() error {
	if t.closed {
		return nil
	}

	t.closed = true

	if t.curIndexBlock != nil {
		t.store.indexMap.release(t.curIndexBlock)
	}

	if t.curDataBlock != nil {
		t.store.dataMap.release(t.curDataBlock)
	}

	return nil
}
