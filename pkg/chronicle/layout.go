package chronicle

// layout holds the derived geometry for a store's configured block sizes:
//
//	EPL = (CL - 8) / 4   entries per cache line
//	EPB = IB / CL * EPL  entries per index block
type layout struct {
	db  int64 // data block size
	ib  int64 // index block size
	cl  int64 // cache line size
	epl int64 // entries per line
	epb int64 // entries per block
}

func newLayout(cfg Config) layout {
	epl := (cfg.CacheLineSize - 8) / 4
	linesPerBlock := cfg.IndexBlockSize / cfg.CacheLineSize

	return layout{
		db:  cfg.DataBlockSize,
		ib:  cfg.IndexBlockSize,
		cl:  cfg.CacheLineSize,
		epl: epl,
		epb: linesPerBlock * epl,
	}
}

// slotAddr is the resolved location of the index slot for a given seq.
type slotAddr struct {
	block int64 // index block index
	line  int64 // line index within the block
	slot  int64 // slot index within the line
}

// resolve maps a sequence number to (block, line, slot).
func (l layout) resolve(seq int64) slotAddr {
	blk := seq / l.epb
	r := seq % l.epb
	line := r / l.epl
	slot := r % l.epl

	return slotAddr{block: blk, line: line, slot: slot}
}

// lineOffset returns the byte offset of the line's 8-byte baseDataOffset
// field, relative to the start of its index block.
func (l layout) lineOffset(a slotAddr) int64 {
	return a.line * l.cl
}

// slotOffset returns the byte offset of the slot's 4-byte entry, relative
// to the start of its index block.
func (l layout) slotOffset(a slotAddr) int64 {
	return a.line*l.cl + 8 + a.slot*4
}

// linesPerBlock is the number of cache lines in one index block.
func (l layout) linesPerBlock() int64 {
	return l.ib / l.cl
}

// isFirstSlotOfLine reports whether slot is the first slot of its line.
func (a slotAddr) isFirstSlotOfLine() bool {
	return a.slot == 0
}

// isFirstLineOfBlock reports whether the address is line 0 of its block.
func (a slotAddr) isFirstLineOfBlock() bool {
	return a.line == 0
}

// isFirstBlock reports whether the address falls in index block 0.
func (a slotAddr) isFirstBlock() bool {
	return a.block == 0
}
