package chronicle

// Config configures a [ChronicleStore].
//
// Zero-value fields fall back to their documented defaults. Config is
// persisted alongside the store (see meta.go); reopening with a
// conflicting Config returns [ErrIncompatible].
type Config struct {
	// DataBlockSize is the fixed size, in bytes, of each data block. Must
	// be a power of two, >= 4 KiB. Default 64 MiB.
	DataBlockSize int64

	// IndexBlockSize is the fixed size, in bytes, of each index block.
	// Must be a power of two, >= 4 KiB. Default 16 MiB.
	IndexBlockSize int64

	// CacheLineSize is the fixed size, in bytes, of each index cache line.
	// Must divide IndexBlockSize and be >= 16. Default 64.
	CacheLineSize int64

	// MessageCapacity is the default record capacity assumed by callers of
	// [Appender.StartExcerpt] that do not otherwise size their own buffers.
	// Informational only; the core never enforces it.
	MessageCapacity int64

	// SynchronousMode, when true, makes [Appender.Finish] msync the data
	// block and then the index block before returning.
	SynchronousMode bool
}

// withDefaults returns a copy of cfg with zero fields replaced by defaults.
func (cfg Config) withDefaults() Config {
	if cfg.DataBlockSize == 0 {
		cfg.DataBlockSize = defaultDataBlockSize
	}

	if cfg.IndexBlockSize == 0 {
		cfg.IndexBlockSize = defaultIndexBlockSize
	}

	if cfg.CacheLineSize == 0 {
		cfg.CacheLineSize = defaultCacheLineSize
	}

	return cfg
}

// validate checks cfg for internal consistency, returning ErrInvalidInput
// wrapped with a description of the violated constraint.
func (cfg Config) validate() error {
	if !isPowerOfTwo(cfg.DataBlockSize) || cfg.DataBlockSize < minBlockSize {
		return errf(ErrInvalidInput, "data_block_size %d must be a power of two >= %d", cfg.DataBlockSize, minBlockSize)
	}

	if cfg.DataBlockSize > maxBlockSize {
		return errf(ErrInvalidInput, "data_block_size %d exceeds max %d", cfg.DataBlockSize, maxBlockSize)
	}

	if !isPowerOfTwo(cfg.IndexBlockSize) || cfg.IndexBlockSize < minBlockSize {
		return errf(ErrInvalidInput, "index_block_size %d must be a power of two >= %d", cfg.IndexBlockSize, minBlockSize)
	}

	if cfg.IndexBlockSize > maxBlockSize {
		return errf(ErrInvalidInput, "index_block_size %d exceeds max %d", cfg.IndexBlockSize, maxBlockSize)
	}

	if cfg.CacheLineSize < minCacheLineSize {
		return errf(ErrInvalidInput, "cache_line_size %d must be >= %d", cfg.CacheLineSize, minCacheLineSize)
	}

	if cfg.IndexBlockSize%cfg.CacheLineSize != 0 {
		return errf(ErrInvalidInput, "cache_line_size %d must divide index_block_size %d", cfg.CacheLineSize, cfg.IndexBlockSize)
	}

	if cfg.MessageCapacity < 0 {
		return errf(ErrInvalidInput, "message_capacity %d must be >= 0", cfg.MessageCapacity)
	}

	return nil
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}

// Record is a read-only view of a committed record's bytes together with
// its sequence number. [Tailer.NextIndex] returns Records; the underlying
// slice aliases the mapped data block and is only valid until the next
// call on the same cursor.
type Record struct {
	Seq   int64
	Bytes []byte
}

// Comparator is used by [Excerpt.FindMatch] and [Excerpt.FindRange] to
// binary-search committed records. It must return negative, zero, or
// positive exactly as [bytes.Compare]-style comparators do, comparing the
// record's bytes against whatever key the caller closed over.
type Comparator func(recordBytes []byte) int
