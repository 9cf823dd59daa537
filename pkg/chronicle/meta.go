package chronicle

import (
	"bytes"
	"encoding/json"
	"os"

	natomic "github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// metaFormatVersion identifies the shape of the persisted sidecar. Bump it
// whenever a field is added or reinterpreted; readMeta rejects a mismatch
// with ErrIncompatible rather than guessing at migration.
const metaFormatVersion = 1

// storeMeta is the sidecar persisted at "<base>.meta" alongside a store's
// ".index"/".data" files. It exists so a reopen can detect a conflicting
// Config without stealing a single byte from the index/data files
// themselves, whose sequence addressing assumes both start at absolute
// offset zero.
type storeMeta struct {
	FormatVersion   int   `json:"format_version"`
	DataBlockSize   int64 `json:"data_block_size"`
	IndexBlockSize  int64 `json:"index_block_size"`
	CacheLineSize   int64 `json:"cache_line_size"`
	MessageCapacity int64 `json:"message_capacity"`
}

func metaFromConfig(cfg Config) storeMeta {
	return storeMeta{
		FormatVersion:   metaFormatVersion,
		DataBlockSize:   cfg.DataBlockSize,
		IndexBlockSize:  cfg.IndexBlockSize,
		CacheLineSize:   cfg.CacheLineSize,
		MessageCapacity: cfg.MessageCapacity,
	}
}

// matches reports whether m's block and cache-line sizes equal cfg's (after
// defaulting). MessageCapacity is not compared.
func (m storeMeta) matches(cfg Config) bool {
	return m.DataBlockSize == cfg.DataBlockSize &&
		m.IndexBlockSize == cfg.IndexBlockSize &&
		m.CacheLineSize == cfg.CacheLineSize
}

// writeMeta atomically (re)writes the sidecar at path via a
// temp-file-plus-rename primitive.
func writeMeta(path string, m storeMeta) error {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return wrapf(ErrIo, err, "marshal meta")
	}

	buf = append(buf, '\n')

	if err := natomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return wrapf(ErrIo, err, "write %s", path)
	}

	return nil
}

// readMeta reads and parses the sidecar at path. A hand-editable JSONC
// comment (e.g. noting why a store was resized) is tolerated via hujson
// before the strict encoding/json unmarshal.
func readMeta(path string) (storeMeta, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storeMeta{}, false, nil
		}

		return storeMeta{}, false, wrapf(ErrIo, err, "read %s", path)
	}

	standard, err := hujson.Standardize(raw)
	if err != nil {
		return storeMeta{}, false, wrapf(ErrCorrupt, err, "parse %s", path)
	}

	var m storeMeta
	if err := json.Unmarshal(standard, &m); err != nil {
		return storeMeta{}, false, wrapf(ErrCorrupt, err, "unmarshal %s", path)
	}

	if m.FormatVersion != metaFormatVersion {
		return storeMeta{}, false, errf(ErrIncompatible, "meta format version %d, want %d", m.FormatVersion, metaFormatVersion)
	}

	return m, true, nil
}
