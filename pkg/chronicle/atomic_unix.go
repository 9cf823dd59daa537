//go:build unix

package chronicle

import (
	"sync/atomic"
	"unsafe"
)

// Publication primitives over the mapped byte windows.
//
// Every committed index slot needs a release-store paired with an
// acquire-load by readers; the 8-byte baseDataOffset at a line's start
// must similarly be visible before any slot in that line. Go has no
// little-endian-aware atomic ops, so the file format relies on native
// byte order and these casts operate on the CPU's native int32/int64
// representation directly.
//
// Go's atomic load/store compile to sequentially consistent instructions
// on amd64/arm64, which is at least as strong as the release/acquire this
// protocol requires. Mapped regions are page-aligned and every offset used
// below is a multiple of 4, so the casts never violate alignment.

func atomicLoadInt32(b []byte) int32 {
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&b[0])))
}

func atomicStoreInt32(b []byte, v int32) {
	atomic.StoreInt32((*int32)(unsafe.Pointer(&b[0])), v)
}

func atomicLoadInt64(b []byte) int64 {
	return atomic.LoadInt64((*int64)(unsafe.Pointer(&b[0])))
}

func atomicStoreInt64(b []byte, v int64) {
	atomic.StoreInt64((*int64)(unsafe.Pointer(&b[0])), v)
}
