// Package chronicle provides an append-only, indexed persistent log backed
// by memory-mapped files.
//
// A store consists of two sibling files, "<base>.index" and "<base>.data",
// plus a small sidecar "<base>.meta" holding the store's configuration. A
// single [Appender] publishes records in sequence-number order; any number
// of [Tailer]s and [Excerpt]s may read concurrently without taking locks on
// the hot path.
//
// # Basic usage
//
//	store, err := chronicle.Open("/var/lib/app/2024-01-01", chronicle.Config{})
//	if err != nil {
//	    // handle ErrCorrupt/ErrIncompatible by deleting and recreating
//	}
//	defer store.Close()
//
//	appender, err := store.CreateAppender()
//	buf, err := appender.StartExcerpt(len(payload))
//	copy(buf, payload)
//	err = appender.Finish()
//
//	tailer, err := store.CreateTailer()
//	for {
//	    rec, ok, err := tailer.NextIndex()
//	    if !ok {
//	        break // caught up; poll again later
//	    }
//	    _ = rec
//	}
//
// # Concurrency
//
//   - Exactly one [Appender] may be active against a store at a time.
//     Within one process, [ChronicleStore.CreateAppender] returns
//     [ErrBusy] while another Appender on the same store is open, and
//     [Appender.Finish] returns [ErrConcurrentWriter] if its sequence
//     number no longer matches the store's cached size. Neither check sees
//     a writer in another process.
//   - Any number of [Tailer]s and [Excerpt]s may run concurrently with the
//     appender and with each other. They only ever read the mapped files
//     and mutate their own cursor state.
//
// # Error handling
//
// [ErrCorrupt] and [ErrIncompatible] are rebuild-class: delete the store's
// files and recreate from the source of truth. [ErrBusy] is transient:
// retry after a short delay. All other errors ([ErrIo], [ErrClosed],
// [ErrCapacityTooLarge], [ErrInvalidInput]) indicate a programming or
// configuration error. A negative seq passed to [Excerpt.Index] is not an
// error: it resets the excerpt to "before start" and returns false.
package chronicle
