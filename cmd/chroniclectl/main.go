// chroniclectl is a REPL for inspecting and appending to a chronicle store.
//
// It flocks "<path>.lock" for the duration of the process, so at most one
// chroniclectl can run against a given store at a time.
//
// Usage:
//
//	chroniclectl --path <base-path> [flags]
//
// Flags:
//
//	--path               base path of the store (required)
//	--data-block-size    data block size in bytes (default 64 MiB)
//	--index-block-size   index block size in bytes (default 16 MiB)
//	--cache-line-size    cache line size in bytes (default 64)
//	--synchronous        msync on every Finish
//
// Commands (in REPL):
//
//	append <text>      append a record containing text's bytes
//	tail               drain all committed records from the last tail position
//	get <seq>          random-access read of one record
//	find <int64>       binary search records whose first 8 bytes equal the key
//	info               print lastWrittenIndex and store size
//	help               show this help
//	exit / quit / q    exit
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/huskylabs/chronicle/pkg/chronicle"
	"github.com/huskylabs/chronicle/pkg/fs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		path        string
		dataBlock   int64
		indexBlock  int64
		cacheLine   int64
		synchronous bool
	)

	flags := flag.NewFlagSet("chroniclectl", flag.ExitOnError)
	flags.StringVar(&path, "path", "", "base path of the store (required)")
	flags.Int64Var(&dataBlock, "data-block-size", 0, "data block size in bytes")
	flags.Int64Var(&indexBlock, "index-block-size", 0, "index block size in bytes")
	flags.Int64Var(&cacheLine, "cache-line-size", 0, "cache line size in bytes")
	flags.BoolVar(&synchronous, "synchronous", false, "msync on every Finish")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if path == "" {
		return fmt.Errorf("--path is required")
	}

	cfg := chronicle.Config{
		DataBlockSize:   dataBlock,
		IndexBlockSize:  indexBlock,
		CacheLineSize:   cacheLine,
		SynchronousMode: synchronous,
	}

	store, err := chronicle.Open(path, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	// flock the store's base path so a second chroniclectl invocation
	// against the same store fails fast instead of racing its Appender
	// against ours. Neither ChronicleStore.CreateAppender's guard nor
	// Appender.Finish's seq-vs-store-size check sees a writer in another
	// process, so this lock is the CLI's only cross-process protection.
	lock, err := fs.NewLocker(fs.NewReal()).TryLock(path + ".lock")
	if err != nil {
		return fmt.Errorf("locking store %s (is another chroniclectl running against it?): %w", path, err)
	}
	defer lock.Close()

	r := &repl{store: store}

	return r.loop()
}

type repl struct {
	store    *chronicle.ChronicleStore
	appender *chronicle.Appender
	tailer   *chronicle.Tailer
}

func (r *repl) loop() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("chronicle> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}

			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if r.dispatch(input) {
			return nil
		}
	}
}

// dispatch runs one REPL command and reports whether the REPL should exit.
func (r *repl) dispatch(input string) bool {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "exit", "quit", "q":
		return true
	case "help":
		printHelp()
	case "append":
		r.cmdAppend(args)
	case "tail":
		r.cmdTail()
	case "get":
		r.cmdGet(args)
	case "find":
		r.cmdFind(args)
	case "info":
		r.cmdInfo()
	default:
		fmt.Printf("unknown command %q; try 'help'\n", cmd)
	}

	return false
}

func (r *repl) cmdAppend(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: append <text>")
		return
	}

	payload := []byte(strings.Join(args, " "))

	if r.appender == nil {
		a, err := r.store.CreateAppender()
		if err != nil {
			fmt.Printf("append: %v\n", err)
			return
		}

		r.appender = a
	}

	buf, err := r.appender.StartExcerpt(len(payload))
	if err != nil {
		fmt.Printf("append: %v\n", err)
		return
	}

	copy(buf, payload)

	if err := r.appender.Finish(); err != nil {
		fmt.Printf("append: %v\n", err)
		return
	}

	fmt.Printf("committed at seq=%d\n", r.store.LastWrittenIndex())
}

func (r *repl) cmdTail() {
	if r.tailer == nil {
		t, err := r.store.CreateTailer()
		if err != nil {
			fmt.Printf("tail: %v\n", err)
			return
		}

		r.tailer = t
	}

	count := 0

	for {
		rec, ok, err := r.tailer.NextIndex()
		if err != nil {
			fmt.Printf("tail: %v\n", err)
			return
		}

		if !ok {
			break
		}

		fmt.Printf("seq=%d len=%d bytes=%q\n", rec.Seq, len(rec.Bytes), previewBytes(rec.Bytes))
		count++
	}

	fmt.Printf("%d record(s)\n", count)
}

func (r *repl) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <seq>")
		return
	}

	seq, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("get: %v\n", err)
		return
	}

	excerpt, err := r.store.CreateExcerpt()
	if err != nil {
		fmt.Printf("get: %v\n", err)
		return
	}
	defer excerpt.Close()

	ok, err := excerpt.Index(seq)
	if err != nil {
		fmt.Printf("get: %v\n", err)
		return
	}

	if !ok {
		if excerpt.Padding() {
			fmt.Println("padding entry")
		} else {
			fmt.Println("not committed")
		}

		return
	}

	fmt.Printf("seq=%d len=%d bytes=%q\n", excerpt.Seq(), len(excerpt.Bytes()), previewBytes(excerpt.Bytes()))
}

// cmdFind binary-searches for records whose first 8 bytes encode the given
// big-endian int64 key, demonstrating Excerpt.FindRange.
func (r *repl) cmdFind(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: find <int64-key>")
		return
	}

	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("find: %v\n", err)
		return
	}

	excerpt, err := r.store.CreateExcerpt()
	if err != nil {
		fmt.Printf("find: %v\n", err)
		return
	}
	defer excerpt.Close()

	cmp := func(data []byte) int {
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

	lo, hi, found, err := excerpt.FindRange(cmp)
	if err != nil {
		fmt.Printf("find: %v\n", err)
		return
	}

	if !found {
		fmt.Println("no match")
		return
	}

	fmt.Printf("range [%d, %d)\n", lo, hi)
}

func (r *repl) cmdInfo() {
	fmt.Printf("lastWrittenIndex=%d size=%d\n", r.store.LastWrittenIndex(), r.store.Size())
}

func previewBytes(b []byte) []byte {
	const maxPreview = 64

	if len(b) <= maxPreview {
		return b
	}

	return b[:maxPreview]
}

func printHelp() {
	fmt.Println(`commands:
  append <text>      append a record containing text's bytes
  tail               drain all committed records from the last tail position
  get <seq>          random-access read of one record
  find <int64>       binary search records whose first 8 bytes equal the key
  info               print lastWrittenIndex and store size
  help               show this help
  exit / quit / q    exit`)
}
