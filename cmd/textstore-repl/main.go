// Package main is an interactive shell for driving a textstore
// registry: create and edit buffers, subscribe to change feeds, mirror
// files from disk, and run Lua scripts against the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/unicode/norm"

	"github.com/dshills/textstore"
	promadapter "github.com/dshills/textstore/adapters/prometheus"
	"github.com/dshills/textstore/internal/config"
	"github.com/dshills/textstore/internal/script"
	"github.com/dshills/textstore/internal/watch"

	"bufio"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

const opTimeout = 2 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "textstore-repl - interactive text buffer store\n\n")
		fmt.Fprintf(os.Stderr, "Usage: textstore-repl [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("textstore-repl %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger := cfg.Log.Logger(os.Stderr)

	opts := []textstore.Option{
		textstore.WithLogger(logger),
		textstore.WithQueueCapacity(cfg.Store.QueueCapacity),
	}
	if cfg.Store.LockTimeout > 0 {
		opts = append(opts, textstore.WithLockTimeout(cfg.Store.LockTimeout.Std()))
	}
	if cfg.Store.MaxReaders > 0 {
		opts = append(opts, textstore.WithMaxReaders(cfg.Store.MaxReaders))
	}
	if cfg.Store.Normalize {
		opts = append(opts, textstore.WithNormalizer(norm.NFC))
	}
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		opts = append(opts, textstore.WithMetrics(promadapter.NewStoreMetrics(promReg)))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, promadapter.Handler(promReg)); err != nil {
				logger.Warn("metrics endpoint failed", "listen", cfg.Metrics.Listen, "error", err)
			}
		}()
		fmt.Printf("Serving metrics on %s\n", cfg.Metrics.Listen)
	}

	repl := &REPL{
		reg:     textstore.New(opts...),
		reader:  bufio.NewReader(os.Stdin),
		subs:    make(map[textstore.BufferID]*textstore.Subscription),
		watched: make(map[string]textstore.BufferID),
	}

	// Ctrl-C tears the session down cleanly.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		fmt.Println("\nGoodbye!")
		repl.shutdown()
		os.Exit(0)
	}()

	fmt.Printf("textstore REPL %s\n", version)
	fmt.Println("Type 'help' for available commands, 'quit' to exit")
	fmt.Println()

	for {
		fmt.Print("textstore> ")
		input, err := repl.reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nGoodbye!")
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if !repl.handleCommand(input) {
			break
		}
	}

	repl.shutdown()
	return 0
}

// REPL holds the state of the interactive session.
type REPL struct {
	reg     *textstore.Registry
	current textstore.BufferID
	reader  *bufio.Reader

	// subs holds open subscriptions; key 0 is the registry-wide feed.
	subs map[textstore.BufferID]*textstore.Subscription

	mu      sync.Mutex
	watcher *watch.Watcher
	watched map[string]textstore.BufferID

	engine *script.Engine

	shutdownOnce sync.Once
}

func (r *REPL) shutdown() {
	r.shutdownOnce.Do(func() {
		if r.watcher != nil {
			r.watcher.Close()
		}
		if r.engine != nil {
			r.engine.Close()
		}
		for _, sub := range r.subs {
			sub.Close()
		}
		r.reg.Close()
	})
}

func (r *REPL) handleCommand(input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		r.printHelp()

	case "quit", "exit":
		fmt.Println("Goodbye!")
		return false

	case "new":
		r.cmdNew(args)

	case "open":
		r.cmdOpen(args)

	case "list", "ls":
		r.cmdList()

	case "show":
		r.cmdShow(args)

	case "insert":
		r.cmdInsert(args)

	case "delete":
		r.cmdDelete(args)

	case "replace":
		r.cmdReplace(args)

	case "version":
		r.cmdVersion(args)

	case "snapshot":
		r.cmdSnapshot(args)

	case "subscribe":
		r.cmdSubscribe(args)

	case "events":
		r.cmdEvents()

	case "watch":
		r.cmdWatch(args)

	case "script":
		r.cmdScript(args)

	case "stats":
		r.cmdStats()

	case "reset":
		r.cmdReset(args)

	case "rm":
		r.cmdRemove(args)

	default:
		fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", cmd)
	}

	return true
}

func (r *REPL) printHelp() {
	help := `
Available Commands:
-------------------

BUFFERS:
  new [text]              Create a buffer with the given text
  open <id>               Switch the current buffer
  open <path>             Load a file into a new buffer
  list                    List all buffers
  show [id]               Dump buffer content
  rm <id>                 Remove a buffer
  reset <id>              Empty a buffer (recovers a poisoned one)

EDITS (rune offsets, applied to the current buffer):
  insert <at> <text>      Insert text at offset
  delete <start> <end>    Delete the range [start, end)
  replace <start> <end> <text>
                          Atomically replace the range
  version [id]            Show the buffer version
  snapshot [id]           Show an immutable snapshot with content hash

EVENTS:
  subscribe [id|all]      Subscribe to a buffer's changes (or all buffers)
  events                  Drain and print pending events

COLLABORATORS:
  watch <id> <path>       Mirror a file into a buffer on save
  watch stop <path>       Stop mirroring a file
  script <path>           Run a Lua script against the store

OTHER:
  stats                   Show registry statistics
  help                    Show this help message
  quit, exit              Exit the REPL

Escape sequences \n and \t are expanded in text arguments.
`
	fmt.Println(help)
}

// opCtx bounds lock acquisition for one command.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// unescape expands the escape sequences accepted in text arguments.
func unescape(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\t", "\t")
	return s
}

func parseID(arg string) (textstore.BufferID, error) {
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid buffer id %q", arg)
	}
	return textstore.BufferID(n), nil
}

// targetID resolves an optional leading id argument, defaulting to the
// current buffer.
func (r *REPL) targetID(args []string) (textstore.BufferID, bool) {
	if len(args) > 0 {
		id, err := parseID(args[0])
		if err != nil {
			fmt.Println(err)
			return 0, false
		}
		return id, true
	}
	if r.current == 0 {
		fmt.Println("No current buffer. Use 'new <text>' or 'open <id>'.")
		return 0, false
	}
	return r.current, true
}

func (r *REPL) cmdNew(args []string) {
	text := unescape(strings.Join(args, " "))

	id, err := r.reg.Create(text)
	if err != nil {
		fmt.Printf("Create error: %v\n", err)
		return
	}

	r.current = id
	fmt.Printf("Created %s (%d runes), now current\n", id, len([]rune(text)))
}

func (r *REPL) cmdOpen(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: open <id> | open <path>")
		return
	}

	// A numeric argument switches buffers; anything else is a file path.
	if id, err := parseID(args[0]); err == nil {
		if _, err := r.reg.Get(id); err != nil {
			fmt.Printf("Open error: %v\n", err)
			return
		}
		r.current = id
		fmt.Printf("Current buffer is %s\n", id)
		return
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Open error: %v\n", err)
		return
	}

	id, err := r.reg.Create(string(data))
	if err != nil {
		fmt.Printf("Create error: %v\n", err)
		return
	}

	r.current = id
	fmt.Printf("Loaded %s into %s (%d bytes), now current\n", path, id, len(data))
}

func (r *REPL) cmdList() {
	ids := r.reg.List()
	if len(ids) == 0 {
		fmt.Println("No buffers. Use 'new <text>' to create one.")
		return
	}

	for _, id := range ids {
		marker := "  "
		if id == r.current {
			marker = "* "
		}

		h, err := r.reg.Get(id)
		if err != nil {
			fmt.Printf("%s%s  (gone)\n", marker, id)
			continue
		}

		ctx, cancel := opCtx()
		g, err := h.Read(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, textstore.ErrCorrupted) {
				fmt.Printf("%s%s  POISONED (use 'reset %d' or 'rm %d')\n", marker, id, id, id)
			} else {
				fmt.Printf("%s%s  (unavailable: %v)\n", marker, id, err)
			}
			continue
		}
		fmt.Printf("%s%s  v%d  %d runes  %d lines\n",
			marker, id, g.Version(), g.Len(), g.LineCount())
		g.Release()
	}
}

func (r *REPL) cmdShow(args []string) {
	id, ok := r.targetID(args)
	if !ok {
		return
	}

	h, err := r.reg.Get(id)
	if err != nil {
		fmt.Printf("Show error: %v\n", err)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	g, err := h.Read(ctx)
	if err != nil {
		fmt.Printf("Show error: %v\n", err)
		return
	}
	defer g.Release()

	fmt.Printf("%s (version %d):\n", id, g.Version())
	fmt.Println("--------")
	fmt.Println(g.Text())
	fmt.Println("--------")
	fmt.Printf("Total: %d runes, %d bytes, %d lines\n", g.Len(), g.ByteLen(), g.LineCount())
}

// apply runs one edit against the current buffer and reports the result.
func (r *REPL) apply(op textstore.EditOp) {
	if r.current == 0 {
		fmt.Println("No current buffer. Use 'new <text>' or 'open <id>'.")
		return
	}

	h, err := r.reg.Get(r.current)
	if err != nil {
		fmt.Printf("Edit error: %v\n", err)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	g, err := h.Write(ctx)
	if err != nil {
		fmt.Printf("Edit error: %v\n", err)
		return
	}

	ver, ev, err := g.Apply(op)
	g.Release()
	if err != nil {
		fmt.Printf("Edit error: %v\n", err)
		return
	}

	if ev.NewVersion == 0 {
		fmt.Printf("No-op; %s stays at version %d\n", r.current, ver)
		return
	}
	if ev.OldText != "" {
		fmt.Printf("Applied %s; removed %q; %s now at version %d\n", ev.Op.Kind, ev.OldText, r.current, ver)
		return
	}
	fmt.Printf("Applied %s; %s now at version %d\n", ev.Op.Kind, r.current, ver)
}

func (r *REPL) cmdInsert(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: insert <at> <text>")
		return
	}
	at, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Invalid offset: %v\n", err)
		return
	}
	text := unescape(strings.Join(args[1:], " "))
	r.apply(textstore.Insert(at, text))
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: delete <start> <end>")
		return
	}
	start, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Invalid start: %v\n", err)
		return
	}
	end, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Printf("Invalid end: %v\n", err)
		return
	}
	r.apply(textstore.Delete(start, end))
}

func (r *REPL) cmdReplace(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: replace <start> <end> <text>")
		return
	}
	start, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Invalid start: %v\n", err)
		return
	}
	end, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Printf("Invalid end: %v\n", err)
		return
	}
	text := unescape(strings.Join(args[2:], " "))
	r.apply(textstore.Replace(start, end, text))
}

func (r *REPL) cmdVersion(args []string) {
	id, ok := r.targetID(args)
	if !ok {
		return
	}

	h, err := r.reg.Get(id)
	if err != nil {
		fmt.Printf("Version error: %v\n", err)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	g, err := h.Read(ctx)
	if err != nil {
		fmt.Printf("Version error: %v\n", err)
		return
	}
	ver := g.Version()
	g.Release()

	fmt.Printf("%s is at version %d\n", id, ver)
}

func (r *REPL) cmdSnapshot(args []string) {
	id, ok := r.targetID(args)
	if !ok {
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	snap, err := r.reg.Snapshot(ctx, id)
	if err != nil {
		fmt.Printf("Snapshot error: %v\n", err)
		return
	}

	fmt.Printf("Snapshot of %s:\n", snap.BufferID)
	fmt.Printf("  Version: %d\n", snap.Version)
	fmt.Printf("  Runes:   %d\n", snap.Runes)
	fmt.Printf("  Bytes:   %d\n", snap.Bytes)
	fmt.Printf("  Lines:   %d\n", snap.Lines)
	fmt.Printf("  Hash:    %s\n", snap.HashHex())
}

func (r *REPL) cmdSubscribe(args []string) {
	// No argument or "all" subscribes to the registry-wide feed.
	if len(args) == 0 || strings.EqualFold(args[0], "all") {
		if _, ok := r.subs[0]; ok {
			fmt.Println("Already subscribed to all buffers")
			return
		}
		sub, err := r.reg.Subscribe()
		if err != nil {
			fmt.Printf("Subscribe error: %v\n", err)
			return
		}
		r.subs[0] = sub
		fmt.Printf("Subscribed to all buffers (%s)\n", sub.ID())
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}
	if _, ok := r.subs[id]; ok {
		fmt.Printf("Already subscribed to %s\n", id)
		return
	}

	h, err := r.reg.Get(id)
	if err != nil {
		fmt.Printf("Subscribe error: %v\n", err)
		return
	}
	sub, err := h.Subscribe()
	if err != nil {
		fmt.Printf("Subscribe error: %v\n", err)
		return
	}
	r.subs[id] = sub
	fmt.Printf("Subscribed to %s (%s)\n", id, sub.ID())
}

func (r *REPL) cmdEvents() {
	if len(r.subs) == 0 {
		fmt.Println("No subscriptions. Use 'subscribe [id|all]' first.")
		return
	}

	keys := make([]textstore.BufferID, 0, len(r.subs))
	for id := range r.subs {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	total := 0
	for _, key := range keys {
		sub := r.subs[key]
		label := "all"
		if key != 0 {
			label = key.String()
		}

		for {
			ev, err := sub.TryNext()
			if err != nil {
				if errors.Is(err, textstore.ErrLagged) {
					fmt.Printf("[%s] ... queue overflowed, events were dropped (%d so far)\n", label, sub.Dropped())
					continue
				}
				if errors.Is(err, textstore.ErrSubscriptionClosed) {
					fmt.Printf("[%s] subscription closed\n", label)
					delete(r.subs, key)
				}
				break
			}
			fmt.Printf("[%s] %s\n", label, ev)
			total++
		}
	}

	if total == 0 {
		fmt.Println("No pending events")
	}
}

func (r *REPL) cmdWatch(args []string) {
	if len(args) >= 2 && strings.EqualFold(args[0], "stop") {
		r.stopWatch(args[1])
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: watch <id> <path> | watch stop <path>")
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}
	if _, err := r.reg.Get(id); err != nil {
		fmt.Printf("Watch error: %v\n", err)
		return
	}
	path := args[1]

	if r.watcher == nil {
		w, err := watch.New(r.onFileEvent)
		if err != nil {
			fmt.Printf("Watch error: %v\n", err)
			return
		}
		r.watcher = w
	}

	if err := r.watcher.Add(path); err != nil {
		fmt.Printf("Watch error: %v\n", err)
		return
	}

	r.mu.Lock()
	r.watched[path] = id
	r.mu.Unlock()

	fmt.Printf("Mirroring %s into %s on save\n", path, id)
}

func (r *REPL) stopWatch(path string) {
	if r.watcher == nil {
		fmt.Println("Nothing is being watched")
		return
	}
	if err := r.watcher.Remove(path); err != nil {
		fmt.Printf("Watch error: %v\n", err)
		return
	}
	r.mu.Lock()
	delete(r.watched, path)
	r.mu.Unlock()
	fmt.Printf("Stopped mirroring %s\n", path)
}

// onFileEvent reloads a mirrored file into its buffer. It runs on the
// watcher's timer goroutine.
func (r *REPL) onFileEvent(ev watch.Event) {
	r.mu.Lock()
	id, ok := r.watched[ev.Path]
	r.mu.Unlock()
	if !ok {
		return
	}

	if ev.Op == watch.OpRemove {
		fmt.Printf("\n%s was deleted on disk; %s keeps its last content\n", ev.Path, id)
		return
	}

	data, err := os.ReadFile(ev.Path)
	if err != nil {
		fmt.Printf("\nReload of %s failed: %v\n", ev.Path, err)
		return
	}

	h, err := r.reg.Get(id)
	if err != nil {
		fmt.Printf("\nReload of %s failed: %v\n", ev.Path, err)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	g, err := h.Write(ctx)
	if err != nil {
		fmt.Printf("\nReload of %s failed: %v\n", ev.Path, err)
		return
	}
	ver, _, err := g.Apply(textstore.Replace(0, g.Len(), string(data)))
	g.Release()
	if err != nil {
		fmt.Printf("\nReload of %s failed: %v\n", ev.Path, err)
		return
	}

	fmt.Printf("\nReloaded %s from %s (version %d)\n", id, ev.Path, ver)
}

func (r *REPL) cmdScript(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: script <path>")
		return
	}

	if r.engine == nil {
		eng, err := script.NewEngine(r.reg)
		if err != nil {
			fmt.Printf("Script error: %v\n", err)
			return
		}
		r.engine = eng
	}

	if err := r.engine.DoFile(args[0]); err != nil {
		fmt.Printf("Script error: %v\n", err)
		return
	}
	fmt.Printf("Ran %s\n", args[0])
}

func (r *REPL) cmdStats() {
	stats := r.reg.Stats()

	fmt.Println("Registry statistics:")
	fmt.Printf("  Buffers:          %d (created %d, removed %d)\n",
		stats.Buffers, stats.Created, stats.Removed)
	fmt.Printf("  Edits applied:    %d\n", stats.Edits)
	fmt.Printf("  Events published: %d\n", stats.EventsPublished)
	fmt.Printf("  Events dropped:   %d\n", stats.EventsDropped)
	fmt.Printf("  Subscriptions:    %d\n", stats.Subscriptions)

	if r.watcher != nil {
		files := r.watcher.Files()
		if len(files) > 0 {
			fmt.Printf("  Watched files:    %d\n", len(files))
			for _, f := range files {
				fmt.Printf("    %s\n", f)
			}
		}
	}
}

func (r *REPL) cmdReset(args []string) {
	id, ok := r.targetID(args)
	if !ok {
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	if err := r.reg.Reset(ctx, id); err != nil {
		fmt.Printf("Reset error: %v\n", err)
		return
	}
	fmt.Printf("%s reset to empty\n", id)
}

func (r *REPL) cmdRemove(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: rm <id>")
		return
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := r.reg.Remove(id); err != nil {
		fmt.Printf("Remove error: %v\n", err)
		return
	}

	if r.current == id {
		r.current = 0
	}
	if sub, ok := r.subs[id]; ok {
		sub.Close()
		delete(r.subs, id)
	}

	// Stop mirroring any file that fed this buffer.
	r.mu.Lock()
	var orphaned []string
	for path, bufID := range r.watched {
		if bufID == id {
			orphaned = append(orphaned, path)
		}
	}
	for _, path := range orphaned {
		delete(r.watched, path)
	}
	r.mu.Unlock()
	for _, path := range orphaned {
		if r.watcher != nil {
			_ = r.watcher.Remove(path)
		}
	}

	fmt.Printf("Removed %s\n", id)
}
