//go:build linux

// Package cgroup implements the control-group handle of §4.2: a transient
// cgroup-v2 node carrying an optional memory hard limit and process-count
// cap, with an fsnotify watch on memory.events.local as the authoritative
// OOM signal. Adapted from the teacher's sandbox/cgroup.go, which covers
// cgroup creation and cpu/memory limits but has no OOM-watch concept (it
// only polls ru_maxrss) — the watch is this package's main addition.
package cgroup

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cppisgood/oj-judger/internal/clock"
)

const (
	cgRoot   = "/sys/fs/cgroup"
	cgParent = "/sys/fs/cgroup/oj-judger"
)

// nonce disambiguates cgroup names created within the same millisecond by
// concurrent engine calls.
var nonce atomic.Uint64

// Options configures a new cgroup.
type Options struct {
	// MemoryLimitBytes is the memory hard limit (memory.max), 0 = unlimited.
	MemoryLimitBytes uint64
	// ProcessLimit is the max concurrent task count (pids.max), 0 = unlimited.
	ProcessLimit uint64
}

// Cgroup is an owned handle to one transient cgroup-v2 node.
type Cgroup struct {
	path    string
	watcher *fsnotify.Watcher
	events  chan struct{}
}

func enableControllers(parentPath string, ctrls ...string) error {
	f, err := os.OpenFile(filepath.Join(parentPath, "cgroup.subtree_control"), os.O_WRONLY|syscall.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for _, c := range ctrls {
		if _, err := f.WriteString("+" + c); err != nil && !errors.Is(err, syscall.EBUSY) {
			return err
		}
	}
	return nil
}

// ensureParent makes sure the delegate parent cgroup exists with the
// controllers this package needs enabled for its children.
func ensureParent() error {
	if err := os.Mkdir(cgParent, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("mkdir %s: %w", cgParent, err)
	}
	if err := enableControllers(cgRoot, "cpu", "memory", "pids"); err != nil {
		return fmt.Errorf("enable controllers on %s: %w", cgRoot, err)
	}
	if err := enableControllers(cgParent, "cpu", "memory", "pids"); err != nil {
		return fmt.Errorf("enable controllers on %s: %w", cgParent, err)
	}
	return nil
}

// name formats the transient cgroup's directory name: oj-cg-<unix-millis>-
// <nonce>. Split out from New so the naming/path arithmetic is testable as
// plain Go, without a live cgroup-v2 hierarchy.
func name(millis int64, n uint64) string {
	return fmt.Sprintf("oj-cg-%d-%d", millis, n)
}

// dirPath joins a cgroup name onto the delegate parent, the same join New
// performs before mkdir.
func dirPath(n string) string {
	return filepath.Join(cgParent, n)
}

// New creates a transient cgroup named oj-cg-<unix-millis>-<nonce>,
// applies the configured limits, enables group-kill OOM semantics, and
// starts watching memory.events.local.
func New(opts Options) (*Cgroup, error) {
	if err := ensureParent(); err != nil {
		return nil, err
	}

	path := dirPath(name(clock.UnixMillis(), nonce.Add(1)))
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", path, err)
	}

	cg := &Cgroup{path: path, events: make(chan struct{}, 1)}

	if opts.MemoryLimitBytes > 0 {
		if err := os.WriteFile(filepath.Join(path, "memory.max"), []byte(strconv.FormatUint(opts.MemoryLimitBytes, 10)), 0o644); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("write memory.max: %w", err)
		}
		_ = os.WriteFile(filepath.Join(path, "memory.swap.max"), []byte("0"), 0o644)
	}

	// Group-kill: an OOM in any task under this cgroup kills them all.
	if err := os.WriteFile(filepath.Join(path, "memory.oom.group"), []byte("1"), 0o644); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write memory.oom.group: %w", err)
	}

	if opts.ProcessLimit > 0 {
		if err := os.WriteFile(filepath.Join(path, "pids.max"), []byte(strconv.FormatUint(opts.ProcessLimit, 10)), 0o644); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("write pids.max: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	eventsFile := filepath.Join(path, "memory.events.local")
	if err := watcher.Add(eventsFile); err != nil {
		_ = watcher.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("watch %s: %w", eventsFile, err)
	}
	cg.watcher = watcher

	go cg.pump()

	return cg, nil
}

// pump forwards every fsnotify event on memory.events.local into the
// non-blocking events channel, coalescing bursts into a single pending
// signal — OOMKilled only needs to know "has this fired since last call",
// not how many times.
func (cg *Cgroup) pump() {
	for {
		_, ok := <-cg.watcher.Events
		if !ok {
			return
		}
		select {
		case cg.events <- struct{}{}:
		default:
		}
	}
}

// AddTask attaches pid to this cgroup by writing to cgroup.procs.
func (cg *Cgroup) AddTask(pid int) error {
	return os.WriteFile(filepath.Join(cg.path, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0o644)
}

// OOMKilled reports whether the kernel has written any event to
// memory.events.local since the last call — the authoritative signal that
// this cgroup's memory limit triggered a kill.
func (cg *Cgroup) OOMKilled() bool {
	select {
	case <-cg.events:
		return true
	default:
		return false
	}
}

// Tasks enumerates the pids currently attached to this cgroup.
func (cg *Cgroup) Tasks() ([]int, error) {
	b, err := os.ReadFile(filepath.Join(cg.path, "cgroup.procs"))
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, f := range bytes.Fields(b) {
		pid, err := strconv.Atoi(string(f))
		if err == nil {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// Path returns the cgroup's filesystem path, primarily for tests.
func (cg *Cgroup) Path() string {
	return cg.path
}

// Close busy-waits (up to 5 seconds, with backoff) until the task list
// empties, then writes cgroup.kill and removes the cgroup. Brief transient
// non-emptiness while descendants are reaped is normal; removing a
// non-empty cgroup is a kernel error, which Close returns if tasks are
// still attached when the wait times out.
func (cg *Cgroup) Close() error {
	defer func() {
		if cg.watcher != nil {
			_ = cg.watcher.Close()
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	backoff := time.Millisecond
	for time.Now().Before(deadline) {
		tasks, err := cg.Tasks()
		if err != nil || len(tasks) == 0 {
			break
		}
		time.Sleep(backoff)
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}

	// Belt-and-suspenders: make sure nothing lingers before removal.
	_ = os.WriteFile(filepath.Join(cg.path, "cgroup.kill"), []byte("1"), 0o644)

	if err := os.Remove(cg.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cgroup %s: %w", cg.path, err)
	}
	return nil
}
