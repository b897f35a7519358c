// Package engine implements the execution engine of §4.5: fork, jail,
// drop privileges, install a syscall filter, exec, and wait, classifying
// the outcome against the configured resource limits.
package engine

import (
	"github.com/cppisgood/oj-judger/internal/caps"
	"github.com/cppisgood/oj-judger/internal/netns"
)

// Result classifies how a run ended.
type Result int

const (
	Ok Result = iota
	CpuTimeLimitExceeded
	RealTimeLimitExceeded
	MemoryLimitExceeded
	SyscallLimitExceeded
	RuntimeError
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "Ok"
	case CpuTimeLimitExceeded:
		return "CpuTimeLimitExceeded"
	case RealTimeLimitExceeded:
		return "RealTimeLimitExceeded"
	case MemoryLimitExceeded:
		return "MemoryLimitExceeded"
	case SyscallLimitExceeded:
		return "SyscallLimitExceeded"
	case RuntimeError:
		return "RuntimeError"
	default:
		return "Unknown"
	}
}

// NetworkMode selects the child's network namespace treatment.
type NetworkMode int

const (
	// NetworkIsolated is the default: a fresh namespace, no interfaces
	// beyond a down loopback.
	NetworkIsolated NetworkMode = iota
	// NetworkBridged joins a prepared judge bridge (see internal/netns).
	NetworkBridged
)

// RunOption configures a single execution. Zero values mean "no limit" /
// "inherit" per field, as documented in SPEC_FULL.md §3.
type RunOption struct {
	Cmd      string
	Args     []string
	JailPath string
	ExecPath string

	UID          uint32
	HasUID       bool
	Capabilities caps.Options

	ProcessLimit  uint64
	MemoryLimit   uint64 // kilobytes
	CPUTimeLimit  int64  // milliseconds
	RealTimeLimit int64  // milliseconds
	SyscallLimit  []string

	Network NetworkMode
	// Bridge configures NetworkBridged mode; ignored for NetworkIsolated.
	// ChildPID is filled in by the engine itself once the child has been
	// forked — callers only set the rest.
	Bridge netns.BridgeConfig

	Env []string

	StdinRedirect  *int
	StdoutRedirect *int
}

// RunResult is the outcome of one execution.
type RunResult struct {
	Result   Result
	ExitCode int
	CPUTime  int64 // milliseconds, user CPU only
	RealTime int64 // milliseconds
	Memory   int64 // kilobytes, peak RSS
}
