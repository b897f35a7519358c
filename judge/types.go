// Package judge implements the compile-then-run-then-compare pipeline of
// §4.7, built on top of the engine. Adapted from the shape of the
// reference judge engine's Run method (cgroup create -> spawn -> watchdog
// -> wait -> classify -> cleanup), generalized from a single sandboxed
// run to a per-submission loop across test cases.
package judge

import (
	"github.com/cppisgood/oj-judger/engine"
)

// Status is the overall outcome of a submission.
type Status int

const (
	Accepted Status = iota
	WrongAnswer
	CompileError
	CpuTimeLimitExceeded
	RealTimeLimitExceeded
	MemoryLimitExceeded
	SyscallLimitExceeded
	RuntimeError
	SystemError
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "Accepted"
	case WrongAnswer:
		return "WrongAnswer"
	case CompileError:
		return "CompileError"
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
	case SystemError:
		return "SystemError"
	default:
		return "Unknown"
	}
}

// fromEngineResult maps an engine.Result to the corresponding judge
// Status for a test-case run that isn't a compile step.
func fromEngineResult(r engine.Result) Status {
	switch r {
	case engine.Ok:
		return Accepted
	case engine.CpuTimeLimitExceeded:
		return CpuTimeLimitExceeded
	case engine.RealTimeLimitExceeded:
		return RealTimeLimitExceeded
	case engine.MemoryLimitExceeded:
		return MemoryLimitExceeded
	case engine.SyscallLimitExceeded:
		return SyscallLimitExceeded
	default:
		return RuntimeError
	}
}

// Submission describes one program to compile (optionally) and run
// against a set of test cases.
type Submission struct {
	ID          string
	SourcePath  string
	JailPath    string
	DataDir     string // directory containing matched *.in/*.out pairs
	CompileCmd  *engine.RunOption
	RunCmd      engine.RunOption // Cmd/Args/Env filled in; limits come from here
	UID         uint32
	SyscallList []string
}

// CaseResult is the per-test-case outcome.
type CaseResult struct {
	Name     string
	Status   Status
	CPUTime  int64
	RealTime int64
	Memory   int64
}

// Verdict is the aggregated outcome of a submission across all test
// cases, per §3.
type Verdict struct {
	Status        Status
	FailingCase   int // -1 if none
	MaxCPUTime    int64
	MaxRealTime   int64
	MaxMemory     int64
	Diagnostic    string
	CaseResults   []CaseResult
}
