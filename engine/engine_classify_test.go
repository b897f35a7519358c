//go:build linux

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func exitedStatus(code int) unix.WaitStatus {
	// WaitStatus is a 32-bit status word on linux: low byte encodes signal (0 for
	// normal exit), next byte the exit code when signal == 0.
	return unix.WaitStatus(code << 8)
}

func signaledStatus(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(int(sig))
}

func TestClassify_Ok(t *testing.T) {
	r := RunResult{CPUTime: 10, RealTime: 20, Memory: 1024}
	opt := RunOption{}
	assert.Equal(t, Ok, classify(exitedStatus(0), false, r, opt))
}

func TestClassify_RuntimeError_NonZeroExit(t *testing.T) {
	r := RunResult{}
	opt := RunOption{}
	assert.Equal(t, RuntimeError, classify(exitedStatus(7), false, r, opt))
}

func TestClassify_RuntimeError_Signaled(t *testing.T) {
	r := RunResult{}
	opt := RunOption{}
	assert.Equal(t, RuntimeError, classify(signaledStatus(unix.SIGSEGV), false, r, opt))
}

func TestClassify_OOMWins_OverRuntimeError(t *testing.T) {
	r := RunResult{}
	opt := RunOption{MemoryLimit: 1024}
	assert.Equal(t, MemoryLimitExceeded, classify(signaledStatus(unix.SIGKILL), true, r, opt))
}

func TestClassify_MemoryOverLimit_WithoutOOMWatch(t *testing.T) {
	r := RunResult{Memory: 2048}
	opt := RunOption{MemoryLimit: 1024}
	assert.Equal(t, MemoryLimitExceeded, classify(exitedStatus(0), false, r, opt))
}

func TestClassify_RealTimeExceeded_WinsOverMemory(t *testing.T) {
	r := RunResult{Memory: 2048, RealTime: 5000}
	opt := RunOption{MemoryLimit: 1024, RealTimeLimit: 1000}
	assert.Equal(t, RealTimeLimitExceeded, classify(exitedStatus(0), false, r, opt))
}

func TestClassify_CpuTimeExceeded_WinsOverRealTime(t *testing.T) {
	r := RunResult{RealTime: 20000, CPUTime: 2000}
	opt := RunOption{RealTimeLimit: 10000, CPUTimeLimit: 1000}
	assert.Equal(t, CpuTimeLimitExceeded, classify(exitedStatus(0), false, r, opt))
}

func TestClassify_SyscallLimitExceeded_WinsOverAll(t *testing.T) {
	r := RunResult{Memory: 1 << 30, RealTime: 50000, CPUTime: 50000}
	opt := RunOption{
		MemoryLimit:   1024,
		RealTimeLimit: 1000,
		CPUTimeLimit:  1000,
		SyscallLimit:  []string{"read", "write"},
	}
	assert.Equal(t, SyscallLimitExceeded, classify(signaledStatus(unix.SIGSYS), false, r, opt))
}

func TestClassify_SyscallLimitNotSet_SignalSIGSYS_IsRuntimeError(t *testing.T) {
	r := RunResult{}
	opt := RunOption{}
	assert.Equal(t, RuntimeError, classify(signaledStatus(unix.SIGSYS), false, r, opt))
}

func TestResult_String(t *testing.T) {
	cases := []struct {
		r    Result
		want string
	}{
		{Ok, "Ok"},
		{CpuTimeLimitExceeded, "CpuTimeLimitExceeded"},
		{RealTimeLimitExceeded, "RealTimeLimitExceeded"},
		{MemoryLimitExceeded, "MemoryLimitExceeded"},
		{SyscallLimitExceeded, "SyscallLimitExceeded"},
		{RuntimeError, "RuntimeError"},
		{Result(99), "Unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.r.String())
	}
}
