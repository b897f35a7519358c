package judge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cppisgood/oj-judger/engine"
)

// fakeEngine is the Engine the judge pipeline's orchestration is exercised
// against in these tests, per SPEC_FULL.md §8's call for unit-testing the
// pipeline without a live cgroup-v2 hierarchy.
type fakeEngine struct {
	calls int
	// script, if set, is consulted by call index (0-based) to decide the
	// result and the bytes written to the case's stdout redirect.
	script func(call int, opt engine.RunOption) (engine.RunResult, []byte, error)
}

func (f *fakeEngine) Run(ctx context.Context, opt engine.RunOption) (engine.RunResult, error) {
	idx := f.calls
	f.calls++
	res, out, err := f.script(idx, opt)
	if err != nil {
		return engine.RunResult{}, err
	}
	if opt.StdoutRedirect != nil && out != nil {
		// Write directly via the raw fd rather than wrapping it in an
		// *os.File: an *os.File finalizer would close the fd out from
		// under runCase's own *os.File for the same scratch file.
		if _, werr := unix.Write(*opt.StdoutRedirect, out); werr != nil {
			return engine.RunResult{}, werr
		}
	}
	return res, nil
}

func withFakeEngine(t *testing.T, f *fakeEngine) {
	t.Helper()
	prev := runner
	runner = f
	t.Cleanup(func() { runner = prev })
}

func writeCase(t *testing.T, dir, name, in, out string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".in"), []byte(in), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".out"), []byte(out), 0o644))
}

func TestRun_AllAccepted_AggregatesMaxima(t *testing.T) {
	dataDir := t.TempDir()
	jailDir := t.TempDir()
	writeCase(t, dataDir, "case1", "1\n", "2\n")
	writeCase(t, dataDir, "case2", "2\n", "4\n")

	f := &fakeEngine{script: func(call int, opt engine.RunOption) (engine.RunResult, []byte, error) {
		results := []engine.RunResult{
			{Result: engine.Ok, CPUTime: 10, RealTime: 20, Memory: 1000},
			{Result: engine.Ok, CPUTime: 30, RealTime: 5, Memory: 2000},
		}
		outs := [][]byte{[]byte("2\n"), []byte("4\n")}
		return results[call], outs[call], nil
	}}
	withFakeEngine(t, f)

	sub := Submission{ID: "sub1", JailPath: jailDir, DataDir: dataDir}
	v, err := Run(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, Accepted, v.Status)
	assert.Equal(t, -1, v.FailingCase)
	assert.Len(t, v.CaseResults, 2)
	assert.EqualValues(t, 30, v.MaxCPUTime)
	assert.EqualValues(t, 20, v.MaxRealTime)
	assert.EqualValues(t, 2000, v.MaxMemory)
	assert.Equal(t, 2, f.calls)
}

func TestRun_FirstFailureShortCircuits_NoFurtherEngineCalls(t *testing.T) {
	dataDir := t.TempDir()
	jailDir := t.TempDir()
	writeCase(t, dataDir, "case1", "1\n", "2\n")
	writeCase(t, dataDir, "case2", "2\n", "4\n")
	writeCase(t, dataDir, "case3", "3\n", "6\n")

	f := &fakeEngine{script: func(call int, opt engine.RunOption) (engine.RunResult, []byte, error) {
		if call == 0 {
			return engine.RunResult{Result: engine.CpuTimeLimitExceeded, CPUTime: 5000}, nil, nil
		}
		t.Fatalf("engine invoked again after case %d already failed", call)
		return engine.RunResult{}, nil, nil
	}}
	withFakeEngine(t, f)

	sub := Submission{ID: "sub2", JailPath: jailDir, DataDir: dataDir}
	v, err := Run(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, CpuTimeLimitExceeded, v.Status)
	assert.Equal(t, 0, v.FailingCase)
	assert.Len(t, v.CaseResults, 1)
	assert.Equal(t, 1, f.calls, "judge must not spawn further sandboxed runs once a case has failed")
}

func TestRun_WrongAnswer_WhenOutputDiffers(t *testing.T) {
	dataDir := t.TempDir()
	jailDir := t.TempDir()
	writeCase(t, dataDir, "case1", "1\n", "2\n")

	f := &fakeEngine{script: func(call int, opt engine.RunOption) (engine.RunResult, []byte, error) {
		return engine.RunResult{Result: engine.Ok}, []byte("not-the-right-answer\n"), nil
	}}
	withFakeEngine(t, f)

	sub := Submission{ID: "sub3", JailPath: jailDir, DataDir: dataDir}
	v, err := Run(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, WrongAnswer, v.Status)
	assert.Equal(t, 0, v.FailingCase)
}

func TestRun_CompileFailure_ReturnsCompileErrorWithDiagnostic(t *testing.T) {
	dataDir := t.TempDir()
	jailDir := t.TempDir()
	writeCase(t, dataDir, "case1", "1\n", "2\n")

	f := &fakeEngine{script: func(call int, opt engine.RunOption) (engine.RunResult, []byte, error) {
		return engine.RunResult{Result: engine.RuntimeError}, []byte("syntax error on line 3\n"), nil
	}}
	withFakeEngine(t, f)

	compileCmd := engine.RunOption{Cmd: "/usr/bin/gcc"}
	sub := Submission{ID: "sub4", JailPath: jailDir, DataDir: dataDir, CompileCmd: &compileCmd}
	v, err := Run(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, CompileError, v.Status)
	assert.Contains(t, v.Diagnostic, "syntax error")
	assert.Equal(t, 1, f.calls, "test cases must not run after a failed compile")
}

func TestRun_PanicInEngine_RecoversToSystemError(t *testing.T) {
	dataDir := t.TempDir()
	jailDir := t.TempDir()
	writeCase(t, dataDir, "case1", "1\n", "2\n")

	f := &fakeEngine{script: func(call int, opt engine.RunOption) (engine.RunResult, []byte, error) {
		panic(fmt.Sprintf("boom at case %d", call))
	}}
	withFakeEngine(t, f)

	sub := Submission{ID: "sub5", JailPath: jailDir, DataDir: dataDir}
	v, err := Run(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, SystemError, v.Status)
	assert.Equal(t, -1, v.FailingCase)
	assert.Contains(t, v.Diagnostic, "boom at case 0")
}

func TestEnumerateCases_SkipsUnmatchedAndSortsByName(t *testing.T) {
	dataDir := t.TempDir()
	writeCase(t, dataDir, "b", "in-b\n", "out-b\n")
	writeCase(t, dataDir, "a", "in-a\n", "out-a\n")
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "orphan.in"), []byte("no matching .out"), 0o644))

	cases, err := enumerateCases(dataDir)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "a", cases[0].name)
	assert.Equal(t, "b", cases[1].name)
}
