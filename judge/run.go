package judge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cppisgood/oj-judger/engine"
)

// Engine is the seam between the judge pipeline and the execution
// engine, letting orchestration logic be exercised in pure-Go unit tests
// against a fake, per SPEC_FULL.md §8, without a live cgroup-v2
// hierarchy.
type Engine interface {
	Run(ctx context.Context, opt engine.RunOption) (engine.RunResult, error)
}

type realEngine struct{}

func (realEngine) Run(ctx context.Context, opt engine.RunOption) (engine.RunResult, error) {
	b := engine.Command(opt.Cmd).
		Args(opt.Args...).
		Env(opt.Env...).
		JailPath(opt.JailPath).
		ExecPath(opt.ExecPath).
		ProcessLimit(opt.ProcessLimit).
		MemoryLimitKB(opt.MemoryLimit).
		CPUTimeLimitMs(opt.CPUTimeLimit).
		RealTimeLimitMs(opt.RealTimeLimit).
		SyscallLimit(opt.SyscallLimit...).
		Network(opt.Network)

	if opt.HasUID {
		b = b.UID(opt.UID)
	}
	if opt.StdinRedirect != nil {
		b = b.Stdin(*opt.StdinRedirect)
	}
	if opt.StdoutRedirect != nil {
		b = b.Stdout(*opt.StdoutRedirect)
	}

	return b.Run(ctx)
}

// runner is the Engine the package uses; swapped out in tests.
var runner Engine = realEngine{}

// Run executes sub's compile step (if configured) and then every test
// case under sub.DataDir, short-circuiting on the first non-Accepted
// case. Panics raised while invoking the engine are recovered here and
// converted into a SystemError verdict, per §4.7/§7.
func Run(ctx context.Context, sub Submission) (verdict Verdict, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			Log.Error("judge pipeline panicked", zap.Any("recover", rec), zap.String("submission", sub.ID))
			verdict = Verdict{Status: SystemError, FailingCase: -1, Diagnostic: fmt.Sprintf("panic: %v", rec)}
			err = nil
		}
	}()

	verdict.FailingCase = -1

	if sub.CompileCmd != nil {
		compileOutPath := filepath.Join(sub.JailPath, ".compile_output")
		outFile, cerr := os.Create(compileOutPath)
		if cerr != nil {
			return Verdict{}, fmt.Errorf("judge: create compile output: %w", cerr)
		}
		fd := int(outFile.Fd())

		opt := *sub.CompileCmd
		opt.StdoutRedirect = &fd
		res, rerr := runner.Run(ctx, opt)
		_ = outFile.Close()
		if rerr != nil {
			return Verdict{}, fmt.Errorf("judge: compile invocation: %w", rerr)
		}
		if res.Result != engine.Ok {
			diag, _ := os.ReadFile(compileOutPath)
			return Verdict{Status: CompileError, FailingCase: -1, Diagnostic: string(diag)}, nil
		}
	}

	cases, err := enumerateCases(sub.DataDir)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge: enumerate test cases: %w", err)
	}

	for idx, c := range cases {
		cr, caseErr := runCase(ctx, sub, idx, c)
		if caseErr != nil {
			return Verdict{}, caseErr
		}
		verdict.CaseResults = append(verdict.CaseResults, cr)
		if cr.CPUTime > verdict.MaxCPUTime {
			verdict.MaxCPUTime = cr.CPUTime
		}
		if cr.RealTime > verdict.MaxRealTime {
			verdict.MaxRealTime = cr.RealTime
		}
		if cr.Memory > verdict.MaxMemory {
			verdict.MaxMemory = cr.Memory
		}
		if cr.Status != Accepted {
			// The first non-accepted case short-circuits the verdict
			// (§4.7): stop spawning further sandboxed runs for this
			// submission once one has already failed.
			verdict.Status = cr.Status
			verdict.FailingCase = idx
			break
		}
	}

	if verdict.FailingCase == -1 {
		verdict.Status = Accepted
	}

	return verdict, nil
}

type testCase struct {
	name    string
	inPath  string
	outPath string
}

func enumerateCases(dataDir string) ([]testCase, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	var cases []testCase
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".in") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".in")
		outPath := filepath.Join(dataDir, base+".out")
		if _, err := os.Stat(outPath); err != nil {
			continue
		}
		cases = append(cases, testCase{
			name:    base,
			inPath:  filepath.Join(dataDir, e.Name()),
			outPath: outPath,
		})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].name < cases[j].name })
	return cases, nil
}

func runCase(ctx context.Context, sub Submission, idx int, c testCase) (CaseResult, error) {
	inFile, err := os.Open(c.inPath)
	if err != nil {
		return CaseResult{}, fmt.Errorf("judge: open input %s: %w", c.inPath, err)
	}
	defer func() { _ = inFile.Close() }()

	scratchPath := filepath.Join(sub.JailPath, fmt.Sprintf(".out_%d", idx))
	scratch, err := os.Create(scratchPath)
	if err != nil {
		return CaseResult{}, fmt.Errorf("judge: create scratch output: %w", err)
	}
	defer func() {
		_ = scratch.Close()
		_ = os.Remove(scratchPath)
	}()

	inFd := int(inFile.Fd())
	outFd := int(scratch.Fd())

	opt := sub.RunCmd
	opt.HasUID = true
	opt.UID = sub.UID
	opt.SyscallLimit = sub.SyscallList
	opt.StdinRedirect = &inFd
	opt.StdoutRedirect = &outFd

	res, err := runner.Run(ctx, opt)
	if err != nil {
		return CaseResult{}, fmt.Errorf("judge: run case %s: %w", c.name, err)
	}

	cr := CaseResult{
		Name:     c.name,
		Status:   fromEngineResult(res.Result),
		CPUTime:  res.CPUTime,
		RealTime: res.RealTime,
		Memory:   res.Memory,
	}

	if cr.Status == Accepted {
		if err := scratch.Sync(); err != nil {
			Log.Warn("scratch sync failed", zap.Error(err))
		}
		gotFile, err := os.Open(scratchPath)
		if err != nil {
			return CaseResult{}, fmt.Errorf("judge: reopen scratch output: %w", err)
		}
		wantFile, err := os.Open(c.outPath)
		if err != nil {
			_ = gotFile.Close()
			return CaseResult{}, fmt.Errorf("judge: open expected output: %w", err)
		}
		equal, cmpErr := compareOutputs(gotFile, wantFile)
		_ = gotFile.Close()
		_ = wantFile.Close()
		if cmpErr != nil {
			return CaseResult{}, fmt.Errorf("judge: compare outputs: %w", cmpErr)
		}
		if !equal {
			cr.Status = WrongAnswer
		}
	}

	return cr, nil
}
