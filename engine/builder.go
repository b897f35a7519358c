package engine

import (
	"context"

	"github.com/cppisgood/oj-judger/internal/caps"
	"github.com/cppisgood/oj-judger/internal/netns"
)

// Builder assembles a RunOption fluently, mirroring the teacher's
// options.ParseCli style of building up a single options struct field by
// field before handing it to the execution primitive.
type Builder struct {
	opt RunOption
}

// Command starts a new Builder for the given executable path.
func Command(cmd string) *Builder {
	return &Builder{opt: RunOption{Cmd: cmd}}
}

func (b *Builder) Args(args ...string) *Builder {
	b.opt.Args = args
	return b
}

func (b *Builder) JailPath(path string) *Builder {
	b.opt.JailPath = path
	return b
}

func (b *Builder) ExecPath(path string) *Builder {
	b.opt.ExecPath = path
	return b
}

func (b *Builder) UID(uid uint32) *Builder {
	b.opt.UID = uid
	b.opt.HasUID = true
	return b
}

func (b *Builder) Capabilities(opts caps.Options) *Builder {
	b.opt.Capabilities = opts
	return b
}

func (b *Builder) ProcessLimit(n uint64) *Builder {
	b.opt.ProcessLimit = n
	return b
}

func (b *Builder) MemoryLimitKB(kb uint64) *Builder {
	b.opt.MemoryLimit = kb
	return b
}

func (b *Builder) CPUTimeLimitMs(ms int64) *Builder {
	b.opt.CPUTimeLimit = ms
	return b
}

func (b *Builder) RealTimeLimitMs(ms int64) *Builder {
	b.opt.RealTimeLimit = ms
	return b
}

func (b *Builder) SyscallLimit(names ...string) *Builder {
	b.opt.SyscallLimit = names
	return b
}

func (b *Builder) Network(mode NetworkMode) *Builder {
	b.opt.Network = mode
	return b
}

// Bridge configures the bridged-network parameters used when Network is
// set to NetworkBridged; ChildPID is filled in by the engine itself.
func (b *Builder) Bridge(cfg netns.BridgeConfig) *Builder {
	b.opt.Bridge = cfg
	return b
}

func (b *Builder) Env(env ...string) *Builder {
	b.opt.Env = env
	return b
}

func (b *Builder) Stdin(fd int) *Builder {
	b.opt.StdinRedirect = &fd
	return b
}

func (b *Builder) Stdout(fd int) *Builder {
	b.opt.StdoutRedirect = &fd
	return b
}

// Option returns the assembled RunOption without running it, chiefly for
// tests that want to inspect the built configuration.
func (b *Builder) Option() RunOption {
	return b.opt
}

// Run executes the assembled configuration. See engine_linux.go for the
// fork/exec/wait algorithm.
func (b *Builder) Run(ctx context.Context) (RunResult, error) {
	return run(ctx, b.opt)
}
