//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/goombaio/namegenerator"
	bytesize "github.com/inhies/go-bytesize"
	"github.com/urfave/cli/v3"

	"github.com/cppisgood/oj-judger/engine"
	"github.com/cppisgood/oj-judger/internal/logger"
	"github.com/cppisgood/oj-judger/internal/netns"
	"github.com/cppisgood/oj-judger/version"
)

// Application entry point: a thin, directly-testable front end over the
// engine, mirroring the teacher's options.ParseCli -> sandbox.NewSandbox
// -> Wait flow, built on the same CLI library.
func main() {
	generator := namegenerator.NewNameGenerator(time.Now().UTC().UnixNano())

	cmd := &cli.Command{
		Name:    "ojrun",
		Usage:   "Run a single sandboxed execution for a contest-judge worker.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "jail", Usage: "Path to become the new root before exec"},
			&cli.StringFlag{Name: "workdir", Usage: "Working directory after root change, before exec"},
			&cli.Uint32Flag{Name: "uid", Usage: "Unprivileged uid to drop to before exec"},
			&cli.StringFlag{Name: "memory", Value: "256MB", Usage: "Memory hard limit (e.g., 256MB)"},
			&cli.IntFlag{Name: "cpu-time", Value: 1000, Usage: "CPU-time ceiling in milliseconds"},
			&cli.IntFlag{Name: "real-time", Value: 3000, Usage: "Wall-clock ceiling in milliseconds"},
			&cli.IntFlag{Name: "process-limit", Value: 1, Usage: "Max concurrent processes under the cgroup"},
			&cli.StringSliceFlag{Name: "allow-syscall", Usage: "A syscall to allow in the sandbox"},
			&cli.StringFlag{Name: "net", Value: "isolated", Usage: "Network mode (isolated|bridged)"},
			&cli.StringFlag{Name: "bridge-name", Value: "oj-judger0", Usage: "Bridge device name for --net bridged"},
			&cli.StringFlag{Name: "bridge-subnet", Value: "10.90.0.0/24", Usage: "Bridge subnet CIDR for --net bridged"},
			&cli.StringFlag{Name: "bridge-ip", Usage: "Bridge device address in CIDR form, e.g. 10.90.0.1/24"},
			&cli.StringFlag{Name: "ipam-db", Usage: "Path to the bbolt IP-lease database for --net bridged"},
			&cli.StringSliceFlag{Name: "env", Usage: "An environment variable as KEY=VALUE"},
			&cli.StringFlag{Name: "log-level", Value: "error", Usage: "Log verbosity (info|warn|error)"},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "Log format (text|json)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logLevel, err := parseLogLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logFormat, err := parseLogFormat(c.String("log-format"))
			if err != nil {
				return err
			}
			log := logger.CreateLogger(&logger.LoggerOpts{LogLevel: logLevel, LogFormat: logFormat})

			argv := c.Args().Slice()
			if len(argv) == 0 {
				return fmt.Errorf("missing command; usage: ojrun [options] -- command [args...]")
			}

			mem, err := bytesize.Parse(c.String("memory"))
			if err != nil {
				return fmt.Errorf("bad --memory %q: %w", c.String("memory"), err)
			}

			net := engine.NetworkIsolated
			switch c.String("net") {
			case "isolated":
				net = engine.NetworkIsolated
			case "bridged":
				net = engine.NetworkBridged
			default:
				return fmt.Errorf("unknown --net %q", c.String("net"))
			}

			runID := uuid.New()
			workdir := c.String("workdir")
			if workdir == "" {
				workdir = generator.Generate()
				if err := os.MkdirAll(filepath.Join(c.String("jail"), workdir), 0o755); err != nil {
					return fmt.Errorf("create workdir %q: %w", workdir, err)
				}
			}

			builder := engine.Command(argv[0]).
				Args(argv[1:]...).
				JailPath(c.String("jail")).
				ExecPath(workdir).
				ProcessLimit(uint64(c.Int("process-limit"))).
				MemoryLimitKB(uint64(mem) / 1024).
				CPUTimeLimitMs(int64(c.Int("cpu-time"))).
				RealTimeLimitMs(int64(c.Int("real-time"))).
				SyscallLimit(c.StringSlice("allow-syscall")...).
				Network(net).
				Env(c.StringSlice("env")...)

			if net == engine.NetworkBridged {
				builder = builder.Bridge(netns.BridgeConfig{
					BridgeName: c.String("bridge-name"),
					SubnetCIDR: c.String("bridge-subnet"),
					BridgeIP:   c.String("bridge-ip"),
					IPAMDBPath: c.String("ipam-db"),
				})
			}

			if c.IsSet("uid") {
				builder = builder.UID(uint32(c.Uint32("uid")))
			}

			log.Info("starting run", slog.String("run_id", runID.String()), slog.String("cmd", argv[0]))

			res, err := builder.Run(ctx)
			if err != nil {
				log.Error("run failed", slog.Any("err", err))
				return err
			}

			log.Info("run finished",
				slog.String("result", res.Result.String()),
				slog.Int64("cpu_time_ms", res.CPUTime),
				slog.Int64("real_time_ms", res.RealTime),
				slog.Int64("memory_kb", res.Memory),
			)

			if res.Result != engine.Ok {
				os.Exit(1)
			}
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		_ = cli.ShowAppHelp(cmd)
		os.Exit(1)
	}
}
