// Command gfsh runs one file operation against a GlusterFS volume.
//
//	gfsh [flags] <command> [args...]
//
// Connection settings come from the config file (see "gfsh init"),
// GFAPI_* environment variables and the flags below, in increasing order
// of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/config"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks errors caused by bad invocation.
var errUsage = errors.New("usage")

// globals are the flags accepted before the command name.
type globals struct {
	configPath string
	volume     string
	server     string
	port       uint16
	driver     string
	localRoot  string
	logLevel   string
	force      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one gfsh invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var g globals

	fs := pflag.NewFlagSet("gfsh", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.StringVarP(&g.configPath, "config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/gfapi/config.yaml)")
	fs.StringVar(&g.volume, "volume", "", "Volume name")
	fs.StringVar(&g.server, "server", "", "Volfile server host")
	fs.Uint16Var(&g.port, "port", 0, "Volfile server port")
	fs.StringVar(&g.driver, "driver", "", "Native backend (gfapi, sim, local)")
	fs.StringVar(&g.localRoot, "local-root", "", "Root directory of the local backend")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.BoolVarP(&g.force, "force", "f", false, "Overwrite an existing config file (init)")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(stderr, fs)
		return exitUsage
	}

	name, cmdArgs := fs.Arg(0), fs.Args()[1:]
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(stderr, "gfsh: unknown command %q\n", name)
		usage(stderr, fs)
		return exitUsage
	}

	if cmd.name == "init" {
		return report(stderr, name, runInit(stdout, &g))
	}

	cfg, err := loadConfig(fs, &g)
	if err != nil {
		fmt.Fprintf(stderr, "gfsh: %v\n", err)
		return exitError
	}

	env := &env{ctx: ctx, cfg: cfg, stdin: stdin, stdout: stdout}

	if cmd.offline {
		if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
			fmt.Fprintf(stderr, "gfsh: %v\n", err)
			return exitError
		}
		return report(stderr, name, cmd.run(env, cmdArgs))
	}

	conn, err := config.Connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "gfsh: %v\n", err)
		return exitError
	}
	env.client = conn.Client

	code := report(stderr, name, cmd.run(env, cmdArgs))
	if err := conn.Close(); err != nil {
		fmt.Fprintf(stderr, "gfsh: %v\n", err)
		if code == exitOK {
			code = exitError
		}
	}
	return code
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(fs *pflag.FlagSet, g *globals) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	if fs.Changed("volume") {
		cfg.Volume.Name = g.volume
	}
	if fs.Changed("server") {
		cfg.Volume.Server = g.server
	}
	if fs.Changed("port") {
		cfg.Volume.Port = g.port
	}
	if fs.Changed("driver") {
		cfg.Driver.Type = g.driver
	}
	if fs.Changed("local-root") {
		cfg.Driver.Local["root"] = g.localRoot
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func runInit(stdout io.Writer, g *globals) error {
	path := g.configPath
	if path == "" {
		p, err := config.InitConfig(g.force)
		if err != nil {
			return err
		}
		path = p
	} else if err := config.InitConfigToPath(path, g.force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Configuration written to %s\n", path)
	return nil
}

// report prints err and maps it to an exit code.
func report(stderr io.Writer, name string, err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "gfsh %s: %v\n", name, err)

	if errors.Is(err, errUsage) {
		if cmd, ok := lookup(name); ok {
			fmt.Fprintf(stderr, "usage: gfsh %s %s\n", cmd.name, cmd.usage)
		}
		return exitUsage
	}
	return exitError
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "usage: gfsh [flags] <command> [args...]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-9s %-30s %s\n", cmd.name, cmd.usage, cmd.summary)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", fs.FlagUsages())
}
