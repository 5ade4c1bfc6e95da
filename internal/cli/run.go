// Package cli implements the spscq command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/srediag/spsc-shm/pkg/shm"
)

const helpFlag = "--help"

// session is the resolved global state every command runs with.
type session struct {
	workDir    string
	cfg        Config
	configPath string
	configFile string // loaded file, empty when only defaults apply
}

type globalFlags struct {
	workDir    string
	configPath string
	dir        string
	logLevel   int
	fs         *flag.FlagSet
}

func parseGlobalFlags(args []string) (*globalFlags, error) {
	g := &globalFlags{fs: newFlagSet("spscq")}
	g.fs.SetInterspersed(false)
	g.fs.SetOutput(io.Discard)
	g.fs.StringVarP(&g.workDir, "cwd", "C", "", "run as if started in `dir`")
	g.fs.StringVarP(&g.configPath, "config", "c", "", "use the specified config `file`")
	g.fs.StringVar(&g.dir, "dir", "", "directory holding the segment files")
	g.fs.IntVar(&g.logLevel, "log-level", shm.LogLevelWarn, "engine log level, 0 (trace) to 5 (silent)")
	if err := g.fs.Parse(args); err != nil {
		return nil, err
	}
	return g, nil
}

// Run is the main entry point. Returns exit code. A value on sigCh cancels
// the running command.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < 2 {
		printUsage(out, nil)
		return 0
	}

	g, err := parseGlobalFlags(args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(out, nil)
			return 0
		}
		fprintln(errOut, "error:", err)
		return 1
	}

	workDir := g.workDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)
			return 1
		}
	}

	rest := g.fs.Args()
	s := &session{workDir: workDir}
	var explicit bool
	s.configPath, explicit = configPath(workDir, g.configPath, env)
	// init is what creates an explicitly named file
	mustExist := explicit && (len(rest) == 0 || rest[0] != "init")
	s.cfg, s.configFile, err = LoadConfig(s.configPath, mustExist)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if g.fs.Changed("dir") {
		s.cfg.Dir = g.dir
	}
	if g.fs.Changed("log-level") {
		s.cfg.LogLevel = g.logLevel
	}
	if err := validateConfig(s.cfg); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	shm.SetLogLevel(s.cfg.LogLevel)

	cmds := s.commands()
	if len(rest) == 0 || rest[0] == "help" {
		printUsage(out, cmds)
		return 0
	}

	for _, cmd := range cmds {
		if cmd.Name() != rest[0] {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if sigCh != nil {
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()
		}
		return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
	}

	fprintln(errOut, "error: unknown command:", rest[0])
	printUsage(errOut, cmds)
	return 1
}

func (s *session) commands() []*Command {
	return []*Command{
		s.initCmd(),
		s.configCmd(),
		s.createCmd(),
		s.produceCmd(),
		s.consumeCmd(),
		s.infoCmd(),
		s.rmCmd(),
		s.replCmd(),
		s.serveCmd(),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, cmds []*Command) {
	fprintln(w, `spscq - single-producer single-consumer queues in shared memory

Usage: spscq [options] <command> [args]

Options:
  -C, --cwd <dir>      Run as if started in <dir>
  -c, --config <file>  Use specified config file (also $`+ConfigEnv+`)
      --dir <dir>      Directory holding the segment files
      --log-level <n>  Engine log level, 0 (trace) to 5 (silent)`)
	if len(cmds) == 0 {
		return
	}
	fprintln(w)
	fprintln(w, "Commands:")
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(c.HelpLine())
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}
