package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/srediag/spsc-shm/pkg/shm"
)

// prompter reads one line per prompt. *liner.State implements it.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanPrompter reads lines from a non-terminal input.
type scanPrompter struct {
	sc *bufio.Scanner
}

func (p *scanPrompter) Prompt(string) (string, error) {
	if p.sc.Scan() {
		return p.sc.Text(), nil
	}
	if err := p.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (p *scanPrompter) AppendHistory(string) {}

func (p *scanPrompter) Close() error { return nil }

var replCommands = []string{"put", "get", "peek", "len", "info", "help", "quit"}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".spscq_history")
}

func (s *session) replCmd() *Command {
	fs := newFlagSet("repl")
	create := fs.Bool("create", false, "create the queue when it does not exist")

	return &Command{
		Flags: fs,
		Usage: "repl <name> [flags]",
		Short: "Interactive producer and consumer of one queue",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errNameRequired
			}
			q, err := s.open(ctx, s.openOptions(args[0], *create))
			if err != nil {
				return err
			}
			defer q.Unmap() //nolint:errcheck

			var p prompter
			if o.in == os.Stdin {
				l := liner.NewLiner()
				l.SetCtrlCAborts(true)
				l.SetCompleter(func(line string) []string {
					var out []string
					for _, c := range replCommands {
						if strings.HasPrefix(c, strings.ToLower(line)) {
							out = append(out, c)
						}
					}
					return out
				})
				if f, err := os.Open(historyFile()); err == nil {
					_, _ = l.ReadHistory(f)
					_ = f.Close()
				}
				defer func() {
					if f, err := os.Create(historyFile()); err == nil {
						_, _ = l.WriteHistory(f)
						_ = f.Close()
					}
				}()
				p = l
			} else {
				p = &scanPrompter{sc: bufio.NewScanner(o.in)}
			}
			defer p.Close()

			return runREPL(ctx, o, p, q)
		},
	}
}

func runREPL(ctx context.Context, o *IO, p prompter, q *shm.Queue) error {
	o.Printf("%s capacity:%d max_message:%d. Type 'help' for commands.\n", q.Name(), q.Cap(), q.MaxMessageSize())
	prompt := q.Name() + "> "
	for ctx.Err() == nil {
		line, err := p.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p.AppendHistory(line)

		cmd, rest, _ := strings.Cut(line, " ")
		switch strings.ToLower(cmd) {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			o.Println("  put <text>   produce text as one message")
			o.Println("  get          consume and print one message")
			o.Println("  peek         print the next message without consuming it")
			o.Println("  len          bytes in use")
			o.Println("  info         capacity and cursors")
			o.Println("  quit         leave")
		case "put":
			if err := q.Produce([]byte(rest)); err != nil {
				o.Println("error:", err)
				continue
			}
			o.Println("ok")
		case "get":
			msg, err := q.ConsumeAppend(nil)
			if err != nil {
				o.Println("error:", err)
				continue
			}
			o.Printf("%q\n", msg)
		case "peek":
			m, err := q.GetOne()
			if err != nil {
				o.Println("error:", err)
				continue
			}
			o.Printf("%q\n", m.Bytes())
		case "len":
			o.Println(q.Len())
		case "info":
			o.Printf("capacity:%d used:%d empty:%v full:%v\n", q.Cap(), q.Len(), q.IsEmpty(), q.IsFull())
		default:
			o.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
	return nil
}
