package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/srediag/spsc-shm/pkg/shm"
)

var errNameRequired = errors.New("queue name is required")

func (s *session) createCmd() *Command {
	fs := newFlagSet("create")
	size := fs.Uint64("size", 0, "capacity in bytes, rounded up to a power of two (default from config)")

	return &Command{
		Flags: fs,
		Usage: "create <name> [flags]",
		Short: "Create a queue, or check an existing one",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errNameRequired
			}
			opts := s.openOptions(args[0], true)
			if fs.Changed("size") {
				opts.Size = *size
			}
			q, err := shm.Open(ctx, opts)
			if err != nil {
				return err
			}
			defer q.Unmap() //nolint:errcheck
			o.Printf("%s capacity:%d max_message:%d used:%d\n", q.Name(), q.Cap(), q.MaxMessageSize(), q.Len())
			return nil
		},
	}
}

func (s *session) produceCmd() *Command {
	fs := newFlagSet("produce")
	create := fs.Bool("create", false, "create the queue when it does not exist")
	noBlock := fs.Bool("no-block", false, "fail instead of waiting when the queue is full")

	return &Command{
		Flags: fs,
		Usage: "produce <name> [message...]",
		Short: "Produce messages",
		Long: "Produce each argument as one message. Without arguments, every line of\n" +
			"stdin is one message. Waits while the queue is full unless --no-block.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errNameRequired
			}
			q, err := s.open(ctx, s.openOptions(args[0], *create))
			if err != nil {
				return err
			}
			defer q.Unmap() //nolint:errcheck
			p, err := q.Producer()
			if err != nil {
				return err
			}

			put := func(msg []byte) error {
				b := pollBackOff(10 * time.Millisecond)
				for {
					err := p.Produce(msg)
					if !errors.Is(err, shm.ErrQueueFull) || *noBlock {
						return err
					}
					if err := sleep(ctx, b); err != nil {
						return err
					}
				}
			}

			n := 0
			if len(args) > 1 {
				for _, msg := range args[1:] {
					if err := put([]byte(msg)); err != nil {
						return fmt.Errorf("message %d: %w", n+1, err)
					}
					n++
				}
			} else {
				sc := bufio.NewScanner(o.in)
				sc.Buffer(make([]byte, 0, 64*1024), q.MaxMessageSize()+1)
				for sc.Scan() {
					if err := put(sc.Bytes()); err != nil {
						return fmt.Errorf("line %d: %w", n+1, err)
					}
					n++
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			o.Printf("produced %d messages to %s\n", n, q.Name())
			return nil
		},
	}
}

func (s *session) consumeCmd() *Command {
	fs := newFlagSet("consume")
	count := fs.IntP("count", "n", 0, "stop after this many messages, 0 for no limit")
	follow := fs.BoolP("follow", "f", false, "wait for new messages instead of stopping when empty")

	return &Command{
		Flags: fs,
		Usage: "consume <name> [flags]",
		Short: "Print messages, one per line",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errNameRequired
			}
			if *count < 0 {
				return fmt.Errorf("count %d is negative", *count)
			}
			q, err := s.open(ctx, s.openOptions(args[0], false))
			if err != nil {
				return err
			}
			defer q.Unmap() //nolint:errcheck
			c, err := q.Consumer()
			if err != nil {
				return err
			}

			b := pollBackOff(100 * time.Millisecond)
			buf := make([]byte, 0, 256)
			for n := 0; *count == 0 || n < *count; {
				msg, err := c.ConsumeAppend(buf[:0])
				switch {
				case err == nil:
					o.Printf("%s\n", msg)
					buf = msg
					b.Reset()
					n++
				case errors.Is(err, shm.ErrQueueEmpty):
					if !*follow {
						return nil
					}
					if err := sleep(ctx, b); err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
				default:
					return err
				}
			}
			return nil
		},
	}
}

func (s *session) infoCmd() *Command {
	fs := newFlagSet("info")
	asJSON := fs.Bool("json", false, "print as JSON")

	return &Command{
		Flags: fs,
		Usage: "info <name> [flags]",
		Short: "Show the header of a segment without mapping it",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errNameRequired
			}
			info, err := shm.ReadSegmentInfo(shm.SegmentPath(s.cfg.Dir, args[0]))
			if err != nil {
				return err
			}
			if *asJSON {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				o.Println(string(data))
				return nil
			}
			o.Printf("path:     %s\n", info.Path)
			o.Printf("magic:    %v\n", info.MagicOK)
			o.Printf("version:  %d\n", info.Version)
			o.Printf("ready:    %v\n", info.Ready)
			o.Printf("capacity: %d\n", info.Capacity)
			o.Printf("head:     %d\n", info.Head)
			o.Printf("tail:     %d\n", info.Tail)
			o.Printf("used:     %d\n", info.Used())
			return nil
		},
	}
}

func (s *session) rmCmd() *Command {
	return &Command{
		Flags: newFlagSet("rm"),
		Usage: "rm <name>...",
		Short: "Remove segments",
		Long: "Unlink the segment files. Processes that still map them keep working;\n" +
			"the memory is released once the last one unmaps.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errNameRequired
			}
			for _, name := range args {
				if err := shm.Remove(s.cfg.Dir, name); err != nil {
					return err
				}
				o.Println("Removed", name)
			}
			return nil
		},
	}
}
