package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/srediag/spsc-shm/adapter"
	"github.com/srediag/spsc-shm/pkg/lifecycle"
)

const shutdownTimeout = 5 * time.Second

func (s *session) serveCmd() *Command {
	fs := newFlagSet("serve")
	listen := fs.String("listen", "", "listen address (default from config)")
	create := fs.Bool("create", false, "create queues that do not exist")

	return &Command{
		Flags: fs,
		Usage: "serve <name>... [flags]",
		Short: "Serve /metrics, /live and /ready for queues",
		Long: "Map the named queues and serve Prometheus metrics on /metrics and\n" +
			"health checks on /live and /ready until interrupted.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errNameRequired
			}
			addr := s.cfg.Listen
			if fs.Changed("listen") {
				addr = *listen
			}

			mon, err := adapter.NewMonitor(lifecycle.WithOpenFunc(s.open))
			if err != nil {
				return err
			}
			m := mon.Manager()
			defer m.CloseAll() //nolint:errcheck
			for _, name := range args {
				if _, err := m.Open(ctx, s.openOptions(name, *create)); err != nil {
					return err
				}
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{Handler: mon, ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()
			o.Println("Serving", len(args), "queues on", ln.Addr().String())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
