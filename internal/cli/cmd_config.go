package cli

import (
	"context"
	"errors"
)

var errUnexpectedArgs = errors.New("unexpected arguments")

func (s *session) initCmd() *Command {
	fs := newFlagSet("init")
	force := fs.BoolP("force", "f", false, "overwrite an existing config file")
	capacity := fs.Uint64("capacity", 0, "queue capacity in bytes")
	listen := fs.String("listen", "", "serve listen address")

	return &Command{
		Flags: fs,
		Usage: "init [flags]",
		Short: "Write a config file",
		Long: "Write the resolved configuration to " + ConfigFileName + ", or to the file named by\n" +
			"--config or $" + ConfigEnv + ". The file is JSONC and may be edited by hand.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return errUnexpectedArgs
			}
			cfg := s.cfg
			if fs.Changed("capacity") {
				cfg.Capacity = *capacity
			}
			if fs.Changed("listen") {
				cfg.Listen = *listen
			}
			if err := validateConfig(cfg); err != nil {
				return err
			}
			if err := WriteConfig(s.configPath, cfg, *force); err != nil {
				return err
			}
			o.Println("Wrote", s.configPath)
			return nil
		},
	}
}

func (s *session) configCmd() *Command {
	return &Command{
		Flags: newFlagSet("config"),
		Usage: "config",
		Short: "Show resolved configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			formatted, err := FormatConfig(s.cfg)
			if err != nil {
				return err
			}
			o.Println(formatted)
			o.Println()
			if s.configFile != "" {
				o.Println("# Source:", s.configFile)
			} else {
				o.Println("# Source: (using defaults only)")
			}
			return nil
		},
	}
}
