package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"game-overlay/src/config"
	"game-overlay/src/control"
	"game-overlay/src/logutil"
)

const requestDeadline = 5 * time.Second

type cliOptions struct {
	verbose bool
	timeout time.Duration
}

// sender delivers one command to the resident.
type sender interface {
	Send(ctx context.Context, command string, args ...string) (string, error)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args), nil, os.Stdout)
}

// runWithArgs executes the command line. A nil client resolves the resident
// from the configured port range.
func runWithArgs(args []string, client sender, out io.Writer) error {
	if len(args) == 0 {
		args = []string{"overlayctl"}
	}
	opts := &cliOptions{}
	cmd := newRootCmd(opts, func() (sender, error) {
		if client != nil {
			return client, nil
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		log.Printf("Scanning resident ports %d-%d", cfg.PortStart, cfg.PortEnd)
		return control.NewClient(cfg.PortStart, cfg.PortEnd), nil
	})
	cmd.SetArgs(args[1:])
	cmd.SetOut(out)
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions, connect func() (sender, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "overlayctl",
		Short:         "Control a running game overlay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logutil.SetupStderr(opts.verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", requestDeadline, "Time to wait for the resident")

	// send forwards a protocol command and prints the response body.
	send := func(cmd *cobra.Command, command string, args ...string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
		defer cancel()
		body, err := c.Send(ctx, command, args...)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), body)
		return nil
	}
	simple := func(use, short, command string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, command)
			},
		}
	}

	root.AddCommand(
		simple("show", "Show every overlay", control.CmdShow),
		simple("hide", "Hide every overlay", control.CmdHide),
		simple("update", "Repaint every overlay", control.CmdUpdate),
		simple("catch", "Overlay the windows of the foreground application", control.CmdCatch),
		simple("list", "List overlays", control.CmdList),
		simple("count", "Print the number of overlays", control.CmdCount),
		simple("status", "Print the engine status", control.CmdStatus),
		simple("quit", "Close every overlay and stop the resident", control.CmdQuit),
		&cobra.Command{
			Use:       "input on|off",
			Short:     "Route keyboard and mouse to the overlays",
			Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, control.CmdInput, strings.ToLower(args[0]))
			},
		},
		newAddCmd(send),
		&cobra.Command{
			Use:   "remove ID",
			Short: "Close one overlay",
			Args:  numericArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, control.CmdRemove, args...)
			},
		},
		newMoveCmd(send),
		&cobra.Command{
			Use:   "alpha ID LEVEL",
			Short: "Set opacity 0-255; ID 0 changes every overlay and the default",
			Args:  numericArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, control.CmdAlpha, args...)
			},
		},
		&cobra.Command{
			Use:   "url ID URL",
			Short: "Navigate a web overlay",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid id %q", args[0])
				}
				return send(cmd, control.CmdURL, args...)
			},
		},
	)
	return root
}

func newAddCmd(send func(*cobra.Command, string, ...string) error) *cobra.Command {
	var x, y, width, height int
	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Open a web page as an overlay and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			geometry := []string{strconv.Itoa(x), strconv.Itoa(y), strconv.Itoa(width), strconv.Itoa(height)}
			return send(cmd, control.CmdAdd, append([]string{args[0]}, geometry...)...)
		},
	}
	def := control.DefaultWebViewRect
	cmd.Flags().IntVar(&x, "x", def.X, "Left edge")
	cmd.Flags().IntVar(&y, "y", def.Y, "Top edge")
	cmd.Flags().IntVar(&width, "width", def.Width, "Width in pixels")
	cmd.Flags().IntVar(&height, "height", def.Height, "Height in pixels")
	return cmd
}

func newMoveCmd(send func(*cobra.Command, string, ...string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move ID X Y",
		Short: "Move one overlay",
		Args:  numericArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, control.CmdMove, args...)
		},
	}
	// negative coordinates are positions on monitors left of or above the
	// primary one, not flags
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func numericArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return err
		}
		for _, a := range args {
			if _, err := strconv.Atoi(a); err != nil {
				return fmt.Errorf("invalid number %q", a)
			}
		}
		return nil
	}
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		switch {
		case arg == "-verbose":
			normalized[i] = "--verbose"
		case strings.HasPrefix(arg, "-verbose="):
			normalized[i] = "--verbose=" + arg[len("-verbose="):]
		case arg == "-timeout":
			normalized[i] = "--timeout"
		case strings.HasPrefix(arg, "-timeout="):
			normalized[i] = "--timeout=" + arg[len("-timeout="):]
		}
	}

	return normalized
}
