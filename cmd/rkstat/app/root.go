// Package app implements the rkstat command line, which opens a compiled
// model on the NPU and prints what the runtime reports about it.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/rkbackend/internal/config"
	"github.com/ekisa-team/rkbackend/internal/device"
	"github.com/ekisa-team/rkbackend/internal/env"
	"github.com/ekisa-team/rkbackend/internal/logger"
)

// GlobalOptions holds options shared by every subcommand.
type GlobalOptions struct {
	// Driver is the device driver used to open the model.
	Driver string

	// Arch overrides the detected CPU architecture.
	Arch string

	// Verbose enables debug logging on stderr.
	Verbose bool
}

// NewRootCommand creates the rkstat command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "rkstat",
		Short: "Inspect compiled NPU models",
		Long: `rkstat loads a compiled model into the NPU runtime and prints the
tensor attributes, runtime versions and memory footprint it reports.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", config.DefaultDriver,
		"device driver")
	cmd.PersistentFlags().StringVar(&opts.Arch, "arch", "",
		"override the detected CPU architecture (ARM64, ARM7)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	cmd.AddCommand(
		NewAttrsCommand(opts),
		NewMemCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

// openSession opens path with the selected driver. Logs go to stderr and
// are silent unless --verbose is set.
func openSession(cmd *cobra.Command, opts *GlobalOptions, path string) (*device.Session, error) {
	driver, err := device.Lookup(opts.Driver)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %v)", err, device.Drivers())
	}

	var log *slog.Logger
	if opts.Verbose {
		log = logger.New(env.Development, logger.WithLevel(slog.LevelDebug), logger.WithOutput(cmd.ErrOrStderr()))
	} else {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var sessionOpts []device.SessionOption
	if opts.Arch != "" {
		sessionOpts = append(sessionOpts, device.WithArch(device.Arch(opts.Arch)))
	}

	session, err := device.Open(driver, path, log, sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return session, nil
}
