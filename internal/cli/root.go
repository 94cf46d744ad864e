// Package cli provides the command-line interface for hailoconv.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/born-ml/hailoconv/internal/config"
	"github.com/born-ml/hailoconv/internal/engine"
	"github.com/born-ml/hailoconv/internal/logs"
	"github.com/born-ml/hailoconv/internal/pipeline"
)

// Version is set at build time.
var Version = "v0.1.0-dev"

type runOptions struct {
	zipPath    string
	outputDir  string
	configPath string
	logLevel   string
}

// NewRootCmd builds the hailoconv command tree.
func NewRootCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "hailoconv --zip-path <archive> --output-dir <dir>",
		Short: "Convert a packaged ONNX model into a Hailo runtime ONNX model",
		Long: `hailoconv takes a zip archive holding one ONNX model, one JSON configuration
file and optional calibration images, and converts the model for a Hailo
accelerator.

The run log is always written to logs.json inside the output directory, also
when the conversion fails. The exit status is non-zero only when the command
line is invalid or the run log cannot be written.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.zipPath, "zip-path", "", "path to the zip archive")
	flags.StringVar(&opts.outputDir, "output-dir", "", "directory for the converted model and logs.json")
	flags.StringVar(&opts.configPath, "config", "", "optional YAML settings file")
	flags.StringVar(&opts.logLevel, "log-level", "", "console log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("zip-path")
	_ = cmd.MarkFlagRequired("output-dir")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInspectCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hailoconv %s\n", Version)
		},
	}
}

// Execute runs the root command, cancelling the conversion on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func run(ctx context.Context, opts runOptions, out io.Writer) error {
	settings, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		settings.LogLevel = opts.logLevel
		if err := settings.Validate(); err != nil {
			return err
		}
	}

	logger, cleanup := config.SetupLogger(settings.ConsoleLogFile, settings.Level())
	defer func() {
		if err := cleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close console log: %v\n", err)
		}
	}()

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil { //nolint:gosec // output directory is user-facing
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	record := logs.New(logs.WithLogger(logger))
	conv := pipeline.NewConverter(settings, engine.NewRegistry(), record, logger)
	res := conv.Run(ctx, opts.zipPath, opts.outputDir)

	logsPath := filepath.Join(opts.outputDir, settings.LogFile)
	record.AddData(map[string]any{pipeline.DataLogsPath: logsPath})
	if err := record.Save(logsPath); err != nil {
		return fmt.Errorf("failed to write run log: %w", err)
	}

	if res.Err != nil {
		fmt.Fprintf(out, "Conversion failed at %s, see %s\n", res.FailedAt, logsPath)
	} else {
		fmt.Fprintf(out, "Converted model written to %s\n", res.OutputPath)
	}
	return nil
}
