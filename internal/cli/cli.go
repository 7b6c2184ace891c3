// Package cli implements the pipmirror command-line interface.
//
// The root command runs the full download → unpack → report pipeline:
//
//	pipmirror -d DIR [-n] [-v] req [req2 ...]
//
// Subcommands manage the persistent fetch-tool cache directory and
// generate shell completions. All commands support --verbose (-v) for
// debug-level logging via the charmbracelet/log library; the same flag is
// forwarded to the fetch tool in place of its quiet flag.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pipmirror/pipmirror/pkg/buildinfo"
	"github.com/pipmirror/pipmirror/pkg/errors"
	"github.com/pipmirror/pipmirror/pkg/pipeline"
)

// appName is the application name used for display.
const appName = "pipmirror"

// progressInterval is how often the progress indicator emits a glyph
// while the fetch tool runs.
const progressInterval = 150 * time.Millisecond

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands
// registered. The root command itself runs the pipeline.
func (c *CLI) RootCommand() *cobra.Command {
	var (
		downloadDir string
		noWipe      bool
		verbose     bool
	)

	root := &cobra.Command{
		Use:   appName + " -d DIR [flags] req [req2 ...]",
		Short: "Download, unpack, and inspect a set of package dependencies",
		Long: `Pipmirror builds a reproducible local mirror of a dependency set. It
invokes the external fetch tool (pip) to populate a download directory,
unpacks every recognized archive into a clean extraction workspace, and
reports the declared name and version recovered from each source tree.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				c.SetLogLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPipeline(cmd, pipeline.Options{
				DownloadDir: downloadDir,
				Requests:    args,
				Wipe:        !noWipe,
				Verbose:     verbose,
			})
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.Flags().StringVarP(&downloadDir, "dir", "d", "", "download directory (required)")
	root.Flags().BoolVarP(&noWipe, "no-wipe", "n", false, "keep archives already present in the download directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging and a verbose fetch tool")
	_ = root.MarkFlagRequired("dir")

	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// runPipeline wires the spinner and report writer into a pipeline run.
func (c *CLI) runPipeline(cmd *cobra.Command, opts pipeline.Options) error {
	opts.Out = cmd.OutOrStdout()

	runner := pipeline.NewRunner(c.Logger)
	runner.NewProgress = func() pipeline.Progress {
		return newSpinner(os.Stderr, progressInterval)
	}

	result, err := runner.Execute(cmd.Context(), opts)
	if err != nil {
		printError("%s", errors.UserMessage(err))
		return err
	}
	printSuccess("Saved %d archive(s) to %s", len(result.Saved), opts.DownloadDir)
	return nil
}
