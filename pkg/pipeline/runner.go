package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/pipmirror/pipmirror/pkg/archive"
	"github.com/pipmirror/pipmirror/pkg/errors"
	"github.com/pipmirror/pipmirror/pkg/fetch"
	"github.com/pipmirror/pipmirror/pkg/pymeta"
	"github.com/pipmirror/pipmirror/pkg/stage"
)

// Runner executes the pipeline. It is stateless across runs: everything a
// run produces lives in its Result.
type Runner struct {
	Logger *log.Logger

	// NewProgress builds the liveness display shown during the fetch.
	// Nil disables progress output (tests, non-interactive callers).
	NewProgress func() Progress

	// Locate resolves the fetch tool. Defaults to fetch.Locate; tests
	// substitute a stub.
	Locate func() (string, error)

	// Run executes the fetch tool. Defaults to fetch.Run.
	Run func(ctx context.Context, argv []string) error
}

// NewRunner creates a runner with the given logger. A nil logger falls
// back to log.Default().
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Logger: logger,
		Locate: fetch.Locate,
		Run:    fetch.Run,
	}
}

// Execute runs the complete download → unpack → report pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	result := &Result{
		RunID: uuid.New(),
		Saved: make(map[string]*pymeta.Requirement),
	}
	r.Logger.Debug("starting run", "id", result.RunID, "requests", strings.Join(opts.Requests, " "))

	// Staging
	dirs, err := stage.Prepare(opts.DownloadDir)
	if err != nil {
		return nil, err
	}

	// Cleaning
	if opts.Wipe {
		deleted, err := stage.WipeArchives(dirs.Download)
		if err != nil {
			return nil, err
		}
		result.Deleted = deleted
		if len(deleted) > 0 {
			banner(out, "Cleaning")
			for _, name := range deleted {
				fmt.Fprintf(out, "%s (X)\n", name)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Fetching
	banner(out, "Downloading")
	if err := r.fetchAll(ctx, dirs, opts); err != nil {
		return nil, err
	}

	// Scanning
	if err := r.scan(ctx, dirs, result); err != nil {
		return nil, err
	}

	// Reporting
	report(out, result.Saved)
	return result, nil
}

// fetchAll locates the fetch tool and runs it against the staged
// directories, keeping the progress display alive for the duration.
func (r *Runner) fetchAll(ctx context.Context, dirs stage.Dirs, opts Options) error {
	bin, err := r.Locate()
	if err != nil {
		return err
	}
	argv := fetch.Command(bin, dirs.Download, dirs.Build, dirs.Cache, opts.Verbose, opts.Requests)
	r.Logger.Debug("invoking fetch tool", "argv", strings.Join(argv, " "))

	start := time.Now()
	p := r.progress()
	if p != nil {
		p.Start()
	}
	err = r.Run(ctx, argv)
	if p != nil {
		// Join the indicator before anything else writes, so progress
		// glyphs never interleave with report or log output.
		p.Stop()
	}
	if err != nil {
		return err
	}
	r.Logger.Info("fetch complete", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (r *Runner) progress() Progress {
	if r.NewProgress == nil {
		return nil
	}
	return r.NewProgress()
}

// scan enumerates recognized archives in the download directory and runs
// extraction and metadata recovery on each, fail-fast. Two archives that
// strip to the same canonical directory name are rejected rather than
// letting the second silently destroy the first's tree.
func (r *Runner) scan(ctx context.Context, dirs stage.Dirs, result *Result) error {
	entries, err := os.ReadDir(dirs.Download)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "read download dir %s", dirs.Download)
	}

	seen := make(map[string]string) // canonical name -> archive basename
	for _, e := range entries {
		if e.IsDir() || !archive.IsArchive(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		canon := archive.StripSuffix(e.Name())
		if prev, ok := seen[canon]; ok {
			return errors.New(errors.ErrCodeDuplicateTarget,
				"%s and %s unpack to the same directory %q", prev, e.Name(), canon)
		}
		seen[canon] = e.Name()

		path := filepath.Join(dirs.Download, e.Name())
		req, err := pymeta.Examine(ctx, path, dirs.Extract)
		if err != nil {
			return err
		}
		result.Saved[path] = req
		r.Logger.Debug("recovered requirement", "archive", e.Name(), "requirement", req)
	}
	return nil
}

// report prints the "Saved" section, one line per archive sorted by
// basename.
func report(out io.Writer, saved map[string]*pymeta.Requirement) {
	banner(out, "Saved")

	paths := make([]string, 0, len(saved))
	for p := range saved {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		return filepath.Base(paths[i]) < filepath.Base(paths[j])
	})
	for _, p := range paths {
		fmt.Fprintf(out, "%s (%s)\n", filepath.Base(p), saved[p])
	}
}

// banner prints a section title flanked above and below by a rule of '-'
// characters matching the title's length.
func banner(out io.Writer, title string) {
	rule := strings.Repeat("-", len(title))
	fmt.Fprintf(out, "%s\n%s\n%s\n", rule, title, rule)
}
