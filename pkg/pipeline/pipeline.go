// Package pipeline drives the download → unpack → report flow.
//
// A run is a single pass through the stages Staging → Cleaning (optional)
// → Fetching → Scanning → Reporting. There are no retries and no loops:
// the first unrecoverable error aborts the run and no partial "Saved"
// report is printed.
package pipeline

import (
	"io"

	"github.com/google/uuid"

	"github.com/pipmirror/pipmirror/pkg/errors"
	"github.com/pipmirror/pipmirror/pkg/pymeta"
)

// Progress is a liveness display shown while the fetch tool runs. The
// runner starts it before the blocking fetch and stops it (waiting for
// termination) before printing anything else, so progress glyphs never
// interleave with report output.
type Progress interface {
	Start()
	Stop()
}

// Options configures a single pipeline run.
type Options struct {
	// DownloadDir is the persistent directory populated by the fetch tool.
	DownloadDir string

	// Requests are the package specifiers passed through verbatim.
	Requests []string

	// Wipe removes recognized archives already present in DownloadDir
	// before fetching.
	Wipe bool

	// Verbose passes the fetch tool's verbose flag instead of quiet.
	Verbose bool

	// Out receives the bannered report sections. Defaults to os.Stdout.
	Out io.Writer
}

// Validate checks that the options describe a runnable pipeline.
func (o *Options) Validate() error {
	if o.DownloadDir == "" {
		return errors.New(errors.ErrCodeInvalidInput, "download directory is required")
	}
	if len(o.Requests) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "at least one package request is required")
	}
	return nil
}

// Result is the outcome of a successful run.
type Result struct {
	// RunID identifies this run in logs.
	RunID uuid.UUID

	// Saved maps each archive path in the download directory to the
	// requirement recovered from its unpacked source tree.
	Saved map[string]*pymeta.Requirement

	// Deleted lists the basenames of pre-existing archives removed
	// during the Cleaning stage.
	Deleted []string
}
