package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dshills/cpptasks/internal/logging"
)

// OutputName names the detection output log.
const OutputName = "Build Auto Detection"

// WarningMessage is shown to the user the first time detection fails.
const WarningMessage = "Problem finding build tasks. See the output for more information."

// Reporter records detection failures in the output log and warns the user
// once until Reset.
type Reporter struct {
	output *logging.Logger
	closer io.Closer
	warn   func(msg string)

	mu     sync.Mutex
	warned bool
}

// NewReporter creates a reporter appending to logFile. An empty logFile
// writes the output log to out instead; a nil out discards it. warn shows a
// message to the user and may be nil.
func NewReporter(logFile string, out io.Writer, warn func(msg string)) (*Reporter, error) {
	r := &Reporter{warn: warn}

	switch {
	case logFile != "":
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, fmt.Errorf("create output log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open output log: %w", err)
		}
		r.closer = f
		out = f
	case out == nil:
		out = io.Discard
	}

	r.output = logging.New(logging.Config{
		Level:  logging.LevelDebug,
		Output: out,
		Prefix: OutputName,
	})
	return r, nil
}

// ReportError appends err to the output log and shows the warning if it has
// not been shown since the last Reset.
func (r *Reporter) ReportError(folder string, err error) {
	if err == nil {
		return
	}
	r.output.WithField("folder", folder).Error("%v", err)

	r.mu.Lock()
	show := !r.warned
	r.warned = true
	r.mu.Unlock()

	if show && r.warn != nil {
		r.warn(WarningMessage)
	}
}

// Warned reports whether the warning was shown since the last Reset.
func (r *Reporter) Warned() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warned
}

// Reset allows the warning to be shown again.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warned = false
}

// Output returns the output log.
func (r *Reporter) Output() *logging.Logger {
	return r.output
}

// Close closes the output log file, if any.
func (r *Reporter) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
