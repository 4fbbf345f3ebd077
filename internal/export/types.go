// Package export renders project status reports as PDF.
package export

import (
	"errors"
	"time"
)

// Request contains parameters for a report export.
type Request struct {
	ProjectID int64
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ReportTask is a task row in the rendered report.
type ReportTask struct {
	Name     string
	Assignee string
	Priority string
	Date     time.Time
	Done     bool
}

// ReportMessage is a message row in the rendered report.
type ReportMessage struct {
	Author  string
	Content string
	Date    time.Time
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
