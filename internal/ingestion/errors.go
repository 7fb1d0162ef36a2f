package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
)

var (
	ErrNotADirectory     = errors.New("not a directory")
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrUnknownSortKey means the aggregate has no column named by the sort
	// key. It is only known once files have been read.
	ErrUnknownSortKey = errors.New("unknown sort key")
)

// ConfigurationError reports a request that cannot be served at all. It is
// returned before any file is touched.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SchemaConflictError is returned when one column name carries kinds that
// cannot be widened into a single type.
type SchemaConflictError struct {
	Column string
	Kinds  []domain.Kind
	Paths  []string
}

func (e *SchemaConflictError) Error() string {
	kinds := make([]string, 0, len(e.Kinds))
	for _, k := range e.Kinds {
		kinds = append(kinds, k.String())
	}
	return fmt.Sprintf("schema conflict on column %q: kinds [%s] across %d files",
		e.Column, strings.Join(kinds, ", "), len(e.Paths))
}

type ProblemKind string

const (
	ProblemMissing ProblemKind = "missing_file"
	ProblemFailed  ProblemKind = "read_failure"
	ProblemTimeout ProblemKind = "timeout"
)

// Problem is a candidate that did not make it into the aggregate.
type Problem struct {
	Date   time.Time   `json:"date"`
	Path   string      `json:"path"`
	Kind   ProblemKind `json:"kind"`
	Reason string      `json:"reason"`
	Err    error       `json:"-"`
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s: %s: %s", p.Kind, p.Path, p.Reason)
}

func (p Problem) Unwrap() error {
	return p.Err
}
