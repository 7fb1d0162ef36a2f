package api

import (
	"fmt"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/internal/ingestion"
	"github.com/jeovahfialho/lntools/internal/service"
)

// DirectoryRequest selects files in a directory. Dates accept "2024-01-31",
// "20240131" or 20240131.
type DirectoryRequest struct {
	Directory    string `json:"directory" validate:"required"`
	Start        any    `json:"start,omitempty"`
	End          any    `json:"end,omitempty"`
	Dates        []any  `json:"dates,omitempty"`
	AllFiles     bool   `json:"all_files,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	DateFormat   string `json:"date_format,omitempty"`
	Workers      int    `json:"workers,omitempty"`
	Timeout      string `json:"timeout,omitempty" example:"30s"`
	BusinessDays bool   `json:"business_days,omitempty"`
	SortKey      string `json:"sort_key,omitempty"`
	DateColumn   string `json:"date_column,omitempty"`
}

func (r DirectoryRequest) toService() (service.Request, error) {
	var timeout time.Duration
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil || d < 0 {
			return service.Request{}, &ingestion.ConfigurationError{
				Field:  "timeout",
				Reason: fmt.Sprintf("invalid duration %q", r.Timeout),
				Err:    err,
			}
		}
		timeout = d
	}

	return service.Request{
		Directory:    r.Directory,
		Start:        r.Start,
		End:          r.End,
		Dates:        r.Dates,
		AllFiles:     r.AllFiles,
		Pattern:      r.Pattern,
		DateFormat:   r.DateFormat,
		Workers:      r.Workers,
		Timeout:      timeout,
		BusinessDays: r.BusinessDays,
		SortKey:      r.SortKey,
		DateColumn:   r.DateColumn,
	}, nil
}

type CandidateDTO struct {
	Date string `json:"date"`
	Path string `json:"path"`
}

type ResolveResponse struct {
	Directory  string         `json:"directory"`
	Candidates []CandidateDTO `json:"candidates"`
	Count      int            `json:"count"`
}

type ReadResponse struct {
	Frame          *domain.Frame       `json:"frame"`
	TotalRows      int                 `json:"total_rows"`
	Truncated      bool                `json:"truncated"`
	Problems       []ingestion.Problem `json:"problems"`
	Candidates     int                 `json:"candidates"`
	FilesRead      int                 `json:"files_read"`
	EmptyFiles     int                 `json:"empty_files"`
	CacheHit       bool                `json:"cache_hit"`
	ProcessingTime string              `json:"processing_time,omitempty"`
}

type LoadDataRequest struct {
	DirectoryRequest
	Table string `json:"table" validate:"required"`
	Async bool   `json:"async"`
}

type LoadDataResponse struct {
	JobID     string              `json:"job_id,omitempty"`
	Table     string              `json:"table"`
	Rows      int64               `json:"rows,omitempty"`
	FilesRead int                 `json:"files_read,omitempty"`
	Problems  []ingestion.Problem `json:"problems,omitempty"`
	Status    string              `json:"status"`
	Message   string              `json:"message"`
}

type CacheInvalidationResponse struct {
	Status  string `json:"status"`
	Pattern string `json:"pattern"`
	Deleted int64  `json:"deleted"`
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

type ServiceHealth struct {
	Status  string         `json:"status"`
	Latency string         `json:"latency,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
