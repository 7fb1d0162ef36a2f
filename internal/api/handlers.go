package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jeovahfialho/lntools/internal/ingestion"
	"github.com/jeovahfialho/lntools/internal/service"
	"github.com/jeovahfialho/lntools/pkg/logger"
	"go.uber.org/zap"
)

const version = "1.0.0"

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DetailReporter is an optional HealthChecker extension whose details are
// shown by the readiness endpoint.
type DetailReporter interface {
	HealthDetails() map[string]any
}

type CacheInvalidator interface {
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

type Handler struct {
	directories *service.DirectoryService
	checks      map[string]HealthChecker
	invalidator CacheInvalidator
	maxRows     int
}

// NewHandler serves directory reads. maxRows caps the rows returned by a
// read; zero or less means no cap.
func NewHandler(directories *service.DirectoryService, maxRows int) *Handler {
	return &Handler{
		directories: directories,
		checks:      make(map[string]HealthChecker),
		maxRows:     maxRows,
	}
}

// WithHealthCheck adds a dependency to the readiness check.
func (h *Handler) WithHealthCheck(name string, checker HealthChecker) *Handler {
	h.checks[name] = checker
	return h
}

func (h *Handler) WithCacheInvalidator(invalidator CacheInvalidator) *Handler {
	h.invalidator = invalidator
	return h
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Version:   version,
		Timestamp: time.Now(),
	})
}

func (h *Handler) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]ServiceHealth, len(h.checks))
	status := "ready"

	for name, checker := range h.checks {
		start := time.Now()
		if err := checker.HealthCheck(ctx); err != nil {
			services[name] = ServiceHealth{Status: "unhealthy", Error: err.Error()}
			status = "not_ready"
			continue
		}
		health := ServiceHealth{Status: "healthy", Latency: time.Since(start).String()}
		if r, ok := checker.(DetailReporter); ok {
			health.Details = r.HealthDetails()
		}
		services[name] = health
	}

	response := HealthResponse{
		Status:    status,
		Version:   version,
		Timestamp: time.Now(),
		Services:  services,
	}

	if status != "ready" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}

func (h *Handler) ResolveDirectory(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return h.fail(c, err)
	}

	candidates, err := h.directories.Resolve(c.Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	response := ResolveResponse{
		Directory:  req.Directory,
		Candidates: make([]CandidateDTO, 0, len(candidates)),
		Count:      len(candidates),
	}
	for _, cand := range candidates {
		dto := CandidateDTO{Path: cand.Path}
		if !cand.Date.IsZero() {
			dto.Date = cand.Date.Format("2006-01-02")
		}
		response.Candidates = append(response.Candidates, dto)
	}

	return c.JSON(response)
}

func (h *Handler) ReadDirectory(c *fiber.Ctx) error {
	start := time.Now()

	req, err := h.parseRequest(c)
	if err != nil {
		return h.fail(c, err)
	}

	logger.Info("reading directory",
		zap.String("directory", req.Directory),
		zap.Any("start", req.Start),
		zap.Any("end", req.End),
		zap.String("request_id", getRequestID(c)))

	report, cached, err := h.directories.Read(c.Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	total := report.Frame.Len()
	frame := report.Frame
	if h.maxRows > 0 {
		frame = frame.Head(h.maxRows)
	}

	problems := report.Problems
	if problems == nil {
		problems = []ingestion.Problem{}
	}

	return c.JSON(ReadResponse{
		Frame:          frame,
		TotalRows:      total,
		Truncated:      frame.Len() < total,
		Problems:       problems,
		Candidates:     report.Candidates,
		FilesRead:      report.FilesRead,
		EmptyFiles:     report.Empty,
		CacheHit:       cached,
		ProcessingTime: time.Since(start).String(),
	})
}

func (h *Handler) LoadDirectory(c *fiber.Ctx) error {
	var body LoadDataRequest
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
	}

	req, err := body.DirectoryRequest.toService()
	if err != nil {
		return h.fail(c, err)
	}
	if body.Table == "" {
		return h.fail(c, fiber.NewError(fiber.StatusBadRequest, "table is required"))
	}

	if body.Async {
		jobID := uuid.NewString()

		go func() {
			result, err := h.directories.Load(context.Background(), req, body.Table)
			if err != nil {
				logger.Error("load job failed",
					zap.String("directory", req.Directory),
					zap.String("table", body.Table),
					zap.String("job_id", jobID),
					zap.Error(err))
				return
			}
			logger.Info("load job finished",
				zap.String("directory", req.Directory),
				zap.String("table", result.Table),
				zap.String("job_id", jobID),
				zap.Int64("rows", result.Rows))
		}()

		return c.Status(fiber.StatusAccepted).JSON(LoadDataResponse{
			JobID:   jobID,
			Table:   body.Table,
			Status:  "processing",
			Message: "load started",
		})
	}

	result, err := h.directories.Load(c.Context(), req, body.Table)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(LoadDataResponse{
		Table:     result.Table,
		Rows:      result.Rows,
		FilesRead: result.FilesRead,
		Problems:  result.Problems,
		Status:    "completed",
		Message:   fmt.Sprintf("%d rows loaded", result.Rows),
	})
}

func (h *Handler) InvalidateCache(c *fiber.Ctx) error {
	if h.invalidator == nil {
		return h.fail(c, fiber.NewError(fiber.StatusServiceUnavailable, "cache not configured"))
	}

	pattern := service.CachePattern(c.Params("pattern", "*"))

	deleted, err := h.invalidator.DeletePattern(c.Context(), pattern)
	if err != nil {
		logger.Error("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		return h.fail(c, fiber.NewError(fiber.StatusInternalServerError, "cache invalidation failed"))
	}

	return c.JSON(CacheInvalidationResponse{
		Status:  "success",
		Pattern: pattern,
		Deleted: deleted,
	})
}

func (h *Handler) parseRequest(c *fiber.Ctx) (service.Request, error) {
	var body DirectoryRequest
	if err := c.BodyParser(&body); err != nil {
		return service.Request{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return body.toService()
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("request_id", getRequestID(c)),
			zap.Error(err))
	}

	message := err.Error()
	if e, ok := err.(*fiber.Error); ok {
		message = e.Message
	} else if code == fiber.StatusInternalServerError {
		message = "internal server error"
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: getRequestID(c),
		Timestamp: time.Now(),
	})
}

func statusFor(err error) int {
	var (
		fiberErr    *fiber.Error
		configErr   *ingestion.ConfigurationError
		conflictErr *ingestion.SchemaConflictError
	)

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &configErr), errors.Is(err, service.ErrInvalidTableName):
		return fiber.StatusBadRequest
	case errors.Is(err, ingestion.ErrNotADirectory):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrOutsideDataDir):
		return fiber.StatusForbidden
	case errors.As(err, &conflictErr), errors.Is(err, ingestion.ErrUnknownSortKey):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrLoaderUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
