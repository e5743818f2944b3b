// Package logs provides the HTTP handlers for upload, job status,
// search, aggregation, and export endpoints.
package logs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/star-labs/logscanner/internal/export"
	"github.com/star-labs/logscanner/internal/ingest"
	"github.com/star-labs/logscanner/internal/models"
	"github.com/star-labs/logscanner/internal/parser"
	"github.com/star-labs/logscanner/internal/query"
	"github.com/star-labs/logscanner/internal/reader"
	"github.com/star-labs/logscanner/internal/storage"
)

// Response helpers (local to avoid an import cycle with the api package;
// the envelope shape must stay in sync with api.Response).

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

type apiResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

const (
	errCodeNotFound        = "NOT_FOUND"
	errCodeBadRequest      = "BAD_REQUEST"
	errCodeInternalError   = "INTERNAL_ERROR"
	errCodeInvalidQuery    = "INVALID_QUERY"
	errCodeFileEmpty       = "FILE_EMPTY"
	errCodeFileTooLarge    = "FILE_TOO_LARGE"
	errCodeInvalidFileType = "INVALID_FILE_TYPE"
	errCodeServerBusy      = "SERVER_BUSY"

	defaultContextLines   = 5
	defaultTimelineBucket = "1m"
	uploadMemoryLimit     = 32 << 20
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Message: message,
		Error:   &apiError{Code: code, Message: message},
	})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func jsonAccepted(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Message: message, Data: data})
}

// writeError maps domain errors onto the response envelope.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		jsonError(w, http.StatusNotFound, errCodeNotFound, "Job not found")
	case errors.Is(err, query.ErrInvalidQuery):
		jsonError(w, http.StatusBadRequest, errCodeInvalidQuery, err.Error())
	case errors.Is(err, export.ErrInvalidExport):
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
	case errors.Is(err, ingest.ErrPoolSaturated), errors.Is(err, ingest.ErrPoolClosed):
		jsonError(w, http.StatusServiceUnavailable, errCodeServerBusy, "Server is busy, try again later")
	default:
		log.Printf("internal error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Internal server error")
	}
}

// Handler serves the /logs endpoint group.
type Handler struct {
	controller *ingest.Controller
	executor   *query.Executor
	exporter   *export.Exporter
	registry   *parser.Registry

	maxFileSize  int64
	allowedTypes map[string]bool
}

// NewHandler wires the endpoint group over the pipeline components.
// allowedTypes lists accepted upload extensions without the dot.
func NewHandler(controller *ingest.Controller, executor *query.Executor, exporter *export.Exporter, registry *parser.Registry, maxFileSize int64, allowedTypes []string) *Handler {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))] = true
	}
	return &Handler{
		controller:   controller,
		executor:     executor,
		exporter:     exporter,
		registry:     registry,
		maxFileSize:  maxFileSize,
		allowedTypes: allowed,
	}
}

// Routes registers the endpoint group on a router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/status/{jobID}", h.Status)
	r.Get("/result/{jobID}", h.Result)
	r.Post("/search", h.SearchPost)
	r.Get("/search", h.SearchGet)
	r.Get("/parsers", h.Parsers)

	r.Route("/job/{jobID}", func(r chi.Router) {
		r.Delete("/", h.Delete)
		r.Get("/summary", h.Summary)
		r.Get("/levels", h.Levels)
		r.Get("/timeline", h.Timeline)
		r.Get("/fields", h.Fields)
		r.Get("/fields/{field}", h.FieldValues)
		r.Get("/context/{lineNumber}", h.Context)
		r.Get("/export", h.Export)
		r.Post("/export", h.Export)
	})
}

// UploadResponse points the client at the status and result endpoints.
type UploadResponse struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
	ResultURL string `json:"resultUrl"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
}

// Upload accepts a multipart log file and queues it for processing.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+uploadMemoryLimit)
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("logfile")
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "missing logfile field")
		return
	}
	defer file.Close()

	if header.Size == 0 {
		jsonError(w, http.StatusBadRequest, errCodeFileEmpty, "Uploaded file is empty")
		return
	}
	if h.maxFileSize > 0 && header.Size > h.maxFileSize {
		jsonError(w, http.StatusRequestEntityTooLarge, errCodeFileTooLarge,
			fmt.Sprintf("File exceeds maximum size of %d bytes", h.maxFileSize))
		return
	}
	if !h.typeAllowed(header.Filename) {
		jsonError(w, http.StatusBadRequest, errCodeInvalidFileType,
			fmt.Sprintf("File type not allowed: %s", header.Filename))
		return
	}

	job, err := h.controller.Submit(r.Context(), ingest.Upload{
		FileName:        header.Filename,
		FileSize:        header.Size,
		TimestampFormat: r.FormValue("timestampFormat"),
		Content:         file,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	jsonAccepted(w, job.Message, UploadResponse{
		JobID:     job.JobID,
		StatusURL: "/logs/status/" + job.JobID,
		ResultURL: "/logs/result/" + job.JobID,
		FileName:  job.FileName,
		FileSize:  job.FileSize,
	})
}

func (h *Handler) typeAllowed(fileName string) bool {
	if len(h.allowedTypes) == 0 {
		return true
	}
	base := reader.TrimCompression(fileName)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	return h.allowedTypes[ext]
}

// Status returns the current job status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	job, err := h.controller.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, job)
}

// ResultResponse carries the terminal processing counters.
type ResultResponse struct {
	JobID            string            `json:"jobId"`
	Status           models.JobState   `json:"status"`
	FileName         string            `json:"fileName,omitempty"`
	Message          string            `json:"message,omitempty"`
	TotalLines       int64             `json:"totalLines"`
	ProcessedLines   int64             `json:"processedLines"`
	SuccessfulLines  int64             `json:"successfulLines"`
	FailedLines      int64             `json:"failedLines"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	LinesPerSecond   float64           `json:"linesPerSecond"`
	LevelCounts      map[string]int64  `json:"levelCounts,omitempty"`
	CompletedAt      *models.Timestamp `json:"completedAt,omitempty"`
}

// Result returns the processing counters of a completed job.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	job, err := h.controller.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if job.Status != models.JobCompleted {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError,
			fmt.Sprintf("Processing not completed, current status: %s", job.Status))
		return
	}

	jsonOK(w, ResultResponse{
		JobID:            job.JobID,
		Status:           job.Status,
		FileName:         job.FileName,
		Message:          job.Message,
		TotalLines:       job.TotalLines,
		ProcessedLines:   job.ProcessedLines,
		SuccessfulLines:  job.SuccessfulLines,
		FailedLines:      job.FailedLines,
		ProcessingTimeMs: job.ProcessingTimeMs,
		LinesPerSecond:   job.LinesPerSecond,
		LevelCounts:      job.LevelCounts,
		CompletedAt:      job.CompletedAt,
	})
}

// SearchPost runs a structured search from a JSON body.
func (h *Handler) SearchPost(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	h.runSearch(w, r, &req)
}

// SearchGet runs a search bound from flat query parameters.
func (h *Handler) SearchGet(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	h.runSearch(w, r, req)
}

func (h *Handler) runSearch(w http.ResponseWriter, r *http.Request, req *query.Request) {
	if err := h.ensureJob(r, req.JobID); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.executor.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, resp)
}

func (h *Handler) ensureJob(r *http.Request, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("%w: jobId is required", query.ErrInvalidQuery)
	}
	_, err := h.controller.Status(r.Context(), jobID)
	return err
}

// Summary returns job metadata merged with entry aggregates.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.controller.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.executor.Summary(r.Context(), &query.Request{JobID: jobID})
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, query.BuildJobSummary(job, summary))
}

// Levels returns the per-level entry counts.
func (h *Handler) Levels(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.ensureJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}

	counts, err := h.executor.LevelDistribution(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, counts)
}

// Timeline returns the date histogram at the requested interval.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.ensureJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = defaultTimelineBucket
	}
	data, err := h.executor.Timeline(r.Context(), jobID, interval)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, data)
}

// Fields returns the searchable field values for form population.
func (h *Handler) Fields(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.ensureJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}

	fields, err := h.executor.Fields(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, fields)
}

// FieldValues returns the unique values of one keyword field.
func (h *Handler) FieldValues(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.ensureJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	values, err := h.executor.UniqueValues(r.Context(), jobID, chi.URLParam(r, "field"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, values)
}

// Context returns the lines surrounding one line number.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.ensureJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}

	line, err := strconv.ParseInt(chi.URLParam(r, "lineNumber"), 10, 64)
	if err != nil || line < 1 {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid line number")
		return
	}

	before := queryInt(r.URL.Query(), "before", defaultContextLines)
	after := queryInt(r.URL.Query(), "after", defaultContextLines)

	minLine := line - int64(before)
	if minLine < 1 {
		minLine = 1
	}
	maxLine := line + int64(after)
	noSummary := false

	req := &query.Request{
		JobID:          jobID,
		MinLineNumber:  &minLine,
		MaxLineNumber:  &maxLine,
		SortBy:         "lineNumber",
		SortDirection:  "asc",
		Size:           before + after + 1,
		IncludeSummary: &noSummary,
	}
	resp, err := h.executor.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, resp)
}

// Export streams matching entries as CSV, JSON, or NDJSON.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.ensureJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}

	req, err := h.parseExportRequest(r, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", req.Format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "logs-"+jobID+"."+req.Format.Extension()))

	if _, err := h.exporter.Export(r.Context(), w, req); err != nil {
		// Headers are already on the wire; the truncated body is all we
		// can signal with.
		log.Printf("export job %s: %v", jobID, err)
	}
}

func (h *Handler) parseExportRequest(r *http.Request, jobID string) (*export.Request, error) {
	if r.Method == http.MethodPost {
		var req export.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("%w: invalid request body", export.ErrInvalidExport)
		}
		if req.Query == nil {
			req.Query = &query.Request{}
		}
		req.Query.JobID = jobID
		if format := r.URL.Query().Get("format"); format != "" {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return nil, err
			}
			req.Format = parsed
		}
		return &req, nil
	}

	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		return nil, err
	}

	searchReq, err := parseSearchQuery(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", export.ErrInvalidExport, err)
	}
	searchReq.JobID = jobID

	req := &export.Request{Query: searchReq, Format: format}
	if fields := q.Get("fields"); fields != "" {
		req.Fields = splitList(fields)
	}
	if s := q.Get("maxRecords"); s != "" {
		req.MaxRecords, _ = strconv.Atoi(s)
	}
	if s := q.Get("includeHeaders"); s != "" {
		include := s == "true"
		req.IncludeHeaders = &include
	}
	if d := q.Get("delimiter"); d != "" {
		req.Delimiter = d
	}
	return req, nil
}

// Delete removes a finished job and its indexed entries.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	removed, err := h.controller.Delete(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			writeError(w, err)
			return
		}
		jsonError(w, http.StatusConflict, errCodeBadRequest, err.Error())
		return
	}
	jsonOK(w, map[string]any{"jobId": jobID, "deletedEntries": removed})
}

// Parsers returns the registered parser descriptions.
func (h *Handler) Parsers(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.registry.Infos())
}

// parseSearchQuery binds flat URL parameters onto a search request.
func parseSearchQuery(q url.Values) (*query.Request, error) {
	req := &query.Request{
		JobID:         q.Get("jobId"),
		SearchText:    q.Get("searchText"),
		FileName:      q.Get("fileName"),
		Logger:        q.Get("logger"),
		Thread:        q.Get("thread"),
		Source:        q.Get("source"),
		Hostname:      q.Get("hostname"),
		Application:   q.Get("application"),
		Environment:   q.Get("environment"),
		SortBy:        q.Get("sortBy"),
		SortDirection: q.Get("sortDirection"),
	}

	if levels := q.Get("levels"); levels != "" {
		req.Levels = splitList(levels)
	} else if level := q.Get("level"); level != "" {
		req.Levels = splitList(level)
	}
	if fields := q.Get("searchFields"); fields != "" {
		req.SearchFields = splitList(fields)
	}
	if tags := q.Get("tags"); tags != "" {
		req.Tags = splitList(tags)
	}

	var err error
	if req.HasError, err = queryBool(q, "hasError"); err != nil {
		return nil, err
	}
	if req.HasStackTrace, err = queryBool(q, "hasStackTrace"); err != nil {
		return nil, err
	}

	if req.StartDate, err = queryTime(q, "startDate"); err != nil {
		return nil, err
	}
	if req.EndDate, err = queryTime(q, "endDate"); err != nil {
		return nil, err
	}

	if req.MinLineNumber, err = queryInt64(q, "minLineNumber"); err != nil {
		return nil, err
	}
	if req.MaxLineNumber, err = queryInt64(q, "maxLineNumber"); err != nil {
		return nil, err
	}

	req.Page = queryInt(q, "page", 0)
	req.Size = queryInt(q, "size", 0)

	if s := q.Get("includeSummary"); s != "" {
		include := s == "true"
		req.IncludeSummary = &include
	}
	req.HighlightMatches = q.Get("highlight") == "true"

	return req, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func queryInt(q url.Values, key string, fallback int) int {
	s := q.Get(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func queryInt64(q url.Values, key string) (*int64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, s)
	}
	return &n, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, s)
	}
	return &b, nil
}

func queryTime(q url.Values, key string) (*models.Timestamp, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	var ts models.Timestamp
	if err := ts.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, s)
	}
	return &ts, nil
}
