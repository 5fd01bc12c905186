package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
	"github.com/SandersonMaxwell/spin-cashback/pkg/interceptors"
)

const defaultMaxUpload int64 = 32 << 20

// UploadHandler serves multipart spreadsheet uploads for browsers and
// scripts that do not speak Connect.
type UploadHandler struct {
	svc       *service.ReportService
	logger    *slog.Logger
	maxUpload int64
}

// NewUploadHandler constructs a new handler. maxUpload caps the request
// body in bytes.
func NewUploadHandler(svc *service.ReportService, logger *slog.Logger, maxUpload int64) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &UploadHandler{svc: svc, logger: logger, maxUpload: maxUpload}
}

// Routes returns the upload routes, meant to be mounted under /api/v1.
func (h *UploadHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/reports", h.CreateReport)
	r.Post("/reports/export", h.ExportReport)
	r.Post("/conversions", h.ConvertDates)
	r.Get("/policy", h.GetPolicy)
	r.Get("/layouts", h.ListLayouts)
	return r
}

type upload struct {
	fileName string
	data     []byte
	opts     service.ReportOptions
}

// CreateReport handles POST /reports with a multipart "file" field.
// Optional fields: columns (JSON column map), date_format, timezone.
func (h *UploadHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.svc.BuildReport(r.Context(), up.fileName, up.data, up.opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BuildReportResponse{Report: report, Labels: labelsFor(report)})
}

// ExportReport handles POST /reports/export?format=xlsx|csv and returns the
// per-game summary as a download.
func (h *UploadHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.svc.BuildReport(r.Context(), up.fileName, up.data, up.opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	export, err := h.svc.ExportReport(report, r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeDownload(w, export)
}

// ConvertDates handles POST /conversions: paid rounds only, ISO dates,
// returned as an XLSX download.
func (h *UploadHandler) ConvertDates(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conv, err := h.svc.ConvertDates(r.Context(), up.fileName, up.data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Rows", strconv.Itoa(conv.Rows))
	w.Header().Set("X-Free-Spins", strconv.Itoa(conv.FreeSpins))
	w.Header().Set("X-Unparsed-Dates", strconv.Itoa(conv.Unparsed))
	h.writeDownload(w, &conv.Export)
}

func (h *UploadHandler) GetPolicy(w http.ResponseWriter, _ *http.Request) {
	policy := h.svc.Engine().Policy()
	h.writeJSON(w, http.StatusOK, GetPolicyResponse{Policy: policy, MinRounds: policy.MinRounds()})
}

func (h *UploadHandler) ListLayouts(w http.ResponseWriter, r *http.Request) {
	layouts, err := h.svc.ListLayouts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListLayoutsResponse{Layouts: layouts})
}

func (h *UploadHandler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	if r.ContentLength > h.maxUpload {
		return nil, &http.MaxBytesError{Limit: h.maxUpload}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invalid multipart form: %v", common.ErrBadRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: file field is required", common.ErrBadRequest)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	opts, err := reportOptions(r.FormValue("timezone"), r.FormValue("date_format"))
	if err != nil {
		return nil, err
	}
	if raw := r.FormValue("columns"); raw != "" {
		var cols sniffer.ColumnMap
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return nil, fmt.Errorf("%w: columns must be a JSON column map", common.ErrBadRequest)
		}
		opts.Columns = &cols
	}

	return &upload{fileName: header.Filename, data: data, opts: opts}, nil
}

func (h *UploadHandler) writeDownload(w http.ResponseWriter, export *service.Export) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Data); err != nil {
		h.logger.Error("failed to write download", slog.Any("error", err))
	}
}

func (h *UploadHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

type errorBody struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing_columns,omitempty"`
}

func (h *UploadHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}

	body := errorBody{Error: err.Error()}
	var missing *sniffer.MissingColumnsError
	if errors.As(err, &missing) {
		body.Missing = missing.Columns
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
		body.Error = "internal server error"
	}
	h.logger.Log(r.Context(), level, "upload request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", interceptors.RequestIDFromContext(r.Context())),
		slog.Int("status", status),
		slog.Any("error", err),
	)
	h.writeJSON(w, status, body)
}
