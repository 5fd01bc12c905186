// Package service orchestrates spin report building: reading uploads,
// resolving columns, filtering free spins, aggregating and running the
// cashback engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/cashback"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/normalizer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/repository"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/spreadsheet"
	"github.com/SandersonMaxwell/spin-cashback/pkg/observability"
)

var ErrNoPaidRounds = errors.New("no paid rounds found")

// AnalyzeResult contains the result of analyzing an uploaded file
type AnalyzeResult struct {
	Format      spreadsheet.Format         `json:"format"`
	Sheet       string                     `json:"sheet,omitempty"`
	HeaderRow   int                        `json:"header_row"`
	Headers     []string                   `json:"headers"`
	Fingerprint string                     `json:"fingerprint"`
	Suggestions *sniffer.ColumnSuggestions `json:"suggestions"`
	SampleRows  [][]string                 `json:"sample_rows"`
	DateFormat  string                     `json:"date_format,omitempty"`
	RowCount    int                        `json:"row_count"`

	// Required columns the sniffer could not place
	Missing []string `json:"missing,omitempty"`

	// Existing layout found
	LayoutFound bool               `json:"layout_found"`
	Layout      *repository.Layout `json:"layout,omitempty"`
}

// SaveLayoutInput is a user-confirmed column layout for one export format
type SaveLayoutInput struct {
	Fingerprint string            `json:"fingerprint" validate:"required"`
	Name        string            `json:"name"`
	Columns     sniffer.ColumnMap `json:"columns"`
	DateFormat  string            `json:"date_format"`
}

// ReportService orchestrates file analysis and report building
type ReportService struct {
	repo   repository.LayoutRepository
	engine *cashback.Engine
	logger *slog.Logger
	tracer trace.Tracer
}

const sampleRowCount = 5

// NewReportService creates a new report service. A nil engine uses the
// default cashback policy.
func NewReportService(repo repository.LayoutRepository, engine *cashback.Engine, logger *slog.Logger) *ReportService {
	if engine == nil {
		engine = cashback.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		repo:   repo,
		engine: engine,
		logger: logger,
		tracer: otel.Tracer("spin-cashback/service"),
	}
}

// Engine exposes the cashback engine the service reports with.
func (s *ReportService) Engine() *cashback.Engine {
	return s.engine
}

// AnalyzeFile reads an upload and reports what the sniffer found, plus any
// remembered layout for the same header fingerprint.
func (s *ReportService) AnalyzeFile(ctx context.Context, fileName string, fileData []byte) (*AnalyzeResult, error) {
	ctx, span := s.tracer.Start(ctx, "ReportService.AnalyzeFile")
	defer span.End()

	table, err := s.readTable(fileName, fileData)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}
	span.SetAttributes(
		attribute.String("file.format", string(table.Format)),
		attribute.Int("file.rows", len(table.Rows)),
	)

	suggestions := sniffer.SuggestColumns(table.Headers)

	var missing []string
	cols := suggestions.ColumnMap()
	var mce *sniffer.MissingColumnsError
	if err := cols.Validate(len(table.Headers)); errors.As(err, &mce) {
		missing = mce.Columns
	}

	layout, err := s.repo.GetLayoutByFingerprint(ctx, table.Fingerprint)
	if err != nil {
		s.logger.WarnContext(ctx, "layout lookup failed, returning suggestions only", slog.Any("error", err))
		layout = nil
	}

	samples := table.Rows
	if len(samples) > sampleRowCount {
		samples = samples[:sampleRowCount]
	}

	dateFormat := ""
	if suggestions.DateCol >= 0 {
		dateFormat = normalizer.DetectDateFormat(columnSamples(table, suggestions.DateCol, 20))
	}

	return &AnalyzeResult{
		Format:      table.Format,
		Sheet:       table.Sheet,
		HeaderRow:   table.HeaderRow,
		Headers:     table.Headers,
		Fingerprint: table.Fingerprint,
		Suggestions: suggestions,
		SampleRows:  samples,
		DateFormat:  dateFormat,
		RowCount:    len(table.Rows),
		Missing:     missing,
		LayoutFound: layout != nil,
		Layout:      layout,
	}, nil
}

// SaveLayout remembers a column layout for future uploads with the same
// header fingerprint
func (s *ReportService) SaveLayout(ctx context.Context, in SaveLayoutInput) (*repository.Layout, error) {
	if strings.TrimSpace(in.Fingerprint) == "" {
		return nil, fmt.Errorf("%w: fingerprint is required", common.ErrBadRequest)
	}
	cols := in.Columns
	if cols.Bet < 0 || cols.Payout < 0 || cols.Bet == cols.Payout {
		return nil, fmt.Errorf("%w: bet and payout must be distinct columns", common.ErrBadRequest)
	}

	var name *string
	if n := strings.TrimSpace(in.Name); n != "" {
		name = &n
	}

	layout := &repository.Layout{
		Fingerprint: in.Fingerprint,
		Name:        name,
		DateFormat:  in.DateFormat,
		BetCol:      cols.Bet,
		PayoutCol:   cols.Payout,
		FreeSpinCol: optionalCol(cols.FreeSpin),
		GameCol:     optionalCol(cols.Game),
		DateCol:     optionalCol(cols.Date),
	}
	if err := s.repo.UpsertLayout(ctx, layout); err != nil {
		return nil, fmt.Errorf("failed to save layout: %w", err)
	}

	s.logger.InfoContext(ctx, "layout saved",
		slog.String("layout_id", layout.ID.String()),
		slog.String("fingerprint", layout.Fingerprint),
	)
	return layout, nil
}

// ListLayouts returns every remembered layout
func (s *ReportService) ListLayouts(ctx context.Context) ([]*repository.Layout, error) {
	layouts, err := s.repo.ListLayouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	return layouts, nil
}

// DeleteLayout forgets a remembered layout
func (s *ReportService) DeleteLayout(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteLayout(ctx, id); err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	return nil
}

func (s *ReportService) readTable(fileName string, fileData []byte) (*spreadsheet.Table, error) {
	table, err := spreadsheet.Read(fileData, fileName)
	if err != nil {
		format, _ := spreadsheet.FormatOf(fileName)
		observability.FilesParsed.WithLabelValues(string(format), "error").Inc()
		return nil, err
	}
	observability.FilesParsed.WithLabelValues(string(table.Format), "ok").Inc()
	return table, nil
}

// resolveColumns picks the layout in priority order: explicit, remembered,
// sniffed. A remembered layout that no longer fits the header is ignored.
func (s *ReportService) resolveColumns(ctx context.Context, table *spreadsheet.Table, explicit *sniffer.ColumnMap) (sniffer.ColumnMap, string, error) {
	if explicit != nil {
		cols := *explicit
		if err := cols.Validate(len(table.Headers)); err != nil {
			return sniffer.ColumnMap{}, "", err
		}
		return cols, "", nil
	}

	layout, err := s.repo.GetLayoutByFingerprint(ctx, table.Fingerprint)
	if err != nil {
		s.logger.WarnContext(ctx, "layout lookup failed, sniffing columns", slog.Any("error", err))
	}
	if layout != nil {
		cols := layoutColumns(layout)
		if err := cols.Validate(len(table.Headers)); err == nil {
			return cols, layout.DateFormat, nil
		}
		s.logger.WarnContext(ctx, "remembered layout does not fit header",
			slog.String("layout_id", layout.ID.String()))
	}

	cols, err := sniffer.ResolveColumns(table.Headers)
	if err != nil {
		return sniffer.ColumnMap{}, "", err
	}
	return *cols, "", nil
}

func layoutColumns(l *repository.Layout) sniffer.ColumnMap {
	deref := func(p *int) int {
		if p == nil {
			return -1
		}
		return *p
	}
	return sniffer.ColumnMap{
		Bet:      l.BetCol,
		Payout:   l.PayoutCol,
		FreeSpin: deref(l.FreeSpinCol),
		Game:     deref(l.GameCol),
		Date:     deref(l.DateCol),
	}
}

func optionalCol(c int) *int {
	if c < 0 {
		return nil
	}
	return &c
}

func columnSamples(table *spreadsheet.Table, col, limit int) []string {
	samples := make([]string, 0, limit)
	for _, row := range table.Rows {
		if v := table.Cell(row, col); v != "" {
			samples = append(samples, v)
			if len(samples) == limit {
				break
			}
		}
	}
	return samples
}
