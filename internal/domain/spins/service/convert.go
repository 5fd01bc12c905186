package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/normalizer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/spreadsheet"
)

const (
	ConvertedSheet    = "Dados Convertidos"
	ConvertedFileName = "datas_convertidas_filtradas.xlsx"

	isoDate = "2006-01-02"
)

// Conversion is the paid-rounds-only workbook with ISO dates
type Conversion struct {
	Export
	Rows       int    `json:"rows"`
	FreeSpins  int    `json:"free_spins"`
	Unparsed   int    `json:"unparsed_dates"`
	DateColumn string `json:"date_column"`
}

// ConvertDates keeps only paid rounds (free-spin flag false) and rewrites the
// date column as YYYY-MM-DD. The date column is the sniffed one, else the
// second column. Dates that cannot be read become empty cells.
func (s *ReportService) ConvertDates(ctx context.Context, fileName string, fileData []byte) (*Conversion, error) {
	ctx, span := s.tracer.Start(ctx, "ReportService.ConvertDates")
	defer span.End()

	table, err := s.readTable(fileName, fileData)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	suggestions := sniffer.SuggestColumns(table.Headers)
	if suggestions.FreeSpinCol < 0 {
		return nil, &sniffer.MissingColumnsError{Columns: []string{sniffer.ColumnFreeSpin}}
	}

	dateCol := suggestions.DateCol
	if dateCol < 0 || dateCol == suggestions.FreeSpinCol {
		dateCol = 1
	}
	if dateCol >= len(table.Headers) {
		return nil, &sniffer.MissingColumnsError{Columns: []string{sniffer.ColumnDate}}
	}

	var paid [][]string
	free := 0
	for _, row := range table.Rows {
		// only rows explicitly flagged as paid survive; blank flags are dropped
		flag := table.Cell(row, suggestions.FreeSpinCol)
		isFree, err := normalizer.ParseFlag(flag)
		if err != nil || isFree || strings.TrimSpace(flag) == "" {
			free++
			continue
		}
		paid = append(paid, row)
	}
	if len(paid) == 0 {
		return nil, ErrNoPaidRounds
	}

	serial := table.Format != spreadsheet.FormatCSV
	dateFormat := normalizer.DetectDateFormat(columnSamples(table, dateCol, 20))

	unparsed := 0
	rows := make([][]any, 0, len(paid))
	for _, row := range paid {
		out := make([]any, len(table.Headers))
		for i := range table.Headers {
			raw := table.Cell(row, i)
			if i == dateCol {
				out[i] = ""
				if raw == "" {
					continue
				}
				t, err := parseDateCell(raw, dateFormat, time.UTC, serial)
				if err != nil {
					unparsed++
					continue
				}
				out[i] = t.Format(isoDate)
				continue
			}
			if i == suggestions.FreeSpinCol {
				out[i] = false
				continue
			}
			out[i] = typedCell(raw)
		}
		rows = append(rows, out)
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteXLSX(&buf, ConvertedSheet, table.Headers, rows); err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}

	span.SetAttributes(
		attribute.Int("convert.rows", len(rows)),
		attribute.Int("convert.unparsed", unparsed),
	)
	s.logger.InfoContext(ctx, "dates converted",
		slog.String("file_name", fileName),
		slog.Int("rows", len(rows)),
		slog.Int("free_spins", free),
		slog.Int("unparsed_dates", unparsed),
	)

	return &Conversion{
		Export: Export{
			FileName:    ConvertedFileName,
			ContentType: ContentTypeXLSX,
			Data:        buf.Bytes(),
		},
		Rows:       len(rows),
		FreeSpins:  free,
		Unparsed:   unparsed,
		DateColumn: table.Headers[dateCol],
	}, nil
}

// typedCell keeps plain decimal numbers numeric in the output workbook.
// Identifiers with leading zeros stay text.
func typedCell(raw string) any {
	if raw == "" {
		return nil
	}
	if len(raw) > 1 && raw[0] == '0' && raw[1] != '.' {
		return raw
	}
	if strings.ContainsAny(raw, "eEnNiI") {
		return raw
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
