package service

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/spreadsheet"
)

const (
	reportSheet = "Resumo por Jogo"
	totalLabel  = "TOTAL"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

var reportHeaders = []string{"Game", "Total Bet", "Total Payout", "Player Profit"}

// Export is a downloadable rendering of a report
type Export struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportReport renders one row per game plus a totals row.
// Format is "xlsx" (default) or "csv".
func (s *ReportService) ExportReport(report *Report, format string) (*Export, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: no report to export", common.ErrBadRequest)
	}

	rows := make([][]any, 0, len(report.Games)+1)
	for _, g := range report.Games {
		rows = append(rows, []any{g.Game, g.TotalBet, g.TotalPayout, g.PlayerProfit})
	}
	rows = append(rows, []any{
		totalLabel,
		report.TotalBet,
		report.TotalPayout,
		report.TotalPayout.Sub(report.TotalBet),
	})

	base := exportBaseName(report.FileName)

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "", string(spreadsheet.FormatXLSX):
		if err := spreadsheet.WriteXLSX(&buf, reportSheet, reportHeaders, rows); err != nil {
			return nil, fmt.Errorf("failed to write xlsx: %w", err)
		}
		return &Export{FileName: base + ".xlsx", ContentType: ContentTypeXLSX, Data: buf.Bytes()}, nil
	case string(spreadsheet.FormatCSV):
		if err := spreadsheet.WriteCSV(&buf, reportHeaders, rows); err != nil {
			return nil, fmt.Errorf("failed to write csv: %w", err)
		}
		return &Export{FileName: base + ".csv", ContentType: ContentTypeCSV, Data: buf.Bytes()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", spreadsheet.ErrUnsupportedFormat, format)
	}
}

func exportBaseName(fileName string) string {
	name := fileName
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	if name == "" {
		name = "relatorio"
	}
	return "cashback_" + name
}
