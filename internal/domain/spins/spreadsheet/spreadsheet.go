// Package spreadsheet reads spin exports (XLSX, XLS, delimited text) into a
// header + rows table and writes reports back out as XLSX or CSV.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// maxXLSCols is the BIFF8 column limit, scanned when a row lacks its ROW record.
const maxXLSCols = 256

// Placeholders extrame/xls yields for cells it cannot decode: formula results
// and numbers carrying a custom number format.
const xlsFormulaCell = "FormulaCol"

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptySheet        = errors.New("worksheet is empty")
	ErrUnreadable        = errors.New("file could not be read")
)

// Table is the first worksheet of an upload, split at the detected header.
type Table struct {
	Format      Format
	Sheet       string
	HeaderRow   int // rows above the header (titles, metadata)
	Headers     []string
	Rows        [][]string
	Fingerprint string
}

// Cell returns row[col] trimmed, or "" when the row is short or col < 0.
func (t *Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// FormatOf maps a file name to the reader that will handle it.
func FormatOf(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv", ".tsv", ".txt", "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// Read parses an upload. Dispatch is on the file extension.
func Read(data []byte, fileName string) (*Table, error) {
	format, err := FormatOf(fileName)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, sniffer.ErrEmptyFile
	}

	switch format {
	case FormatXLSX:
		return readXLSX(data)
	case FormatXLS:
		return readXLS(data)
	default:
		return readDelimited(data)
	}
}

func readXLSX(data []byte) (*Table, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %w", ErrUnreadable, err)
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no worksheet found: %w", ErrEmptySheet)
	}

	// Raw values keep date cells as serials and numbers unformatted.
	rows, err := file.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrUnreadable, sheetName, err)
	}
	return newTable(FormatXLSX, sheetName, rows)
}

func readXLS(data []byte) (*Table, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: open xls: %w", ErrUnreadable, err)
	}
	if workbook == nil || workbook.NumSheets() == 0 {
		return nil, fmt.Errorf("no worksheet found: %w", ErrEmptySheet)
	}

	sheet := workbook.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("no worksheet found: %w", ErrEmptySheet)
	}

	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		rows = append(rows, xlsRowCells(sheet, i))
	}
	return newTable(FormatXLS, sheet.Name, rows)
}

// xlsRowCells returns the cells of row i with trailing blanks dropped.
// Rows absent from the sheet come back empty.
func xlsRowCells(sheet *xls.WorkSheet, i int) (cells []string) {
	// WorkSheet.Row dereferences the missing row for gaps in the sheet.
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := sheet.Row(i)
	if row == nil {
		return nil
	}
	last := row.LastCol()
	if last <= 0 {
		last = maxXLSCols
	}

	cells = make([]string, last)
	for j := range cells {
		cells[j] = row.Col(j)
	}
	for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

// UndecodedXLSCell reports whether raw is what the legacy .xls reader yields
// for a formula or a custom-formatted number instead of the cell's value.
func UndecodedXLSCell(raw string) bool {
	if raw == xlsFormulaCell {
		return true
	}
	_, err := time.Parse(time.RFC3339, raw)
	return err == nil
}

func readDelimited(data []byte) (*Table, error) {
	data = normalizeText(data)

	config, err := sniffer.DetectConfig(data)
	if err != nil {
		return nil, err
	}
	rows, err := sniffer.ReadRows(data, config)
	if err != nil {
		return nil, err
	}

	return &Table{
		Format:      FormatCSV,
		HeaderRow:   config.SkipLines,
		Headers:     config.Headers,
		Rows:        dropBlankRows(rows),
		Fingerprint: config.Fingerprint,
	}, nil
}

func newTable(format Format, sheet string, rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	headerRow, err := sniffer.FindHeaderRow(rows)
	if err != nil {
		return nil, err
	}

	headers := make([]string, len(rows[headerRow]))
	for i, h := range rows[headerRow] {
		headers[i] = strings.TrimSpace(h)
	}

	return &Table{
		Format:      format,
		Sheet:       sheet,
		HeaderRow:   headerRow,
		Headers:     headers,
		Rows:        dropBlankRows(rows[headerRow+1:]),
		Fingerprint: sniffer.Fingerprint(headers),
	}, nil
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// normalizeText strips a UTF-8 BOM and transcodes Latin-1 exports to UTF-8.
func normalizeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}
