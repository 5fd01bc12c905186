// Package sniffer provides automatic detection of spin export layouts.
// It identifies delimiters, header rows and the bet/payout/free-spin columns,
// and generates fingerprints so a layout can be recognised on later uploads.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column concept names, as reported in MissingColumnsError.
const (
	ColumnFreeSpin = "free_spin"
	ColumnBet      = "bet"
	ColumnPayout   = "payout"
	ColumnGame     = "game"
	ColumnDate     = "date"
)

// alias lists are matched against folded headers (lowercase, no accents).
type concept struct {
	name     string
	exact    []string
	contains []string
}

// Concepts claim headers in this order.
var concepts = []concept{
	{
		name:     ColumnFreeSpin,
		exact:    []string{"freespins", "freespin", "free spins", "free spin", "is free spin", "bonus", "rodada gratis", "rodadas gratis", "giro gratis"},
		contains: []string{"freespin", "free spin", "gratis", "bonus"},
	},
	{
		name:     ColumnBet,
		exact:    []string{"bet", "bets", "aposta", "apostas", "stake", "wager", "valor apostado", "bet amount"},
		contains: []string{"bet", "apost", "stake", "wager"},
	},
	{
		name:     ColumnPayout,
		exact:    []string{"payout", "win", "wins", "ganho", "ganhos", "premio", "pagamento", "win amount", "retorno"},
		contains: []string{"payout", "win", "ganho", "premi", "pagamento", "retorno"},
	},
	{
		name:     ColumnGame,
		exact:    []string{"game", "jogo", "game name", "nome do jogo", "slot"},
		contains: []string{"game", "jogo", "slot"},
	},
	{
		name:     ColumnDate,
		exact:    []string{"date", "data", "datetime", "timestamp", "data hora", "data/hora"},
		contains: []string{"date", "data", "hora", "time"},
	},
}

// FileConfig holds the detected configuration for a delimited text file
type FileConfig struct {
	Delimiter   rune       // The field delimiter (';', ',', '\t', '|')
	SkipLines   int        // Number of metadata lines before headers
	Headers     []string   // Detected header names
	Fingerprint string     // SHA256 hash of normalized headers
	SampleRows  [][]string // First few data rows for preview
}

// ColumnSuggestions provides auto-detected column indices, -1 when not found
type ColumnSuggestions struct {
	FreeSpinCol int `json:"free_spin_col"`
	BetCol      int `json:"bet_col"`
	PayoutCol   int `json:"payout_col"`
	GameCol     int `json:"game_col"`
	DateCol     int `json:"date_col"`
}

// ColumnMap is a resolved layout. Bet and Payout are always valid indices;
// the optional columns are -1 when absent.
type ColumnMap struct {
	Bet      int `json:"bet"`
	Payout   int `json:"payout"`
	FreeSpin int `json:"free_spin"`
	Game     int `json:"game"`
	Date     int `json:"date"`
}

// MissingColumnsError names every required column that could not be located.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumn
}

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find data headers")
	ErrMissingColumn  = errors.New("missing required column")
)

const maxHeaderSearch = 20

// DetectConfig analyzes a CSV/TSV file and returns its configuration
func DetectConfig(data []byte) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	delimiter, skipLines, headers, err := findHeaderLine(lines)
	if err != nil {
		return nil, err
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
		SampleRows:  getSampleRows(data, delimiter, skipLines+1, 5),
	}, nil
}

// ReadRows returns every data row below the detected header.
func ReadRows(data []byte, config *FileConfig) ([][]string, error) {
	reader := newReader(dataSection(data, config.SkipLines+1), config.Delimiter)

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// FindHeaderRow locates the header among already split rows (XLSX/XLS sheets).
// The first row naming at least two known columns wins; failing that, the
// first row naming one.
func FindHeaderRow(rows [][]string) (int, error) {
	fallback := -1
	for i, row := range rows {
		if i >= maxHeaderSearch {
			break
		}
		switch score := SuggestColumns(row).found(); {
		case score >= 2:
			return i, nil
		case score == 1 && fallback == -1:
			fallback = i
		}
	}
	if fallback >= 0 {
		return fallback, nil
	}
	return 0, ErrNoHeadersFound
}

// SuggestColumns attempts to auto-match columns based on header names.
// An exact alias match beats a substring match and each header is claimed
// at most once.
func SuggestColumns(headers []string) *ColumnSuggestions {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = fold(h)
	}

	cols := make([]int, len(concepts))
	for i := range cols {
		cols[i] = -1
	}
	claimed := make(map[int]bool, len(headers))

	claim := func(match func(h string, c concept) bool) {
		for ci, c := range concepts {
			if cols[ci] != -1 {
				continue
			}
			for hi, h := range folded {
				if claimed[hi] || h == "" {
					continue
				}
				if match(h, c) {
					cols[ci] = hi
					claimed[hi] = true
					break
				}
			}
		}
	}

	claim(func(h string, c concept) bool {
		for _, a := range c.exact {
			if h == a {
				return true
			}
		}
		return false
	})
	claim(func(h string, c concept) bool {
		for _, a := range c.contains {
			if strings.Contains(h, a) {
				return true
			}
		}
		return false
	})

	return &ColumnSuggestions{
		FreeSpinCol: cols[0],
		BetCol:      cols[1],
		PayoutCol:   cols[2],
		GameCol:     cols[3],
		DateCol:     cols[4],
	}
}

func (s *ColumnSuggestions) found() int {
	n := 0
	for _, c := range []int{s.FreeSpinCol, s.BetCol, s.PayoutCol, s.GameCol, s.DateCol} {
		if c >= 0 {
			n++
		}
	}
	return n
}

// ColumnMap converts the suggestions into a layout, without validation.
func (s *ColumnSuggestions) ColumnMap() ColumnMap {
	return ColumnMap{
		Bet:      s.BetCol,
		Payout:   s.PayoutCol,
		FreeSpin: s.FreeSpinCol,
		Game:     s.GameCol,
		Date:     s.DateCol,
	}
}

// ResolveColumns sniffs headers and fails fast when bet or payout is missing.
func ResolveColumns(headers []string) (*ColumnMap, error) {
	m := SuggestColumns(headers).ColumnMap()
	if err := m.Validate(len(headers)); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the layout against a header of width columns. Optional
// columns pointing past the header are reset to -1.
func (m *ColumnMap) Validate(width int) error {
	var missing []string
	if m.Bet < 0 || m.Bet >= width {
		missing = append(missing, ColumnBet)
	}
	if m.Payout < 0 || m.Payout >= width {
		missing = append(missing, ColumnPayout)
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	if m.Bet == m.Payout {
		return fmt.Errorf("%w: bet and payout share column %d", ErrMissingColumn, m.Bet)
	}
	for _, c := range []*int{&m.FreeSpin, &m.Game, &m.Date} {
		if *c >= width {
			*c = -1
		}
	}
	return nil
}

// findHeaderLine tries every delimiter on each of the first lines and keeps
// the split that recognises the most columns.
func findHeaderLine(lines []string) (rune, int, []string, error) {
	delimiters := []rune{';', '\t', ',', '|'}

	fallbackLine := -1
	var fallbackDelim rune
	var fallbackHeaders []string

	for i, line := range lines {
		if i >= maxHeaderSearch {
			break
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		var (
			bestDelim   rune
			bestScore   int
			bestHeaders []string
		)
		for _, d := range delimiters {
			if !strings.ContainsRune(line, d) {
				continue
			}
			fields := splitLine(line, d)
			if len(fields) < 2 {
				continue
			}
			score := SuggestColumns(fields).found()
			if score > bestScore || (score == bestScore && score > 0 && len(fields) > len(bestHeaders)) {
				bestDelim, bestScore, bestHeaders = d, score, fields
			}
		}

		if bestScore >= 2 {
			return bestDelim, i, bestHeaders, nil
		}
		if bestScore == 1 && fallbackLine == -1 {
			fallbackLine, fallbackDelim, fallbackHeaders = i, bestDelim, bestHeaders
		}
	}

	if fallbackLine >= 0 {
		return fallbackDelim, fallbackLine, fallbackHeaders, nil
	}
	return 0, 0, nil, ErrNoHeadersFound
}

func splitLine(line string, delimiter rune) []string {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	fields, err := reader.Read()
	if err != nil {
		return nil
	}
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

// fold lowercases, strips accents and turns separators into single spaces so
// "Rodada_Grátis" and "rodada gratis" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' {
			return ' '
		}
		return unicode.ToLower(r)
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// Fingerprint creates a stable hash from header names
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, fold(h))
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

// getSampleRows returns the first N data rows after the header
func getSampleRows(data []byte, delimiter rune, startLine, maxRows int) [][]string {
	reader := newReader(dataSection(data, startLine), delimiter)

	var rows [][]string
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, record)
	}

	return rows
}

// dataSection skips the first n physical lines, blank ones included.
func dataSection(data []byte, n int) []byte {
	for ; n > 0; n-- {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return nil
		}
		data = data[i+1:]
	}
	return data
}

func newReader(data []byte, delimiter rune) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable fields
	return reader
}
