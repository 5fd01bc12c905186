package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/stat"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/cashback"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/normalizer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/spreadsheet"
	"github.com/SandersonMaxwell/spin-cashback/pkg/observability"
)

const (
	// UnknownGame labels rounds whose game cell is empty or absent.
	UnknownGame = "(unknown)"

	maxWarnings = 200
)

// ReportOptions tunes BuildReport
type ReportOptions struct {
	// Columns overrides both remembered layouts and sniffing.
	Columns *sniffer.ColumnMap
	// DateFormat such as "DD/MM/YYYY"; detected from the data when empty.
	DateFormat string
	Location   *time.Location
}

// GameSummary aggregates the paid rounds of one game. PlayerProfit is
// payout - bet, the player's side of the ledger.
type GameSummary struct {
	Game         string          `json:"game"`
	Rounds       int             `json:"rounds"`
	TotalBet     decimal.Decimal `json:"total_bet"`
	TotalPayout  decimal.Decimal `json:"total_payout"`
	PlayerProfit decimal.Decimal `json:"player_profit"`
	RTP          decimal.Decimal `json:"rtp"`
	MeanStake    float64         `json:"mean_stake"`
	StakeStdDev  float64         `json:"stake_std_dev"`
}

// Report is the outcome of one upload. HouseDifferential is bet - payout,
// the figure the cashback engine gates eligibility on.
type Report struct {
	ID                uuid.UUID          `json:"id"`
	FileName          string             `json:"file_name"`
	Format            spreadsheet.Format `json:"format"`
	Fingerprint       string             `json:"fingerprint"`
	Columns           sniffer.ColumnMap  `json:"columns"`
	TotalRows         int                `json:"total_rows"`
	FreeSpinRows      int                `json:"free_spin_rows"`
	SkippedRows       int                `json:"skipped_rows"`
	QualifyingRounds  int                `json:"qualifying_rounds"`
	TotalBet          decimal.Decimal    `json:"total_bet"`
	TotalPayout       decimal.Decimal    `json:"total_payout"`
	HouseDifferential decimal.Decimal    `json:"house_differential"`
	PeriodStart       *time.Time         `json:"period_start,omitempty"`
	PeriodEnd         *time.Time         `json:"period_end,omitempty"`
	Games             []GameSummary      `json:"games"`
	Cashback          cashback.Result    `json:"cashback"`
	ParseWarnings     int                `json:"parse_warnings"`
	Warnings          []string           `json:"warnings,omitempty"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

type spinRow struct {
	game     string
	bet      decimal.Decimal
	payout   decimal.Decimal
	freeSpin bool
	playedAt time.Time
}

type parseJob struct {
	lineNum int
	record  []string
}

type parseResult struct {
	lineNum  int
	row      *spinRow
	warnings []string
	err      error
}

// BuildReport reads an upload, drops free-spin rounds, sums the paid ones
// and runs the cashback engine over the totals.
func (s *ReportService) BuildReport(ctx context.Context, fileName string, fileData []byte, opts ReportOptions) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "ReportService.BuildReport")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.ReportDuration.Observe(time.Since(start).Seconds())
	}()

	table, err := s.readTable(fileName, fileData)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cols, dateFormat, err := s.resolveColumns(ctx, table, opts.Columns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "columns unresolved")
		return nil, fmt.Errorf("failed to resolve columns: %w", err)
	}
	if opts.DateFormat != "" {
		dateFormat = opts.DateFormat
	}
	if dateFormat == "" && cols.Date >= 0 {
		dateFormat = normalizer.DetectDateFormat(columnSamples(table, cols.Date, 20))
	}

	report := &Report{
		ID:          uuid.New(),
		FileName:    fileName,
		Format:      table.Format,
		Fingerprint: table.Fingerprint,
		Columns:     cols,
		TotalRows:   len(table.Rows),
		GeneratedAt: time.Now().UTC(),
	}
	if cols.FreeSpin < 0 {
		report.Warnings = append(report.Warnings, "free-spin column not found; every row counted as a paid round")
	}

	parser := rowParser{
		cols:        cols,
		dateFormat:  dateFormat,
		loc:         opts.Location,
		serialDates: table.Format != spreadsheet.FormatCSV,
		legacyXLS:   table.Format == spreadsheet.FormatXLS,
	}

	parseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type lineWarning struct {
		lineNum int
		msg     string
	}
	var lineWarnings []lineWarning

	agg := newAggregator()
	results := s.parseRowsStream(parseCtx, table.Rows, table.HeaderRow+2, parser)
	for result := range results {
		for _, w := range result.warnings {
			lineWarnings = append(lineWarnings, lineWarning{result.lineNum, w})
		}
		if result.err != nil {
			report.SkippedRows++
			lineWarnings = append(lineWarnings, lineWarning{result.lineNum, result.err.Error()})
			continue
		}
		if result.row.freeSpin {
			report.FreeSpinRows++
			continue
		}
		agg.add(result.row)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(lineWarnings, func(i, j int) bool {
		return lineWarnings[i].lineNum < lineWarnings[j].lineNum
	})
	report.ParseWarnings = len(lineWarnings)
	for i, w := range lineWarnings {
		if i == maxWarnings {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%d more warnings omitted", len(lineWarnings)-maxWarnings))
			break
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("line %d: %s", w.lineNum, w.msg))
	}

	agg.fill(report)
	report.Cashback = s.engine.Compute(report.QualifyingRounds, report.TotalBet, report.TotalPayout)

	observability.RowsProcessed.WithLabelValues("paid").Add(float64(report.QualifyingRounds))
	observability.RowsProcessed.WithLabelValues("free_spin").Add(float64(report.FreeSpinRows))
	observability.RowsProcessed.WithLabelValues("skipped").Add(float64(report.SkippedRows))
	observability.CashbackComputations.WithLabelValues(strconv.FormatBool(report.Cashback.Eligible)).Inc()

	span.SetAttributes(
		attribute.String("report.id", report.ID.String()),
		attribute.Int("report.rounds", report.QualifyingRounds),
		attribute.Int("report.free_spins", report.FreeSpinRows),
		attribute.Bool("report.eligible", report.Cashback.Eligible),
	)
	s.logger.InfoContext(ctx, "report built",
		slog.String("report_id", report.ID.String()),
		slog.String("file_name", fileName),
		slog.Int("rows", report.TotalRows),
		slog.Int("rounds", report.QualifyingRounds),
		slog.Int("free_spins", report.FreeSpinRows),
		slog.Int("skipped", report.SkippedRows),
		slog.Bool("eligible", report.Cashback.Eligible),
		slog.String("amount", report.Cashback.Amount.StringFixed(2)),
	)

	return report, nil
}

// parseRowsStream fans rows out to a worker pool. Results arrive in no
// particular order; callers aggregate with order-independent sums.
func (s *ReportService) parseRowsStream(ctx context.Context, rows [][]string, firstLine int, parser rowParser) <-chan parseResult {
	workerCount := runtime.GOMAXPROCS(0)
	if workerCount < 1 {
		workerCount = 1
	}

	results := make(chan parseResult, workerCount*4)
	jobs := make(chan parseJob, workerCount*4)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				row, warnings, err := parser.parse(job.record)
				select {
				case results <- parseResult{lineNum: job.lineNum, row: row, warnings: warnings, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, record := range rows {
			select {
			case jobs <- parseJob{lineNum: firstLine + i, record: record}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

type rowParser struct {
	cols        sniffer.ColumnMap
	dateFormat  string
	loc         *time.Location
	serialDates bool
	legacyXLS   bool
}

// parse converts a sheet row into a spin. Unreadable amounts count as zero
// with a warning; an unreadable free-spin flag rejects the row.
func (p rowParser) parse(record []string) (*spinRow, []string, error) {
	if p.cols.Bet >= len(record) && p.cols.Payout >= len(record) {
		return nil, nil, fmt.Errorf("row has %d columns, bet and payout absent", len(record))
	}

	row := &spinRow{}
	if p.cols.FreeSpin >= 0 {
		raw := cell(record, p.cols.FreeSpin)
		free, err := normalizer.ParseFlag(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("unrecognised free-spin flag %q", raw)
		}
		if free {
			row.freeSpin = true
			return row, nil, nil
		}
	}

	var warnings []string
	row.bet, warnings = p.amount(record, p.cols.Bet, sniffer.ColumnBet, warnings)
	row.payout, warnings = p.amount(record, p.cols.Payout, sniffer.ColumnPayout, warnings)

	row.game = normalizer.CleanDescription(cell(record, p.cols.Game))
	if row.game == "" {
		row.game = UnknownGame
	}

	if p.cols.Date >= 0 {
		if raw := cell(record, p.cols.Date); raw != "" {
			t, err := parseDateCell(raw, p.dateFormat, p.loc, p.serialDates)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("unparsable date %q", raw))
			} else {
				row.playedAt = t
			}
		}
	}

	return row, warnings, nil
}

func (p rowParser) amount(record []string, col int, name string, warnings []string) (decimal.Decimal, []string) {
	raw := cell(record, col)
	v, ok := normalizer.Parse(raw)
	switch {
	case ok || raw == "":
	case p.legacyXLS && spreadsheet.UndecodedXLSCell(raw):
		warnings = append(warnings, fmt.Sprintf("%s is a formula or custom-formatted .xls cell that cannot be read, counted as 0; save the file as .xlsx", name))
	default:
		warnings = append(warnings, fmt.Sprintf("%s %q is not a number, counted as 0", name, raw))
	}
	return decimal.NewFromFloat(v), warnings
}

// parseDateCell reads spreadsheet serial dates when allowed, then falls back
// to text layouts.
func parseDateCell(raw, dateFormat string, loc *time.Location, serial bool) (time.Time, error) {
	if serial {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
			return excelize.ExcelDateToTime(f, false)
		}
	}
	return normalizer.ParseFlexibleDate(raw, dateFormat, loc)
}

func cell(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return record[col]
}

type gameAcc struct {
	rounds int
	bet    decimal.Decimal
	payout decimal.Decimal
	stakes []float64
}

type aggregator struct {
	rounds int
	bet    decimal.Decimal
	payout decimal.Decimal
	games  map[string]*gameAcc
	first  time.Time
	last   time.Time
}

func newAggregator() *aggregator {
	return &aggregator{games: make(map[string]*gameAcc)}
}

func (a *aggregator) add(row *spinRow) {
	a.rounds++
	a.bet = a.bet.Add(row.bet)
	a.payout = a.payout.Add(row.payout)

	g, ok := a.games[row.game]
	if !ok {
		g = &gameAcc{}
		a.games[row.game] = g
	}
	g.rounds++
	g.bet = g.bet.Add(row.bet)
	g.payout = g.payout.Add(row.payout)
	g.stakes = append(g.stakes, row.bet.InexactFloat64())

	if !row.playedAt.IsZero() {
		if a.first.IsZero() || row.playedAt.Before(a.first) {
			a.first = row.playedAt
		}
		if row.playedAt.After(a.last) {
			a.last = row.playedAt
		}
	}
}

// fill writes totals and per-game summaries, sorted by game name.
func (a *aggregator) fill(r *Report) {
	r.QualifyingRounds = a.rounds
	r.TotalBet = a.bet
	r.TotalPayout = a.payout
	r.HouseDifferential = a.bet.Sub(a.payout)

	if !a.first.IsZero() {
		first, last := a.first, a.last
		r.PeriodStart = &first
		r.PeriodEnd = &last
	}

	r.Games = make([]GameSummary, 0, len(a.games))
	for name, g := range a.games {
		r.Games = append(r.Games, summarizeGame(name, g))
	}
	sort.Slice(r.Games, func(i, j int) bool {
		return r.Games[i].Game < r.Games[j].Game
	})
}

func summarizeGame(name string, g *gameAcc) GameSummary {
	// stakes are appended by a single consumer but in worker order
	stakes := append([]float64(nil), g.stakes...)
	sort.Float64s(stakes)

	var mean, std float64
	switch len(stakes) {
	case 0:
	case 1:
		mean = stakes[0]
	default:
		mean, std = stat.MeanStdDev(stakes, nil)
	}
	if math.IsNaN(std) {
		std = 0
	}

	rtp := decimal.Zero
	if g.bet.IsPositive() {
		rtp = g.payout.DivRound(g.bet, 4)
	}

	return GameSummary{
		Game:         name,
		Rounds:       g.rounds,
		TotalBet:     g.bet,
		TotalPayout:  g.payout,
		PlayerProfit: g.payout.Sub(g.bet),
		RTP:          rtp,
		MeanStake:    mean,
		StakeStdDev:  std,
	}
}
