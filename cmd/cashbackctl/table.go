package main

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/pkg/money"
)

var lang = language.BrazilianPortuguese

func renderReport(r *service.Report) string {
	p := message.NewPrinter(lang)

	eligible := "não"
	if r.Cashback.Eligible {
		eligible = "sim"
	}
	keys := []string{
		"Rodadas pagas", "Free spins", "Linhas ignoradas", "Total apostado", "Total ganho",
		"Diferença da casa", "Percentual", "Cashback", "Elegível",
	}
	values := map[string]string{
		"Rodadas pagas":     p.Sprintf("%d", r.QualifyingRounds),
		"Free spins":        p.Sprintf("%d", r.FreeSpinRows),
		"Linhas ignoradas":  p.Sprintf("%d", r.SkippedRows),
		"Total apostado":    money.FormatBRL(r.TotalBet),
		"Total ganho":       money.FormatBRL(r.TotalPayout),
		"Diferença da casa": money.FormatBRL(r.HouseDifferential),
		"Percentual":        money.FormatPercent(r.Cashback.Percentage),
		"Cashback":          money.FormatBRL(r.Cashback.Amount),
		"Elegível":          eligible,
	}
	if len(r.Cashback.Reasons) > 0 {
		keys = append(keys, "Motivos")
		values["Motivos"] = strings.Join(r.Cashback.Reasons, "; ")
	}
	if r.PeriodStart != nil && r.PeriodEnd != nil {
		keys = append(keys, "Período")
		values["Período"] = r.PeriodStart.Format("02/01/2006 15:04") + " a " + r.PeriodEnd.Format("02/01/2006 15:04")
	}

	var b strings.Builder
	b.WriteString(fmtTable(r.FileName, keys, values))
	if len(r.Games) > 0 {
		b.WriteString(fmtGames(r.Games))
	}
	for _, w := range r.Warnings {
		b.WriteString("! " + w + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func renderConversion(name string, c *service.Conversion, dest string) string {
	p := message.NewPrinter(lang)
	keys := []string{"Coluna de data", "Rodadas pagas", "Free spins removidos", "Datas inválidas", "Arquivo"}
	values := map[string]string{
		"Coluna de data":       c.DateColumn,
		"Rodadas pagas":        p.Sprintf("%d", c.Rows),
		"Free spins removidos": p.Sprintf("%d", c.FreeSpins),
		"Datas inválidas":      p.Sprintf("%d", c.Unparsed),
		"Arquivo":              dest,
	}
	return fmtTable(name, keys, values) + "\n"
}

// fmtTable draws a two-column box sized by display width, so accented and
// wide characters stay aligned.
func fmtTable(title string, keys []string, values map[string]string) string {
	keyW, valW := 0, 0
	for _, k := range keys {
		keyW = max(keyW, runewidth.StringWidth(k))
		valW = max(valW, runewidth.StringWidth(values[k]))
	}
	keyW += 2
	valW += 2

	inner := keyW + valW + 1
	if tw := runewidth.StringWidth(title) + 2; tw > inner {
		valW += tw - inner
		inner = tw
	}

	top := "+" + strings.Repeat("-", inner) + "+\n"
	divider := "+" + strings.Repeat("-", keyW) + "+" + strings.Repeat("-", valW) + "+\n"

	var b strings.Builder
	b.WriteString(top)
	b.WriteString("|" + runewidth.FillRight(" "+title, inner) + "|\n")
	b.WriteString(divider)
	for _, k := range keys {
		b.WriteString("|" + runewidth.FillRight(" "+k, keyW) + "|" + runewidth.FillLeft(values[k]+" ", valW) + "|\n")
	}
	b.WriteString(divider)
	return b.String()
}

func fmtGames(games []service.GameSummary) string {
	headers := []string{"Jogo", "Rodadas", "Apostado", "Ganho", "Lucro jogador", "RTP"}
	p := message.NewPrinter(lang)

	rows := make([][]string, 0, len(games))
	for _, g := range games {
		rows = append(rows, []string{
			g.Game,
			p.Sprintf("%d", g.Rounds),
			money.FormatBRL(g.TotalBet),
			money.FormatBRL(g.TotalPayout),
			money.FormatBRL(g.PlayerProfit),
			money.FormatPercent(g.RTP),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i == 0 {
				parts[i] = runewidth.FillRight(cell, widths[i])
			} else {
				parts[i] = runewidth.FillLeft(cell, widths[i])
			}
		}
		return "| " + strings.Join(parts, " | ") + " |\n"
	}

	var b strings.Builder
	b.WriteString(line(headers))
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	b.WriteString("|-" + strings.Join(seps, "-|-") + "-|\n")
	for _, row := range rows {
		b.WriteString(line(row))
	}
	return b.String()
}
