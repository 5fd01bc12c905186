package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
)

func writeSession(t *testing.T, dir, name string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Data;Jogo;Aposta;Ganho;FREESPINS\n")
	for i := 0; i < 25; i++ {
		payout := "0,00"
		if i == 0 {
			payout = "400,00"
		}
		fmt.Fprintf(&b, "01/03/2024 21:%02d;Gates of Olympus;40,00;%s;False\n", i, payout)
	}
	for i := 0; i < 5; i++ {
		b.WriteString("01/03/2024 22:00;Gates of Olympus;0,00;10,00;True\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRun_PrintsReport(t *testing.T) {
	dir := t.TempDir()
	path := writeSession(t, dir, "rodadas.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-q", path}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "rodadas.csv")
	assert.Contains(t, out, "R$1.000,00")
	assert.Contains(t, out, "R$30,00")
	assert.Contains(t, out, "5%")
	assert.Contains(t, out, "Gates of Olympus")
}

func TestRun_ExportsReport(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	path := writeSession(t, dir, "rodadas.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-q", "-export", "csv", "-out", out, path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	data, err := os.ReadFile(filepath.Join(out, "cashback_rodadas.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "TOTAL")
	assert.Contains(t, stdout.String(), "exported")
}

func TestRun_ConvertWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := writeSession(t, dir, "rodadas.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-q", "-convert", "-out", dir, path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	_, err := os.Stat(filepath.Join(dir, "rodadas_"+service.ConvertedFileName))
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Free spins removidos")
}

func TestRun_ConvertSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	first := writeSession(t, dir, "janeiro.csv")
	second := writeSession(t, dir, "fevereiro.csv")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "copia"), 0o755))
	third := writeSession(t, filepath.Join(dir, "copia"), "janeiro.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-q", "-convert", "-out", out, first, second, third}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"janeiro_datas_convertidas_filtradas.xlsx",
		"fevereiro_datas_convertidas_filtradas.xlsx",
		"janeiro_datas_convertidas_filtradas_2.xlsx",
	}, names)
}

func TestRun_ExportNamesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	csvPath := writeSession(t, dir, "rodadas.csv")
	txtPath := writeSession(t, dir, "rodadas.txt")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-q", "-export", "csv", "-out", out, csvPath, txtPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	for _, name := range []string{"cashback_rodadas.csv", "cashback_rodadas_2.csv"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err, name)
		assert.Contains(t, string(data), "TOTAL")
	}
}

func TestDestinations_Claim(t *testing.T) {
	d := newDestinations("out")

	assert.Equal(t, filepath.Join("out", "a.csv"), d.claim("a.csv"))
	assert.Equal(t, filepath.Join("out", "a.xlsx"), d.claim("a.xlsx"))
	assert.Equal(t, filepath.Join("out", "a_2.csv"), d.claim("a.csv"))
	assert.Equal(t, filepath.Join("out", "a_3.csv"), d.claim("a.csv"))

	d.claim("relatorio")
	assert.Equal(t, filepath.Join("out", "relatorio_2"), d.claim("relatorio"))
}

func TestRun_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	good := writeSession(t, dir, "ok.csv")
	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("a;b\n1;2\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no files", nil, 2},
		{"unknown flag", []string{"-nope"}, 2},
		{"help", []string{"-h"}, 0},
		{"missing file", []string{"-q", filepath.Join(dir, "missing.csv")}, 1},
		{"one bad file", []string{"-q", good, bad}, 1},
		{"missing policy", []string{"-policy", filepath.Join(dir, "none.yaml"), good}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(context.Background(), tt.args, &stdout, &stderr))
		})
	}
}

func TestRun_CustomPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeSession(t, dir, "rodadas.csv")
	policy := filepath.Join(dir, "tiers.yaml")
	require.NoError(t, os.WriteFile(policy, []byte("tiers:\n  - min_rounds: 10\n    percentage: 0.10\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-q", "-policy", policy, path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "R$60,00")
}

func TestRun_Interrupted(t *testing.T) {
	dir := t.TempDir()
	path := writeSession(t, dir, "rodadas.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 130, run(ctx, []string{"-q", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "interrupted")
}
