// Command cashbackctl builds cashback reports from spin exports on disk.
//
//	cashbackctl [-policy tiers.yaml] [-export xlsx|csv] [-out dir] [-convert] file...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cheggaaa/pb/v3"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/cashback"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/repository"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
)

type options struct {
	policyFile string
	exportFmt  string
	outDir     string
	dateFormat string
	convert    bool
	quiet      bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}
	fs := flag.NewFlagSet("cashbackctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.policyFile, "policy", "", "YAML tier table (default: built-in tiers)")
	fs.StringVar(&opts.exportFmt, "export", "", "also write the per-game report: xlsx or csv")
	fs.StringVar(&opts.outDir, "out", ".", "directory for exported files")
	fs.StringVar(&opts.dateFormat, "date-format", "", "date layout such as DD/MM/YYYY (default: detect)")
	fs.BoolVar(&opts.convert, "convert", false, "write paid rounds with ISO dates instead of a report")
	fs.BoolVar(&opts.quiet, "q", false, "no progress bar")
	fs.BoolVar(&opts.verbose, "v", false, "log parse warnings")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: cashbackctl [flags] file...")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errors.New("no input files")
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, files, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	engine, err := newEngine(opts.policyFile)
	if err != nil {
		fmt.Fprintf(stderr, "policy: %v\n", err)
		return 1
	}
	svc := service.NewReportService(repository.NewMemoryLayoutRepository(), engine, logger)

	bar := pb.New(len(files))
	if opts.quiet || len(files) < 2 {
		bar.SetWriter(io.Discard)
	} else {
		bar.SetWriter(stderr)
	}
	bar.Start()

	var outputs []string
	dests := newDestinations(opts.outDir)
	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		out, err := processFile(ctx, svc, path, opts, dests)
		bar.Increment()
		if err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			continue
		}
		outputs = append(outputs, out)
	}
	bar.Finish()

	for _, out := range outputs {
		fmt.Fprint(stdout, out)
	}

	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "interrupted")
		return 130
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func newEngine(policyFile string) (*cashback.Engine, error) {
	if policyFile == "" {
		return cashback.Default(), nil
	}
	policy, err := cashback.LoadPolicy(policyFile)
	if err != nil {
		return nil, err
	}
	return cashback.NewEngine(policy)
}

func processFile(ctx context.Context, svc *service.ReportService, path string, opts *options, dests *destinations) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	name := filepath.Base(path)

	if opts.convert {
		conv, err := svc.ConvertDates(ctx, name, data)
		if err != nil {
			return "", err
		}
		dest, err := writeOutput(dests.claim(fileStem(name)+"_"+conv.FileName), conv.Data)
		if err != nil {
			return "", err
		}
		return renderConversion(name, conv, dest), nil
	}

	report, err := svc.BuildReport(ctx, name, data, service.ReportOptions{DateFormat: opts.dateFormat})
	if err != nil {
		return "", err
	}
	out := renderReport(report)

	if opts.exportFmt != "" {
		export, err := svc.ExportReport(report, opts.exportFmt)
		if err != nil {
			return "", err
		}
		dest, err := writeOutput(dests.claim(export.FileName), export.Data)
		if err != nil {
			return "", err
		}
		out += fmt.Sprintf("exported %s\n\n", dest)
	}
	return out, nil
}

// destinations hands out output paths under one directory, never the same
// path twice in a run. A taken name gets a numeric suffix before its
// extension: rodadas.xlsx, rodadas_2.xlsx, ...
type destinations struct {
	dir  string
	used map[string]bool
}

func newDestinations(dir string) *destinations {
	return &destinations{dir: dir, used: make(map[string]bool)}
}

func (d *destinations) claim(fileName string) string {
	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	dest := filepath.Join(d.dir, fileName)
	for n := 2; d.used[dest]; n++ {
		dest = filepath.Join(d.dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
	d.used[dest] = true
	return dest
}

func fileStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func writeOutput(dest string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}
