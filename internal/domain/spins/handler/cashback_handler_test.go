package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/repository"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/spreadsheet"
	"github.com/SandersonMaxwell/spin-cashback/pkg/interceptors"
	"github.com/SandersonMaxwell/spin-cashback/pkg/rpccodec"
)

func newTestService() *service.ReportService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewReportService(repository.NewMemoryLayoutRepository(), nil, logger)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewCashbackHandler(newTestService(), logger)

	path, svcHandler := NewCashbackServiceHandler(h,
		rpccodec.WithJSON(),
		connect.WithInterceptors(interceptors.NewValidationInterceptor(nil)),
	)
	mux := http.NewServeMux()
	mux.Handle(path, svcHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient[Req, Res any](srv *httptest.Server, procedure string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](srv.Client(), srv.URL+procedure, rpccodec.WithJSON())
}

// sessionCSV has 25 paid rounds of 40,00 with one 400,00 win and 5 free spins.
func sessionCSV() []byte {
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
	return []byte(b.String())
}

func TestCashbackHandler_ComputeCashback(t *testing.T) {
	srv := newTestServer(t)
	client := newClient[ComputeCashbackRequest, ComputeCashbackResponse](srv, ComputeCashbackProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&ComputeCashbackRequest{
		Rounds:      25,
		TotalBet:    decimal.NewFromInt(1000),
		TotalPayout: decimal.NewFromInt(400),
	}))
	require.NoError(t, err)

	assert.True(t, resp.Msg.Result.Eligible)
	assert.True(t, resp.Msg.Result.Amount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "R$30,00", resp.Msg.AmountLabel)
	assert.Equal(t, "5%", resp.Msg.PercentageLabel)
}

func TestCashbackHandler_ComputeCashback_NegativeRounds(t *testing.T) {
	srv := newTestServer(t)
	client := newClient[ComputeCashbackRequest, ComputeCashbackResponse](srv, ComputeCashbackProcedure)

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&ComputeCashbackRequest{Rounds: -1}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestCashbackHandler_BuildReport(t *testing.T) {
	srv := newTestServer(t)
	client := newClient[BuildReportRequest, BuildReportResponse](srv, BuildReportProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&BuildReportRequest{
		FileName: "rodadas.csv",
		Data:     sessionCSV(),
	}))
	require.NoError(t, err)

	report := resp.Msg.Report
	require.NotNil(t, report)
	assert.Equal(t, 25, report.QualifyingRounds)
	assert.Equal(t, 5, report.FreeSpinRows)
	assert.True(t, report.Cashback.Eligible)
	assert.Equal(t, "R$1.000,00", resp.Msg.Labels.TotalBet)
	assert.Equal(t, "R$30,00", resp.Msg.Labels.CashbackAmount)
}

func TestCashbackHandler_BuildReport_MissingColumns(t *testing.T) {
	srv := newTestServer(t)
	client := newClient[BuildReportRequest, BuildReportResponse](srv, BuildReportProcedure)

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&BuildReportRequest{
		FileName: "rodadas.csv",
		Data:     []byte("Jogo;FREESPINS\nAviator;False\n"),
	}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	assert.Contains(t, err.Error(), "missing required columns")
}

func TestCashbackHandler_BuildReport_Validation(t *testing.T) {
	srv := newTestServer(t)
	client := newClient[BuildReportRequest, BuildReportResponse](srv, BuildReportProcedure)

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&BuildReportRequest{FileName: "x.csv"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.CallUnary(context.Background(), connect.NewRequest(&BuildReportRequest{
		FileName: "x.csv",
		Data:     sessionCSV(),
		Timezone: "Mars/Olympus",
	}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestCashbackHandler_LayoutLifecycle(t *testing.T) {
	srv := newTestServer(t)
	analyze := newClient[AnalyzeFileRequest, AnalyzeFileResponse](srv, AnalyzeFileProcedure)
	save := newClient[SaveLayoutRequest, SaveLayoutResponse](srv, SaveLayoutProcedure)
	list := newClient[ListLayoutsRequest, ListLayoutsResponse](srv, ListLayoutsProcedure)
	del := newClient[DeleteLayoutRequest, DeleteLayoutResponse](srv, DeleteLayoutProcedure)
	ctx := context.Background()

	first, err := analyze.CallUnary(ctx, connect.NewRequest(&AnalyzeFileRequest{FileName: "rodadas.csv", Data: sessionCSV()}))
	require.NoError(t, err)
	assert.False(t, first.Msg.Analysis.LayoutFound)

	saved, err := save.CallUnary(ctx, connect.NewRequest(&SaveLayoutRequest{
		Fingerprint: first.Msg.Analysis.Fingerprint,
		Name:        "Casino A",
		Columns:     first.Msg.Analysis.Suggestions.ColumnMap(),
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Msg.Layout.BetCol)

	second, err := analyze.CallUnary(ctx, connect.NewRequest(&AnalyzeFileRequest{FileName: "rodadas.csv", Data: sessionCSV()}))
	require.NoError(t, err)
	assert.True(t, second.Msg.Analysis.LayoutFound)

	listed, err := list.CallUnary(ctx, connect.NewRequest(&ListLayoutsRequest{}))
	require.NoError(t, err)
	require.Len(t, listed.Msg.Layouts, 1)

	_, err = del.CallUnary(ctx, connect.NewRequest(&DeleteLayoutRequest{ID: saved.Msg.Layout.ID.String()}))
	require.NoError(t, err)

	_, err = del.CallUnary(ctx, connect.NewRequest(&DeleteLayoutRequest{ID: saved.Msg.Layout.ID.String()}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = del.CallUnary(ctx, connect.NewRequest(&DeleteLayoutRequest{ID: "nope"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestCashbackHandler_GetPolicy(t *testing.T) {
	srv := newTestServer(t)
	client := newClient[GetPolicyRequest, GetPolicyResponse](srv, GetPolicyProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&GetPolicyRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 25, resp.Msg.MinRounds)
	assert.NotEmpty(t, resp.Msg.Policy.Tiers)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   connect.Code
		status int
	}{
		{"missing column", fmt.Errorf("resolve: %w", &sniffer.MissingColumnsError{Columns: []string{"bet"}}), connect.CodeInvalidArgument, http.StatusUnprocessableEntity},
		{"no headers", sniffer.ErrNoHeadersFound, connect.CodeInvalidArgument, http.StatusUnprocessableEntity},
		{"unreadable", spreadsheet.ErrUnreadable, connect.CodeInvalidArgument, http.StatusUnprocessableEntity},
		{"no paid rounds", service.ErrNoPaidRounds, connect.CodeInvalidArgument, http.StatusUnprocessableEntity},
		{"unsupported", spreadsheet.ErrUnsupportedFormat, connect.CodeInvalidArgument, http.StatusUnsupportedMediaType},
		{"bad request", common.ErrBadRequest, connect.CodeInvalidArgument, http.StatusBadRequest},
		{"not found", common.ErrNotFound, connect.CodeNotFound, http.StatusNotFound},
		{"cancelled", context.Canceled, connect.CodeCanceled, http.StatusRequestTimeout},
		{"other", errors.New("db exploded"), connect.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, errorCode(tt.err))
			assert.Equal(t, tt.status, httpStatus(tt.err))
		})
	}
}
