// Package handler exposes the cashback engine and spin reports over Connect
// RPC and plain HTTP uploads.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/pkg/money"
)

const CashbackServiceName = "cashback.v1.CashbackService"

const (
	ComputeCashbackProcedure = "/" + CashbackServiceName + "/ComputeCashback"
	AnalyzeFileProcedure     = "/" + CashbackServiceName + "/AnalyzeFile"
	BuildReportProcedure     = "/" + CashbackServiceName + "/BuildReport"
	SaveLayoutProcedure      = "/" + CashbackServiceName + "/SaveLayout"
	ListLayoutsProcedure     = "/" + CashbackServiceName + "/ListLayouts"
	DeleteLayoutProcedure    = "/" + CashbackServiceName + "/DeleteLayout"
	GetPolicyProcedure       = "/" + CashbackServiceName + "/GetPolicy"
)

// CashbackHandler implements the CashbackService Connect handlers.
type CashbackHandler struct {
	svc    *service.ReportService
	logger *slog.Logger
}

// NewCashbackHandler constructs a new handler.
func NewCashbackHandler(svc *service.ReportService, logger *slog.Logger) *CashbackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CashbackHandler{svc: svc, logger: logger}
}

// NewCashbackServiceHandler builds the HTTP handler serving every
// CashbackService procedure and returns the path to mount it on.
func NewCashbackServiceHandler(h *CashbackHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ComputeCashbackProcedure, connect.NewUnaryHandler(ComputeCashbackProcedure, h.ComputeCashback, opts...))
	mux.Handle(AnalyzeFileProcedure, connect.NewUnaryHandler(AnalyzeFileProcedure, h.AnalyzeFile, opts...))
	mux.Handle(BuildReportProcedure, connect.NewUnaryHandler(BuildReportProcedure, h.BuildReport, opts...))
	mux.Handle(SaveLayoutProcedure, connect.NewUnaryHandler(SaveLayoutProcedure, h.SaveLayout, opts...))
	mux.Handle(ListLayoutsProcedure, connect.NewUnaryHandler(ListLayoutsProcedure, h.ListLayouts, opts...))
	mux.Handle(DeleteLayoutProcedure, connect.NewUnaryHandler(DeleteLayoutProcedure, h.DeleteLayout, opts...))
	mux.Handle(GetPolicyProcedure, connect.NewUnaryHandler(GetPolicyProcedure, h.GetPolicy, opts...))
	return "/" + CashbackServiceName + "/", mux
}

// ComputeCashback runs the engine over pre-aggregated totals.
func (h *CashbackHandler) ComputeCashback(
	_ context.Context,
	req *connect.Request[ComputeCashbackRequest],
) (*connect.Response[ComputeCashbackResponse], error) {
	if req.Msg.Rounds < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("rounds cannot be negative"))
	}

	result := h.svc.Engine().Compute(req.Msg.Rounds, req.Msg.TotalBet, req.Msg.TotalPayout)
	return connect.NewResponse(&ComputeCashbackResponse{
		Result:          result,
		AmountLabel:     money.FormatBRL(result.Amount),
		PercentageLabel: money.FormatPercent(result.Percentage),
	}), nil
}

// AnalyzeFile reports detected headers, column suggestions and any
// remembered layout for an upload.
func (h *CashbackHandler) AnalyzeFile(
	ctx context.Context,
	req *connect.Request[AnalyzeFileRequest],
) (*connect.Response[AnalyzeFileResponse], error) {
	if len(req.Msg.Data) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("data is required"))
	}

	result, err := h.svc.AnalyzeFile(ctx, req.Msg.FileName, req.Msg.Data)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AnalyzeFileResponse{Analysis: result}), nil
}

// BuildReport filters free spins, aggregates paid rounds and computes
// cashback for an upload.
func (h *CashbackHandler) BuildReport(
	ctx context.Context,
	req *connect.Request[BuildReportRequest],
) (*connect.Response[BuildReportResponse], error) {
	if len(req.Msg.Data) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("data is required"))
	}

	opts, err := reportOptions(req.Msg.Timezone, req.Msg.DateFormat)
	if err != nil {
		return nil, toConnectError(err)
	}
	opts.Columns = req.Msg.Columns

	report, err := h.svc.BuildReport(ctx, req.Msg.FileName, req.Msg.Data, opts)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&BuildReportResponse{
		Report: report,
		Labels: labelsFor(report),
	}), nil
}

// SaveLayout remembers a confirmed column layout.
func (h *CashbackHandler) SaveLayout(
	ctx context.Context,
	req *connect.Request[SaveLayoutRequest],
) (*connect.Response[SaveLayoutResponse], error) {
	layout, err := h.svc.SaveLayout(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SaveLayoutResponse{Layout: layout}), nil
}

func (h *CashbackHandler) ListLayouts(
	ctx context.Context,
	_ *connect.Request[ListLayoutsRequest],
) (*connect.Response[ListLayoutsResponse], error) {
	layouts, err := h.svc.ListLayouts(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListLayoutsResponse{Layouts: layouts}), nil
}

func (h *CashbackHandler) DeleteLayout(
	ctx context.Context,
	req *connect.Request[DeleteLayoutRequest],
) (*connect.Response[DeleteLayoutResponse], error) {
	id, err := uuid.Parse(req.Msg.ID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid layout id"))
	}
	if err := h.svc.DeleteLayout(ctx, id); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeleteLayoutResponse{}), nil
}

// GetPolicy returns the tier table and thresholds in force.
func (h *CashbackHandler) GetPolicy(
	_ context.Context,
	_ *connect.Request[GetPolicyRequest],
) (*connect.Response[GetPolicyResponse], error) {
	policy := h.svc.Engine().Policy()
	return connect.NewResponse(&GetPolicyResponse{
		Policy:    policy,
		MinRounds: policy.MinRounds(),
	}), nil
}

func reportOptions(timezone, dateFormat string) (service.ReportOptions, error) {
	opts := service.ReportOptions{DateFormat: dateFormat}
	if timezone == "" {
		return opts, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return opts, fmt.Errorf("%w: unknown timezone %q", common.ErrBadRequest, timezone)
	}
	opts.Location = loc
	return opts, nil
}

func labelsFor(r *service.Report) ReportLabels {
	return ReportLabels{
		TotalBet:           money.FormatBRL(r.TotalBet),
		TotalPayout:        money.FormatBRL(r.TotalPayout),
		HouseDifferential:  money.FormatBRL(r.HouseDifferential),
		CashbackAmount:     money.FormatBRL(r.Cashback.Amount),
		CashbackPercentage: money.FormatPercent(r.Cashback.Percentage),
	}
}
