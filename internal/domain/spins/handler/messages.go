package handler

import (
	"github.com/shopspring/decimal"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/cashback"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/repository"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
)

type ComputeCashbackRequest struct {
	Rounds      int             `json:"rounds" validate:"gte=0"`
	TotalBet    decimal.Decimal `json:"total_bet"`
	TotalPayout decimal.Decimal `json:"total_payout"`
}

type ComputeCashbackResponse struct {
	Result          cashback.Result `json:"result"`
	AmountLabel     string          `json:"amount_label"`
	PercentageLabel string          `json:"percentage_label"`
}

type AnalyzeFileRequest struct {
	FileName string `json:"file_name" validate:"required"`
	Data     []byte `json:"data" validate:"required,min=1"`
}

type AnalyzeFileResponse struct {
	Analysis *service.AnalyzeResult `json:"analysis"`
}

type BuildReportRequest struct {
	FileName   string             `json:"file_name" validate:"required"`
	Data       []byte             `json:"data" validate:"required,min=1"`
	Columns    *sniffer.ColumnMap `json:"columns,omitempty"`
	DateFormat string             `json:"date_format,omitempty"`
	Timezone   string             `json:"timezone,omitempty"`
}

// ReportLabels carries BRL strings for display next to the raw decimals.
type ReportLabels struct {
	TotalBet           string `json:"total_bet"`
	TotalPayout        string `json:"total_payout"`
	HouseDifferential  string `json:"house_differential"`
	CashbackAmount     string `json:"cashback_amount"`
	CashbackPercentage string `json:"cashback_percentage"`
}

type BuildReportResponse struct {
	Report *service.Report `json:"report"`
	Labels ReportLabels    `json:"labels"`
}

type SaveLayoutRequest = service.SaveLayoutInput

type SaveLayoutResponse struct {
	Layout *repository.Layout `json:"layout"`
}

type ListLayoutsRequest struct{}

type ListLayoutsResponse struct {
	Layouts []*repository.Layout `json:"layouts"`
}

type DeleteLayoutRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type DeleteLayoutResponse struct{}

type GetPolicyRequest struct{}

type GetPolicyResponse struct {
	Policy    cashback.Policy `json:"policy"`
	MinRounds int             `json:"min_rounds"`
}
