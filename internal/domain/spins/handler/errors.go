package handler

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/sniffer"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/spreadsheet"
)

// errorCode maps domain errors onto Connect codes.
func errorCode(err error) connect.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, sniffer.ErrMissingColumn),
		errors.Is(err, sniffer.ErrNoHeadersFound),
		errors.Is(err, sniffer.ErrEmptyFile),
		errors.Is(err, spreadsheet.ErrUnsupportedFormat),
		errors.Is(err, spreadsheet.ErrEmptySheet),
		errors.Is(err, spreadsheet.ErrUnreadable),
		errors.Is(err, service.ErrNoPaidRounds),
		errors.Is(err, common.ErrBadRequest):
		return connect.CodeInvalidArgument
	case errors.Is(err, common.ErrNotFound):
		return connect.CodeNotFound
	default:
		return connect.CodeInternal
	}
}

func toConnectError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return err
	}
	return connect.NewError(errorCode(err), err)
}

// httpStatus maps domain errors onto HTTP statuses for the upload routes.
// Files the service cannot use are 422; malformed requests are 400.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, spreadsheet.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	}
	switch errorCode(err) {
	case connect.CodeInvalidArgument:
		return http.StatusUnprocessableEntity
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeCanceled, connect.CodeDeadlineExceeded:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
