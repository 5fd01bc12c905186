package handler

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/service"
	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/spreadsheet"
)

func newUploadRouter(maxUpload int64) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUploadHandler(newTestService(), logger, maxUpload).Routes()
}

func multipartRequest(t *testing.T, target, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandler_CreateReport(t *testing.T) {
	router := newUploadRouter(0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/reports", "rodadas.csv", sessionCSV(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp BuildReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 25, resp.Report.QualifyingRounds)
	assert.Equal(t, 5, resp.Report.FreeSpinRows)
	assert.Equal(t, "R$30,00", resp.Labels.CashbackAmount)
}

func TestUploadHandler_CreateReport_ExplicitColumns(t *testing.T) {
	router := newUploadRouter(0)
	data := []byte("Jogo;Aposta;Ganho;Aposta Real;FREESPINS\nAviator;1;0;50;False\n")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/reports", "x.csv", data, map[string]string{
		"columns": `{"bet":3,"payout":2,"free_spin":4,"game":0,"date":-1}`,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BuildReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "50", resp.Report.TotalBet.String())
}

func TestUploadHandler_Errors(t *testing.T) {
	router := newUploadRouter(0)

	tests := []struct {
		name    string
		req     *http.Request
		status  int
		missing []string
	}{
		{
			name:   "no file",
			req:    multipartRequest(t, "/reports", "", nil, map[string]string{"timezone": "UTC"}),
			status: http.StatusBadRequest,
		},
		{
			name:   "not multipart",
			req:    httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader("hello")),
			status: http.StatusBadRequest,
		},
		{
			name:    "missing columns",
			req:     multipartRequest(t, "/reports", "x.csv", []byte("Jogo;FREESPINS\nAviator;False\n"), nil),
			status:  http.StatusUnprocessableEntity,
			missing: []string{"bet", "payout"},
		},
		{
			name:   "unsupported extension",
			req:    multipartRequest(t, "/reports", "x.pdf", []byte("%PDF"), nil),
			status: http.StatusUnsupportedMediaType,
		},
		{
			name:   "bad columns field",
			req:    multipartRequest(t, "/reports", "x.csv", sessionCSV(), map[string]string{"columns": "{"}),
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.missing, body.Missing)
		})
	}
}

func TestUploadHandler_TooLarge(t *testing.T) {
	router := newUploadRouter(512)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/reports", "rodadas.csv", sessionCSV(), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
}

func TestUploadHandler_ExportReport(t *testing.T) {
	router := newUploadRouter(0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/reports/export?format=csv", "rodadas.csv", sessionCSV(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, service.ContentTypeCSV, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=cashback_rodadas.csv`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Gates of Olympus,1000.00,400.00,-600.00")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/reports/export", "rodadas.csv", sessionCSV(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ContentTypeXLSX, rec.Header().Get("Content-Type"))

	table, err := spreadsheet.Read(rec.Body.Bytes(), "cashback_rodadas.xlsx")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestUploadHandler_ConvertDates(t *testing.T) {
	router := newUploadRouter(0)
	data := []byte("ID;Data;Jogo;FREESPINS\n1;15/03/2024 22:41;Aviator;False\n2;16/03/2024;Aviator;True\n")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/conversions", "rodadas.csv", data, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, service.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Rows"))
	assert.Equal(t, "1", rec.Header().Get("X-Free-Spins"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), service.ConvertedFileName)
}

func TestUploadHandler_PolicyAndLayouts(t *testing.T) {
	router := newUploadRouter(0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var policy GetPolicyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &policy))
	assert.Equal(t, 25, policy.MinRounds)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/layouts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"layouts":[]}`, rec.Body.String())
}
