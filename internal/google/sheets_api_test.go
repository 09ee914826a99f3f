package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"beautycity/internal/models"

	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type recordedCall struct {
	method string
	path   string
	body   []byte
}

// fakeSheetsAPI answers Sheets v4 calls by path suffix and records them.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	calls    []recordedCall
	idColumn [][]interface{}
	appended string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		body = raw
	}
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: r.Method, path: r.URL.Path, body: body})
	f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":append"):
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: f.appended},
		})
	case strings.HasSuffix(path, ":clear"):
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	case strings.HasSuffix(path, ":batchUpdate"):
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateValuesResponse{})
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: f.idColumn})
	default:
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	}
}

func (f *fakeSheetsAPI) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func setupMockServer(t *testing.T, api *fakeSheetsAPI) *SheetsService {
	t.Helper()
	ctx := context.Background()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}
	return newSheetsService(srv, "journal_tid", "Appointments", time.UTC, nil)
}

func journalAppointment(id int64) *models.Appointment {
	start := time.Date(2030, 3, 10, 10, 0, 0, 0, time.UTC)
	return &models.Appointment{
		ID:            id,
		SalonID:       1,
		SpecialistID:  7,
		ProcedureID:   30,
		CustomerName:  "Анна",
		Phone:         "+79990000000",
		StartAt:       start,
		EndAt:         start.Add(30 * time.Minute),
		PriceOriginal: decimal.NewFromInt(1500),
		PriceFinal:    decimal.NewFromInt(1350),
		Source:        models.SourceWeb,
		Status:        models.StatusNew,
		CreatedAt:     start.Add(-time.Hour),
		UpdatedAt:     start.Add(-time.Hour),
		Version:       1,
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	api := &fakeSheetsAPI{idColumn: [][]interface{}{{"ID"}}}
	s := setupMockServer(t, api)

	if err := s.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 1 || !strings.HasSuffix(calls[0].path, "/values/Appointments!A1") {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	api := &fakeSheetsAPI{idColumn: [][]interface{}{{"ID"}, {"123"}, {}, {float64(456)}}}
	s := setupMockServer(t, api)

	if err := s.WarmUpCache(context.Background()); err != nil {
		t.Fatalf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.getCachedRow(123); !ok || row != 2 {
		t.Errorf("Expected row 2 for ID 123, got %d", row)
	}
	if row, ok := s.getCachedRow(456); !ok || row != 4 {
		t.Errorf("Expected row 4 for ID 456, got %d", row)
	}
}

func TestSheetsService_UpsertAppointment_Append(t *testing.T) {
	api := &fakeSheetsAPI{
		idColumn: [][]interface{}{{"ID"}},
		appended: "Appointments!A10:P10",
	}
	s := setupMockServer(t, api)

	if err := s.UpsertAppointment(context.Background(), journalAppointment(789)); err != nil {
		t.Fatalf("UpsertAppointment failed: %v", err)
	}
	if row, _ := s.getCachedRow(789); row != 10 {
		t.Errorf("Expected cached row 10, got %d", row)
	}

	calls := api.recorded()
	last := calls[len(calls)-1]
	if !strings.HasSuffix(last.path, ":append") {
		t.Fatalf("expected append call, got %s", last.path)
	}
	var vr sheets.ValueRange
	if err := json.Unmarshal(last.body, &vr); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(vr.Values) != 1 || len(vr.Values[0]) != len(journalHeaders) {
		t.Fatalf("unexpected row: %+v", vr.Values)
	}
	if vr.Values[0][5] != "10:00" || vr.Values[0][11] != "1350.00" || vr.Values[0][13] != "new" {
		t.Errorf("unexpected row values: %v", vr.Values[0])
	}
}

func TestSheetsService_UpsertAppointment_Update(t *testing.T) {
	api := &fakeSheetsAPI{}
	s := setupMockServer(t, api)
	s.setCachedRow(123, 2)

	if err := s.UpsertAppointment(context.Background(), journalAppointment(123)); err != nil {
		t.Fatalf("UpsertAppointment failed: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 1 || !strings.HasSuffix(calls[0].path, "/values/Appointments!A2:P2") {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestSheetsService_UpdateAppointmentStatus(t *testing.T) {
	api := &fakeSheetsAPI{}
	s := setupMockServer(t, api)
	s.setCachedRow(123, 2)

	if err := s.UpdateAppointmentStatus(context.Background(), 123, models.StatusConfirmed); err != nil {
		t.Fatalf("UpdateAppointmentStatus failed: %v", err)
	}

	calls := api.recorded()
	if len(calls) != 1 || !strings.HasSuffix(calls[0].path, "values:batchUpdate") {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	var req sheets.BatchUpdateValuesRequest
	if err := json.Unmarshal(calls[0].body, &req); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(req.Data) != 2 || req.Data[0].Range != "Appointments!N2" || req.Data[1].Range != "Appointments!P2" {
		t.Fatalf("unexpected ranges: %+v", req.Data)
	}
	if req.Data[0].Values[0][0] != "confirmed" {
		t.Errorf("unexpected status value: %v", req.Data[0].Values)
	}
}

func TestSheetsService_UpdateAppointmentStatus_MissingRow(t *testing.T) {
	api := &fakeSheetsAPI{idColumn: [][]interface{}{{"ID"}, {"1"}}}
	s := setupMockServer(t, api)

	err := s.UpdateAppointmentStatus(context.Background(), 55, models.StatusCanceled)
	if err != ErrRowNotFound {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
}

func TestSheetsService_ReplaceAppointments(t *testing.T) {
	api := &fakeSheetsAPI{}
	s := setupMockServer(t, api)
	s.setCachedRow(99, 40)

	appts := []*models.Appointment{journalAppointment(1), journalAppointment(2)}
	if err := s.ReplaceAppointments(context.Background(), appts); err != nil {
		t.Fatalf("ReplaceAppointments failed: %v", err)
	}
	if row, _ := s.getCachedRow(1); row != 2 {
		t.Errorf("Expected cached row 2, got %d", row)
	}
	if row, _ := s.getCachedRow(2); row != 3 {
		t.Errorf("Expected cached row 3, got %d", row)
	}
	if _, ok := s.getCachedRow(99); ok {
		t.Errorf("stale cache entry survived replace")
	}

	calls := api.recorded()
	if len(calls) != 2 || !strings.HasSuffix(calls[0].path, ":clear") {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestSheetsService_EnsureHeader(t *testing.T) {
	api := &fakeSheetsAPI{}
	s := setupMockServer(t, api)

	if err := s.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("EnsureHeader failed: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 1 || !strings.HasSuffix(calls[0].path, "/values/Appointments!A1:P1") {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestSheetsService_FindAppointmentRow_FullScan(t *testing.T) {
	api := &fakeSheetsAPI{idColumn: [][]interface{}{{"ID"}, {"999"}}}
	s := setupMockServer(t, api)

	row, err := s.FindAppointmentRow(context.Background(), 999)
	if err != nil {
		t.Fatalf("FindAppointmentRow failed: %v", err)
	}
	if row != 2 {
		t.Errorf("Expected row 2, got %d", row)
	}

	// second lookup comes from cache
	if _, err := s.FindAppointmentRow(context.Background(), 999); err != nil {
		t.Fatalf("cached lookup failed: %v", err)
	}
	if n := len(api.recorded()); n != 1 {
		t.Errorf("expected 1 API call, got %d", n)
	}
}
