package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"beautycity/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	// столбцы журнала: A..P
	lastColumn   = "P"
	statusColumn = "N"
	updateColumn = "P"
)

var ErrRowNotFound = errors.New("appointment row not found")

var journalHeaders = []interface{}{
	"ID", "Salon ID", "Specialist ID", "Procedure ID", "Date", "Start", "End",
	"Customer", "Phone", "Question", "Price Original", "Price Final", "Source",
	"Status", "Created At", "Updated At",
}

// SheetsService keeps an appointments journal in one sheet of a spreadsheet,
// one row per appointment keyed by ID in column A.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	location      *time.Location
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
	logger        *zerolog.Logger
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location, logger *zerolog.Logger) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, spreadsheetID, sheetName, loc, logger), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location, logger *zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = "Appointments"
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		location:      loc,
		rowCache:      make(map[int64]int),
		logger:        logger,
	}
}

// StartCacheRefresh warms the row cache now and then every interval until ctx is done.
func (s *SheetsService) StartCacheRefresh(ctx context.Context, interval time.Duration) {
	refresh := func() {
		c, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(c); err != nil {
			s.logger.Warn().Err(err).Msg("sheets cache warm-up failed")
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.cell("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// EnsureHeader writes the header row.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.cell("A1:"+lastColumn+"1"), &sheets.ValueRange{
		Values: [][]interface{}{journalHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.cell("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// AppendAppointment adds a new row and remembers where it landed.
func (s *SheetsService) AppendAppointment(ctx context.Context, appt *models.Appointment) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.cell("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(appt)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp != nil && resp.Updates != nil {
		if row, ok := parseRowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(appt.ID, row)
		}
	}
	return nil
}

// UpsertAppointment updates an existing row or appends a new one if not found.
func (s *SheetsService) UpsertAppointment(ctx context.Context, appt *models.Appointment) error {
	if appt == nil {
		return errors.New("appointment is nil")
	}

	rowIdx, err := s.FindAppointmentRow(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendAppointment(ctx, appt)
		}
		return err
	}

	rng := s.cell(fmt.Sprintf("A%d:%s%d", rowIdx, lastColumn, rowIdx))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(appt)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// UpdateAppointmentStatus rewrites status and Updated At of an existing row.
func (s *SheetsService) UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status models.Status) error {
	rowIdx, err := s.FindAppointmentRow(ctx, appointmentID)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{
				Range:  s.cell(fmt.Sprintf("%s%d", statusColumn, rowIdx)),
				Values: [][]interface{}{{string(status)}},
			},
			{
				Range:  s.cell(fmt.Sprintf("%s%d", updateColumn, rowIdx)),
				Values: [][]interface{}{{time.Now().In(s.location).Format(timestampLayout)}},
			},
		},
	}).Context(ctx).Do()
	return err
}

// FindAppointmentRow locates the 1-based row of appointmentID in column A.
func (s *SheetsService) FindAppointmentRow(ctx context.Context, appointmentID int64) (int, error) {
	if appointmentID == 0 {
		return 0, errors.New("appointment id is required")
	}

	if row, ok := s.getCachedRow(appointmentID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.cell("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cellID(row[0]) == appointmentID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(appointmentID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, ErrRowNotFound
}

// ReplaceAppointments rewrites the whole journal below the header.
func (s *SheetsService) ReplaceAppointments(ctx context.Context, appts []*models.Appointment) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.cell("A2:"+lastColumn), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}

	values := make([][]interface{}, 0, len(appts))
	for _, a := range appts {
		values = append(values, s.rowValues(a))
	}

	if len(values) > 0 {
		_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.cell("A2"), &sheets.ValueRange{
			Values: values,
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to write journal: %w", err)
		}
	}

	cache := make(map[int64]int, len(appts))
	for i, a := range appts {
		cache[a.ID] = i + 2 // данные начинаются со второй строки
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()

	s.logger.Info().Int("rows", len(appts)).Msg("appointments journal replaced")
	return nil
}

func (s *SheetsService) rowValues(a *models.Appointment) []interface{} {
	start := a.StartAt.In(s.location)
	return []interface{}{
		a.ID,
		a.SalonID,
		a.SpecialistID,
		a.ProcedureID,
		start.Format(models.DateLayout),
		start.Format(models.ClockLayout),
		a.EndAt.In(s.location).Format(models.ClockLayout),
		a.CustomerName,
		a.Phone,
		a.Question,
		a.PriceOriginal.StringFixed(2),
		a.PriceFinal.StringFixed(2),
		string(a.Source),
		string(a.Status),
		a.CreatedAt.In(s.location).Format(timestampLayout),
		a.UpdatedAt.In(s.location).Format(timestampLayout),
	}
}

func (s *SheetsService) cell(rng string) string {
	return s.sheetName + "!" + rng
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func cellID(v interface{}) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case string:
		id, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0
		}
		return id
	}
	return 0
}

var updatedRangeRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// parseRowFromRange extracts the first row number from "Sheet!A10:P10".
func parseRowFromRange(rng string) (int, bool) {
	m := updatedRangeRe.FindStringSubmatch(rng)
	if len(m) != 2 {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}
