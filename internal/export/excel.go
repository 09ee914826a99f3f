package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	appointmentsSheet = "Записи"
	summarySheet      = "Сводка"
	timestampLayout   = "02.01.2006 15:04"
)

var appointmentColumns = []string{
	"ID", "Дата", "Начало", "Конец", "Салон", "Мастер", "Процедура",
	"Клиент", "Телефон", "Вопрос", "Цена", "Цена итог", "Источник", "Статус", "Создана",
}

var summaryColumns = []string{"Салон", "Мастер", "Записей", "Подтверждено", "Отменено", "Выручка"}

var statusFill = map[models.Status]string{
	models.StatusNew:       "#FFEB9C",
	models.StatusConfirmed: "#C6EFCE",
	models.StatusCanceled:  "#FFC7CE",
}

// Exporter renders appointment reports as xlsx workbooks.
type Exporter struct {
	catalog  domain.CatalogStore
	location *time.Location
	dir      string
	logger   *zerolog.Logger
}

func NewExporter(catalog domain.CatalogStore, loc *time.Location, dir string, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{catalog: catalog, location: loc, dir: dir, logger: logger}
}

// names resolves catalog ids to display names for one report.
type names struct {
	salons      map[int64]string
	specialists map[int64]string
	procedures  map[int64]string
}

func (e *Exporter) loadNames(ctx context.Context) (*names, error) {
	n := &names{
		salons:      make(map[int64]string),
		specialists: make(map[int64]string),
		procedures:  make(map[int64]string),
	}

	salons, err := e.catalog.ListSalons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list salons: %w", err)
	}
	for _, s := range salons {
		n.salons[s.ID] = s.Name
	}

	specialists, err := e.catalog.ListSpecialists(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list specialists: %w", err)
	}
	for _, s := range specialists {
		n.specialists[s.ID] = s.FullName
	}

	procedures, err := e.catalog.ListProcedures(ctx)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	for _, p := range procedures {
		n.procedures[p.ID] = p.Title
	}
	return n, nil
}

func (n *names) lookup(m map[int64]string, id int64) string {
	if name, ok := m[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// Build creates the workbook. The caller owns the returned file and must Close it.
func (e *Exporter) Build(ctx context.Context, from, to time.Time, appts []*models.Appointment) (*excelize.File, error) {
	n, err := e.loadNames(ctx)
	if err != nil {
		return nil, err
	}

	sorted := make([]*models.Appointment, len(appts))
	copy(sorted, appts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartAt.Before(sorted[j].StartAt)
	})

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", appointmentsSheet); err != nil {
		f.Close()
		return nil, err
	}

	if err := e.writeAppointments(f, n, from, to, sorted); err != nil {
		f.Close()
		return nil, err
	}
	if err := e.writeSummary(f, n, sorted); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Write streams the workbook to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, from, to time.Time, appts []*models.Appointment) error {
	f, err := e.Build(ctx, from, to, appts)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveFile stores the workbook in the export directory and returns its path.
func (e *Exporter) SaveFile(ctx context.Context, from, to time.Time, appts []*models.Appointment) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.Build(ctx, from, to, appts)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(from, to))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("appointments", len(appts)).Msg("Excel file created")
	return filePath, nil
}

// FileName is the report name for [from, to).
func FileName(from, to time.Time) string {
	return fmt.Sprintf("appointments_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
}

func (e *Exporter) writeAppointments(f *excelize.File, n *names, from, to time.Time, appts []*models.Appointment) error {
	sheet := appointmentsSheet

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Период: %s - %s",
		from.In(e.location).Format("02.01.2006"), to.In(e.location).Format("02.01.2006")))
	lastCol, _ := excelize.ColumnNumberToName(len(appointmentColumns))
	_ = f.MergeCell(sheet, "A1", lastCol+"1")
	if style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "A1", style)
	}

	if err := writeHeader(f, sheet, 2, appointmentColumns); err != nil {
		return err
	}

	styles := make(map[models.Status]int, len(statusFill))
	for status, color := range statusFill {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return err
		}
		styles[status] = style
	}

	priceStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}

	for i, a := range appts {
		row := i + 3
		start := a.StartAt.In(e.location)
		values := []interface{}{
			a.ID,
			start.Format("02.01.2006"),
			start.Format(models.ClockLayout),
			a.EndAt.In(e.location).Format(models.ClockLayout),
			n.lookup(n.salons, a.SalonID),
			n.lookup(n.specialists, a.SpecialistID),
			n.lookup(n.procedures, a.ProcedureID),
			a.CustomerName,
			a.Phone,
			a.Question,
			a.PriceOriginal.InexactFloat64(),
			a.PriceFinal.InexactFloat64(),
			string(a.Source),
			string(a.Status),
			a.CreatedAt.In(e.location).Format(timestampLayout),
		}
		if err := writeRow(f, sheet, row, values); err != nil {
			return err
		}

		_ = f.SetCellStyle(sheet, cellName(11, row), cellName(12, row), priceStyle)
		if style, ok := styles[a.Status]; ok {
			_ = f.SetCellStyle(sheet, cellName(14, row), cellName(14, row), style)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 8)
	_ = f.SetColWidth(sheet, "B", "D", 12)
	_ = f.SetColWidth(sheet, "E", "J", 22)
	_ = f.SetColWidth(sheet, "K", "O", 14)
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 2, TopLeftCell: "A3", ActivePane: "bottomLeft"})
}

type summaryKey struct {
	salon      int64
	specialist int64
}

type summaryRow struct {
	total     int
	confirmed int
	canceled  int
	revenue   decimal.Decimal
}

// Выручка считается только по подтвержденным записям.
func summarize(appts []*models.Appointment) ([]summaryKey, map[summaryKey]*summaryRow) {
	rows := make(map[summaryKey]*summaryRow)
	var keys []summaryKey
	for _, a := range appts {
		k := summaryKey{salon: a.SalonID, specialist: a.SpecialistID}
		r, ok := rows[k]
		if !ok {
			r = &summaryRow{revenue: decimal.Zero}
			rows[k] = r
			keys = append(keys, k)
		}
		r.total++
		switch a.Status {
		case models.StatusConfirmed:
			r.confirmed++
			r.revenue = r.revenue.Add(a.PriceFinal)
		case models.StatusCanceled:
			r.canceled++
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].salon != keys[j].salon {
			return keys[i].salon < keys[j].salon
		}
		return keys[i].specialist < keys[j].specialist
	})
	return keys, rows
}

func (e *Exporter) writeSummary(f *excelize.File, n *names, appts []*models.Appointment) error {
	sheet := summarySheet
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := writeHeader(f, sheet, 1, summaryColumns); err != nil {
		return err
	}

	keys, rows := summarize(appts)
	total := decimal.Zero
	for i, k := range keys {
		r := rows[k]
		total = total.Add(r.revenue)
		if err := writeRow(f, sheet, i+2, []interface{}{
			n.lookup(n.salons, k.salon),
			n.lookup(n.specialists, k.specialist),
			r.total,
			r.confirmed,
			r.canceled,
			r.revenue.InexactFloat64(),
		}); err != nil {
			return err
		}
	}

	last := len(keys) + 2
	_ = f.SetCellValue(sheet, cellName(1, last), "Итого")
	_ = f.SetCellValue(sheet, cellName(6, last), total.InexactFloat64())
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, cellName(1, last), cellName(6, last), style)
	}
	_ = f.SetColWidth(sheet, "A", "B", 25)
	return nil
}

func writeHeader(f *excelize.File, sheet string, row int, columns []string) error {
	for i, col := range columns {
		if err := f.SetCellValue(sheet, cellName(i+1, row), col); err != nil {
			return err
		}
	}
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		_ = f.SetCellStyle(sheet, cellName(1, row), cellName(len(columns), row), style)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		if err := f.SetCellValue(sheet, cellName(i+1, row), v); err != nil {
			return err
		}
	}
	return nil
}

func cellName(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}
