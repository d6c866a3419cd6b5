// Package audit exports bookings and their lifecycle history to Excel
// workbooks for offline review.
package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

// Reader is the storage view the exporter needs.
type Reader interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	ListAudit(ctx context.Context, from, to time.Time) ([]store.AuditEntry, error)
}

// Exporter renders a two-sheet workbook: all bookings starting in the
// range and the audit trail of status changes recorded in it.
type Exporter struct {
	reader Reader
}

// NewExporter creates an exporter over the given storage view.
func NewExporter(reader Reader) *Exporter {
	return &Exporter{reader: reader}
}

// Filename returns a report filename for the given range.
func Filename(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_%s.xlsx",
		from.Format(model.DateFormat), to.Format(model.DateFormat))
}

// Export writes the workbook for bookings starting in [from, to).
func (e *Exporter) Export(ctx context.Context, from, to time.Time, w io.Writer) error {
	services, err := e.reader.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	names := make(map[int64]string, len(services))
	for _, s := range services {
		names[s.ID] = s.Name
	}

	bookings, err := e.reader.ListBookings(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	entries, err := e.reader.ListAudit(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list audit: %w", err)
	}

	sw := newSheetWriter()
	defer sw.close()

	if err := sw.addSheet("Bookings"); err != nil {
		return err
	}
	if err := sw.writeHeader([]string{
		"ID", "Public ID", "Service", "Customer", "Email",
		"Start (UTC)", "End (UTC)", "Status", "Notes", "Created (UTC)",
	}); err != nil {
		return err
	}
	for i := range bookings {
		b := &bookings[i]
		svc := names[b.ServiceID]
		if svc == "" {
			svc = fmt.Sprintf("service %d", b.ServiceID)
		}
		if err := sw.writeRow([]interface{}{
			b.ID, b.PublicID, svc, b.CustomerName, b.CustomerEmail,
			b.StartTime.UTC().Format(time.RFC3339),
			b.EndTime.UTC().Format(time.RFC3339),
			b.Status, b.Notes,
			b.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}

	if err := sw.addSheet("Audit Log"); err != nil {
		return err
	}
	if err := sw.writeHeader([]string{
		"ID", "Booking ID", "Service", "From", "To", "At (UTC)",
	}); err != nil {
		return err
	}
	for i := range entries {
		a := &entries[i]
		svc := names[a.ServiceID]
		if svc == "" {
			svc = fmt.Sprintf("service %d", a.ServiceID)
		}
		if err := sw.writeRow([]interface{}{
			a.ID, a.BookingID, svc, a.FromStatus, a.ToStatus,
			a.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}

	return sw.save(w)
}

// sheetWriter wraps excelize with a row cursor per sheet.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel caps sheet names at 31 chars.
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		w.file.SetSheetName("Sheet1", name)
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	cells := make([]interface{}, len(columns))
	for i, c := range columns {
		cells[i] = c
	}
	if err := w.writeRow(cells); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

func (w *sheetWriter) save(out io.Writer) error {
	return w.file.Write(out)
}

func (w *sheetWriter) close() {
	_ = w.file.Close()
}
