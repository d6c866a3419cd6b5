package audit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

type fakeReader struct {
	services []model.Service
	bookings []model.Booking
	entries  []store.AuditEntry
}

func (f *fakeReader) ListServices(context.Context) ([]model.Service, error) {
	return f.services, nil
}

func (f *fakeReader) ListBookings(context.Context, time.Time, time.Time) ([]model.Booking, error) {
	return f.bookings, nil
}

func (f *fakeReader) ListAudit(context.Context, time.Time, time.Time) ([]store.AuditEntry, error) {
	return f.entries, nil
}

func TestExport(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		services: []model.Service{{ID: 1, Name: "Haircut"}},
		bookings: []model.Booking{
			{
				ID: 5, PublicID: "abc-123", ServiceID: 1,
				CustomerName: "Alice", CustomerEmail: "alice@example.com",
				StartTime: start, EndTime: start.Add(30 * time.Minute),
				Status: model.StatusConfirmed, CreatedAt: start.Add(-24 * time.Hour),
			},
			{
				ID: 6, PublicID: "def-456", ServiceID: 2,
				CustomerName: "Bob", CustomerEmail: "bob@example.com",
				StartTime: start.Add(time.Hour), EndTime: start.Add(90 * time.Minute),
				Status: model.StatusCanceled, CreatedAt: start.Add(-12 * time.Hour),
			},
		},
		entries: []store.AuditEntry{
			{ID: 1, BookingID: 5, ServiceID: 1, FromStatus: "", ToStatus: model.StatusPending, CreatedAt: start.Add(-24 * time.Hour)},
			{ID: 2, BookingID: 5, ServiceID: 1, FromStatus: model.StatusPending, ToStatus: model.StatusConfirmed, CreatedAt: start.Add(-23 * time.Hour)},
		},
	}

	var buf bytes.Buffer
	err := NewExporter(reader).Export(context.Background(), start.AddDate(0, 0, -7), start.AddDate(0, 0, 7), &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Bookings", "Audit Log"}, f.GetSheetList())

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two bookings")
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Haircut", rows[1][2])
	assert.Equal(t, "confirmed", rows[1][7])
	// Unknown services fall back to a numeric label.
	assert.Equal(t, "service 2", rows[2][2])

	audit, err := f.GetRows("Audit Log")
	require.NoError(t, err)
	require.Len(t, audit, 3)
	assert.Equal(t, "pending", audit[1][4])
	assert.Equal(t, "confirmed", audit[2][4])
}

func TestFilename(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "bookings_2025-03-01_2025-03-31.xlsx", Filename(from, to))
}
