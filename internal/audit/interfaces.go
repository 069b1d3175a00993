package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"innkeeper/internal/calendar"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows for a table as maps, plus the column order.
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)

	GetDB() *sql.DB
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	SaveToFile(path string) error
	Close() error
}

// OverrideCleaner drops past override rows that no reservation references.
type OverrideCleaner interface {
	DeleteStaleOverrides(ctx context.Context, cutoff calendar.DateKey) (int64, error)
}

// GenerateFilename creates a filename like "audit_2025-05.xlsx" for the month of t.
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("audit_%04d-%02d.xlsx", t.Year(), int(t.Month()))
}

// previousMonth returns a day inside the month before t.
func previousMonth(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 12, 0, 0, 0, t.Location())
	return first.AddDate(0, 0, -1)
}
