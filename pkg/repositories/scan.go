// Package repositories persists bookings, properties, communications and
// approvals in PostgreSQL.
package repositories

import (
	"strings"
	"time"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// dateParam renders an optional date for comparison with a DATE column.
func dateParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// normalizeEmail lowercases and trims an address for matching.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
