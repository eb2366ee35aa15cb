package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/database"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// BookingRepository defines the interface for booking data access.
type BookingRepository interface {
	// Get returns a booking by ID (nil if not found).
	Get(ctx context.Context, bookingID string) (*models.Booking, error)

	// FindByEmail returns bookings for a guest email, newest arrival first.
	FindByEmail(ctx context.Context, email string, arrival *time.Time) ([]*models.Booking, error)

	// FindByName returns bookings whose guest name contains name, newest arrival first.
	FindByName(ctx context.Context, name string, arrival *time.Time) ([]*models.Booking, error)

	// Create inserts a booking.
	Create(ctx context.Context, booking *models.Booking) error
}

type bookingRepository struct{}

var _ BookingRepository = (*bookingRepository)(nil)

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository() BookingRepository {
	return &bookingRepository{}
}

const bookingColumns = `booking_id, channel, guest_name, guest_email, guest_phone, property_id,
		arrival_date, departure_date, num_guests, pets, status, notes, created_at`

func (r *bookingRepository) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`, bookingID)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (r *bookingRepository) FindByEmail(ctx context.Context, email string, arrival *time.Time) ([]*models.Booking, error) {
	return r.find(ctx, `LOWER(guest_email) = $1`, normalizeEmail(email), arrival)
}

func (r *bookingRepository) FindByName(ctx context.Context, name string, arrival *time.Time) ([]*models.Booking, error) {
	return r.find(ctx, `strpos(UPPER(guest_name), UPPER($1)) > 0`, strings.TrimSpace(name), arrival)
}

func (r *bookingRepository) find(ctx context.Context, predicate string, value string, arrival *time.Time) ([]*models.Booking, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE ` + predicate + ` AND ($2::date IS NULL OR arrival_date = $2::date)
		ORDER BY arrival_date DESC`

	rows, err := q.Query(ctx, query, value, dateParam(arrival))
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	return bookings, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *models.Booking) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return err
	}

	if b.Status == "" {
		b.Status = models.BookingStatusConfirmed
	}

	err = q.QueryRow(ctx, `
		INSERT INTO bookings (booking_id, channel, guest_name, guest_email, guest_phone, property_id,
			arrival_date, departure_date, num_guests, pets, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		b.BookingID, b.Channel, b.GuestName, normalizeEmail(b.GuestEmail), b.GuestPhone, b.PropertyID,
		b.ArrivalDate, b.DepartureDate, b.NumGuests, b.Pets, b.Status, b.Notes,
	).Scan(&b.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("booking %s: %w", b.BookingID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	err := row.Scan(
		&b.BookingID, &b.Channel, &b.GuestName, &b.GuestEmail, &b.GuestPhone, &b.PropertyID,
		&b.ArrivalDate, &b.DepartureDate, &b.NumGuests, &b.Pets, &b.Status, &b.Notes, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}
