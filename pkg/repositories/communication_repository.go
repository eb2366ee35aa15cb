package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/database"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// CommunicationRepository defines the interface for guest message logging.
type CommunicationRepository interface {
	// Create inserts a communication, assigning ID and CreatedAt when unset.
	Create(ctx context.Context, comm *models.Communication) error

	// Get returns a communication by ID (nil if not found).
	Get(ctx context.Context, id uuid.UUID) (*models.Communication, error)

	// ListByBooking returns a booking's communications, oldest first.
	ListByBooking(ctx context.Context, bookingID string) ([]*models.Communication, error)

	// ListByThread returns a thread's communications, oldest first.
	ListByThread(ctx context.Context, threadID string) ([]*models.Communication, error)

	// MarkApproved records the reviewer on a communication.
	MarkApproved(ctx context.Context, id uuid.UUID, approvedBy string, at time.Time) error
}

type communicationRepository struct{}

var _ CommunicationRepository = (*communicationRepository)(nil)

// NewCommunicationRepository creates a new PostgreSQL communication repository.
func NewCommunicationRepository() CommunicationRepository {
	return &communicationRepository{}
}

const communicationColumns = `comm_id, booking_id, direction, channel, subject, body, draft, sent_at,
		approved_by, approved_at, thread_id, from_address, to_address, in_reply_to, created_at`

func (r *communicationRepository) Create(ctx context.Context, c *models.Communication) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return err
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err = q.Exec(ctx, `
		INSERT INTO communications (`+communicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.BookingID, c.Direction, c.Channel, c.Subject, c.Body, c.Draft, c.SentAt,
		c.ApprovedBy, c.ApprovedAt, c.ThreadID, c.FromAddress, c.ToAddress, c.InReplyTo, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create communication: %w", err)
	}
	return nil
}

func (r *communicationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Communication, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+communicationColumns+` FROM communications WHERE comm_id = $1`, id)
	c, err := scanCommunication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get communication: %w", err)
	}
	return c, nil
}

func (r *communicationRepository) ListByBooking(ctx context.Context, bookingID string) ([]*models.Communication, error) {
	return r.list(ctx, `booking_id = $1`, bookingID)
}

func (r *communicationRepository) ListByThread(ctx context.Context, threadID string) ([]*models.Communication, error) {
	if threadID == "" {
		return nil, nil
	}
	return r.list(ctx, `thread_id = $1`, threadID)
}

func (r *communicationRepository) list(ctx context.Context, predicate string, arg any) ([]*models.Communication, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+communicationColumns+`
		FROM communications
		WHERE `+predicate+`
		ORDER BY COALESCE(sent_at, created_at) ASC, created_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list communications: %w", err)
	}
	defer rows.Close()

	var comms []*models.Communication
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan communication: %w", err)
		}
		comms = append(comms, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating communications: %w", err)
	}
	return comms, nil
}

func (r *communicationRepository) MarkApproved(ctx context.Context, id uuid.UUID, approvedBy string, at time.Time) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE communications
		SET approved_by = $2, approved_at = $3
		WHERE comm_id = $1`, id, approvedBy, at)
	if err != nil {
		return fmt.Errorf("failed to approve communication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("communication %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func scanCommunication(row rowScanner) (*models.Communication, error) {
	c := &models.Communication{}
	err := row.Scan(
		&c.ID, &c.BookingID, &c.Direction, &c.Channel, &c.Subject, &c.Body, &c.Draft, &c.SentAt,
		&c.ApprovedBy, &c.ApprovedAt, &c.ThreadID, &c.FromAddress, &c.ToAddress, &c.InReplyTo, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
