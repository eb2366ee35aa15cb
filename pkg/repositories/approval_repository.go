package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/database"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// ApprovalRepository defines the interface for the human review queue.
type ApprovalRepository interface {
	// Create inserts a pending approval, assigning ID and CreatedAt when unset.
	Create(ctx context.Context, approval *models.Approval) error

	// Get returns an approval by ID, or apperrors.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Approval, error)

	// ListPending returns pending approvals, oldest first.
	ListPending(ctx context.Context) ([]*models.Approval, error)

	// ListPendingBefore returns pending approvals created before cutoff, oldest first.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.Approval, error)

	// Resolve moves a pending approval to a terminal status. It returns
	// apperrors.ErrNotFound if the approval does not exist and
	// apperrors.ErrNotPending if it was already resolved.
	Resolve(ctx context.Context, id uuid.UUID, resolution models.ApprovalResolution) (*models.Approval, error)
}

type approvalRepository struct{}

var _ ApprovalRepository = (*approvalRepository)(nil)

// NewApprovalRepository creates a new PostgreSQL approval repository.
func NewApprovalRepository() ApprovalRepository {
	return &approvalRepository{}
}

const approvalColumns = `id, type, payload, status, reason, assignee, comm_id, risk_flags,
		confidence_score, created_at, resolved_at, resolved_by, resolution_note`

func (r *approvalRepository) Create(ctx context.Context, a *models.Approval) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return err
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = models.ApprovalStatusPending
	}

	payload := a.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal approval payload: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO approvals (id, type, payload, status, reason, assignee, comm_id, risk_flags,
			confidence_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, string(a.Type), payloadJSON, string(a.Status), a.Reason, a.Assignee, a.CommunicationID,
		models.RiskFlagStrings(a.RiskFlags), a.ConfidenceScore, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

func (r *approvalRepository) Get(ctx context.Context, id uuid.UUID) (*models.Approval, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("approval %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return a, nil
}

func (r *approvalRepository) ListPending(ctx context.Context) ([]*models.Approval, error) {
	return r.list(ctx, `status = 'pending'`)
}

func (r *approvalRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.Approval, error) {
	return r.list(ctx, `status = 'pending' AND created_at < $1`, cutoff)
}

func (r *approvalRepository) list(ctx context.Context, predicate string, args ...any) ([]*models.Approval, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE `+predicate+`
		ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}
	return approvals, nil
}

// Resolve uses a conditional update so that of two concurrent reviewers
// exactly one succeeds.
func (r *approvalRepository) Resolve(ctx context.Context, id uuid.UUID, res models.ApprovalResolution) (*models.Approval, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	if !res.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot resolve approval to status %q", res.Status)
	}
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}

	var note *string
	if res.Note != "" {
		note = &res.Note
	}

	row := q.QueryRow(ctx, `
		UPDATE approvals
		SET status = $2, resolved_by = $3, resolved_at = $4, resolution_note = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+approvalColumns,
		id, string(res.Status), res.ResolvedBy, res.ResolvedAt, note,
	)
	a, err := scanApproval(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve approval: %w", err)
	}

	// Zero rows: either missing or already resolved.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM approvals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check approval: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("approval %s: %w", id, apperrors.ErrNotFound)
	}
	return nil, fmt.Errorf("approval %s: %w", id, apperrors.ErrNotPending)
}

func scanApproval(row rowScanner) (*models.Approval, error) {
	a := &models.Approval{}
	var (
		approvalType string
		status       string
		payload      []byte
		flags        []string
	)
	err := row.Scan(
		&a.ID, &approvalType, &payload, &status, &a.Reason, &a.Assignee, &a.CommunicationID, &flags,
		&a.ConfidenceScore, &a.CreatedAt, &a.ResolvedAt, &a.ResolvedBy, &a.ResolutionNote,
	)
	if err != nil {
		return nil, err
	}

	a.Type = models.ApprovalType(approvalType)
	a.Status = models.ApprovalStatus(status)
	a.RiskFlags = models.ParseRiskFlags(flags)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal approval payload: %w", err)
		}
	}
	return a, nil
}
