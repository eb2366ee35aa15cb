package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/services"
)

type mockConcierge struct {
	resp     *models.AIResponse
	err      error
	received *models.InboundMessage
	query    *services.TextQuery
}

func (m *mockConcierge) HandleInbound(ctx context.Context, msg *models.InboundMessage) (*models.AIResponse, error) {
	m.received = msg
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockConcierge) Preview(ctx context.Context, query services.TextQuery) (*models.AIResponse, error) {
	m.query = &query
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

type resolveCall struct {
	id       uuid.UUID
	action   string
	reviewer string
	note     string
}

// mockApprovals implements services.ApprovalWorkflow over a map.
type mockApprovals struct {
	byID      map[uuid.UUID]*models.Approval
	listErr   error
	staleAge  time.Duration
	resolved  []resolveCall
	resolveFn func(a *models.Approval, action string) error
}

func newMockApprovals(approvals ...*models.Approval) *mockApprovals {
	m := &mockApprovals{byID: make(map[uuid.UUID]*models.Approval)}
	for _, a := range approvals {
		m.byID[a.ID] = a
	}
	return m
}

func (m *mockApprovals) CreateReplyApproval(ctx context.Context, msg *models.InboundMessage, resp *models.AIResponse, reqCtx *models.RequestContext) (*models.Approval, *models.Communication, error) {
	panic("not used")
}

func (m *mockApprovals) CreateDraftWithApproval(ctx context.Context, draft services.DraftRequest, opts services.DraftApprovalOptions) (*models.Approval, *models.Communication, error) {
	panic("not used")
}

func (m *mockApprovals) Enqueue(ctx context.Context, approval *models.Approval) (*models.Approval, error) {
	panic("not used")
}

func (m *mockApprovals) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Approval, error) {
	return m.Resolve(ctx, id, models.ApprovalActionApprove, reviewer, "")
}

func (m *mockApprovals) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Approval, error) {
	return m.Resolve(ctx, id, models.ApprovalActionReject, reviewer, reason)
}

func (m *mockApprovals) Resolve(ctx context.Context, id uuid.UUID, action, reviewer, note string) (*models.Approval, error) {
	m.resolved = append(m.resolved, resolveCall{id: id, action: action, reviewer: reviewer, note: note})
	a, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.resolveFn != nil {
		if err := m.resolveFn(a, action); err != nil {
			return nil, err
		}
	}
	if action == models.ApprovalActionApprove {
		a.Status = models.ApprovalStatusApproved
	} else {
		a.Status = models.ApprovalStatusRejected
	}
	a.ResolvedBy = &reviewer
	return a, nil
}

func (m *mockApprovals) Get(ctx context.Context, id uuid.UUID) (*models.Approval, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, apperrors.ErrNotFound)
	}
	return a, nil
}

func (m *mockApprovals) ListPending(ctx context.Context) ([]*models.Approval, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Approval
	for _, a := range m.byID {
		if a.Status == models.ApprovalStatusPending {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockApprovals) ListStale(ctx context.Context, olderThan time.Duration) ([]*models.Approval, error) {
	m.staleAge = olderThan
	return m.ListPending(ctx)
}

func pendingApproval() *models.Approval {
	return &models.Approval{
		ID:        uuid.New(),
		Type:      models.ApprovalTypeReply,
		Status:    models.ApprovalStatusPending,
		Payload:   map[string]any{"draft": "Hello"},
		CreatedAt: time.Now().UTC(),
		RiskFlags: []models.RiskFlag{},
	}
}
