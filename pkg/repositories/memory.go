package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// MemoryStore is an in-process implementation of every repository, used by
// service and handler tests. All methods are safe for concurrent use and
// follow the same not-found and conflict rules as the PostgreSQL versions.
type MemoryStore struct {
	mu             sync.Mutex
	bookings       map[string]*models.Booking
	properties     map[string]*models.Property
	communications map[uuid.UUID]*models.Communication
	approvals      map[uuid.UUID]*models.Approval
	seq            int64
	now            func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:       make(map[string]*models.Booking),
		properties:     make(map[string]*models.Property),
		communications: make(map[uuid.UUID]*models.Communication),
		approvals:      make(map[uuid.UUID]*models.Approval),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store's clock.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Bookings returns the store as a BookingRepository.
func (s *MemoryStore) Bookings() BookingRepository { return (*memoryBookings)(s) }

// Properties returns the store as a PropertyRepository.
func (s *MemoryStore) Properties() PropertyRepository { return (*memoryProperties)(s) }

// Communications returns the store as a CommunicationRepository.
func (s *MemoryStore) Communications() CommunicationRepository { return (*memoryCommunications)(s) }

// Approvals returns the store as an ApprovalRepository.
func (s *MemoryStore) Approvals() ApprovalRepository { return (*memoryApprovals)(s) }

// InTx runs fn directly. The store has no rollback.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stamp returns a strictly increasing timestamp so insertion order is stable.
func (s *MemoryStore) stamp() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

// ---- bookings

type memoryBookings MemoryStore

func (m *memoryBookings) store() *MemoryStore { return (*MemoryStore)(m) }

func (m *memoryBookings) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	s := m.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memoryBookings) FindByEmail(ctx context.Context, email string, arrival *time.Time) ([]*models.Booking, error) {
	email = normalizeEmail(email)
	return m.find(func(b *models.Booking) bool {
		return normalizeEmail(b.GuestEmail) == email
	}, arrival), nil
}

func (m *memoryBookings) FindByName(ctx context.Context, name string, arrival *time.Time) ([]*models.Booking, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	return m.find(func(b *models.Booking) bool {
		return strings.Contains(strings.ToUpper(b.GuestName), name)
	}, arrival), nil
}

func (m *memoryBookings) find(match func(*models.Booking) bool, arrival *time.Time) []*models.Booking {
	s := m.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Booking
	for _, b := range s.bookings {
		if !match(b) {
			continue
		}
		if arrival != nil && b.ArrivalDate.Format("2006-01-02") != arrival.Format("2006-01-02") {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArrivalDate.After(out[j].ArrivalDate) })
	return out
}

func (m *memoryBookings) Create(ctx context.Context, b *models.Booking) error {
	s := m.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[b.BookingID]; exists {
		return fmt.Errorf("booking %s: %w", b.BookingID, apperrors.ErrConflict)
	}
	if b.Status == "" {
		b.Status = models.BookingStatusConfirmed
	}
	b.CreatedAt = s.stamp()
	cp := *b
	s.bookings[b.BookingID] = &cp
	return nil
}

// ---- properties

type memoryProperties MemoryStore

func (m *memoryProperties) Get(ctx context.Context, propertyID string) (*models.Property, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.properties[propertyID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memoryProperties) Upsert(ctx context.Context, p *models.Property) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.properties[p.PropertyID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = s.stamp()
	}
	cp := *p
	s.properties[p.PropertyID] = &cp
	return nil
}

// ---- communications

type memoryCommunications MemoryStore

func (m *memoryCommunications) Create(ctx context.Context, c *models.Communication) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.stamp()
	}
	cp := *c
	s.communications[c.ID] = &cp
	return nil
}

func (m *memoryCommunications) Get(ctx context.Context, id uuid.UUID) (*models.Communication, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.communications[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCommunications) ListByBooking(ctx context.Context, bookingID string) ([]*models.Communication, error) {
	return m.list(func(c *models.Communication) bool {
		return c.BookingID != nil && *c.BookingID == bookingID
	}), nil
}

func (m *memoryCommunications) ListByThread(ctx context.Context, threadID string) ([]*models.Communication, error) {
	if threadID == "" {
		return nil, nil
	}
	return m.list(func(c *models.Communication) bool { return c.ThreadID == threadID }), nil
}

func (m *memoryCommunications) list(match func(*models.Communication) bool) []*models.Communication {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Communication
	for _, c := range s.communications {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memoryCommunications) MarkApproved(ctx context.Context, id uuid.UUID, approvedBy string, at time.Time) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.communications[id]
	if !ok {
		return fmt.Errorf("communication %s: %w", id, apperrors.ErrNotFound)
	}
	c.ApprovedBy = &approvedBy
	c.ApprovedAt = &at
	return nil
}

// ---- approvals

type memoryApprovals MemoryStore

func (m *memoryApprovals) Create(ctx context.Context, a *models.Approval) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.stamp()
	}
	if a.Status == "" {
		a.Status = models.ApprovalStatusPending
	}
	s.approvals[a.ID] = copyApproval(a)
	return nil
}

func (m *memoryApprovals) Get(ctx context.Context, id uuid.UUID) (*models.Approval, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, apperrors.ErrNotFound)
	}
	return copyApproval(a), nil
}

func (m *memoryApprovals) ListPending(ctx context.Context) ([]*models.Approval, error) {
	return m.listPending(time.Time{}), nil
}

func (m *memoryApprovals) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.Approval, error) {
	return m.listPending(cutoff), nil
}

func (m *memoryApprovals) listPending(cutoff time.Time) []*models.Approval {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Approval
	for _, a := range s.approvals {
		if a.Status != models.ApprovalStatusPending {
			continue
		}
		if !cutoff.IsZero() && !a.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, copyApproval(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memoryApprovals) Resolve(ctx context.Context, id uuid.UUID, res models.ApprovalResolution) (*models.Approval, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !res.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot resolve approval to status %q", res.Status)
	}

	a, ok := s.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, apperrors.ErrNotFound)
	}
	if a.Status != models.ApprovalStatusPending {
		return nil, fmt.Errorf("approval %s: %w", id, apperrors.ErrNotPending)
	}

	at := res.ResolvedAt
	if at.IsZero() {
		at = s.now()
	}
	by := res.ResolvedBy
	a.Status = res.Status
	a.ResolvedAt = &at
	a.ResolvedBy = &by
	if res.Note != "" {
		note := res.Note
		a.ResolutionNote = &note
	}
	return copyApproval(a), nil
}

func copyApproval(a *models.Approval) *models.Approval {
	cp := *a
	if a.Payload != nil {
		cp.Payload = make(map[string]any, len(a.Payload))
		for k, v := range a.Payload {
			cp.Payload[k] = v
		}
	}
	cp.RiskFlags = append([]models.RiskFlag(nil), a.RiskFlags...)
	return &cp
}
