package repositories

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// BookingContextRepository assembles bookings with their property and prior
// communications.
type BookingContextRepository interface {
	// Find looks bookings up by email first and falls back to name. An
	// arrival date narrows either lookup. Phone is accepted but not matched.
	Find(ctx context.Context, query models.BookingQuery) ([]*models.BookingContext, error)
}

type bookingContextRepository struct {
	bookings       BookingRepository
	properties     PropertyRepository
	communications CommunicationRepository
	logger         *zap.Logger
}

var _ BookingContextRepository = (*bookingContextRepository)(nil)

// NewBookingContextRepository composes the booking, property and
// communication repositories.
func NewBookingContextRepository(
	bookings BookingRepository,
	properties PropertyRepository,
	communications CommunicationRepository,
	logger *zap.Logger,
) BookingContextRepository {
	return &bookingContextRepository{
		bookings:       bookings,
		properties:     properties,
		communications: communications,
		logger:         logger.Named("booking-context"),
	}
}

func (r *bookingContextRepository) Find(ctx context.Context, query models.BookingQuery) ([]*models.BookingContext, error) {
	var bookings []*models.Booking
	var err error

	if query.Email != "" {
		bookings, err = r.bookings.FindByEmail(ctx, query.Email, query.ArrivalDate)
		if err != nil {
			return nil, err
		}
	}
	if len(bookings) == 0 && query.Name != "" {
		bookings, err = r.bookings.FindByName(ctx, query.Name, query.ArrivalDate)
		if err != nil {
			return nil, err
		}
	}

	contexts := make([]*models.BookingContext, 0, len(bookings))
	for _, b := range bookings {
		contexts = append(contexts, r.assemble(ctx, b))
	}
	return contexts, nil
}

// assemble joins one booking. Property or history failures are logged and the
// booking is returned without them.
func (r *bookingContextRepository) assemble(ctx context.Context, b *models.Booking) *models.BookingContext {
	bc := &models.BookingContext{Booking: b}

	property, err := r.properties.Get(ctx, b.PropertyID)
	if err != nil {
		r.logger.Warn("Failed to load property for booking",
			zap.String("booking_id", b.BookingID),
			zap.String("property_id", b.PropertyID),
			zap.Error(err))
		return bc
	}
	bc.Property = property

	comms, err := r.communications.ListByBooking(ctx, b.BookingID)
	if err != nil {
		r.logger.Warn("Failed to load communications for booking",
			zap.String("booking_id", b.BookingID),
			zap.Error(err))
		return bc
	}
	bc.Communications = comms
	return bc
}
