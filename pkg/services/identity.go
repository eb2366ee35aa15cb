package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/repositories"
)

// IdentityResult is the outcome of checking a guest's answers.
type IdentityResult struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// IdentityVerifier checks guest-supplied answers against a booking record.
type IdentityVerifier struct {
	bookings   repositories.BookingRepository
	properties repositories.PropertyRepository
	logger     *zap.Logger
}

// NewIdentityVerifier creates a verifier over the booking and property repositories.
func NewIdentityVerifier(bookings repositories.BookingRepository, properties repositories.PropertyRepository, logger *zap.Logger) *IdentityVerifier {
	return &IdentityVerifier{
		bookings:   bookings,
		properties: properties,
		logger:     logger.Named("identity"),
	}
}

var arrivalDateLayouts = []string{time.DateOnly, time.RFC3339, "2/1/2006", "2-1-2006", "2.1.2006"}

// Verify compares every supplied answer with the booking. Each answer that is
// present must match; at least one answer is required.
func (v *IdentityVerifier) Verify(ctx context.Context, bookingID string, answers models.IdentityAnswers) IdentityResult {
	if answers.IsEmpty() {
		return IdentityResult{Reason: "No verification answers provided"}
	}

	booking, err := v.bookings.Get(ctx, bookingID)
	if err != nil {
		v.logger.Error("Failed to load booking for verification",
			zap.String("booking_id", bookingID),
			zap.Error(err))
		return IdentityResult{Reason: "Unable to verify identity due to system error"}
	}
	if booking == nil {
		return IdentityResult{Reason: "Booking not found"}
	}

	if answers.GuestName != "" && !equalFold(answers.GuestName, booking.GuestName) {
		return IdentityResult{Reason: "Name does not match booking record"}
	}

	if answers.GuestEmail != "" && !equalFold(answers.GuestEmail, booking.GuestEmail) {
		return IdentityResult{Reason: "Email does not match booking record"}
	}

	if answers.ArrivalDate != "" {
		provided, ok := parseArrivalDate(answers.ArrivalDate)
		if !ok || provided.Format(time.DateOnly) != booking.ArrivalDate.Format(time.DateOnly) {
			return IdentityResult{Reason: "Arrival date does not match booking record"}
		}
	}

	if answers.PropertyName != "" {
		property, err := v.properties.Get(ctx, booking.PropertyID)
		if err != nil || property == nil {
			if err != nil {
				v.logger.Error("Failed to load property for verification",
					zap.String("property_id", booking.PropertyID),
					zap.Error(err))
			}
			return IdentityResult{Reason: "Property information not available for verification"}
		}
		if !propertyNameMatches(answers.PropertyName, property.Name) {
			return IdentityResult{Reason: "Property name does not match booking record"}
		}
	}

	v.logger.Info("Guest identity verified", zap.String("booking_id", bookingID))
	return IdentityResult{Verified: true}
}

// minPropertyNameFragment is the shortest partial property name accepted.
const minPropertyNameFragment = 4

// propertyNameMatches accepts the full name, a longer phrase containing it,
// or a run of whole words from it ("Harbour" for "Harbour Cottage").
func propertyNameMatches(provided, expected string) bool {
	p := strings.Join(strings.Fields(strings.ToLower(provided)), " ")
	e := strings.Join(strings.Fields(strings.ToLower(expected)), " ")
	if p == "" || e == "" {
		return false
	}
	if p == e || strings.Contains(" "+p+" ", " "+e+" ") {
		return true
	}
	if utf8.RuneCountInString(p) < minPropertyNameFragment {
		return false
	}
	return strings.Contains(" "+e+" ", " "+p+" ")
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func parseArrivalDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range arrivalDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
