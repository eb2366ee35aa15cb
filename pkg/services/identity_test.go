package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/repositories"
)

func TestIdentityVerifier_Verify(t *testing.T) {
	store := repositories.NewMemoryStore()
	seedConcierge(t, store)
	require.NoError(t, store.Bookings().Create(context.Background(), &models.Booking{
		BookingID:   "bk-orphan",
		GuestName:   "Tom Jones",
		GuestEmail:  "tom@example.com",
		PropertyID:  "demolished",
		ArrivalDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
	}))
	v := NewIdentityVerifier(store.Bookings(), store.Properties(), zap.NewNop())

	tests := []struct {
		name      string
		bookingID string
		answers   models.IdentityAnswers
		verified  bool
		reason    string
	}{
		{
			name:      "no answers",
			bookingID: "bk-1",
			reason:    "No verification answers provided",
		},
		{
			name:      "unknown booking",
			bookingID: "bk-404",
			answers:   models.IdentityAnswers{GuestName: "Jane Smith"},
			reason:    "Booking not found",
		},
		{
			name:      "name matches ignoring case and spaces",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{GuestName: "  jane SMITH "},
			verified:  true,
		},
		{
			name:      "wrong name",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{GuestName: "Janet Smith"},
			reason:    "Name does not match booking record",
		},
		{
			name:      "wrong email",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{GuestName: "Jane Smith", GuestEmail: "jane@example.org"},
			reason:    "Email does not match booking record",
		},
		{
			name:      "day first arrival date",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{ArrivalDate: "20/12/2026"},
			verified:  true,
		},
		{
			name:      "iso arrival date",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{ArrivalDate: "2026-12-20"},
			verified:  true,
		},
		{
			name:      "wrong arrival date",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{ArrivalDate: "2026-12-21"},
			reason:    "Arrival date does not match booking record",
		},
		{
			name:      "unparseable arrival date",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{ArrivalDate: "next Tuesday"},
			reason:    "Arrival date does not match booking record",
		},
		{
			name:      "partial property name",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{PropertyName: "harbour"},
			verified:  true,
		},
		{
			name:      "property name inside a longer phrase",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{PropertyName: "the  harbour cottage in Whitby"},
			verified:  true,
		},
		{
			name:      "single letter property name",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{PropertyName: "a"},
			reason:    "Property name does not match booking record",
		},
		{
			name:      "short property name fragment",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{PropertyName: "Cot"},
			reason:    "Property name does not match booking record",
		},
		{
			name:      "property name fragment inside a word",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{PropertyName: "arbour"},
			reason:    "Property name does not match booking record",
		},
		{
			name:      "blank property name is ignored",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{GuestName: "Jane Smith", PropertyName: ""},
			verified:  true,
		},
		{
			name:      "wrong property name",
			bookingID: "bk-1",
			answers:   models.IdentityAnswers{PropertyName: "Seaside Villa"},
			reason:    "Property name does not match booking record",
		},
		{
			name:      "property record missing",
			bookingID: "bk-orphan",
			answers:   models.IdentityAnswers{PropertyName: "Old Mill"},
			reason:    "Property information not available for verification",
		},
		{
			name:      "every answer correct",
			bookingID: "bk-1",
			answers: models.IdentityAnswers{
				GuestName:    "Jane Smith",
				GuestEmail:   "JANE@example.com",
				ArrivalDate:  "2026-12-20",
				PropertyName: "Harbour Cottage",
			},
			verified: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Verify(context.Background(), tt.bookingID, tt.answers)
			assert.Equal(t, tt.verified, got.Verified)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}
