package models

import (
	"time"
)

// Booking channel constants.
const (
	BookingChannelAirbnb     = "Airbnb"
	BookingChannelDirect     = "Direct"
	BookingChannelBookingCom = "Booking.com"
)

// Booking status constants.
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusPending   = "pending"
)

// Booking is a guest reservation for a property.
type Booking struct {
	BookingID     string    `json:"booking_id"`
	Channel       string    `json:"channel"`
	GuestName     string    `json:"guest_name"`
	GuestEmail    string    `json:"guest_email"`
	GuestPhone    string    `json:"guest_phone,omitempty"`
	PropertyID    string    `json:"property_id"`
	ArrivalDate   time.Time `json:"arrival_date"`
	DepartureDate time.Time `json:"departure_date"`
	NumGuests     int       `json:"num_guests"`
	Pets          bool      `json:"pets"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Property is a rentable holiday home. Secure fields are never serialized.
type Property struct {
	PropertyID               string            `json:"property_id"`
	Name                     string            `json:"name"`
	Address                  string            `json:"address"`
	WifiSSID                 string            `json:"wifi_ssid,omitempty"`
	WifiPassword             string            `json:"-"`
	CheckinTime              string            `json:"checkin_time,omitempty"`
	CheckoutTime             string            `json:"checkout_time,omitempty"`
	ParkingInstructions      string            `json:"parking_instructions,omitempty"`
	AccessInstructionsPublic string            `json:"access_instructions_public,omitempty"`
	AccessInstructionsSecure string            `json:"-"`
	HouseRules               string            `json:"house_rules,omitempty"`
	FAQOverrides             map[string]string `json:"faq_overrides,omitempty"`
	CreatedAt                time.Time         `json:"created_at"`
}

// PublicProperty is the subset of a property that may be shown to a guest
// before identity verification.
type PublicProperty struct {
	PropertyID               string `json:"property_id"`
	Name                     string `json:"name"`
	Address                  string `json:"address"`
	CheckinTime              string `json:"checkin_time,omitempty"`
	CheckoutTime             string `json:"checkout_time,omitempty"`
	ParkingInstructions      string `json:"parking_instructions,omitempty"`
	AccessInstructionsPublic string `json:"access_instructions_public,omitempty"`
	HouseRules               string `json:"house_rules,omitempty"`
}

// Public returns the guest-safe view of the property.
func (p *Property) Public() *PublicProperty {
	if p == nil {
		return nil
	}
	return &PublicProperty{
		PropertyID:               p.PropertyID,
		Name:                     p.Name,
		Address:                  p.Address,
		CheckinTime:              p.CheckinTime,
		CheckoutTime:             p.CheckoutTime,
		ParkingInstructions:      p.ParkingInstructions,
		AccessInstructionsPublic: p.AccessInstructionsPublic,
		HouseRules:               p.HouseRules,
	}
}

// BookingContext joins a booking with its property and prior communications.
type BookingContext struct {
	Booking        *Booking         `json:"booking"`
	Property       *Property        `json:"property,omitempty"`
	Communications []*Communication `json:"communications,omitempty"`
}

// BookingQuery selects bookings for a context lookup. Email takes priority
// over name; ArrivalDate narrows either.
type BookingQuery struct {
	Email       string
	Name        string
	Phone       string
	ArrivalDate *time.Time
}

// IsEmpty reports whether the query has no usable selector.
func (q BookingQuery) IsEmpty() bool {
	return q.Email == "" && q.Name == "" && q.Phone == ""
}
