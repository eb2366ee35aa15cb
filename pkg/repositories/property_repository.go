package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-concierge/pkg/crypto"
	"github.com/ekaya-inc/ekaya-concierge/pkg/database"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// PropertyRepository defines the interface for property data access.
type PropertyRepository interface {
	// Get returns a property by ID (nil if not found).
	Get(ctx context.Context, propertyID string) (*models.Property, error)

	// Upsert inserts or replaces a property.
	Upsert(ctx context.Context, property *models.Property) error
}

type propertyRepository struct {
	secrets crypto.SecretCipher
}

var _ PropertyRepository = (*propertyRepository)(nil)

// NewPropertyRepository creates a new PostgreSQL property repository.
// When secrets is non-nil the secure access instructions are encrypted at
// rest; nil stores them as plain text.
func NewPropertyRepository(secrets crypto.SecretCipher) PropertyRepository {
	return &propertyRepository{secrets: secrets}
}

func (r *propertyRepository) Get(ctx context.Context, propertyID string) (*models.Property, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	p := &models.Property{}
	var overrides []byte
	err = q.QueryRow(ctx, `
		SELECT property_id, name, address, wifi_ssid, wifi_password, checkin_time, checkout_time,
		       parking_instructions, access_instructions_public, access_instructions_secure,
		       house_rules, faq_overrides, created_at
		FROM properties
		WHERE property_id = $1`, propertyID,
	).Scan(
		&p.PropertyID, &p.Name, &p.Address, &p.WifiSSID, &p.WifiPassword, &p.CheckinTime, &p.CheckoutTime,
		&p.ParkingInstructions, &p.AccessInstructionsPublic, &p.AccessInstructionsSecure,
		&p.HouseRules, &overrides, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get property: %w", err)
	}

	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &p.FAQOverrides); err != nil {
			return nil, fmt.Errorf("failed to unmarshal faq overrides: %w", err)
		}
	}
	if r.secrets != nil {
		p.AccessInstructionsSecure, err = r.secrets.Decrypt(p.AccessInstructionsSecure)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secure access instructions for %s: %w", propertyID, err)
		}
	}
	return p, nil
}

func (r *propertyRepository) Upsert(ctx context.Context, p *models.Property) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return err
	}

	overrides := p.FAQOverrides
	if overrides == nil {
		overrides = map[string]string{}
	}
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal faq overrides: %w", err)
	}

	secure := p.AccessInstructionsSecure
	if r.secrets != nil {
		secure, err = r.secrets.Encrypt(secure)
		if err != nil {
			return fmt.Errorf("failed to encrypt secure access instructions: %w", err)
		}
	}

	err = q.QueryRow(ctx, `
		INSERT INTO properties (property_id, name, address, wifi_ssid, wifi_password, checkin_time,
			checkout_time, parking_instructions, access_instructions_public, access_instructions_secure,
			house_rules, faq_overrides)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (property_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			wifi_ssid = EXCLUDED.wifi_ssid,
			wifi_password = EXCLUDED.wifi_password,
			checkin_time = EXCLUDED.checkin_time,
			checkout_time = EXCLUDED.checkout_time,
			parking_instructions = EXCLUDED.parking_instructions,
			access_instructions_public = EXCLUDED.access_instructions_public,
			access_instructions_secure = EXCLUDED.access_instructions_secure,
			house_rules = EXCLUDED.house_rules,
			faq_overrides = EXCLUDED.faq_overrides
		RETURNING created_at`,
		p.PropertyID, p.Name, p.Address, p.WifiSSID, p.WifiPassword, p.CheckinTime,
		p.CheckoutTime, p.ParkingInstructions, p.AccessInstructionsPublic, secure,
		p.HouseRules, overridesJSON,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert property: %w", err)
	}
	return nil
}
