package twofactor

import (
	"context"

	"github.com/google/uuid"
)

// DeviceRepository defines the persistence interface for TOTP devices.
type DeviceRepository interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*Device, error)
	// GetOrCreate returns the existing device or stores d. created reports
	// which one happened.
	GetOrCreate(ctx context.Context, d *Device) (device *Device, created bool, err error)
	Confirm(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, userID uuid.UUID) error
}
