package db

import (
	"context"
	"fmt"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

const deviceColumns = `id, account_id, device_identifier, active, bound_at, revoked_at`

func scanDevice(row interface{ Scan(...any) error }) (model.Device, error) {
	var device model.Device
	err := row.Scan(
		&device.ID,
		&device.AccountID,
		&device.DeviceIdentifier,
		&device.Active,
		&device.BoundAt,
		&device.RevokedAt,
	)
	return device, notFound(err)
}

func (s *Store) GetActiveDevice(ctx context.Context, accountID int64) (model.Device, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM account_devices
		WHERE account_id = $1 AND active
	`, accountID)
	return scanDevice(row)
}

func (s *Store) GetActiveDeviceByIdentifier(ctx context.Context, deviceIdentifier string) (model.Device, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM account_devices
		WHERE device_identifier = $1 AND active
	`, deviceIdentifier)
	return scanDevice(row)
}

func (s *Store) DeactivateAccountDevices(ctx context.Context, accountID int64, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE account_devices
		SET active = false, revoked_at = $1
		WHERE account_id = $2 AND active
	`, revokedAt, accountID)
	if err != nil {
		return fmt.Errorf("deactivate account devices: %w", err)
	}
	return nil
}

func (s *Store) DeactivateDeviceByIdentifier(ctx context.Context, deviceIdentifier string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE account_devices
		SET active = false, revoked_at = $1
		WHERE device_identifier = $2 AND active
	`, revokedAt, deviceIdentifier)
	if err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	return nil
}

func (s *Store) CreateDevice(ctx context.Context, device model.Device) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_devices (id, account_id, device_identifier, active, bound_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, device.ID, device.AccountID, device.DeviceIdentifier, device.Active, device.BoundAt, device.RevokedAt)
	if err != nil && !IsUniqueViolation(err) {
		return fmt.Errorf("create device: %w", err)
	}
	return err
}

func (s *Store) RecordDeviceEvent(ctx context.Context, accountID int64, deviceIdentifier string, event model.DeviceEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_device_events (account_id, device_identifier, event)
		VALUES ($1, $2, $3)
	`, accountID, deviceIdentifier, event)
	if err != nil {
		return fmt.Errorf("record device event: %w", err)
	}
	return nil
}
