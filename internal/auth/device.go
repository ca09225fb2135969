package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

var (
	ErrDeviceRequired = errors.New("device identifier required")
	ErrDeviceConflict = errors.New("account bound to another device")
)

// DeviceStore is the persistence the guard needs. The partial unique indexes
// on account_devices are the backstop for concurrent binds.
type DeviceStore interface {
	GetActiveDevice(ctx context.Context, accountID int64) (model.Device, error)
	GetActiveDeviceByIdentifier(ctx context.Context, deviceIdentifier string) (model.Device, error)
	DeactivateAccountDevices(ctx context.Context, accountID int64, revokedAt time.Time) error
	DeactivateDeviceByIdentifier(ctx context.Context, deviceIdentifier string, revokedAt time.Time) error
	CreateDevice(ctx context.Context, device model.Device) error
	RecordDeviceEvent(ctx context.Context, accountID int64, deviceIdentifier string, event model.DeviceEvent) error
	RevokeAccountRefreshSessions(ctx context.Context, accountID int64, revokedAt time.Time) error
}

// DeviceGuard enforces exactly one live session per account per device.
// The most recent device always wins; the previous one is kicked out.
type DeviceGuard struct {
	store    DeviceStore
	denylist *Denylist
	logger   *zap.Logger
}

func NewDeviceGuard(store DeviceStore, denylist *Denylist, logger *zap.Logger) *DeviceGuard {
	return &DeviceGuard{store: store, denylist: denylist, logger: logger}
}

// Enforce applies the binding state machine for one authenticated request.
// It returns nil to proceed, ErrDeviceRequired before any state is touched,
// or ErrDeviceConflict after revoking the account's tokens.
func (g *DeviceGuard) Enforce(ctx context.Context, accountID int64, presentedDeviceID string) error {
	if presentedDeviceID == "" {
		return ErrDeviceRequired
	}
	now := time.Now().UTC()

	// A device identifier belongs to at most one account at any instant.
	// If someone else holds it, their binding loses; the event is recorded
	// for audit and this request proceeds through the normal transitions.
	foreign, err := g.store.GetActiveDeviceByIdentifier(ctx, presentedDeviceID)
	if err == nil && foreign.AccountID != accountID {
		if err := g.store.DeactivateDeviceByIdentifier(ctx, presentedDeviceID, now); err != nil {
			return err
		}
		if err := g.store.RecordDeviceEvent(ctx, foreign.AccountID, presentedDeviceID, model.DeviceEventTakeover); err != nil {
			return err
		}
		g.logger.Info("device takeover",
			zap.Int64("previous_account_id", foreign.AccountID),
			zap.Int64("account_id", accountID))
	} else if err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}

	current, err := g.store.GetActiveDevice(ctx, accountID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return g.bind(ctx, accountID, presentedDeviceID, now)
	case err != nil:
		return err
	case current.DeviceIdentifier == presentedDeviceID:
		return nil
	default:
		return g.revokeAndReject(ctx, accountID, presentedDeviceID, now)
	}
}

func (g *DeviceGuard) bind(ctx context.Context, accountID int64, deviceID string, now time.Time) error {
	device := model.Device{
		ID:               uuid.New(),
		AccountID:        accountID,
		DeviceIdentifier: deviceID,
		Active:           true,
		BoundAt:          now,
	}
	if err := g.store.CreateDevice(ctx, device); err != nil {
		// Lost a concurrent bind race; the account now has an active
		// device, so re-run the transition against it.
		if db.IsUniqueViolation(err) {
			current, lookupErr := g.store.GetActiveDevice(ctx, accountID)
			if lookupErr == nil && current.DeviceIdentifier == deviceID {
				return nil
			}
			return g.revokeAndReject(ctx, accountID, deviceID, now)
		}
		return err
	}
	return g.store.RecordDeviceEvent(ctx, accountID, deviceID, model.DeviceEventBound)
}

func (g *DeviceGuard) revokeAndReject(ctx context.Context, accountID int64, deviceID string, now time.Time) error {
	if err := g.store.RevokeAccountRefreshSessions(ctx, accountID, now); err != nil {
		return err
	}
	if err := g.store.DeactivateAccountDevices(ctx, accountID, now); err != nil {
		return err
	}
	if err := g.denylist.Deny(ctx, accountID); err != nil {
		g.logger.Warn("token denylist write failed", zap.Error(err))
	}
	if err := g.store.RecordDeviceEvent(ctx, accountID, deviceID, model.DeviceEventConflict); err != nil {
		g.logger.Warn("device event write failed", zap.Error(err))
	}
	return ErrDeviceConflict
}
