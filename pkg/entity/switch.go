package entity

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

// LockSwitch is on while the scooter is locked. It keeps no local state:
// the next snapshot is the only source of truth.
type LockSwitch struct {
	base
}

func NewLockSwitch(api API, source DataSource, logger logrus.FieldLogger, scooterID string) *LockSwitch {
	return &LockSwitch{
		base: newBase(api, source, logger, scooterID, "lock", "Lock", "mdi:lock", PlatformSwitch),
	}
}

// IsOn reports the locked flag, assuming locked when the API omits it
func (s *LockSwitch) IsOn() bool {
	scooter, ok := s.scooter()
	if !ok {
		return true
	}
	if locked, ok := scooter.Bool(sunshine.FieldLocked); ok {
		return locked
	}
	return true
}

// TurnOn locks the scooter
func (s *LockSwitch) TurnOn(ctx context.Context) error {
	if err := s.api.Lock(ctx, s.scooterID); err != nil {
		s.logger.WithError(err).Errorf("Failed to lock scooter %s", s.scooterID)
		return err
	}
	s.source.RequestRefresh(ctx)
	return nil
}

// TurnOff unlocks the scooter
func (s *LockSwitch) TurnOff(ctx context.Context) error {
	if err := s.api.Unlock(ctx, s.scooterID); err != nil {
		s.logger.WithError(err).Errorf("Failed to unlock scooter %s", s.scooterID)
		return err
	}
	s.source.RequestRefresh(ctx)
	return nil
}
