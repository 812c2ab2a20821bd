package entity

import (
	"context"

	"github.com/sirupsen/logrus"
)

type Button struct {
	base
	description ButtonDescription
}

func NewButton(api API, source DataSource, logger logrus.FieldLogger, scooterID string, description ButtonDescription) *Button {
	return &Button{
		base:        newBase(api, source, logger, scooterID, description.Key, description.Name, description.Icon, PlatformButton),
		description: description,
	}
}

// Press runs the bound command then asks for a refresh. Concurrent presses
// are independent requests.
func (b *Button) Press(ctx context.Context) error {
	if b.description.Press == nil {
		return nil
	}

	if err := b.description.Press(ctx, b.api, b.scooterID); err != nil {
		b.logger.WithField("key", b.key).WithError(err).
			Errorf("Failed to press button %s for scooter %s", b.key, b.scooterID)
		return err
	}

	b.source.RequestRefresh(ctx)
	return nil
}
