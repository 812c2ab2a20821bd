package entity

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

type Select struct {
	base
	description SelectDescription

	mutex     sync.Mutex
	requested string
}

func NewSelect(api API, source DataSource, logger logrus.FieldLogger, scooterID string, description SelectDescription) *Select {
	return &Select{
		base:        newBase(api, source, logger, scooterID, description.Key, description.Name, description.Icon, PlatformSelect),
		description: description,
	}
}

func (s *Select) Options() []string {
	return slices.Clone(s.description.Options)
}

// CurrentOption resolves in order: the server-reported <key>_state field,
// the last option requested through this entity, the first option.
func (s *Select) CurrentOption() string {
	if v, ok := s.field(s.description.StateKey()); ok && v != nil {
		if option, ok := v.(string); ok {
			return option
		}
		return fmt.Sprint(v)
	}

	s.mutex.Lock()
	requested := s.requested
	s.mutex.Unlock()
	if requested != "" {
		return requested
	}

	if len(s.description.Options) > 0 {
		return s.description.Options[0]
	}
	return ""
}

// SelectOption calls the bound API method with the option, records it as
// the optimistic current option and asks for a refresh.
func (s *Select) SelectOption(ctx context.Context, option string) error {
	if !slices.Contains(s.description.Options, option) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidOption, option, s.description.Options)
	}

	if err := s.description.Method.Invoke(ctx, s.api, s.scooterID, option); err != nil {
		s.logger.WithField("key", s.key).WithError(err).
			Errorf("Failed to set %s to %s for scooter %s", s.key, option, s.scooterID)
		return err
	}

	s.mutex.Lock()
	s.requested = option
	s.mutex.Unlock()

	s.source.RequestRefresh(ctx)
	return nil
}
