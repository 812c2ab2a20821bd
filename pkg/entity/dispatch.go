package entity

import (
	"context"
	"fmt"
	"strings"
)

const (
	PayloadPress = "PRESS"
	PayloadOn    = "ON"
	PayloadOff   = "OFF"
)

// Dispatch routes a command payload to the entity's write path: buttons take
// PRESS, the lock switch ON/OFF and selects one of their options.
func Dispatch(ctx context.Context, e Entity, payload string) error {
	payload = strings.TrimSpace(payload)

	switch target := e.(type) {
	case *Button:
		if payload != PayloadPress {
			return fmt.Errorf("%w: %q for button %s", ErrInvalidPayload, payload, target.UniqueID())
		}
		return target.Press(ctx)
	case *LockSwitch:
		switch strings.ToUpper(payload) {
		case PayloadOn:
			return target.TurnOn(ctx)
		case PayloadOff:
			return target.TurnOff(ctx)
		default:
			return fmt.Errorf("%w: %q for switch %s", ErrInvalidPayload, payload, target.UniqueID())
		}
	case *Select:
		return target.SelectOption(ctx, payload)
	default:
		return fmt.Errorf("%w: %s", ErrReadOnlyEntity, e.UniqueID())
	}
}

// Registry indexes entities by unique id for command routing
type Registry struct {
	entities map[string]Entity
	order    []Entity
}

func NewRegistry(entities []Entity) *Registry {
	r := &Registry{
		entities: make(map[string]Entity, len(entities)),
		order:    entities,
	}
	for _, e := range entities {
		r.entities[e.UniqueID()] = e
	}
	return r
}

func (r *Registry) Get(uniqueID string) (Entity, bool) {
	e, ok := r.entities[uniqueID]
	return e, ok
}

func (r *Registry) All() []Entity {
	return r.order
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Dispatch looks up an entity by unique id and routes the payload to it
func (r *Registry) Dispatch(ctx context.Context, uniqueID, payload string) error {
	e, ok := r.Get(uniqueID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, uniqueID)
	}
	return Dispatch(ctx, e, payload)
}
