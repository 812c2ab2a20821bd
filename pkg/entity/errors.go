package entity

import "errors"

var (
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrReadOnlyEntity = errors.New("entity does not accept commands")
	ErrInvalidOption  = errors.New("option is not valid for this entity")
	ErrInvalidPayload = errors.New("unsupported command payload")
)
