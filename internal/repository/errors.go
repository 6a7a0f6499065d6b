package repository

import (
	"errors"
	"fmt"

	"github.com/noah-isme/canvas-sync/internal/models"
)

var (
	// ErrLocalStore marks every persistence failure of the cache.
	ErrLocalStore = errors.New("local store failure")
	// ErrInvalidRecord is returned for rows without an id or, for child rows, without a course id.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrUnknownEntity is returned for entity names the store does not manage.
	ErrUnknownEntity = errors.New("unknown entity")
)

// StoreError describes which store operation failed on which collection.
type StoreError struct {
	Op     string
	Entity models.EntityType
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("local store %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap matches ErrLocalStore as well as the driver error.
func (e *StoreError) Unwrap() []error {
	return []error{ErrLocalStore, e.Err}
}

func storeErr(op string, entity models.EntityType, err error) error {
	if err == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Op: op, Entity: entity, Err: err}
}
