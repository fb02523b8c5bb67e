package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a character does not exist.
var ErrNotFound = errors.New("not found")

func characterNotFound(id string) error {
	return fmt.Errorf("character %s: %w", id, ErrNotFound)
}
