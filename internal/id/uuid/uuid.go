// Package uuid provides job identity generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates job identities. jobId is specified as a 128-bit random
// UUID, so the primary constructor is v4; v7 is kept for callers that want a
// time-ordered identity (e.g. request IDs) without pulling in another library.
type Generator struct{}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// NewID returns a random (v4) UUID string suitable for a jobId.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}

// NewRawID returns a random (v4) UUID.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid4: %w", err)
	}
	return id, nil
}

// NewOrderedID returns a time-ordered (v7) UUID string, for identities where
// chronological sortability is useful but identity need not be random.
func (Generator) NewOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
