// Package ident provides identifier generation as an injectable service so
// that visitor, room, and record identity is deterministic under test.
// This is part of the platform layer and contains no business logic.
package ident

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator interface {
	NewID() uuid.UUID
}

// Random is the production Generator backed by random UUIDv4.
type Random struct{}

// NewRandom creates a random UUID generator.
func NewRandom() Random { return Random{} }

// NewID returns a new random UUID.
func (Random) NewID() uuid.UUID { return uuid.New() }

// Sequential produces a deterministic, strictly increasing UUID stream.
// Intended for tests that need stable identifiers.
type Sequential struct {
	counter atomic.Uint64
}

// NewSequential creates a deterministic generator starting at 1.
func NewSequential() *Sequential { return &Sequential{} }

// NewID returns the next identifier in the sequence.
func (s *Sequential) NewID() uuid.UUID {
	n := s.counter.Add(1)
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

var (
	_ Generator = Random{}
	_ Generator = (*Sequential)(nil)
)
