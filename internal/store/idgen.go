package store

import (
	"fmt"
	"sync/atomic"
)

const idPrefix = "PAY-"

// IDGenerator hands out strictly increasing payment identifiers. A reserved
// id is never reused, even when the creation that reserved it fails later;
// gaps in the sequence are acceptable, collisions are not.
type IDGenerator struct {
	counter atomic.Uint64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next reserves and formats the next identifier.
func (g *IDGenerator) Next() string {
	n := g.counter.Add(1) - 1
	return fmt.Sprintf("%s%d", idPrefix, n)
}
