package swbusmsg

import "sync/atomic"

// IDGenerator produces strictly increasing message ids with no gaps,
// scoped to one process (spec §4.E generate_message_id).
type IDGenerator struct {
	next uint64
}

// NewIDGenerator returns a generator whose first Generate() call returns 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Generate returns the next id. Safe for concurrent use.
func (g *IDGenerator) Generate() uint64 {
	return atomic.AddUint64(&g.next, 1)
}
