package testutil

// StaticIDGenerator returns the same id every time.
//
// Engines built with it produce byte-identical traces across runs, which
// golden comparison depends on.
//
// Thread-safety: StaticIDGenerator is stateless and safe for concurrent use.
type StaticIDGenerator struct {
	id string
}

// NewStaticIDGenerator creates a generator for id. An empty id becomes
// "test-engine-default".
func NewStaticIDGenerator(id string) *StaticIDGenerator {
	if id == "" {
		id = "test-engine-default"
	}
	return &StaticIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.IDGenerator.
func (g *StaticIDGenerator) Generate() string {
	return g.id
}
