package guuid

import "sync"

// generatorPool holds lazily-constructed *Generator values, one roughly per
// P under the Go runtime's sync.Pool implementation. This is this module's
// stand-in for the thread-local storage the core's C++ origin relies on
// (compiler::ThreadLocal there): a Get/Put pair never hands the same
// *Generator to two goroutines at once, and Generate() never suspends, so
// the borrowed instance is exclusively owned for the whole call — giving
// the same "lazy init, no lock, per-caller state" guarantees spec.md asks
// of per-thread storage without Go having an actual TLS primitive.
var generatorPool = sync.Pool{
	New: func() interface{} {
		return NewGenerator(nil, nil)
	},
}

// New generates a new UUIDv7 using a pooled, effectively per-caller
// Generator. This is the package's equivalent of spec.md's
// generate_uuid_v7().
func New() UUID {
	g := generatorPool.Get().(*Generator)
	defer generatorPool.Put(g)
	return g.Generate()
}

// NewString generates a new UUIDv7 and renders it as 32 lowercase hex
// characters with no separators. This is the package's equivalent of
// spec.md's generate_uuid_v7_string().
func NewString() string {
	g := generatorPool.Get().(*Generator)
	defer generatorPool.Put(g)
	return g.GenerateString()
}
