// Package guuid implements a monotonic, draft-RFC-9562 UUID version 7
// generator, along with a general-purpose UUID value type.
//
// UUIDv7 is a time-ordered UUID that combines the benefits of time-based ordering with cryptographic randomness.
// Unlike traditional UUIDs, UUIDv7 generates identifiers that are naturally sortable by creation time, making
// them ideal for:
//   - Database primary keys (improved B-tree performance)
//   - Distributed systems requiring time-ordered identifiers
//   - Event sourcing and audit logs
//   - Any scenario where chronological ordering matters
//
// Basic Usage:
//
//	// Generate a new UUIDv7
//	id := guuid.New()
//	fmt.Println(id.String())
//
//	// Parse a UUID from string
//	id, err := guuid.Parse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get timestamp from UUIDv7
//	timestamp := id.Timestamp()
//	t := id.Time()
//
// Custom Generator:
//
//	// Own a Generator directly, e.g. one per worker goroutine, instead
//	// of going through the package-level pool.
//	gen := guuid.NewGenerator(nil, nil)
//	for i := 0; i < 1000; i++ {
//	    id := gen.Generate()
//	    // Use id...
//	}
//
// Concurrency:
//
// A *Generator takes no lock and is not safe for concurrent use by more
// than one goroutine at a time. New and NewString, the package-level entry
// points, are safe to call concurrently from any number of goroutines:
// each call borrows an exclusively-owned Generator from an internal pool
// for the duration of the call.
//
// Standards Compliance:
//
// This implementation follows RFC 4122 and RFC 9562 specifications for UUIDs,
// using the "Fixed-Length Dedicated Counter" method (RFC 9562 §6.2.1) for
// intra-millisecond monotonic ordering. The UUIDv7 format includes:
//   - 48-bit timestamp (millisecond precision)
//   - 12-bit random data (or counter bits) for sub-millisecond ordering
//   - 62-bit random data (or counter bits) for uniqueness
//   - Version and variant bits as per RFC specification
package guuid
