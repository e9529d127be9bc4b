// Package storage provides persistence implementations for the graph,
// ecosystem state, decision log and run summaries.
//
// Implementations:
//   - redis: Redis with JSON serialization, versioned state writes and TTL
//   - memory: In-memory for testing
package storage
