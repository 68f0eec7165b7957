// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency implements the single-threaded cooperative scheduler
// and hierarchical timer wheel that drive every TCP/UDP connection state
// machine in the LibOS (spec.md §4.2, §4.3). Nothing here is safe for
// concurrent use from more than one goroutine at a time — correctness comes
// from the invariant that only the executor thread mutates protocol state
// (spec.md §5), not from locking.
package concurrency
