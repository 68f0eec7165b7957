// File: internal/transport/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package transport hosts concrete api.TransportDriver implementations.
// Real NIC bindings are out of scope (spec.md §1); pollmode drives a
// loopback socket pair as a stand-in poll-mode NIC and loopback is an
// in-memory driver for deterministic tests.
package transport
