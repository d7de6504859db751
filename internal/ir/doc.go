// Package ir provides the foundational types shared by every swimport package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in payload documents - use Int or String
//   - request and solved payloads are Objects stored as opaque JSON
//   - content hashes use RFC 8785 canonical JSON with domain separation
//   - JSON tags use snake_case
package ir
