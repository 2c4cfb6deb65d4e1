// Package ir provides the value types that flow between attrsync pipeline stages.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// stage contracts in one place with no circular dependencies.
//
// Key design constraints:
//   - Records are immutable once the normalizer emits them
//   - Attribute order is the contract order; equality never depends on it
//   - Fingerprints are 128-bit value types computed over canonical JSON
//     (RFC 8785 key order, NFC strings), never string comparison of ad hoc JSON
//   - All JSON tags use snake_case except the remote ServiceRequest body,
//     which follows the remote API's field names
package ir
