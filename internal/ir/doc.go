// Package ir provides the canonical intermediate representation of a
// resource model: attribute values, addresses, resource definitions,
// transformation rules, management operations and error kinds.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - integers are int64
//   - NO null values - an undefined attribute is absent from its model
//   - All JSON tags use snake_case
//   - Version thresholds are explicit values (VersionPolicy), never globals
package ir
