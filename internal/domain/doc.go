// Package domain provides the shared types of wot: typed scalar values,
// resource schemas, conditions, events, subscriptions and notification jobs.
//
// This package contains type definitions only. All other internal packages
// import domain; domain imports nothing internal.
//
// Key design constraints:
//   - Values are a sealed set of scalars (string, integer, float, boolean, null)
//   - JSON numbers keep their kind: 5 decodes to Int, 5.0 to Float
//   - All JSON tags use snake_case
//   - Schemas and conditions keep declaration order
package domain
