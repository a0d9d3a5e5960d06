// Package core provides the fundamental types and interfaces for the jobs package.
//
// This package contains:
//   - Envelope, Style and StyleOptions describing one unit of work
//   - Unit, Broker and Putter interfaces defining the broker contract
//   - Event types for dispatch monitoring
//   - Error types for job dispatch
//
// Most users should import the root package github.com/jdziat/simple-tube-jobs
// instead of this package directly.
package core
