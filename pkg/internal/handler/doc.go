// Package handler provides internal reflection-based handler execution.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Handler: Metadata and execution for registered job handlers
//   - Signature validation for the classic and extended calling conventions
//   - Argument decoding from the envelope's args object into the handler's type
package handler
