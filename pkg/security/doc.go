// Package security provides validation, sanitization, and limits for the jobs package.
//
// This package includes:
//   - Validation for job names and beanstalkd tube names
//   - Error message sanitization and stack trimming for error log lines
//   - Size limits for envelopes
//
// Most users should import the root package github.com/jdziat/simple-tube-jobs
// which re-exports these functions.
package security
