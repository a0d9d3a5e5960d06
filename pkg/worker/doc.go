// Package worker provides the Worker loop that subscribes to job tubes,
// reserves units of work and hands them to the dispatch engine one at a
// time.
//
// This package includes:
//   - Worker: Prepare, Run and RunOnce over a core.Broker
//   - WorkerOption: configuration options for workers
//   - RetryConfig: backoff for transient reserve failures
//
// Most users should import the root package github.com/jdziat/simple-tube-jobs
// which provides access to worker configuration through jobs.NewWorker().
package worker
