// Package schedule provides schedules for recurring enqueues.
//
// This package includes:
//   - Schedule interface for defining job schedules
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//
// Schedules are consumed by the producer's scheduler, which enqueues a job
// every time its schedule comes due.
package schedule
