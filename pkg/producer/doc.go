// Package producer enqueues jobs for workers: it encodes an envelope and
// puts it into the tube named after the job.
//
// Producer.Schedule registers recurring enqueues that RunScheduler fires
// on their schedule.
package producer
