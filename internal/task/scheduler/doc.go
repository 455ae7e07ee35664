// Package scheduler triggers recurring maintenance jobs.
//
// Schedules are cron expressions (robfig/cron) or fixed intervals. A trigger
// never runs the job inline: it enqueues a task into the task engine, and a
// schedule whose previous run is still queued or running is skipped.
package scheduler
