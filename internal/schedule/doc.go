// Package schedule computes and fires per-user message jobs.
//
// # Overview
//
// A Manager owns one JobTable and one loop goroutine. Once per day (and on
// start) it walks every user and fills the table:
//
//   - plain message categories get one job per active time period, at a
//     minute sampled uniformly inside the period window;
//   - check-in periods fire exactly at their start time;
//   - task reminders pick one open task per task period with a weighted
//     random draw biased toward priority and due date.
//
// Candidate times closer than the collision window to another job of the
// same user are resampled a bounded number of times. Each scheduled time is
// also handed to a WakeTimerRegistrar so a suspended host resumes in time;
// registrar failures are logged only.
//
// # Lifecycle
//
// RunDailyScheduler and StopScheduler are idempotent. Scheduling operations
// never return errors to callers: bad period data and lookup failures are
// logged and the affected user or period is skipped.
package schedule
