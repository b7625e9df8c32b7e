// Package storage persists the delivery log: one record per send attempt,
// retry and drop, so operators can inspect what reached each user.
//
// Drivers:
//   - "file": append-only JSON Lines
//   - "sqlite": SQLite database (pure Go driver)
package storage
