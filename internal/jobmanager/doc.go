// Package jobmanager supervises the external storage-migration process.
//
// A Manager owns at most one Job at a time. Starting a migration records a
// running status snapshot, launches the migration command, and relays its
// combined stdout/stderr line-by-line as progress events on the event bus.
// The terminal status is derived from the process exit code. Stopping sends
// SIGTERM and escalates to SIGKILL after a grace window.
package jobmanager
