// Package install drives a complete installation from a validated profile:
// a fixed, ordered sequence of steps executed through the installer, with
// progress journaled to SQLite and reported via logs, traces and metrics.
package install
