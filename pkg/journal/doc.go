// Package journal persists install run history in SQLite: one record per
// run, one per executed step, plus an append-only event log. The journal is
// what "ironstrap runs" reads and what a failed unattended install leaves
// behind for diagnosis.
package journal
