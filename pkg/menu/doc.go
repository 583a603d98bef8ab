// Package menu implements the interactive configuration wizard: a terminal
// menu over every profile choice, with per-entry editors and mandatory-field
// gating before the install can start.
package menu
