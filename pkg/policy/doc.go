// Package policy evaluates Rego policies against an installation profile
// before any disk is touched. Built-in policies cover account safety (a
// superuser must exist when root has no password, reserved usernames) and
// obvious footguns like weak LUKS passphrases or malformed package names.
package policy
