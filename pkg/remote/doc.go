// Package remote runs an installation against a machine reached over SSH,
// typically a VPS booted into a rescue or live system. It implements the
// installer Runner interface: commands execute in SSH sessions and files
// are written over SFTP.
package remote
