// Package installer wraps the host utilities that perform the actual
// installation work: sfdisk, mkfs, cryptsetup, pacstrap, arch-chroot,
// systemctl and genfstab. All commands go through a Runner so the same
// operations work against the local live environment or a remote target
// over SSH. The package owns no partitioning or package-management logic
// of its own.
package installer
