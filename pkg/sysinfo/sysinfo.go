// Package sysinfo probes the live environment the installer runs from.
package sysinfo

import (
	"os"
	"os/exec"
	"path/filepath"
)

const efiVarsPath = "/sys/firmware/efi"

// HasUEFI reports whether the machine booted in UEFI mode.
func HasUEFI() bool {
	info, err := os.Stat(efiVarsPath)
	return err == nil && info.IsDir()
}

// NetworkConfigPaths returns the live ISO network configuration files that
// should be carried into the installed system, if any exist.
func NetworkConfigPaths() []string {
	candidates := []string{
		"/etc/systemd/network",
		"/var/lib/iwd",
		"/etc/NetworkManager/system-connections",
	}

	var found []string
	for _, dir := range candidates {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				found = append(found, filepath.Join(dir, e.Name()))
			}
		}
	}
	return found
}

// AccessibilityToolsInUse reports whether the espeakup screen reader is
// running in the live environment.
func AccessibilityToolsInUse() bool {
	return exec.Command("systemctl", "--quiet", "is-active", "espeakup").Run() == nil
}
