package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default returns a profile pre-populated with the defaults the wizard
// starts from: hardened kernel, systemd-boot, US locale, NTP on.
func Default() *Profile {
	return &Profile{
		Hostname:   "archlinux",
		Bootloader: BootloaderSystemdBoot,
		Kernels:    []string{"linux-hardened"},
		Disk: DiskConfig{
			Layout: LayoutWipe,
			Partitions: []Partition{
				{Role: RoleBoot, Size: "512MiB", Filesystem: "fat32", MountPoint: "/boot"},
				{Role: RoleRoot, Filesystem: "ext4", MountPoint: "/"},
			},
		},
		Locale: LocaleConfig{
			Language:       "en_US",
			Encoding:       "UTF-8",
			KeyboardLayout: "us",
		},
		NTP:  true,
		Swap: true,
	}
}

// Load reads a profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	return p, nil
}

// Save writes the profile to a YAML file. The file is created with 0600
// since the profile carries passwords.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	return nil
}
