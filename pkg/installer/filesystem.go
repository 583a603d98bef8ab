package installer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ironstrap/ironstrap/pkg/profile"
)

// luksMapperName is the device-mapper name of the unlocked root container.
const luksMapperName = "cryptroot"

// sfdisk partition type aliases.
var sfdiskTypes = map[profile.PartitionRole]string{
	profile.RoleBoot: "uefi",
	profile.RoleRoot: "linux",
	profile.RoleSwap: "swap",
}

// mkfs commands per filesystem. mkfs.fat wants the size flag, the others
// want force.
var mkfsCommands = map[string][]string{
	"fat32": {"mkfs.fat", "-F32"},
	"ext4":  {"mkfs.ext4", "-F"},
	"btrfs": {"mkfs.btrfs", "-f"},
	"xfs":   {"mkfs.xfs", "-f"},
}

// PrepareDisk partitions, formats, encrypts and mounts the target disk
// according to the profile. It returns the block device holding the root
// filesystem (the LUKS container when encryption is on). Premounted layouts
// skip everything and return an empty device.
func (i *Installer) PrepareDisk(ctx context.Context, p *profile.Profile) (string, error) {
	if p.Disk.Layout == profile.LayoutPremounted {
		i.logger.Info("premounted layout, skipping disk preparation")
		return "", nil
	}

	if err := i.partitionDevice(ctx, &p.Disk); err != nil {
		return "", err
	}

	rootDevice := ""
	for idx, part := range p.Disk.Partitions {
		device := partitionPath(p.Disk.Device, idx+1)
		if part.Role == profile.RoleRoot {
			rootDevice = device
		}

		if part.Role == profile.RoleRoot && p.Encryption.Enabled() {
			if err := i.encryptRoot(ctx, device, p.Encryption.Passphrase); err != nil {
				return "", err
			}
			device = "/dev/mapper/" + luksMapperName
		}

		if err := i.formatPartition(ctx, device, &part); err != nil {
			return "", err
		}
	}

	if err := i.mountLayout(ctx, p); err != nil {
		return "", err
	}
	return rootDevice, nil
}

// partitionDevice writes a fresh GPT label with the configured partitions.
func (i *Installer) partitionDevice(ctx context.Context, disk *profile.DiskConfig) error {
	i.logger.WithField("device", disk.Device).Info("partitioning device")

	var script strings.Builder
	script.WriteString("label: gpt\n")
	for _, part := range disk.Partitions {
		fields := []string{"type=" + sfdiskTypes[part.Role]}
		if part.Size != "" {
			fields = append([]string{"size=" + part.Size}, fields...)
		}
		script.WriteString(strings.Join(fields, ", ") + "\n")
	}

	if _, err := i.runner.ShellInput(ctx, script.String(), "sfdisk --wipe always "+disk.Device); err != nil {
		return fmt.Errorf("sfdisk failed on %s: %w", disk.Device, err)
	}
	i.recordCommand("host")

	// Give the kernel time to pick up the new partition table.
	if _, err := i.host(ctx, "udevadm", "settle"); err != nil {
		i.logger.WithError(err).Warn("udevadm settle failed")
	}
	return nil
}

func (i *Installer) formatPartition(ctx context.Context, device string, part *profile.Partition) error {
	if part.Role == profile.RoleSwap {
		if _, err := i.host(ctx, "mkswap", device); err != nil {
			return fmt.Errorf("mkswap failed on %s: %w", device, err)
		}
		return nil
	}

	cmd, ok := mkfsCommands[part.Filesystem]
	if !ok {
		return fmt.Errorf("unsupported filesystem %q for %s", part.Filesystem, device)
	}
	i.logger.WithField("device", device).WithField("filesystem", part.Filesystem).Info("creating filesystem")
	if _, err := i.host(ctx, cmd[0], append(cmd[1:], device)...); err != nil {
		return fmt.Errorf("%s failed on %s: %w", cmd[0], device, err)
	}
	return nil
}

// encryptRoot formats the root partition as a LUKS container and opens it.
// The passphrase travels over stdin, never argv.
func (i *Installer) encryptRoot(ctx context.Context, device, passphrase string) error {
	i.logger.WithField("device", device).Info("encrypting root partition")

	i.recordCommand("host")
	if _, err := i.runner.ShellInput(ctx, passphrase,
		"cryptsetup luksFormat --batch-mode --key-file=- "+device); err != nil {
		return fmt.Errorf("cryptsetup luksFormat failed on %s: %w", device, err)
	}

	i.recordCommand("host")
	if _, err := i.runner.ShellInput(ctx, passphrase,
		fmt.Sprintf("cryptsetup open --key-file=- %s %s", device, luksMapperName)); err != nil {
		return fmt.Errorf("cryptsetup open failed on %s: %w", device, err)
	}
	return nil
}

// mountLayout mounts the configured partitions under the mountpoint, parents
// before children, and activates any swap partition.
func (i *Installer) mountLayout(ctx context.Context, p *profile.Profile) error {
	type mountEntry struct {
		device     string
		mountpoint string
	}

	var mounts []mountEntry
	var swapDevices []string
	for idx, part := range p.Disk.Partitions {
		device := partitionPath(p.Disk.Device, idx+1)
		switch {
		case part.Role == profile.RoleSwap:
			swapDevices = append(swapDevices, device)
		case part.Role == profile.RoleRoot && p.Encryption.Enabled():
			mounts = append(mounts, mountEntry{"/dev/mapper/" + luksMapperName, part.MountPoint})
		default:
			mounts = append(mounts, mountEntry{device, part.MountPoint})
		}
	}

	// "/" mounts first, then deeper paths.
	sort.SliceStable(mounts, func(a, b int) bool {
		return len(mounts[a].mountpoint) < len(mounts[b].mountpoint)
	})

	for _, m := range mounts {
		dest := i.targetPath(m.mountpoint)
		if err := i.runner.MkdirAll(ctx, dest, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}
		if _, err := i.host(ctx, "mount", m.device, dest); err != nil {
			return fmt.Errorf("failed to mount %s on %s: %w", m.device, dest, err)
		}
	}

	for _, device := range swapDevices {
		if _, err := i.host(ctx, "swapon", device); err != nil {
			return fmt.Errorf("swapon failed on %s: %w", device, err)
		}
	}
	return nil
}

// GenerateKeyFiles creates a LUKS keyfile in the target, enrolls it in the
// root container and records it in crypttab. Only meaningful for encrypted
// non-premounted installs.
func (i *Installer) GenerateKeyFiles(ctx context.Context, p *profile.Profile, rootDevice string) error {
	if !p.Encryption.Enabled() || p.Disk.Layout == profile.LayoutPremounted {
		return nil
	}

	keyDir := i.targetPath("etc", "cryptsetup-keys.d")
	keyFile := keyDir + "/" + luksMapperName + ".key"
	if err := i.runner.MkdirAll(ctx, keyDir, 0o700); err != nil {
		return fmt.Errorf("failed to create keyfile directory: %w", err)
	}
	if _, err := i.hostShell(ctx, fmt.Sprintf("dd if=/dev/random of=%s bs=512 count=4 iflag=fullblock && chmod 600 %s", keyFile, keyFile)); err != nil {
		return fmt.Errorf("failed to generate keyfile: %w", err)
	}

	i.recordCommand("host")
	if _, err := i.runner.ShellInput(ctx, p.Encryption.Passphrase,
		fmt.Sprintf("cryptsetup luksAddKey --key-file=- %s %s", rootDevice, keyFile)); err != nil {
		return fmt.Errorf("cryptsetup luksAddKey failed: %w", err)
	}

	crypttab := fmt.Sprintf("%s %s /etc/cryptsetup-keys.d/%s.key luks\n", luksMapperName, rootDevice, luksMapperName)
	if err := i.runner.WriteFile(ctx, i.targetPath("etc", "crypttab"), []byte(crypttab), 0o600); err != nil {
		return fmt.Errorf("failed to write crypttab: %w", err)
	}
	return nil
}

// partitionPath returns the device path of partition n. Devices whose name
// ends in a digit (nvme0n1, mmcblk0) take a "p" separator.
func partitionPath(device string, n int) string {
	if device == "" {
		return ""
	}
	last := rune(device[len(device)-1])
	if unicode.IsDigit(last) {
		return fmt.Sprintf("%sp%d", device, n)
	}
	return fmt.Sprintf("%s%d", device, n)
}
