package installer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironstrap/ironstrap/pkg/profile"
	"github.com/ironstrap/ironstrap/pkg/telemetry"
)

// Installer performs installation operations against a target mountpoint.
// Every operation shells out to the corresponding host utility through the
// Runner; nothing here reimplements partitioning or package management.
type Installer struct {
	mountpoint string
	runner     Runner
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
}

// New creates an installer bound to a mountpoint. metrics may be nil.
func New(mountpoint string, runner Runner, logger *telemetry.Logger, metrics *telemetry.Metrics) *Installer {
	return &Installer{
		mountpoint: mountpoint,
		runner:     runner,
		logger:     logger.NewComponentLogger("installer"),
		metrics:    metrics,
	}
}

// Mountpoint returns the target root mountpoint.
func (i *Installer) Mountpoint() string {
	return i.mountpoint
}

func (i *Installer) recordCommand(scope string) {
	if i.metrics != nil {
		i.metrics.RecordCommand(scope)
	}
}

// host runs a command in the live environment.
func (i *Installer) host(ctx context.Context, name string, args ...string) (*Result, error) {
	i.logger.WithField("command", name+" "+strings.Join(args, " ")).Debug("running host command")
	i.recordCommand("host")
	return i.runner.Run(ctx, name, args...)
}

// hostShell runs a script in the live environment through /bin/sh.
func (i *Installer) hostShell(ctx context.Context, script string) (*Result, error) {
	i.logger.WithField("command", script).Debug("running host command")
	i.recordCommand("host")
	return i.runner.Shell(ctx, script)
}

// chroot runs a script inside the target via arch-chroot.
func (i *Installer) chroot(ctx context.Context, script string) (*Result, error) {
	i.logger.WithField("command", script).Debug("running chroot command")
	i.recordCommand("chroot")
	return i.runner.Run(ctx, "arch-chroot", i.mountpoint, "/bin/sh", "-c", script)
}

// chrootInput runs a script inside the target with the given stdin. Used for
// chpasswd and cryptsetup so secrets never appear in argv.
func (i *Installer) chrootInput(ctx context.Context, stdin, script string) (*Result, error) {
	i.recordCommand("chroot")
	quoted := fmt.Sprintf("arch-chroot %s /bin/sh -c %s", i.mountpoint, shellQuote(script))
	return i.runner.ShellInput(ctx, stdin, quoted)
}

// targetPath resolves a path inside the target root.
func (i *Installer) targetPath(elem ...string) string {
	return filepath.Join(append([]string{i.mountpoint}, elem...)...)
}

// shellQuote wraps a string in single quotes for safe shell embedding.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// SanityCheck verifies the live environment can perform the installation:
// required tools exist, and for premounted layouts the mountpoint is
// actually a mountpoint.
func (i *Installer) SanityCheck(ctx context.Context, p *profile.Profile) error {
	tools := []string{"pacstrap", "arch-chroot", "genfstab"}
	if p.Disk.Layout == profile.LayoutWipe {
		tools = append(tools, "sfdisk", "mkfs.ext4", "lsblk")
	}
	if p.Encryption.Enabled() {
		tools = append(tools, "cryptsetup")
	}

	for _, tool := range tools {
		if _, err := i.hostShell(ctx, "command -v "+tool); err != nil {
			return fmt.Errorf("required tool %q not found in live environment: %w", tool, err)
		}
	}

	if p.Disk.Layout == profile.LayoutPremounted {
		if _, err := i.host(ctx, "mountpoint", "-q", i.mountpoint); err != nil {
			return fmt.Errorf("%s is not a mountpoint: %w", i.mountpoint, err)
		}
	}

	return nil
}

// Pacstrap bootstraps the base system plus the selected kernels into the
// mountpoint.
func (i *Installer) Pacstrap(ctx context.Context, kernels []string) error {
	packages := append([]string{"base", "linux-firmware"}, kernels...)
	args := append([]string{"-K", i.mountpoint}, packages...)

	i.logger.WithField("packages", strings.Join(packages, " ")).Info("bootstrapping base system")
	if _, err := i.host(ctx, "pacstrap", args...); err != nil {
		return fmt.Errorf("pacstrap failed: %w", err)
	}
	if i.metrics != nil {
		i.metrics.RecordPackages(len(packages))
	}
	return nil
}

// SetHostname writes the target hostname.
func (i *Installer) SetHostname(ctx context.Context, hostname string) error {
	return i.runner.WriteFile(ctx, i.targetPath("etc", "hostname"), []byte(hostname+"\n"), 0o644)
}

// GenerateLocale writes locale.gen and locale.conf and runs locale-gen in
// the target.
func (i *Installer) GenerateLocale(ctx context.Context, language, encoding string) error {
	entry := fmt.Sprintf("%s.%s %s\n", language, encoding, encoding)
	if err := i.runner.WriteFile(ctx, i.targetPath("etc", "locale.gen"), []byte(entry), 0o644); err != nil {
		return fmt.Errorf("failed to write locale.gen: %w", err)
	}
	if _, err := i.chroot(ctx, "locale-gen"); err != nil {
		return fmt.Errorf("locale-gen failed: %w", err)
	}
	conf := fmt.Sprintf("LANG=%s.%s\n", language, encoding)
	if err := i.runner.WriteFile(ctx, i.targetPath("etc", "locale.conf"), []byte(conf), 0o644); err != nil {
		return fmt.Errorf("failed to write locale.conf: %w", err)
	}
	return nil
}

// SetKeyboardLayout sets the console keymap of the installed system.
func (i *Installer) SetKeyboardLayout(ctx context.Context, layout string) error {
	conf := fmt.Sprintf("KEYMAP=%s\n", layout)
	return i.runner.WriteFile(ctx, i.targetPath("etc", "vconsole.conf"), []byte(conf), 0o644)
}

// SetTimezone links /etc/localtime in the target and syncs the hardware
// clock.
func (i *Installer) SetTimezone(ctx context.Context, timezone string) error {
	if _, err := i.chroot(ctx, fmt.Sprintf("ln -sf /usr/share/zoneinfo/%s /etc/localtime", timezone)); err != nil {
		return fmt.Errorf("failed to set timezone: %w", err)
	}
	if _, err := i.chroot(ctx, "hwclock --systohc"); err != nil {
		i.logger.WithError(err).Warn("hwclock sync failed")
	}
	return nil
}

// ActivateTimeSynchronization enables systemd-timesyncd in the target.
func (i *Installer) ActivateTimeSynchronization(ctx context.Context) error {
	return i.EnableServices(ctx, []string{"systemd-timesyncd"})
}

// EnableEspeakup enables the espeakup screen reader service in the target.
// Mirrors the live environment so an accessible install stays accessible.
func (i *Installer) EnableEspeakup(ctx context.Context) error {
	return i.EnableServices(ctx, []string{"espeakup"})
}

// AddPackages installs packages into the target.
func (i *Installer) AddPackages(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	i.logger.WithField("count", len(packages)).Info("installing packages")
	script := "pacman -S --noconfirm --needed " + strings.Join(packages, " ")
	if _, err := i.chroot(ctx, script); err != nil {
		return fmt.Errorf("package installation failed: %w", err)
	}
	if i.metrics != nil {
		i.metrics.RecordPackages(len(packages))
	}
	return nil
}

// EnableServices enables systemd units in the target.
func (i *Installer) EnableServices(ctx context.Context, services []string) error {
	if len(services) == 0 {
		return nil
	}
	if _, err := i.chroot(ctx, "systemctl enable "+strings.Join(services, " ")); err != nil {
		return fmt.Errorf("failed to enable services: %w", err)
	}
	if i.metrics != nil {
		i.metrics.RecordServicesEnabled(len(services))
	}
	return nil
}

// SetupSwap configures zram-backed swap in the target.
func (i *Installer) SetupSwap(ctx context.Context) error {
	if err := i.AddPackages(ctx, []string{"zram-generator"}); err != nil {
		return err
	}
	conf := "[zram0]\nzram-size = min(ram / 2, 4096)\ncompression-algorithm = zstd\n"
	return i.runner.WriteFile(ctx, i.targetPath("etc", "systemd", "zram-generator.conf"), []byte(conf), 0o644)
}

// AddBootloader installs and configures the selected bootloader. rootDevice
// is the device the root filesystem lives on; for encrypted installs it is
// the LUKS container, not the mapped device.
func (i *Installer) AddBootloader(ctx context.Context, p *profile.Profile, uefi bool, rootDevice string) error {
	switch p.Bootloader {
	case profile.BootloaderGrub:
		return i.installGrub(ctx, p, uefi)
	case profile.BootloaderSystemdBoot:
		if !uefi {
			return fmt.Errorf("systemd-boot requires UEFI firmware")
		}
		return i.installSystemdBoot(ctx, p, rootDevice)
	default:
		return fmt.Errorf("unknown bootloader %q", p.Bootloader)
	}
}

func (i *Installer) installGrub(ctx context.Context, p *profile.Profile, uefi bool) error {
	if uefi {
		// The grub package only needs explicit installation on UEFI;
		// BIOS installs pull it in with the base set.
		if err := i.AddPackages(ctx, []string{"grub", "efibootmgr"}); err != nil {
			return err
		}
		if _, err := i.chroot(ctx, "grub-install --target=x86_64-efi --efi-directory=/boot --bootloader-id=GRUB"); err != nil {
			return fmt.Errorf("grub-install failed: %w", err)
		}
	} else {
		if _, err := i.chroot(ctx, "grub-install --target=i386-pc "+p.Disk.Device); err != nil {
			return fmt.Errorf("grub-install failed: %w", err)
		}
	}
	if _, err := i.chroot(ctx, "grub-mkconfig -o /boot/grub/grub.cfg"); err != nil {
		return fmt.Errorf("grub-mkconfig failed: %w", err)
	}
	return nil
}

func (i *Installer) installSystemdBoot(ctx context.Context, p *profile.Profile, rootDevice string) error {
	if rootDevice == "" {
		// Premounted layouts never ran disk preparation, so discover the
		// root source from the mount table.
		res, err := i.host(ctx, "findmnt", "-no", "SOURCE", i.mountpoint)
		if err != nil {
			return fmt.Errorf("failed to resolve root device: %w", err)
		}
		rootDevice = strings.TrimSpace(res.Stdout)
	}

	if _, err := i.chroot(ctx, "bootctl --path=/boot install"); err != nil {
		return fmt.Errorf("bootctl install failed: %w", err)
	}

	loader := "default arch.conf\ntimeout 3\nconsole-mode keep\n"
	if err := i.runner.WriteFile(ctx, i.targetPath("boot", "loader", "loader.conf"), []byte(loader), 0o644); err != nil {
		return fmt.Errorf("failed to write loader.conf: %w", err)
	}

	kernel := p.Kernels[0]
	var options string
	if p.Encryption.Enabled() {
		options = fmt.Sprintf("cryptdevice=%s:%s root=/dev/mapper/%s rw", rootDevice, luksMapperName, luksMapperName)
	} else {
		options = fmt.Sprintf("root=%s rw", rootDevice)
	}
	entry := fmt.Sprintf("title Arch Linux (%s)\nlinux /vmlinuz-%s\ninitrd /initramfs-%s.img\noptions %s\n",
		kernel, kernel, kernel, options)

	if err := i.runner.MkdirAll(ctx, i.targetPath("boot", "loader", "entries"), 0o755); err != nil {
		return fmt.Errorf("failed to create loader entries dir: %w", err)
	}
	if err := i.runner.WriteFile(ctx, i.targetPath("boot", "loader", "entries", "arch.conf"), []byte(entry), 0o644); err != nil {
		return fmt.Errorf("failed to write loader entry: %w", err)
	}
	return nil
}

// CopyISONetworkConfig copies the live environment's network configuration
// into the target and enables the services that consume it. paths come from
// sysinfo.NetworkConfigPaths.
func (i *Installer) CopyISONetworkConfig(ctx context.Context, paths []string) error {
	var services []string
	for _, src := range paths {
		dest := i.targetPath(filepath.Dir(src))
		if err := i.runner.MkdirAll(ctx, dest, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}
		if _, err := i.host(ctx, "cp", "-a", src, dest); err != nil {
			return fmt.Errorf("failed to copy %s: %w", src, err)
		}
		switch {
		case strings.Contains(src, "systemd/network"):
			services = append(services, "systemd-networkd", "systemd-resolved")
		case strings.Contains(src, "iwd"):
			services = append(services, "iwd")
		case strings.Contains(src, "NetworkManager"):
			services = append(services, "NetworkManager")
		}
	}
	return i.EnableServices(ctx, services)
}

// CreateUsers creates the configured user accounts with their groups and
// passwords, enabling wheel sudo access when any user requires it.
func (i *Installer) CreateUsers(ctx context.Context, users []profile.User) error {
	sudoNeeded := false
	for _, u := range users {
		i.logger.WithField("user", u.Username).Info("creating user")
		if _, err := i.chroot(ctx, "useradd -m -s /bin/bash "+u.Username); err != nil {
			return fmt.Errorf("failed to create user %s: %w", u.Username, err)
		}

		groups := append([]string(nil), u.Groups...)
		if u.Sudo {
			groups = append(groups, "wheel")
			sudoNeeded = true
		}
		if len(groups) > 0 {
			if _, err := i.chroot(ctx, fmt.Sprintf("usermod -a -G %s %s", strings.Join(groups, ","), u.Username)); err != nil {
				return fmt.Errorf("failed to set groups for %s: %w", u.Username, err)
			}
		}

		if err := i.SetPassword(ctx, u.Username, u.Password); err != nil {
			return err
		}
	}

	if sudoNeeded {
		if _, err := i.host(ctx, "sed", "-i",
			"s/^# %wheel ALL=(ALL:ALL) ALL/%wheel ALL=(ALL:ALL) ALL/",
			i.targetPath("etc", "sudoers")); err != nil {
			return fmt.Errorf("failed to enable wheel sudo access: %w", err)
		}
	}
	return nil
}

// SetPassword sets a user's password in the target via chpasswd.
func (i *Installer) SetPassword(ctx context.Context, username, password string) error {
	if _, err := i.chrootInput(ctx, username+":"+password+"\n", "chpasswd"); err != nil {
		return fmt.Errorf("failed to set password for %s: %w", username, err)
	}
	return nil
}

// RunCustomCommands runs post-install commands chrooted into the target, in
// order, stopping at the first failure.
func (i *Installer) RunCustomCommands(ctx context.Context, commands []string) error {
	for _, cmd := range commands {
		i.logger.WithField("command", cmd).Info("running custom command")
		if _, err := i.chroot(ctx, cmd); err != nil {
			return fmt.Errorf("custom command %q failed: %w", cmd, err)
		}
	}
	return nil
}

// Genfstab generates the target fstab from the current mounts. Runs last so
// every mount and swap device set up during the install is captured.
func (i *Installer) Genfstab(ctx context.Context) error {
	script := fmt.Sprintf("genfstab -U %s >> %s/etc/fstab", i.mountpoint, i.mountpoint)
	if _, err := i.hostShell(ctx, script); err != nil {
		return fmt.Errorf("genfstab failed: %w", err)
	}
	return nil
}

// DropToShell opens an interactive chroot shell in the target for manual
// post-install tweaks.
func (i *Installer) DropToShell(ctx context.Context) error {
	return i.runner.Interactive(ctx, "arch-chroot", i.mountpoint)
}
