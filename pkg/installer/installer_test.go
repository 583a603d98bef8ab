package installer

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironstrap/ironstrap/pkg/profile"
	"github.com/ironstrap/ironstrap/pkg/telemetry"
)

// fakeRunner records every command and file write instead of executing.
type fakeRunner struct {
	commands []string
	stdins   map[string]string // command line -> stdin it received
	files    map[string]string
	dirs     []string
	failOn   map[string]error // command substring -> error to return
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		stdins: map[string]string{},
		files:  map[string]string{},
		failOn: map[string]error{},
	}
}

func (f *fakeRunner) record(line string) error {
	f.commands = append(f.commands, line)
	for substr, err := range f.failOn {
		if strings.Contains(line, substr) {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (*Result, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	if err := f.record(line); err != nil {
		return &Result{ExitCode: 1}, err
	}
	return &Result{}, nil
}

func (f *fakeRunner) Shell(_ context.Context, script string) (*Result, error) {
	if err := f.record(script); err != nil {
		return &Result{ExitCode: 1}, err
	}
	return &Result{}, nil
}

func (f *fakeRunner) ShellInput(_ context.Context, stdin, script string) (*Result, error) {
	f.stdins[script] = stdin
	if err := f.record(script); err != nil {
		return &Result{ExitCode: 1}, err
	}
	return &Result{}, nil
}

func (f *fakeRunner) Interactive(_ context.Context, name string, args ...string) error {
	return f.record("interactive: " + strings.Join(append([]string{name}, args...), " "))
}

func (f *fakeRunner) WriteFile(_ context.Context, path string, data []byte, _ os.FileMode) error {
	f.files[path] = string(data)
	return nil
}

func (f *fakeRunner) MkdirAll(_ context.Context, path string, _ os.FileMode) error {
	f.dirs = append(f.dirs, path)
	return nil
}

// commandMatching returns the first recorded command containing substr.
func (f *fakeRunner) commandMatching(substr string) string {
	for _, cmd := range f.commands {
		if strings.Contains(cmd, substr) {
			return cmd
		}
	}
	return ""
}

func testInstaller(t *testing.T) (*Installer, *fakeRunner) {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	runner := newFakeRunner()
	return New("/mnt/archinstall", runner, logger, nil), runner
}

func wipeProfile() *profile.Profile {
	p := profile.Default()
	p.Disk.Device = "/dev/vda"
	p.RootPassword = "hunter2"
	p.Users = []profile.User{{Username: "ops", Password: "secret", Sudo: true}}
	return p
}

func TestPrepareDiskWipesAndMounts(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()

	rootDevice, err := inst.PrepareDisk(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "/dev/vda2", rootDevice)

	sfdisk := runner.commandMatching("sfdisk")
	require.NotEmpty(t, sfdisk)
	script := runner.stdins[sfdisk]
	assert.Contains(t, script, "label: gpt")
	assert.Contains(t, script, "size=512MiB, type=uefi")
	assert.Contains(t, script, "type=linux")

	assert.NotEmpty(t, runner.commandMatching("mkfs.fat -F32 /dev/vda1"))
	assert.NotEmpty(t, runner.commandMatching("mkfs.ext4 -F /dev/vda2"))

	// Root mounts before boot.
	var mounts []string
	for _, cmd := range runner.commands {
		if strings.HasPrefix(cmd, "mount ") {
			mounts = append(mounts, cmd)
		}
	}
	require.Len(t, mounts, 2)
	assert.Equal(t, "mount /dev/vda2 /mnt/archinstall", mounts[0])
	assert.Equal(t, "mount /dev/vda1 /mnt/archinstall/boot", mounts[1])
}

func TestPrepareDiskEncryptsRoot(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()
	p.Encryption = &profile.DiskEncryption{Type: profile.EncryptionLUKS, Passphrase: "correct horse"}

	rootDevice, err := inst.PrepareDisk(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "/dev/vda2", rootDevice)

	format := runner.commandMatching("cryptsetup luksFormat")
	require.NotEmpty(t, format)
	assert.Contains(t, format, "/dev/vda2")
	assert.Equal(t, "correct horse", runner.stdins[format])
	assert.NotContains(t, format, "correct horse")

	assert.NotEmpty(t, runner.commandMatching("cryptsetup open"))
	assert.NotEmpty(t, runner.commandMatching("mkfs.ext4 -F /dev/mapper/cryptroot"))
	assert.NotEmpty(t, runner.commandMatching("mount /dev/mapper/cryptroot /mnt/archinstall"))
}

func TestPrepareDiskPremountedSkipsEverything(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()
	p.Disk = profile.DiskConfig{Layout: profile.LayoutPremounted}

	rootDevice, err := inst.PrepareDisk(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, rootDevice)
	assert.Empty(t, runner.commands)
}

func TestGenerateKeyFiles(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()
	p.Encryption = &profile.DiskEncryption{Type: profile.EncryptionLUKS, Passphrase: "correct horse"}

	require.NoError(t, inst.GenerateKeyFiles(context.Background(), p, "/dev/vda2"))

	addKey := runner.commandMatching("cryptsetup luksAddKey")
	require.NotEmpty(t, addKey)
	assert.Contains(t, addKey, "/dev/vda2")
	assert.Equal(t, "correct horse", runner.stdins[addKey])

	crypttab := runner.files["/mnt/archinstall/etc/crypttab"]
	assert.Contains(t, crypttab, "cryptroot /dev/vda2 /etc/cryptsetup-keys.d/cryptroot.key")
}

func TestGenerateKeyFilesSkippedWithoutEncryption(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.GenerateKeyFiles(context.Background(), wipeProfile(), "/dev/vda2"))
	assert.Empty(t, runner.commands)
}

func TestPartitionPath(t *testing.T) {
	assert.Equal(t, "/dev/sda1", partitionPath("/dev/sda", 1))
	assert.Equal(t, "/dev/vda3", partitionPath("/dev/vda", 3))
	assert.Equal(t, "/dev/nvme0n1p2", partitionPath("/dev/nvme0n1", 2))
	assert.Equal(t, "/dev/mmcblk0p1", partitionPath("/dev/mmcblk0", 1))
}

func TestSanityCheckMissingTool(t *testing.T) {
	inst, runner := testInstaller(t)
	runner.failOn["command -v pacstrap"] = assert.AnError

	err := inst.SanityCheck(context.Background(), wipeProfile())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pacstrap")
}

func TestSanityCheckPremountedRequiresMountpoint(t *testing.T) {
	inst, runner := testInstaller(t)
	runner.failOn["mountpoint -q"] = assert.AnError
	p := wipeProfile()
	p.Disk = profile.DiskConfig{Layout: profile.LayoutPremounted}

	err := inst.SanityCheck(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a mountpoint")
}

func TestPacstrapInstallsKernels(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.Pacstrap(context.Background(), []string{"linux-hardened"}))
	assert.Equal(t, "pacstrap -K /mnt/archinstall base linux-firmware linux-hardened", runner.commands[0])
}

func TestCreateUsers(t *testing.T) {
	inst, runner := testInstaller(t)
	users := []profile.User{
		{Username: "ops", Password: "secret", Sudo: true, Groups: []string{"docker"}},
		{Username: "guest", Password: "letmein"},
	}

	require.NoError(t, inst.CreateUsers(context.Background(), users))

	assert.NotEmpty(t, runner.commandMatching("useradd -m -s /bin/bash ops"))
	assert.NotEmpty(t, runner.commandMatching("usermod -a -G docker,wheel ops"))
	assert.NotEmpty(t, runner.commandMatching("useradd -m -s /bin/bash guest"))
	assert.Empty(t, runner.commandMatching("usermod -a -G  guest"))

	chpasswd := runner.commandMatching("chpasswd")
	require.NotEmpty(t, chpasswd)
	assert.NotContains(t, chpasswd, "secret")

	sudoers := runner.commandMatching("sudoers")
	require.NotEmpty(t, sudoers)
	assert.Contains(t, sudoers, "%wheel ALL=(ALL:ALL) ALL")
}

func TestSetPasswordPipesSecret(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.SetPassword(context.Background(), "root", "hunter2"))

	cmd := runner.commandMatching("chpasswd")
	require.NotEmpty(t, cmd)
	assert.Contains(t, cmd, "arch-chroot /mnt/archinstall")
	assert.Equal(t, "root:hunter2\n", runner.stdins[cmd])
}

func TestEnableServices(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.EnableServices(context.Background(), []string{"nginx", "sshd"}))
	cmd := runner.commandMatching("systemctl enable")
	assert.Contains(t, cmd, "systemctl enable nginx sshd")
	assert.Contains(t, cmd, "arch-chroot /mnt/archinstall")
}

func TestAddPackagesNoop(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.AddPackages(context.Background(), nil))
	assert.Empty(t, runner.commands)
}

func TestSetupSwapWritesZramConfig(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.SetupSwap(context.Background()))

	assert.NotEmpty(t, runner.commandMatching("pacman -S --noconfirm --needed zram-generator"))
	conf := runner.files["/mnt/archinstall/etc/systemd/zram-generator.conf"]
	assert.Contains(t, conf, "[zram0]")
	assert.Contains(t, conf, "zstd")
}

func TestAddBootloaderSystemdBootRequiresUEFI(t *testing.T) {
	inst, _ := testInstaller(t)
	p := wipeProfile()
	p.Bootloader = profile.BootloaderSystemdBoot

	err := inst.AddBootloader(context.Background(), p, false, "/dev/vda2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UEFI")
}

func TestAddBootloaderSystemdBoot(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()
	p.Bootloader = profile.BootloaderSystemdBoot
	p.Kernels = []string{"linux-hardened"}

	require.NoError(t, inst.AddBootloader(context.Background(), p, true, "/dev/vda2"))

	assert.NotEmpty(t, runner.commandMatching("bootctl --path=/boot install"))
	entry := runner.files["/mnt/archinstall/boot/loader/entries/arch.conf"]
	assert.Contains(t, entry, "linux /vmlinuz-linux-hardened")
	assert.Contains(t, entry, "options root=/dev/vda2 rw")
}

func TestAddBootloaderSystemdBootEncrypted(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()
	p.Bootloader = profile.BootloaderSystemdBoot
	p.Encryption = &profile.DiskEncryption{Type: profile.EncryptionLUKS, Passphrase: "correct horse"}

	require.NoError(t, inst.AddBootloader(context.Background(), p, true, "/dev/vda2"))

	entry := runner.files["/mnt/archinstall/boot/loader/entries/arch.conf"]
	assert.Contains(t, entry, "cryptdevice=/dev/vda2:cryptroot")
	assert.Contains(t, entry, "root=/dev/mapper/cryptroot")
}

func TestAddBootloaderGrubUEFI(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()
	p.Bootloader = profile.BootloaderGrub

	require.NoError(t, inst.AddBootloader(context.Background(), p, true, "/dev/vda2"))

	assert.NotEmpty(t, runner.commandMatching("pacman -S --noconfirm --needed grub efibootmgr"))
	assert.NotEmpty(t, runner.commandMatching("grub-install --target=x86_64-efi"))
	assert.NotEmpty(t, runner.commandMatching("grub-mkconfig -o /boot/grub/grub.cfg"))
}

func TestAddBootloaderGrubBIOSInstallsToDevice(t *testing.T) {
	inst, runner := testInstaller(t)
	p := wipeProfile()
	p.Bootloader = profile.BootloaderGrub

	require.NoError(t, inst.AddBootloader(context.Background(), p, false, "/dev/vda2"))

	assert.Empty(t, runner.commandMatching("pacman -S"))
	assert.NotEmpty(t, runner.commandMatching("grub-install --target=i386-pc /dev/vda"))
}

func TestCopyISONetworkConfig(t *testing.T) {
	inst, runner := testInstaller(t)
	paths := []string{"/etc/systemd/network", "/var/lib/iwd"}

	require.NoError(t, inst.CopyISONetworkConfig(context.Background(), paths))

	assert.NotEmpty(t, runner.commandMatching("cp -a /etc/systemd/network /mnt/archinstall/etc/systemd"))
	assert.NotEmpty(t, runner.commandMatching("cp -a /var/lib/iwd /mnt/archinstall/var/lib"))
	enable := runner.commandMatching("systemctl enable")
	assert.Contains(t, enable, "systemd-networkd")
	assert.Contains(t, enable, "systemd-resolved")
	assert.Contains(t, enable, "iwd")
}

func TestGenfstabAppendsToTargetFstab(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.Genfstab(context.Background()))
	assert.Equal(t, "genfstab -U /mnt/archinstall >> /mnt/archinstall/etc/fstab", runner.commands[0])
}

func TestRunCustomCommandsStopsOnFailure(t *testing.T) {
	inst, runner := testInstaller(t)
	runner.failOn["false"] = assert.AnError

	err := inst.RunCustomCommands(context.Background(), []string{"true", "false", "echo never"})
	require.Error(t, err)
	assert.Empty(t, runner.commandMatching("echo never"))
}

func TestGenerateLocale(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.GenerateLocale(context.Background(), "en_US", "UTF-8"))

	assert.Equal(t, "en_US.UTF-8 UTF-8\n", runner.files["/mnt/archinstall/etc/locale.gen"])
	assert.Equal(t, "LANG=en_US.UTF-8\n", runner.files["/mnt/archinstall/etc/locale.conf"])
	assert.NotEmpty(t, runner.commandMatching("locale-gen"))
}

func TestSetKeyboardLayout(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.SetKeyboardLayout(context.Background(), "de-latin1"))
	assert.Equal(t, "KEYMAP=de-latin1\n", runner.files["/mnt/archinstall/etc/vconsole.conf"])
}

func TestDropToShell(t *testing.T) {
	inst, runner := testInstaller(t)
	require.NoError(t, inst.DropToShell(context.Background()))
	assert.Equal(t, "interactive: arch-chroot /mnt/archinstall", runner.commands[0])
}
