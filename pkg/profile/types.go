// Package profile defines the installation profile: every choice the wizard
// collects (disk layout, encryption, mirrors, locale, users, packages,
// services, timezone, post-install commands) in one document that can be
// saved to YAML and replayed for unattended installs.
package profile

// Bootloader identifies the bootloader installed into the target.
type Bootloader string

const (
	BootloaderGrub        Bootloader = "grub"
	BootloaderSystemdBoot Bootloader = "systemd-boot"
)

// DiskLayoutType selects how the target disk is prepared.
type DiskLayoutType string

const (
	// LayoutWipe erases the device and creates a fresh partition table.
	LayoutWipe DiskLayoutType = "wipe"

	// LayoutPremounted assumes partitions are already formatted and mounted
	// at the mountpoint. Disk preparation is skipped entirely.
	LayoutPremounted DiskLayoutType = "premounted"
)

// EncryptionType selects block device encryption for the root partition.
type EncryptionType string

const (
	EncryptionNone EncryptionType = "none"
	EncryptionLUKS EncryptionType = "luks"
)

// PartitionRole describes what a partition is used for.
type PartitionRole string

const (
	RoleBoot PartitionRole = "boot"
	RoleRoot PartitionRole = "root"
	RoleSwap PartitionRole = "swap"
)

// SignCheck is the pacman signature check level for a custom repository.
type SignCheck string

const (
	SignCheckNever    SignCheck = "Never"
	SignCheckOptional SignCheck = "Optional"
	SignCheckRequired SignCheck = "Required"
)

// SignOption is the pacman signature trust option for a custom repository.
type SignOption string

const (
	SignOptionTrustedOnly SignOption = "TrustedOnly"
	SignOptionTrustAll    SignOption = "TrustAll"
)

// Partition describes a single partition on the target device.
type Partition struct {
	// Role is what the partition is used for (boot, root, swap).
	Role PartitionRole `yaml:"role" json:"role" validate:"required,oneof=boot root swap"`

	// Size is the partition size in sfdisk notation (e.g. "512MiB", "20GiB").
	// Empty means "rest of the device".
	Size string `yaml:"size,omitempty" json:"size,omitempty"`

	// Filesystem is the filesystem created on the partition
	// (fat32 for boot, ext4/btrfs/xfs for root, empty for swap).
	Filesystem string `yaml:"filesystem,omitempty" json:"filesystem,omitempty" validate:"omitempty,oneof=fat32 ext4 btrfs xfs"`

	// MountPoint is where the partition is mounted relative to the target
	// root (e.g. "/", "/boot"). Empty for swap.
	MountPoint string `yaml:"mountpoint,omitempty" json:"mountpoint,omitempty"`
}

// DiskConfig describes the target disk layout.
type DiskConfig struct {
	// Layout selects wipe or premounted preparation.
	Layout DiskLayoutType `yaml:"layout" json:"layout" validate:"required,oneof=wipe premounted"`

	// Device is the block device to install to (e.g. "/dev/sda").
	// Required unless the layout is premounted.
	Device string `yaml:"device,omitempty" json:"device,omitempty" validate:"required_unless=Layout premounted"`

	// Partitions lists the partitions created on the device, in on-disk
	// order. Ignored for premounted layouts.
	Partitions []Partition `yaml:"partitions,omitempty" json:"partitions,omitempty" validate:"dive"`
}

// DiskEncryption configures LUKS encryption of the root partition.
type DiskEncryption struct {
	Type EncryptionType `yaml:"type" json:"type" validate:"required,oneof=none luks"`

	// Passphrase unlocks the LUKS container. Required when Type is luks.
	Passphrase string `yaml:"passphrase,omitempty" json:"passphrase,omitempty" validate:"required_if=Type luks"`
}

// Enabled reports whether encryption is actually configured.
func (e *DiskEncryption) Enabled() bool {
	return e != nil && e.Type != "" && e.Type != EncryptionNone
}

// LocaleConfig holds system language, encoding and keyboard layout.
type LocaleConfig struct {
	Language       string `yaml:"language" json:"language" validate:"required"`
	Encoding       string `yaml:"encoding" json:"encoding" validate:"required"`
	KeyboardLayout string `yaml:"keyboard_layout" json:"keyboard_layout" validate:"required"`
}

// CustomMirror is an additional pacman repository.
type CustomMirror struct {
	Name       string     `yaml:"name" json:"name" validate:"required"`
	URL        string     `yaml:"url" json:"url" validate:"required,url"`
	SignCheck  SignCheck  `yaml:"sign_check" json:"sign_check" validate:"required,oneof=Never Optional Required"`
	SignOption SignOption `yaml:"sign_option" json:"sign_option" validate:"required,oneof=TrustedOnly TrustAll"`
}

// MirrorConfig selects which mirrors pacstrap and the installed system use.
type MirrorConfig struct {
	// Regions are mirror region names (e.g. "Germany") in preference order.
	Regions []string `yaml:"regions,omitempty" json:"regions,omitempty"`

	// CustomMirrors are extra repositories appended to pacman.conf.
	CustomMirrors []CustomMirror `yaml:"custom_mirrors,omitempty" json:"custom_mirrors,omitempty" validate:"dive"`
}

// User is a user account created in the target system.
type User struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password" validate:"required"`

	// Sudo grants the user wheel group membership and sudo rights.
	Sudo bool `yaml:"sudo" json:"sudo"`

	// Groups are supplementary groups beyond the defaults.
	Groups []string `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// Profile is the complete installation configuration. It is collected once by
// the wizard (or loaded from YAML), validated, and then consumed by the
// install driver.
type Profile struct {
	Hostname   string     `yaml:"hostname" json:"hostname" validate:"required,hostname_rfc1123"`
	Bootloader Bootloader `yaml:"bootloader" json:"bootloader" validate:"required,oneof=grub systemd-boot"`

	// Kernels are the kernel packages pacstrap installs.
	Kernels []string `yaml:"kernels" json:"kernels" validate:"required,min=1,dive,required"`

	Disk       DiskConfig      `yaml:"disk" json:"disk" validate:"required"`
	Encryption *DiskEncryption `yaml:"encryption,omitempty" json:"encryption,omitempty"`
	Mirrors    MirrorConfig    `yaml:"mirrors" json:"mirrors"`
	Locale     LocaleConfig    `yaml:"locale" json:"locale" validate:"required"`

	// RootPassword may be empty, in which case at least one sudo-capable
	// user must exist (enforced by policy, not here).
	RootPassword string `yaml:"root_password,omitempty" json:"root_password,omitempty"`

	Users []User `yaml:"users" json:"users" validate:"required,min=1,dive"`

	// Packages are extra packages installed on top of the base set.
	Packages []string `yaml:"packages,omitempty" json:"packages,omitempty"`

	// Services are extra units enabled on top of the base set.
	Services []string `yaml:"services,omitempty" json:"services,omitempty"`

	// ParallelDownloads is the pacman ParallelDownloads setting. Zero keeps
	// the pacman default.
	ParallelDownloads int `yaml:"parallel_downloads,omitempty" json:"parallel_downloads,omitempty" validate:"min=0,max=64"`

	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	NTP      bool   `yaml:"ntp" json:"ntp"`

	// Swap enables zram-backed swap in the installed system.
	Swap bool `yaml:"swap" json:"swap"`

	// AdditionalRepos enables extra official repositories
	// ("testing", "multilib").
	AdditionalRepos []string `yaml:"additional_repos,omitempty" json:"additional_repos,omitempty" validate:"dive,oneof=testing multilib"`

	// CustomCommands run chrooted into the target after everything else.
	CustomCommands []string `yaml:"custom_commands,omitempty" json:"custom_commands,omitempty"`
}

// TestingEnabled reports whether the "testing" repository was selected.
func (p *Profile) TestingEnabled() bool { return p.hasRepo("testing") }

// MultilibEnabled reports whether the "multilib" repository was selected.
func (p *Profile) MultilibEnabled() bool { return p.hasRepo("multilib") }

func (p *Profile) hasRepo(name string) bool {
	for _, r := range p.AdditionalRepos {
		if r == name {
			return true
		}
	}
	return false
}

// HasSuperuser reports whether any configured user has sudo rights.
func (p *Profile) HasSuperuser() bool {
	for i := range p.Users {
		if p.Users[i].Sudo {
			return true
		}
	}
	return false
}

// RootPartition returns the root partition, or nil for premounted layouts.
func (d *DiskConfig) RootPartition() *Partition {
	for i := range d.Partitions {
		if d.Partitions[i].Role == RoleRoot {
			return &d.Partitions[i]
		}
	}
	return nil
}
