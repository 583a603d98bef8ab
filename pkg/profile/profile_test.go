package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() *Profile {
	p := Default()
	p.Disk.Device = "/dev/vda"
	p.RootPassword = "hunter2"
	p.Users = []User{{Username: "ops", Password: "secret", Sudo: true}}
	return p
}

func TestDefaultProfile(t *testing.T) {
	p := Default()

	assert.Equal(t, []string{"linux-hardened"}, p.Kernels)
	assert.Equal(t, BootloaderSystemdBoot, p.Bootloader)
	assert.True(t, p.NTP)
	require.NotNil(t, p.Disk.RootPartition())
	assert.Equal(t, "/", p.Disk.RootPartition().MountPoint)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := validProfile()
	p.Packages = []string{"htop", "tmux"}
	p.AdditionalRepos = []string{"multilib"}
	p.Encryption = &DiskEncryption{Type: EncryptionLUKS, Passphrase: "swordfish"}

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, p.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, p, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateAcceptsCompleteProfile(t *testing.T) {
	require.NoError(t, validProfile().Validate())
}

func TestValidateRejectsMissingUsers(t *testing.T) {
	p := validProfile()
	p.Users = nil
	assert.Error(t, p.Validate())
}

func TestValidateRejectsBadHostname(t *testing.T) {
	p := validProfile()
	p.Hostname = "-bad-"
	assert.Error(t, p.Validate())
}

func TestValidateRejectsWipeWithoutRoot(t *testing.T) {
	p := validProfile()
	p.Disk.Partitions = []Partition{
		{Role: RoleBoot, Size: "512MiB", Filesystem: "fat32", MountPoint: "/boot"},
	}
	assert.Error(t, p.Validate())
}

func TestValidateRejectsDuplicateMountpoints(t *testing.T) {
	p := validProfile()
	p.Disk.Partitions = append(p.Disk.Partitions, Partition{
		Role: RoleBoot, Size: "512MiB", Filesystem: "fat32", MountPoint: "/boot",
	})
	p.Disk.Partitions = append(p.Disk.Partitions, Partition{
		Role: RoleBoot, Size: "512MiB", Filesystem: "fat32", MountPoint: "/boot",
	})
	assert.Error(t, p.Validate())
}

func TestValidateAllowsPremountedWithoutDevice(t *testing.T) {
	p := validProfile()
	p.Disk = DiskConfig{Layout: LayoutPremounted}
	assert.NoError(t, p.Validate())
}

func TestValidateRejectsBrokenCustomCommand(t *testing.T) {
	p := validProfile()
	p.CustomCommands = []string{`echo "unterminated`}
	assert.Error(t, p.Validate())
}

func TestValidateAcceptsCustomCommands(t *testing.T) {
	p := validProfile()
	p.CustomCommands = []string{
		"git clone https://aur.archlinux.org/paru.git && cd paru && makepkg -si --noconfirm",
	}
	assert.NoError(t, p.Validate())
}

func TestRepoFlags(t *testing.T) {
	p := validProfile()
	assert.False(t, p.TestingEnabled())

	p.AdditionalRepos = []string{"testing", "multilib"}
	assert.True(t, p.TestingEnabled())
	assert.True(t, p.MultilibEnabled())
}

func TestHasSuperuser(t *testing.T) {
	p := validProfile()
	assert.True(t, p.HasSuperuser())

	p.Users[0].Sudo = false
	assert.False(t, p.HasSuperuser())
}
