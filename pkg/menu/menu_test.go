package menu

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironstrap/ironstrap/pkg/profile"
)

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

var keyEnter = tea.KeyMsg{Type: tea.KeyEnter}

func TestMenuEntries(t *testing.T) {
	p := profile.Default()
	var titles []string
	for _, e := range entries(p) {
		if e.separator {
			titles = append(titles, "---")
			continue
		}
		titles = append(titles, e.title)
	}

	assert.Equal(t, []string{
		"Disk configuration",
		"Disk encryption",
		"Mirrors",
		"Locale",
		"Bootloader",
		"Hostname",
		"Root password",
		"Users",
		"Packages",
		"Parallel downloads",
		"Timezone",
		"Automatic time sync (NTP)",
		"Additional repositories",
		"---",
		"Install",
		"Save configuration",
		"Abort",
	}, titles)
}

func TestMandatoryEntries(t *testing.T) {
	p := profile.Default()
	var mandatory []string
	for _, e := range entries(p) {
		if e.mandatory {
			mandatory = append(mandatory, e.title)
		}
	}
	assert.Equal(t, []string{"Disk configuration", "Root password", "Users"}, mandatory)
}

func TestRootPasswordSatisfiedBySudoUser(t *testing.T) {
	p := profile.Default()
	assert.False(t, rootPasswordConfigured(p))

	p.Users = []profile.User{{Username: "ops", Password: "pw", Sudo: true}}
	assert.True(t, rootPasswordConfigured(p))

	p.Users = nil
	p.RootPassword = "hunter2"
	assert.True(t, rootPasswordConfigured(p))
}

func TestInstallBlockedUntilMandatoryConfigured(t *testing.T) {
	p := profile.Default()
	m := New(p)

	// Move the cursor onto the Install entry.
	installIdx := -1
	for i, e := range m.entries {
		if e.action == ActionInstall {
			installIdx = i
		}
	}
	require.GreaterOrEqual(t, installIdx, 0)
	m.cursor = installIdx

	next, cmd := m.updateMenu(keyEnter)
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, ActionNone, m.action)
	assert.NotEmpty(t, m.notice)

	p.Disk.Device = "/dev/vda"
	p.RootPassword = "hunter2"
	p.Users = []profile.User{{Username: "ops", Password: "pw"}}

	next, cmd = m.updateMenu(keyEnter)
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Equal(t, ActionInstall, m.action)
}

func TestAbortFromMenu(t *testing.T) {
	m := New(profile.Default())
	next, cmd := m.updateMenu(keyRune('q'))
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Equal(t, ActionAbort, m.action)
}

func TestCursorSkipsSeparator(t *testing.T) {
	m := New(profile.Default())
	sepIdx := -1
	for i, e := range m.entries {
		if e.separator {
			sepIdx = i
		}
	}
	require.GreaterOrEqual(t, sepIdx, 0)

	m.cursor = sepIdx - 1
	next, _ := m.updateMenu(keyRune('j'))
	m = next.(Model)
	assert.Equal(t, sepIdx+1, m.cursor)
}

func TestDiskFormWipe(t *testing.T) {
	p := profile.Default()
	p.Disk.Partitions = nil
	f := diskForm(p)

	// Layout select: wipe is first.
	f.update(keyEnter)
	require.False(t, f.done)

	f.current().input.SetValue("/dev/nvme0n1")
	f.update(keyEnter)
	require.True(t, f.done)

	assert.Equal(t, profile.LayoutWipe, p.Disk.Layout)
	assert.Equal(t, "/dev/nvme0n1", p.Disk.Device)
	require.Len(t, p.Disk.Partitions, 2)
	assert.Equal(t, profile.RoleBoot, p.Disk.Partitions[0].Role)
}

func TestDiskFormPremountedSkipsDevice(t *testing.T) {
	p := profile.Default()
	f := diskForm(p)

	f.update(keyRune('j')) // premounted
	f.update(keyEnter)
	require.True(t, f.done)

	assert.Equal(t, profile.LayoutPremounted, p.Disk.Layout)
	assert.Empty(t, p.Disk.Device)
	assert.Empty(t, p.Disk.Partitions)
}

func TestEncryptionFormSkipsPassphraseForNone(t *testing.T) {
	p := profile.Default()
	p.Encryption = &profile.DiskEncryption{Type: profile.EncryptionLUKS, Passphrase: "old"}
	f := encryptionForm(p)

	// Cursor starts on the current value (luks), move to none.
	f.update(keyRune('k'))
	f.update(keyEnter)
	require.True(t, f.done)
	assert.Nil(t, p.Encryption)
}

func TestEncryptionFormLUKS(t *testing.T) {
	p := profile.Default()
	f := encryptionForm(p)

	f.update(keyRune('j')) // luks
	f.update(keyEnter)
	require.False(t, f.done)

	f.current().input.SetValue("correct horse")
	f.update(keyEnter)
	require.True(t, f.done)

	require.NotNil(t, p.Encryption)
	assert.Equal(t, profile.EncryptionLUKS, p.Encryption.Type)
	assert.Equal(t, "correct horse", p.Encryption.Passphrase)
}

func TestUserFormAddsUser(t *testing.T) {
	p := profile.Default()
	f := userForm(p)

	f.current().input.SetValue("ops")
	f.update(keyEnter)
	f.current().input.SetValue("secret")
	f.update(keyEnter)
	f.update(keyRune('k')) // move from no to yes
	f.update(keyEnter)
	require.True(t, f.done)

	require.Len(t, p.Users, 1)
	assert.Equal(t, "ops", p.Users[0].Username)
	assert.Equal(t, "secret", p.Users[0].Password)
	assert.True(t, p.Users[0].Sudo)
}

func TestUserFormIgnoresEmptyUsername(t *testing.T) {
	p := profile.Default()
	f := userForm(p)

	f.update(keyEnter)
	f.update(keyEnter)
	f.update(keyEnter)
	require.True(t, f.done)
	assert.Empty(t, p.Users)
}

func TestAdditionalReposForm(t *testing.T) {
	p := profile.Default()
	f := additionalReposForm(p)

	f.update(tea.KeyMsg{Type: tea.KeySpace}) // toggle testing
	f.update(keyRune('j'))
	f.update(tea.KeyMsg{Type: tea.KeySpace}) // toggle multilib
	f.update(keyEnter)
	require.True(t, f.done)

	assert.Equal(t, []string{"testing", "multilib"}, p.AdditionalRepos)
}

func TestParallelDownloadsFormRejectsGarbage(t *testing.T) {
	p := profile.Default()
	f := parallelDownloadsForm(p)
	f.current().input.SetValue("many")
	f.update(keyEnter)
	require.True(t, f.done)
	assert.Equal(t, 0, p.ParallelDownloads)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList("a, b c"))
	assert.Nil(t, splitList("  , "))
}
