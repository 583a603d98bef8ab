package install

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironstrap/ironstrap/pkg/installer"
	"github.com/ironstrap/ironstrap/pkg/journal"
	"github.com/ironstrap/ironstrap/pkg/profile"
	"github.com/ironstrap/ironstrap/pkg/telemetry"
)

// recordingRunner records commands instead of executing them.
type recordingRunner struct {
	commands []string
	files    map[string]string
	failOn   map[string]error
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{
		files:  map[string]string{},
		failOn: map[string]error{},
	}
}

func (r *recordingRunner) record(line string) error {
	r.commands = append(r.commands, line)
	for substr, err := range r.failOn {
		if strings.Contains(line, substr) {
			return err
		}
	}
	return nil
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (*installer.Result, error) {
	if err := r.record(strings.Join(append([]string{name}, args...), " ")); err != nil {
		return &installer.Result{ExitCode: 1}, err
	}
	return &installer.Result{}, nil
}

func (r *recordingRunner) Shell(_ context.Context, script string) (*installer.Result, error) {
	if err := r.record(script); err != nil {
		return &installer.Result{ExitCode: 1}, err
	}
	return &installer.Result{}, nil
}

func (r *recordingRunner) ShellInput(_ context.Context, _ string, script string) (*installer.Result, error) {
	if err := r.record(script); err != nil {
		return &installer.Result{ExitCode: 1}, err
	}
	return &installer.Result{}, nil
}

func (r *recordingRunner) Interactive(_ context.Context, name string, args ...string) error {
	return r.record("interactive: " + strings.Join(append([]string{name}, args...), " "))
}

func (r *recordingRunner) WriteFile(_ context.Context, path string, data []byte, _ os.FileMode) error {
	r.files[path] = string(data)
	return nil
}

func (r *recordingRunner) MkdirAll(_ context.Context, _ string, _ os.FileMode) error {
	return nil
}

func (r *recordingRunner) indexOf(substr string) int {
	for i, cmd := range r.commands {
		if strings.Contains(cmd, substr) {
			return i
		}
	}
	return -1
}

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return logger
}

func testProfile() *profile.Profile {
	p := profile.Default()
	p.Disk.Device = "/dev/vda"
	p.RootPassword = "hunter2"
	p.Users = []profile.User{{Username: "ops", Password: "secret", Sudo: true}}
	p.Timezone = "Europe/Berlin"
	return p
}

func testDriver(t *testing.T, p *profile.Profile) (*Driver, *recordingRunner, *journal.Store) {
	t.Helper()
	logger := testLogger(t)
	runner := newRecordingRunner()
	inst := installer.New("/mnt/archinstall", runner, logger, nil)

	store, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	driver, err := New(Options{
		Installer: inst,
		Profile:   p,
		Logger:    logger,
		Journal:   store,
		Target:    "/mnt/archinstall",
		UEFI:      true,
	})
	require.NoError(t, err)
	return driver, runner, store
}

func TestNewRequiresInstallerProfileLogger(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Installer: installer.New("/mnt", newRecordingRunner(), testLogger(t), nil)})
	require.Error(t, err)
}

func TestRunExecutesFullSequence(t *testing.T) {
	driver, runner, store := testDriver(t, testProfile())

	runID, err := driver.Run(context.Background())
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, journal.RunStatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)

	// pacstrap carries the default hardened kernel.
	assert.GreaterOrEqual(t, runner.indexOf("pacstrap -K /mnt/archinstall base linux-firmware linux-hardened"), 0)

	// The fixed package and service sets are installed verbatim.
	pkgIdx := runner.indexOf("pacman -S --noconfirm --needed " + strings.Join(BasePackages, " "))
	assert.GreaterOrEqual(t, pkgIdx, 0)
	svcIdx := runner.indexOf("systemctl enable " + strings.Join(BaseServices, " "))
	assert.GreaterOrEqual(t, svcIdx, 0)

	// fstab generation is the last command.
	fstabIdx := runner.indexOf("genfstab -U /mnt/archinstall")
	require.GreaterOrEqual(t, fstabIdx, 0)
	assert.Equal(t, len(runner.commands)-1, fstabIdx)

	// Keyboard layout is applied after the custom command phase.
	assert.Equal(t, "KEYMAP=us\n", runner.files["/mnt/archinstall/etc/vconsole.conf"])
}

func TestRunAddsBlackArchMirror(t *testing.T) {
	driver, runner, _ := testDriver(t, testProfile())
	// A failing grep means the section is not present yet.
	runner.failOn["grep -q"] = assert.AnError

	_, err := driver.Run(context.Background())
	require.NoError(t, err)

	appendIdx := runner.indexOf("https://www.blackarch.org/blackarch/$repo/os/$arch")
	require.GreaterOrEqual(t, appendIdx, 0)
	appended := runner.commands[appendIdx]
	assert.Contains(t, appended, "[blackarch]")
	assert.Contains(t, appended, "SigLevel = Required TrustAll")
	assert.Contains(t, appended, ">> /etc/pacman.conf")
}

func TestRunPostInstallCommands(t *testing.T) {
	driver, runner, _ := testDriver(t, testProfile())

	_, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, runner.indexOf("mariadb-install-db --user=mysql --basedir=/usr --datadir=/var/lib/mysql"), 0)
	assert.GreaterOrEqual(t, runner.indexOf(`initdb -D /var/lib/postgres/data`), 0)
	assert.GreaterOrEqual(t, runner.indexOf("usermod -a -G docker ops"), 0)
	assert.GreaterOrEqual(t, runner.indexOf("git clone https://aur.archlinux.org/paru.git"), 0)

	// The AUR helper is built as the sudo user, then actually installed.
	buildIdx := runner.indexOf("makepkg -s --noconfirm")
	installIdx := runner.indexOf("pacman -U --noconfirm /tmp/paru/paru-*.pkg.tar.zst")
	require.GreaterOrEqual(t, buildIdx, 0)
	require.GreaterOrEqual(t, installIdx, 0)
	assert.Greater(t, installIdx, buildIdx)
	assert.Greater(t, runner.indexOf("rm -rf /tmp/paru"), installIdx)
}

func TestRunFailedStepMarksRunFailed(t *testing.T) {
	driver, runner, store := testDriver(t, testProfile())
	runner.failOn["pacstrap -K"] = assert.AnError

	runID, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step pacstrap failed")

	run, getErr := store.GetRun(context.Background(), runID)
	require.NoError(t, getErr)
	assert.Equal(t, journal.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)

	// Nothing after the failing step ran.
	assert.Equal(t, -1, runner.indexOf("genfstab -U"))

	steps, stepsErr := store.ListSteps(context.Background(), runID)
	require.NoError(t, stepsErr)
	last := steps[len(steps)-1]
	assert.Equal(t, "pacstrap", last.Name)
	assert.Equal(t, journal.StepStatusFailed, last.Status)

	events, eventsErr := store.ListEvents(context.Background(), runID)
	require.NoError(t, eventsErr)
	require.Len(t, events, 1)
	assert.Equal(t, journal.EventLevelError, events[0].Level)
}

func TestRunPremountedSkipsDiskPreparation(t *testing.T) {
	p := testProfile()
	p.Disk = profile.DiskConfig{Layout: profile.LayoutPremounted}
	p.Encryption = &profile.DiskEncryption{Type: profile.EncryptionLUKS, Passphrase: "correct horse"}
	driver, runner, store := testDriver(t, p)

	runID, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, -1, runner.indexOf("sfdisk --wipe"))
	assert.Equal(t, -1, runner.indexOf("cryptsetup luksFormat"))

	steps, err := store.ListSteps(context.Background(), runID)
	require.NoError(t, err)
	byName := map[string]journal.StepStatus{}
	for _, s := range steps {
		byName[s.Name] = s.Status
	}
	assert.Equal(t, journal.StepStatusSkipped, byName["prepare-disk"])
	assert.Equal(t, journal.StepStatusSkipped, byName["generate-keyfiles"])
}

func TestRunEmptyRootPasswordSkipsChpasswd(t *testing.T) {
	p := testProfile()
	p.RootPassword = ""
	driver, runner, store := testDriver(t, p)

	runID, err := driver.Run(context.Background())
	require.NoError(t, err)

	// Only the user password is set, not root's.
	count := 0
	for _, cmd := range runner.commands {
		if strings.Contains(cmd, "chpasswd") {
			count++
		}
	}
	assert.Equal(t, 1, count)

	steps, err := store.ListSteps(context.Background(), runID)
	require.NoError(t, err)
	for _, s := range steps {
		if s.Name == "set-root-password" {
			assert.Equal(t, journal.StepStatusSkipped, s.Status)
		}
	}
}

func TestRunShellPromptErrorsSwallowed(t *testing.T) {
	driver, runner, _ := testDriver(t, testProfile())
	runner.failOn["interactive"] = assert.AnError
	prompted := false
	driver.opts.ShellPrompt = func() bool {
		prompted = true
		return true
	}

	_, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, prompted)
	assert.GreaterOrEqual(t, runner.indexOf("interactive: arch-chroot /mnt/archinstall"), 0)
}

func TestRunAccessibilityEnablesEspeakup(t *testing.T) {
	driver, runner, _ := testDriver(t, testProfile())
	driver.opts.Accessibility = true

	_, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, runner.indexOf("systemctl enable espeakup"), 0)
}

func TestPostInstallCommandsWithoutSudoUserSkipParu(t *testing.T) {
	p := testProfile()
	p.Users = []profile.User{{Username: "guest", Password: "pw"}}
	commands := postInstallCommands(p)

	joined := strings.Join(commands, "\n")
	assert.NotContains(t, joined, "paru")
	assert.Contains(t, joined, "usermod -a -G docker guest")
}
