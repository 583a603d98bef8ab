package install

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ironstrap/ironstrap/pkg/installer"
	"github.com/ironstrap/ironstrap/pkg/journal"
	"github.com/ironstrap/ironstrap/pkg/profile"
	"github.com/ironstrap/ironstrap/pkg/telemetry"
)

// Options configures a Driver. Installer, Profile and Logger are required;
// Journal, Tracer and Metrics are optional.
type Options struct {
	Installer *installer.Installer
	Profile   *profile.Profile
	Logger    *telemetry.Logger
	Journal   *journal.Store
	Tracer    *telemetry.Tracer
	Metrics   *telemetry.Metrics

	// Target is recorded in the journal: the mountpoint for local installs,
	// ssh://host for remote ones.
	Target string

	// UEFI reports whether the live environment booted with UEFI firmware.
	UEFI bool

	// Accessibility enables the espeakup service in the target when the
	// live environment runs a screen reader.
	Accessibility bool

	// NetworkConfigPaths are live-environment network configuration
	// directories copied into the target.
	NetworkConfigPaths []string

	// ShellPrompt, when set, is asked after a successful install whether to
	// drop into a chroot shell. Shell errors are logged, never fatal.
	ShellPrompt func() bool
}

// Driver runs the ordered install sequence.
type Driver struct {
	opts       Options
	inst       *installer.Installer
	profile    *profile.Profile
	logger     *telemetry.Logger
	rootDevice string
}

// New creates a driver from options.
func New(opts Options) (*Driver, error) {
	if opts.Installer == nil {
		return nil, fmt.Errorf("installer is required")
	}
	if opts.Profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Driver{
		opts:    opts,
		inst:    opts.Installer,
		profile: opts.Profile,
		logger:  opts.Logger.NewComponentLogger("driver"),
	}, nil
}

type step struct {
	name string
	skip func() bool
	run  func(ctx context.Context) error
}

// steps returns the install sequence in execution order. Keyboard layout is
// applied near the end and genfstab strictly last so fstab captures every
// mount and swap device the earlier steps set up.
func (d *Driver) steps() []step {
	p := d.profile
	return []step{
		{name: "sanity-check", run: func(ctx context.Context) error {
			return d.inst.SanityCheck(ctx, p)
		}},
		{name: "select-mirrors",
			skip: func() bool { return len(p.Mirrors.Regions) == 0 },
			run: func(ctx context.Context) error {
				return d.inst.UseMirrorRegions(ctx, p.Mirrors.Regions)
			}},
		{name: "configure-host-pacman", run: func(ctx context.Context) error {
			return d.inst.ConfigureHostPacman(ctx, d.profileWithBlackArch())
		}},
		{name: "prepare-disk",
			skip: func() bool { return p.Disk.Layout == profile.LayoutPremounted },
			run: func(ctx context.Context) error {
				rootDevice, err := d.inst.PrepareDisk(ctx, p)
				if err != nil {
					return err
				}
				d.rootDevice = rootDevice
				return nil
			}},
		{name: "pacstrap", run: func(ctx context.Context) error {
			return d.inst.Pacstrap(ctx, p.Kernels)
		}},
		{name: "set-hostname", run: func(ctx context.Context) error {
			return d.inst.SetHostname(ctx, p.Hostname)
		}},
		{name: "generate-locale", run: func(ctx context.Context) error {
			return d.inst.GenerateLocale(ctx, p.Locale.Language, p.Locale.Encoding)
		}},
		{name: "set-target-mirrors", run: func(ctx context.Context) error {
			return d.inst.SetMirrors(ctx, d.profileWithBlackArch())
		}},
		{name: "generate-keyfiles",
			skip: func() bool {
				return !p.Encryption.Enabled() || p.Disk.Layout == profile.LayoutPremounted
			},
			run: func(ctx context.Context) error {
				return d.inst.GenerateKeyFiles(ctx, p, d.rootDevice)
			}},
		{name: "setup-swap",
			skip: func() bool { return !p.Swap },
			run: func(ctx context.Context) error {
				return d.inst.SetupSwap(ctx)
			}},
		{name: "install-packages", run: func(ctx context.Context) error {
			return d.inst.AddPackages(ctx, append(append([]string{}, BasePackages...), p.Packages...))
		}},
		{name: "copy-network-config",
			skip: func() bool { return len(d.opts.NetworkConfigPaths) == 0 },
			run: func(ctx context.Context) error {
				return d.inst.CopyISONetworkConfig(ctx, d.opts.NetworkConfigPaths)
			}},
		{name: "enable-services", run: func(ctx context.Context) error {
			return d.inst.EnableServices(ctx, append(append([]string{}, BaseServices...), p.Services...))
		}},
		{name: "install-bootloader", run: func(ctx context.Context) error {
			return d.inst.AddBootloader(ctx, p, d.opts.UEFI, d.rootDevice)
		}},
		{name: "create-users", run: func(ctx context.Context) error {
			return d.inst.CreateUsers(ctx, p.Users)
		}},
		{name: "set-root-password",
			skip: func() bool { return p.RootPassword == "" },
			run: func(ctx context.Context) error {
				return d.inst.SetPassword(ctx, "root", p.RootPassword)
			}},
		{name: "set-timezone",
			skip: func() bool { return p.Timezone == "" },
			run: func(ctx context.Context) error {
				return d.inst.SetTimezone(ctx, p.Timezone)
			}},
		{name: "enable-time-sync",
			skip: func() bool { return !p.NTP },
			run: func(ctx context.Context) error {
				return d.inst.ActivateTimeSynchronization(ctx)
			}},
		{name: "enable-espeakup",
			skip: func() bool { return !d.opts.Accessibility },
			run: func(ctx context.Context) error {
				return d.inst.EnableEspeakup(ctx)
			}},
		{name: "post-install-commands", run: func(ctx context.Context) error {
			return d.inst.RunCustomCommands(ctx, postInstallCommands(p))
		}},
		{name: "custom-commands",
			skip: func() bool { return len(p.CustomCommands) == 0 },
			run: func(ctx context.Context) error {
				return d.inst.RunCustomCommands(ctx, p.CustomCommands)
			}},
		{name: "set-keyboard-layout", run: func(ctx context.Context) error {
			return d.inst.SetKeyboardLayout(ctx, p.Locale.KeyboardLayout)
		}},
		{name: "generate-fstab", run: func(ctx context.Context) error {
			return d.inst.Genfstab(ctx)
		}},
	}
}

// profileWithBlackArch returns the profile with the BlackArch repository
// appended to its custom mirrors.
func (d *Driver) profileWithBlackArch() *profile.Profile {
	p := *d.profile
	p.Mirrors.CustomMirrors = append(append([]profile.CustomMirror{}, d.profile.Mirrors.CustomMirrors...), BlackArchMirror)
	return &p
}

// Run executes the install sequence, journaling every step. It returns the
// run ID along with any failure.
func (d *Driver) Run(ctx context.Context) (string, error) {
	runID := uuid.New().String()
	logger := d.logger.WithRunID(runID)

	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordRunStarted()
	}
	var runSpanEnd func(err error)
	if d.opts.Tracer != nil {
		spanCtx, span := d.opts.Tracer.StartRunSpan(ctx, runID, d.profile.Hostname)
		ctx = spanCtx
		runSpanEnd = func(err error) {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}
	}

	if err := d.createRun(ctx, runID); err != nil {
		return runID, err
	}

	timer := telemetry.NewTimer()
	logger.WithTarget(d.opts.Target).Info("starting installation")

	if err := d.runSteps(ctx, runID, logger); err != nil {
		d.finishRun(ctx, runID, journal.RunStatusFailed, err)
		if d.opts.Metrics != nil {
			d.opts.Metrics.RecordRunCompleted("failed", timer.Duration())
		}
		if runSpanEnd != nil {
			runSpanEnd(err)
		}
		return runID, err
	}

	d.finishRun(ctx, runID, journal.RunStatusCompleted, nil)
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordRunCompleted("completed", timer.Duration())
	}
	if runSpanEnd != nil {
		runSpanEnd(nil)
	}
	logger.WithField("duration", timer.Duration().String()).Info("installation completed")

	// Optional chroot shell for manual tweaks. Failures here never fail the
	// install.
	if d.opts.ShellPrompt != nil && d.opts.ShellPrompt() {
		if err := d.inst.DropToShell(ctx); err != nil {
			logger.WithError(err).Warn("chroot shell exited with error")
		}
	}

	return runID, nil
}

func (d *Driver) runSteps(ctx context.Context, runID string, logger *telemetry.Logger) error {
	for seq, s := range d.steps() {
		if err := ctx.Err(); err != nil {
			return err
		}

		stepLogger := logger.WithStep(s.name)

		if s.skip != nil && s.skip() {
			stepLogger.Debug("step skipped")
			d.journalStep(ctx, runID, s.name, seq, journal.StepStatusSkipped, nil)
			if d.opts.Metrics != nil {
				d.opts.Metrics.RecordStep(s.name, "skipped", 0)
			}
			continue
		}

		stepLogger.Info("step started")
		stepID := d.journalStep(ctx, runID, s.name, seq, journal.StepStatusRunning, nil)

		var spanEnd func(err error)
		stepCtx := ctx
		if d.opts.Tracer != nil {
			sCtx, sp := d.opts.Tracer.StartStepSpan(ctx, s.name)
			stepCtx = sCtx
			spanEnd = func(err error) {
				if err != nil {
					telemetry.RecordError(sp, err)
				} else {
					telemetry.RecordSuccess(sp)
				}
				sp.End()
			}
		}

		stepTimer := telemetry.NewTimer()
		err := s.run(stepCtx)
		duration := stepTimer.Duration()

		if spanEnd != nil {
			spanEnd(err)
		}
		if d.opts.Metrics != nil {
			status := "completed"
			if err != nil {
				status = "failed"
			}
			d.opts.Metrics.RecordStep(s.name, status, duration)
		}

		if err != nil {
			stepLogger.WithError(err).Error("step failed")
			d.updateStep(ctx, stepID, journal.StepStatusFailed, err)
			d.appendEvent(ctx, runID, stepID, journal.EventLevelError, err.Error())
			return fmt.Errorf("step %s failed: %w", s.name, err)
		}

		stepLogger.WithField("duration", duration.String()).Info("step completed")
		d.updateStep(ctx, stepID, journal.StepStatusCompleted, nil)
	}
	return nil
}

func (d *Driver) createRun(ctx context.Context, runID string) error {
	if d.opts.Journal == nil {
		return nil
	}
	run := &journal.Run{
		ID:        runID,
		Hostname:  d.profile.Hostname,
		Target:    d.opts.Target,
		Status:    journal.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := d.opts.Journal.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create journal run: %w", err)
	}
	return nil
}

func (d *Driver) finishRun(ctx context.Context, runID string, status journal.RunStatus, runErr error) {
	if d.opts.Journal == nil {
		return
	}
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := d.opts.Journal.UpdateRunStatus(ctx, runID, status, errMsg); err != nil {
		d.logger.WithError(err).Warn("failed to update journal run")
	}
}

// journalStep records a step in the given status and returns its ID.
func (d *Driver) journalStep(ctx context.Context, runID, name string, seq int, status journal.StepStatus, stepErr error) string {
	if d.opts.Journal == nil {
		return ""
	}
	stepID := uuid.New().String()
	rec := &journal.Step{
		ID:     stepID,
		RunID:  runID,
		Name:   name,
		Seq:    seq,
		Status: journal.StepStatusPending,
	}
	if err := d.opts.Journal.CreateStep(ctx, rec); err != nil {
		d.logger.WithError(err).Warn("failed to create journal step")
		return ""
	}
	if status != journal.StepStatusPending {
		d.updateStep(ctx, stepID, status, stepErr)
	}
	return stepID
}

// appendEvent records a log event against a run and step. Like the rest of
// the journal plumbing it is best effort.
func (d *Driver) appendEvent(ctx context.Context, runID, stepID string, level journal.EventLevel, message string) {
	if d.opts.Journal == nil {
		return
	}
	event := &journal.Event{
		RunID:     &runID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if stepID != "" {
		event.StepID = &stepID
	}
	if err := d.opts.Journal.AppendEvent(ctx, event); err != nil {
		d.logger.WithError(err).Warn("failed to append journal event")
	}
}

func (d *Driver) updateStep(ctx context.Context, stepID string, status journal.StepStatus, stepErr error) {
	if d.opts.Journal == nil || stepID == "" {
		return
	}
	var errMsg *string
	if stepErr != nil {
		msg := stepErr.Error()
		errMsg = &msg
	}
	if err := d.opts.Journal.UpdateStepStatus(ctx, stepID, status, errMsg); err != nil {
		d.logger.WithError(err).Warn("failed to update journal step")
	}
}
