package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ironstrap/ironstrap/pkg/install"
	"github.com/ironstrap/ironstrap/pkg/installer"
	"github.com/ironstrap/ironstrap/pkg/journal"
	"github.com/ironstrap/ironstrap/pkg/menu"
	"github.com/ironstrap/ironstrap/pkg/policy"
	"github.com/ironstrap/ironstrap/pkg/profile"
	"github.com/ironstrap/ironstrap/pkg/remote"
	"github.com/ironstrap/ironstrap/pkg/sysinfo"
	"github.com/ironstrap/ironstrap/pkg/telemetry"
)

func newInstallCommand(version string) *cobra.Command {
	var (
		profilePath   string
		savePath      string
		silent        bool
		target        string
		mountpoint    string
		metricsOn     bool
		traceExporter string
		traceEndpoint string
		remoteUEFI    bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install Arch Linux",
		Long: `Install Arch Linux onto the local machine or a remote target.

Without --silent an interactive wizard collects the configuration; with
--silent the given profile is installed unattended. Remote targets are
addressed as ssh://user@host:port and must be booted into a live or rescue
system with the Arch install tools available.`,
		Example: `  # Interactive install
  ironstrap install

  # Unattended install from a saved profile
  ironstrap install --silent --profile profile.yaml

  # Install onto a remote rescue system
  ironstrap install --silent --profile profile.yaml --target ssh://root@203.0.113.7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			logger, err := newTelemetryLogger()
			if err != nil {
				return err
			}

			p := profile.Default()
			if profilePath != "" {
				if p, err = profile.Load(profilePath); err != nil {
					return err
				}
			}
			if silent && profilePath == "" {
				return fmt.Errorf("--silent requires --profile")
			}

			if !silent {
				action, err := menu.Run(p)
				if err != nil {
					return err
				}
				switch action {
				case menu.ActionAbort:
					logger.Info("installation aborted")
					return nil
				case menu.ActionSave:
					if err := p.Save(savePath); err != nil {
						return err
					}
					logger.WithField("path", savePath).Info("configuration saved")
					return nil
				}
			}

			isRemote := strings.HasPrefix(target, "ssh://")
			uefi := remoteUEFI
			if !isRemote {
				uefi = sysinfo.HasUEFI()
			}

			if err := validateProfile(ctx, p, uefi); err != nil {
				return err
			}

			var runner installer.Runner = installer.NewLocalRunner()
			targetLabel := mountpoint
			if isRemote {
				cfg, err := remote.ParseTarget(target)
				if err != nil {
					return err
				}
				r, err := remote.Connect(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer r.Close()
				runner = r
				targetLabel = target
			}

			store, err := journal.Open(ctx, journalPath)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer store.Close()

			tcfg := telemetry.DefaultConfig()
			tcfg.ServiceVersion = version
			tcfg.Metrics.Enabled = metricsOn
			tcfg.Tracing.Enabled = traceExporter != ""
			if traceExporter != "" {
				tcfg.Tracing.Exporter = traceExporter
				tcfg.Tracing.Endpoint = traceEndpoint
			}

			metrics, err := telemetry.NewMetrics(tcfg.Metrics)
			if err != nil {
				return err
			}
			if err := metrics.StartMetricsServer(); err != nil {
				return err
			}

			tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion)
			if err != nil {
				return err
			}
			defer func() {
				if err := tracer.Shutdown(context.Background()); err != nil {
					logger.WithError(err).Warn("failed to shut down tracer")
				}
			}()

			var shellPrompt func() bool
			if !silent && !isRemote {
				shellPrompt = promptChroot
			}

			accessibility := !isRemote && sysinfo.AccessibilityToolsInUse()
			var networkPaths []string
			if !isRemote {
				networkPaths = sysinfo.NetworkConfigPaths()
			}

			driver, err := install.New(install.Options{
				Installer:          installer.New(mountpoint, runner, logger, metrics),
				Profile:            p,
				Logger:             logger,
				Journal:            store,
				Tracer:             tracer,
				Metrics:            metrics,
				Target:             targetLabel,
				UEFI:               uefi,
				Accessibility:      accessibility,
				NetworkConfigPaths: networkPaths,
				ShellPrompt:        shellPrompt,
			})
			if err != nil {
				return err
			}

			runID, err := driver.Run(ctx)
			if err != nil {
				return fmt.Errorf("installation failed (run %s): %w", runID, err)
			}
			fmt.Printf("Installation complete (run %s)\n", runID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "installation profile to load")
	cmd.Flags().StringVar(&savePath, "save", "profile.yaml", "path the wizard saves the configuration to")
	cmd.Flags().BoolVar(&silent, "silent", false, "unattended install, no wizard")
	cmd.Flags().StringVar(&target, "target", "", "remote install target (ssh://user@host:port)")
	cmd.Flags().StringVar(&mountpoint, "mountpoint", "/mnt/archinstall", "target root mountpoint")
	cmd.Flags().BoolVar(&metricsOn, "metrics", false, "expose Prometheus metrics during the install")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (otlp, stdout)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP gRPC endpoint")
	cmd.Flags().BoolVar(&remoteUEFI, "uefi", true, "assume UEFI firmware on remote targets")

	return cmd
}

// validateProfile runs struct validation, schema validation and the policy
// gate, logging every violation.
func validateProfile(ctx context.Context, p *profile.Profile, uefi bool) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("profile validation failed: %w", err)
	}
	if err := profile.NewSchemaRegistry().ValidateProfile(p); err != nil {
		return fmt.Errorf("profile schema validation failed: %w", err)
	}

	engine := policy.NewEngine(log.Logger)
	result, err := engine.Evaluate(ctx, p, uefi)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	for _, v := range result.Violations {
		log.Warn().
			Str("policy", v.Policy).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}
	if !result.Allowed {
		return fmt.Errorf("profile rejected by policy (%d violations)", len(result.Violations))
	}
	return nil
}

// promptChroot asks whether to chroot into the finished installation.
// Defaults to yes: post-installation tweaking is the common case.
func promptChroot() bool {
	fmt.Print("Would you like to chroot into the newly created installation for post-installation configuration? [Y/n] ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return parseYesDefault(answer)
}

// parseYesDefault interprets a prompt answer where an empty reply means yes.
func parseYesDefault(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}
