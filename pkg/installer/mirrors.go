package installer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ironstrap/ironstrap/pkg/profile"
)

// repoSections maps a selectable repository to the pacman.conf sections it
// uncomments.
var repoSections = map[string][]string{
	"testing":  {"core-testing", "extra-testing"},
	"multilib": {"multilib"},
}

// UseMirrorRegions reorders the live environment's mirrorlist to prefer the
// given regions. Requires reflector; skipped with a warning when it is not
// available.
func (i *Installer) UseMirrorRegions(ctx context.Context, regions []string) error {
	if len(regions) == 0 {
		return nil
	}
	if _, err := i.hostShell(ctx, "command -v reflector"); err != nil {
		i.logger.Warn("reflector not available, keeping existing mirrorlist")
		return nil
	}
	i.logger.WithField("regions", strings.Join(regions, ",")).Info("selecting mirrors")
	if _, err := i.host(ctx, "reflector",
		"--country", strings.Join(regions, ","),
		"--protocol", "https",
		"--latest", "20",
		"--sort", "rate",
		"--save", "/etc/pacman.d/mirrorlist"); err != nil {
		return fmt.Errorf("reflector failed: %w", err)
	}
	return nil
}

// ConfigureHostPacman applies repository, mirror and download settings to
// the live environment's pacman.conf so pacstrap picks them up.
func (i *Installer) ConfigureHostPacman(ctx context.Context, p *profile.Profile) error {
	return i.configurePacman(ctx, "/etc/pacman.conf", p)
}

// SetMirrors replicates the live environment's mirror selection and
// repository configuration into the target so the installed system keeps
// using them.
func (i *Installer) SetMirrors(ctx context.Context, p *profile.Profile) error {
	if _, err := i.host(ctx, "cp", "/etc/pacman.d/mirrorlist", i.targetPath("etc", "pacman.d", "mirrorlist")); err != nil {
		return fmt.Errorf("failed to copy mirrorlist into target: %w", err)
	}
	return i.configurePacman(ctx, i.targetPath("etc", "pacman.conf"), p)
}

func (i *Installer) configurePacman(ctx context.Context, confPath string, p *profile.Profile) error {
	for _, repo := range p.AdditionalRepos {
		for _, section := range repoSections[repo] {
			if err := i.enableRepoSection(ctx, confPath, section); err != nil {
				return err
			}
		}
	}

	if p.ParallelDownloads > 0 {
		expr := fmt.Sprintf("s/^#\\?ParallelDownloads.*/ParallelDownloads = %d/", p.ParallelDownloads)
		if _, err := i.host(ctx, "sed", "-i", expr, confPath); err != nil {
			return fmt.Errorf("failed to set ParallelDownloads in %s: %w", confPath, err)
		}
	}

	for _, mirror := range p.Mirrors.CustomMirrors {
		if err := i.appendCustomMirror(ctx, confPath, &mirror); err != nil {
			return err
		}
	}
	return nil
}

// enableRepoSection uncomments a [section] block and its Include line.
func (i *Installer) enableRepoSection(ctx context.Context, confPath, section string) error {
	i.logger.WithField("repo", section).WithField("path", confPath).Info("enabling repository")
	expr := fmt.Sprintf("/^#\\[%s\\]/,/^#Include/ s/^#//", section)
	if _, err := i.host(ctx, "sed", "-i", expr, confPath); err != nil {
		return fmt.Errorf("failed to enable [%s] in %s: %w", section, confPath, err)
	}
	return nil
}

// appendCustomMirror adds a custom repository section unless it is already
// present.
func (i *Installer) appendCustomMirror(ctx context.Context, confPath string, mirror *profile.CustomMirror) error {
	if _, err := i.hostShell(ctx, fmt.Sprintf("grep -q '^\\[%s\\]' %s", mirror.Name, confPath)); err == nil {
		i.logger.WithField("repo", mirror.Name).Debug("custom repository already configured")
		return nil
	}

	section := fmt.Sprintf("\n[%s]\nSigLevel = %s %s\nServer = %s\n",
		mirror.Name, mirror.SignCheck, mirror.SignOption, mirror.URL)
	script := fmt.Sprintf("printf '%%s' %s >> %s", shellQuote(section), confPath)
	if _, err := i.hostShell(ctx, script); err != nil {
		return fmt.Errorf("failed to add repository [%s] to %s: %w", mirror.Name, confPath, err)
	}
	return nil
}
