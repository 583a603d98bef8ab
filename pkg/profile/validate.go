package profile

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"mvdan.cc/sh/v3/syntax"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the profile for structural problems: missing mandatory
// fields, malformed values, impossible disk layouts and unparseable custom
// commands. Policy-level rules (e.g. superuser requirements) live in
// pkg/policy.
func (p *Profile) Validate() error {
	if err := getValidator().Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	if err := p.validateDisk(); err != nil {
		return err
	}

	if err := p.validateCommands(); err != nil {
		return err
	}

	return nil
}

func (p *Profile) validateDisk() error {
	if p.Disk.Layout == LayoutPremounted {
		return nil
	}

	root := p.Disk.RootPartition()
	if root == nil {
		return fmt.Errorf("invalid profile: wipe layout requires a root partition")
	}
	if root.MountPoint != "/" {
		return fmt.Errorf("invalid profile: root partition must be mounted at /, got %q", root.MountPoint)
	}

	seen := make(map[string]bool, len(p.Disk.Partitions))
	for i := range p.Disk.Partitions {
		part := &p.Disk.Partitions[i]
		if part.Role == RoleSwap {
			continue
		}
		if part.MountPoint == "" || !strings.HasPrefix(part.MountPoint, "/") {
			return fmt.Errorf("invalid profile: partition %d needs an absolute mountpoint", i)
		}
		if seen[part.MountPoint] {
			return fmt.Errorf("invalid profile: duplicate mountpoint %q", part.MountPoint)
		}
		seen[part.MountPoint] = true
	}

	return nil
}

// validateCommands parses each custom command with a POSIX shell parser so a
// typo fails validation instead of failing halfway through an install.
func (p *Profile) validateCommands() error {
	parser := syntax.NewParser()
	for i, cmd := range p.CustomCommands {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("invalid profile: custom command %d is empty", i)
		}
		if _, err := parser.Parse(strings.NewReader(cmd), fmt.Sprintf("custom_commands[%d]", i)); err != nil {
			return fmt.Errorf("invalid profile: custom command %d: %w", i, err)
		}
	}
	return nil
}
