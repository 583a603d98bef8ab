package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironstrap/ironstrap/pkg/profile"
	"github.com/ironstrap/ironstrap/pkg/sysinfo"
)

func newValidateCommand() *cobra.Command {
	var uefi bool

	cmd := &cobra.Command{
		Use:   "validate <profile>",
		Short: "Validate an installation profile",
		Long: `Validate an installation profile without installing anything.

This command checks:
  - YAML syntax and field constraints
  - Schema conformance
  - Policy compliance (OPA/rego)`,
		Example: `  # Validate a saved profile
  ironstrap validate profile.yaml

  # Validate against BIOS firmware instead of the local detection
  ironstrap validate --uefi=false profile.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile.Load(args[0])
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("uefi") {
				uefi = sysinfo.HasUEFI()
			}

			if err := validateProfile(cmd.Context(), p, uefi); err != nil {
				return err
			}

			fmt.Printf("%s is valid\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&uefi, "uefi", true, "validate against UEFI firmware")

	return cmd
}
