package menu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ironstrap/ironstrap/pkg/profile"
)

// Action is what the wizard resolved to when it quit.
type Action int

const (
	ActionNone Action = iota
	ActionInstall
	ActionSave
	ActionAbort
)

// entry is a single menu row: either an editable configuration item, a
// separator, or a wizard control (install, save, abort).
type entry struct {
	title     string
	mandatory bool
	separator bool
	action    Action

	// status renders the current value next to the title.
	status func(p *profile.Profile) string

	// configured reports whether the entry has been filled in. Mandatory
	// entries gate the install.
	configured func(p *profile.Profile) bool

	// form builds the editor opened when the entry is selected.
	form func(p *profile.Profile) *form
}

// entries builds the wizard menu for a profile.
func entries(p *profile.Profile) []entry {
	return []entry{
		{
			title:     "Disk configuration",
			mandatory: true,
			status: func(p *profile.Profile) string {
				if p.Disk.Layout == profile.LayoutPremounted {
					return "premounted"
				}
				if p.Disk.Device != "" {
					return fmt.Sprintf("wipe %s", p.Disk.Device)
				}
				return ""
			},
			configured: diskConfigured,
			form:       diskForm,
		},
		{
			title: "Disk encryption",
			status: func(p *profile.Profile) string {
				if p.Encryption.Enabled() {
					return "luks"
				}
				return "none"
			},
			configured: func(p *profile.Profile) bool { return true },
			form:       encryptionForm,
		},
		{
			title: "Mirrors",
			status: func(p *profile.Profile) string {
				return strings.Join(p.Mirrors.Regions, ", ")
			},
			configured: func(p *profile.Profile) bool { return len(p.Mirrors.Regions) > 0 },
			form:       mirrorsForm,
		},
		{
			title: "Locale",
			status: func(p *profile.Profile) string {
				return fmt.Sprintf("%s.%s %s", p.Locale.Language, p.Locale.Encoding, p.Locale.KeyboardLayout)
			},
			configured: func(p *profile.Profile) bool { return p.Locale.Language != "" },
			form:       localeForm,
		},
		{
			title: "Bootloader",
			status: func(p *profile.Profile) string {
				return string(p.Bootloader)
			},
			configured: func(p *profile.Profile) bool { return p.Bootloader != "" },
			form:       bootloaderForm,
		},
		{
			title: "Hostname",
			status: func(p *profile.Profile) string {
				return p.Hostname
			},
			configured: func(p *profile.Profile) bool { return p.Hostname != "" },
			form:       hostnameForm,
		},
		{
			title:     "Root password",
			mandatory: true,
			status: func(p *profile.Profile) string {
				if p.RootPassword != "" {
					return "set"
				}
				if p.HasSuperuser() {
					return "disabled (sudo user set)"
				}
				return ""
			},
			configured: rootPasswordConfigured,
			form:       rootPasswordForm,
		},
		{
			title:     "Users",
			mandatory: true,
			status: func(p *profile.Profile) string {
				if len(p.Users) == 0 {
					return ""
				}
				names := make([]string, len(p.Users))
				for i, u := range p.Users {
					names[i] = u.Username
				}
				return strings.Join(names, ", ")
			},
			configured: func(p *profile.Profile) bool { return len(p.Users) > 0 },
			form:       userForm,
		},
		{
			title: "Packages",
			status: func(p *profile.Profile) string {
				if len(p.Packages) == 0 {
					return ""
				}
				return fmt.Sprintf("%d extra", len(p.Packages))
			},
			configured: func(p *profile.Profile) bool { return len(p.Packages) > 0 },
			form:       packagesForm,
		},
		{
			title: "Parallel downloads",
			status: func(p *profile.Profile) string {
				if p.ParallelDownloads == 0 {
					return "default"
				}
				return strconv.Itoa(p.ParallelDownloads)
			},
			configured: func(p *profile.Profile) bool { return true },
			form:       parallelDownloadsForm,
		},
		{
			title: "Timezone",
			status: func(p *profile.Profile) string {
				return p.Timezone
			},
			configured: func(p *profile.Profile) bool { return p.Timezone != "" },
			form:       timezoneForm,
		},
		{
			title: "Automatic time sync (NTP)",
			status: func(p *profile.Profile) string {
				if p.NTP {
					return "enabled"
				}
				return "disabled"
			},
			configured: func(p *profile.Profile) bool { return true },
			form:       ntpForm,
		},
		{
			title: "Additional repositories",
			status: func(p *profile.Profile) string {
				return strings.Join(p.AdditionalRepos, ", ")
			},
			configured: func(p *profile.Profile) bool { return true },
			form:       additionalReposForm,
		},
		{separator: true},
		{title: "Install", action: ActionInstall},
		{title: "Save configuration", action: ActionSave},
		{title: "Abort", action: ActionAbort},
	}
}

func diskConfigured(p *profile.Profile) bool {
	if p.Disk.Layout == profile.LayoutPremounted {
		return true
	}
	return p.Disk.Layout == profile.LayoutWipe && p.Disk.Device != ""
}

// rootPasswordConfigured is satisfied by a root password or by a sudo user.
func rootPasswordConfigured(p *profile.Profile) bool {
	return p.RootPassword != "" || p.HasSuperuser()
}

// mandatoryConfigured reports whether every mandatory entry is filled in.
func mandatoryConfigured(p *profile.Profile) bool {
	for _, e := range entries(p) {
		if e.mandatory && !e.configured(p) {
			return false
		}
	}
	return true
}

func diskForm(p *profile.Profile) *form {
	return newForm("Disk configuration",
		func(f *form) {
			p.Disk.Layout = profile.DiskLayoutType(f.value("Layout"))
			if p.Disk.Layout == profile.LayoutPremounted {
				p.Disk.Device = ""
				p.Disk.Partitions = nil
				return
			}
			p.Disk.Device = strings.TrimSpace(f.value("Device"))
			if len(p.Disk.Partitions) == 0 {
				p.Disk.Partitions = profile.Default().Disk.Partitions
			}
		},
		selectField("Layout", []string{string(profile.LayoutWipe), string(profile.LayoutPremounted)}, string(p.Disk.Layout)),
		&field{
			label: "Device",
			kind:  fieldText,
			value: p.Disk.Device,
			skip: func(f *form) bool {
				return f.value("Layout") == string(profile.LayoutPremounted)
			},
		},
	)
}

func encryptionForm(p *profile.Profile) *form {
	current := string(profile.EncryptionNone)
	if p.Encryption.Enabled() {
		current = string(profile.EncryptionLUKS)
	}
	return newForm("Disk encryption",
		func(f *form) {
			if f.value("Encryption") == string(profile.EncryptionNone) {
				p.Encryption = nil
				return
			}
			p.Encryption = &profile.DiskEncryption{
				Type:       profile.EncryptionLUKS,
				Passphrase: f.value("Passphrase"),
			}
		},
		selectField("Encryption", []string{string(profile.EncryptionNone), string(profile.EncryptionLUKS)}, current),
		&field{
			label: "Passphrase",
			kind:  fieldSecret,
			skip: func(f *form) bool {
				return f.value("Encryption") == string(profile.EncryptionNone)
			},
		},
	)
}

func mirrorsForm(p *profile.Profile) *form {
	return newForm("Mirrors",
		func(f *form) {
			p.Mirrors.Regions = splitList(f.value("Regions (comma separated)"))
		},
		textField("Regions (comma separated)", strings.Join(p.Mirrors.Regions, ", ")),
	)
}

func localeForm(p *profile.Profile) *form {
	return newForm("Locale",
		func(f *form) {
			p.Locale.Language = strings.TrimSpace(f.value("Language"))
			p.Locale.Encoding = strings.TrimSpace(f.value("Encoding"))
			p.Locale.KeyboardLayout = strings.TrimSpace(f.value("Keyboard layout"))
		},
		textField("Language", p.Locale.Language),
		textField("Encoding", p.Locale.Encoding),
		textField("Keyboard layout", p.Locale.KeyboardLayout),
	)
}

func bootloaderForm(p *profile.Profile) *form {
	return newForm("Bootloader",
		func(f *form) {
			p.Bootloader = profile.Bootloader(f.value("Bootloader"))
		},
		selectField("Bootloader", []string{string(profile.BootloaderSystemdBoot), string(profile.BootloaderGrub)}, string(p.Bootloader)),
	)
}

func hostnameForm(p *profile.Profile) *form {
	return newForm("Hostname",
		func(f *form) {
			p.Hostname = strings.TrimSpace(f.value("Hostname"))
		},
		textField("Hostname", p.Hostname),
	)
}

func rootPasswordForm(p *profile.Profile) *form {
	return newForm("Root password",
		func(f *form) {
			p.RootPassword = f.value("Root password (empty disables root login)")
		},
		secretField("Root password (empty disables root login)"),
	)
}

// userForm adds a single user. Visiting the entry again adds another.
func userForm(p *profile.Profile) *form {
	return newForm("Add user",
		func(f *form) {
			username := strings.TrimSpace(f.value("Username"))
			if username == "" {
				return
			}
			p.Users = append(p.Users, profile.User{
				Username: username,
				Password: f.value("Password"),
				Sudo:     f.boolValue("Superuser (sudo)"),
			})
		},
		textField("Username", ""),
		secretField("Password"),
		yesNoField("Superuser (sudo)", false),
	)
}

func packagesForm(p *profile.Profile) *form {
	return newForm("Packages",
		func(f *form) {
			p.Packages = splitList(f.value("Extra packages (comma or space separated)"))
		},
		textField("Extra packages (comma or space separated)", strings.Join(p.Packages, " ")),
	)
}

func parallelDownloadsForm(p *profile.Profile) *form {
	current := ""
	if p.ParallelDownloads > 0 {
		current = strconv.Itoa(p.ParallelDownloads)
	}
	return newForm("Parallel downloads",
		func(f *form) {
			n, err := strconv.Atoi(strings.TrimSpace(f.value("Parallel downloads (0 keeps default)")))
			if err != nil || n < 0 {
				n = 0
			}
			p.ParallelDownloads = n
		},
		textField("Parallel downloads (0 keeps default)", current),
	)
}

func timezoneForm(p *profile.Profile) *form {
	return newForm("Timezone",
		func(f *form) {
			p.Timezone = strings.TrimSpace(f.value("Timezone (e.g. Europe/Berlin)"))
		},
		textField("Timezone (e.g. Europe/Berlin)", p.Timezone),
	)
}

func ntpForm(p *profile.Profile) *form {
	return newForm("Automatic time sync",
		func(f *form) {
			p.NTP = f.boolValue("Enable NTP")
		},
		yesNoField("Enable NTP", p.NTP),
	)
}

func additionalReposForm(p *profile.Profile) *form {
	return newForm("Additional repositories",
		func(f *form) {
			p.AdditionalRepos = f.chosen("Repositories")
		},
		multiField("Repositories", []string{"testing", "multilib"}, p.AdditionalRepos),
	)
}

// splitList splits a comma or whitespace separated input into items.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
