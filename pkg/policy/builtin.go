package policy

// BuiltinPolicies returns the policies every installation is checked
// against.
func BuiltinPolicies() []Policy {
	return []Policy{
		superuserRequiredPolicy(),
		reservedUsernamePolicy(),
		packageNamingPolicy(),
		encryptionPassphrasePolicy(),
		bootloaderFirmwarePolicy(),
	}
}

// superuserRequiredPolicy: skipping the root password is only allowed when
// a sudo-capable user exists.
func superuserRequiredPolicy() Policy {
	return Policy{
		Name:        "superuser-required",
		Description: "An empty root password requires at least one sudo-capable user",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"accounts"},
		Rego: `package ironstrap.policies.superuser

import rego.v1

deny contains violation if {
	object.get(input.profile, "root_password", "") == ""
	count([u | some u in input.profile.users; u.sudo]) == 0
	violation := {
		"message": "root has no password and no user has sudo rights; the installed system would be unrecoverable",
		"severity": "error",
		"remediation": "set a root password or mark at least one user as superuser",
	}
}
`,
	}
}

// reservedUsernamePolicy rejects user accounts that collide with system
// accounts created by the base packages.
func reservedUsernamePolicy() Policy {
	return Policy{
		Name:        "reserved-usernames",
		Description: "User accounts must not collide with system accounts",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"accounts"},
		Rego: `package ironstrap.policies.usernames

import rego.v1

reserved := {"root", "bin", "daemon", "mail", "ftp", "http", "nobody", "git", "dbus", "systemd-journal-remote", "systemd-network", "systemd-oom", "systemd-resolve", "systemd-timesync", "systemd-coredump", "uuidd"}

deny contains violation if {
	some u in input.profile.users
	reserved[u.username]
	violation := {
		"message": sprintf("username %q is reserved for a system account", [u.username]),
		"severity": "error",
		"remediation": "pick a different username",
	}
}
`,
	}
}

// packageNamingPolicy checks extra package names against pacman's naming
// rules so a typo fails validation instead of failing mid-install.
func packageNamingPolicy() Policy {
	return Policy{
		Name:        "package-naming",
		Description: "Extra packages must be valid pacman package names",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"packages"},
		Rego: `package ironstrap.policies.packages

import rego.v1

deny contains violation if {
	some pkg in input.profile.packages
	not regex.match("^[a-z0-9@._+][a-z0-9@._+-]*$", pkg)
	violation := {
		"message": sprintf("%q is not a valid package name", [pkg]),
		"severity": "error",
		"remediation": "check the spelling against the package repositories",
	}
}
`,
	}
}

// encryptionPassphrasePolicy warns about short LUKS passphrases.
func encryptionPassphrasePolicy() Policy {
	return Policy{
		Name:        "encryption-passphrase",
		Description: "LUKS passphrases shorter than 8 characters are flagged",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"encryption"},
		Rego: `package ironstrap.policies.encryption

import rego.v1

deny contains violation if {
	input.profile.encryption.type == "luks"
	count(input.profile.encryption.passphrase) < 8
	violation := {
		"message": "LUKS passphrase is shorter than 8 characters",
		"severity": "warning",
		"remediation": "use a longer passphrase",
	}
}
`,
	}
}

// bootloaderFirmwarePolicy rejects systemd-boot on BIOS machines; it only
// works on UEFI firmware.
func bootloaderFirmwarePolicy() Policy {
	return Policy{
		Name:        "bootloader-firmware",
		Description: "systemd-boot requires UEFI firmware",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"bootloader"},
		Rego: `package ironstrap.policies.bootloader

import rego.v1

deny contains violation if {
	input.profile.bootloader == "systemd-boot"
	not input.uefi
	violation := {
		"message": "systemd-boot cannot be installed on a BIOS-booted machine",
		"severity": "error",
		"remediation": "select grub or boot the installer in UEFI mode",
	}
}
`,
	}
}
