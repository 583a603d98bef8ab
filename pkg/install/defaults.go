package install

import (
	"fmt"

	"github.com/ironstrap/ironstrap/pkg/profile"
)

// BasePackages is installed on every system on top of the pacstrap set.
var BasePackages = []string{
	"neovim",
	"git",
	"curl",
	"wget",
	"nmap",
	"gnu-netcat",
	"base-devel",
	"openssh",
	"python",
	"neofetch",
	"rust",
	"nodejs",
	"yarn",
	"npm",
	"go",
	"ufw",
	"python-pip",
	"blackarch-keyring",
	"podman",
	"nginx",
	"mariadb",
	"postgresql",
	"cockpit",
	"cockpit-machines",
	"cockpit-podman",
	"cockpit-pcp",
	"cockpit-storaged",
}

// BaseServices is enabled on every system on top of the profile's services.
var BaseServices = []string{
	"nginx",
	"mariadb",
	"postgresql",
	"cockpit",
	"sshd",
}

// BlackArchMirror is always added so blackarch-keyring and the BlackArch
// tool repository resolve.
var BlackArchMirror = profile.CustomMirror{
	Name:       "blackarch",
	URL:        "https://www.blackarch.org/blackarch/$repo/os/$arch",
	SignCheck:  profile.SignCheckRequired,
	SignOption: profile.SignOptionTrustAll,
}

// postInstallCommands returns the fixed post-install command list, run
// chrooted after packages and services are in place. The AUR helper is
// built by a sudo user since makepkg refuses to run as root, then the
// resulting package is installed root-side with pacman -U.
func postInstallCommands(p *profile.Profile) []string {
	commands := []string{
		"mariadb-install-db --user=mysql --basedir=/usr --datadir=/var/lib/mysql",
		`su - postgres -c "initdb -D /var/lib/postgres/data"`,
	}

	for _, u := range p.Users {
		commands = append(commands, fmt.Sprintf("usermod -a -G docker %s", u.Username))
	}

	if aurUser := firstSudoUser(p); aurUser != "" {
		commands = append(commands,
			fmt.Sprintf(`su - %s -c "git clone https://aur.archlinux.org/paru.git /tmp/paru"`, aurUser),
			fmt.Sprintf(`su - %s -c "cd /tmp/paru && makepkg -s --noconfirm"`, aurUser),
			"pacman -U --noconfirm /tmp/paru/paru-*.pkg.tar.zst",
			"rm -rf /tmp/paru",
		)
	}

	return commands
}

func firstSudoUser(p *profile.Profile) string {
	for _, u := range p.Users {
		if u.Sudo {
			return u.Username
		}
	}
	return ""
}
