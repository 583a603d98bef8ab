package profile

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas used to validate profile documents
// before they are accepted for installation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas registered.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas; registration of constants cannot fail.
	_ = sr.Register("profile", builtinProfileSchema)
	_ = sr.Register("user", builtinUserSchema)
	_ = sr.Register("mirror", builtinMirrorSchema)

	return sr
}

// Register compiles and stores a CUE schema under the given name.
func (sr *SchemaRegistry) Register(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// Validate unifies data with the named schema definition and reports any
// constraint violation.
func (sr *SchemaRegistry) Validate(name, def string, data interface{}) error {
	sr.mu.RLock()
	schema, ok := sr.schemas[name]
	sr.mu.RUnlock()

	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath(def)).Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidateProfile validates a full profile document against the built-in
// profile schema.
func (sr *SchemaRegistry) ValidateProfile(p *Profile) error {
	return sr.Validate("profile", "#Profile", p)
}

const builtinProfileSchema = `
// Installation profile document.
#Profile: {
	// Hostname of the installed machine.
	hostname: string & =~"^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$"

	bootloader: "grub" | "systemd-boot"

	// Kernel packages handed to pacstrap; never empty.
	kernels: [string, ...string]

	disk: {
		layout: "wipe" | "premounted"
		device?: string & =~"^/dev/"
		partitions?: [...{
			role:        "boot" | "root" | "swap"
			size?:       string
			filesystem?: "fat32" | "ext4" | "btrfs" | "xfs"
			mountpoint?: string
		}]
	}

	encryption?: {
		type:        "none" | "luks"
		passphrase?: string
	}

	mirrors: {
		regions?: [...string]
		custom_mirrors?: [...{
			name:        string & !=""
			url:         string & !=""
			sign_check:  "Never" | "Optional" | "Required"
			sign_option: "TrustedOnly" | "TrustAll"
		}]
	}

	locale: {
		language:        string & !=""
		encoding:        string & !=""
		keyboard_layout: string & !=""
	}

	root_password?: string

	users: [...{
		username: string & =~"^[a-z_][a-z0-9_-]*$"
		password: string & !=""
		sudo:     bool
		groups?: [...string]
	}] & [_, ...]

	packages?: [...string & !=""]
	services?: [...string & !=""]

	parallel_downloads?: int & >=0 & <=64

	timezone?: string
	ntp:       bool
	swap:      bool

	additional_repos?: [...("testing" | "multilib")]

	custom_commands?: [...string & !=""]
}
`

const builtinUserSchema = `
#User: {
	username: string & =~"^[a-z_][a-z0-9_-]*$"
	password: string & !=""
	sudo:     bool
	groups?: [...string]
}
`

const builtinMirrorSchema = `
#Mirror: {
	name:        string & !=""
	url:         string & !=""
	sign_check:  "Never" | "Optional" | "Required"
	sign_option: "TrustedOnly" | "TrustAll"
}
`
