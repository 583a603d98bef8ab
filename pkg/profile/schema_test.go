package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaAcceptsValidProfile(t *testing.T) {
	sr := NewSchemaRegistry()
	require.NoError(t, sr.ValidateProfile(validProfile()))
}

func TestSchemaRejectsUppercaseUsername(t *testing.T) {
	sr := NewSchemaRegistry()
	p := validProfile()
	p.Users[0].Username = "Ops"
	assert.Error(t, sr.ValidateProfile(p))
}

func TestSchemaRejectsUnknownRepo(t *testing.T) {
	sr := NewSchemaRegistry()
	p := validProfile()
	p.AdditionalRepos = []string{"community"}
	assert.Error(t, sr.ValidateProfile(p))
}

func TestSchemaRejectsNonDevDevice(t *testing.T) {
	sr := NewSchemaRegistry()
	p := validProfile()
	p.Disk.Device = "vda"
	assert.Error(t, sr.ValidateProfile(p))
}

func TestSchemaUnknownName(t *testing.T) {
	sr := NewSchemaRegistry()
	err := sr.Validate("nope", "#Nope", struct{}{})
	assert.Error(t, err)
}

func TestRegisterBadSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	assert.Error(t, sr.Register("broken", "#Broken: {"))
}
