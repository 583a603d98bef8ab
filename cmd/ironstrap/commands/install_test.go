package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseYesDefault(t *testing.T) {
	// An empty reply accepts the chroot offer.
	assert.True(t, parseYesDefault("\n"))
	assert.True(t, parseYesDefault(""))
	assert.True(t, parseYesDefault("y\n"))
	assert.True(t, parseYesDefault("Yes\n"))

	assert.False(t, parseYesDefault("n\n"))
	assert.False(t, parseYesDefault("no\n"))
	assert.False(t, parseYesDefault("whatever\n"))
}
