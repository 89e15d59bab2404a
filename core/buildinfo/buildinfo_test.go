package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	Resolve()
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "v1.0.0", "0123456789abcdef"
	assert.Equal(t, "v1.0.0 (0123456)", String())

	Commit = "abc"
	assert.Equal(t, "v1.0.0 (abc)", String())
}
