package instance

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDPrefersConfiguredValue(t *testing.T) {
	assert.Equal(t, "cron-7", ID("  cron-7 "))
}

func TestIDGeneratesUniqueNames(t *testing.T) {
	first, second := ID(""), ID("")
	assert.NotEqual(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`-[0-9a-f]{8}$`), first)
}
