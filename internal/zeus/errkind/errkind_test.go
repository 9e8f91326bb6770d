package errkind_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeusmux/zeus/internal/zeus/errkind"
)

func TestWrap_IsCompatible(t *testing.T) {
	err := errkind.Wrap(errkind.StaleCapability, "bob heartbeat missing")
	assert.True(t, errors.Is(err, errkind.StaleCapability))
	assert.False(t, errors.Is(err, errkind.Poison))
	assert.Equal(t, "stale capability: bob heartbeat missing", err.Error())
}

func TestWrap_NoReason(t *testing.T) {
	err := errkind.Wrap(errkind.IO, "")
	assert.Equal(t, "io error", err.Error())
}
