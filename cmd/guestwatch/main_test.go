package main

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonirico/guestws"
)

func TestRun_WithoutIdentityReturnsError(t *testing.T) {
	err := run(&guestws.Config{}, zerolog.New(io.Discard))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no identity")
}
