package main

import (
	"errors"
	"testing"

	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	req, err := parseArgs([]string{"obs.cal.oneh5"})
	require.NoError(t, err)
	assert.Equal(t, "obs.cal.oneh5", req.ArchivePath)
	assert.Nil(t, req.Channels)
	assert.Nil(t, req.TimeWindow)
	assert.Empty(t, req.OutDir)

	req, err = parseArgs([]string{"-chr", "10", "500", "obs.cal.oneh5", "-tr", "30", "90", "-o", "out"})
	require.NoError(t, err)
	assert.Equal(t, &config.ChannelRange{Min: 10, Max: 500}, req.Channels)
	assert.Equal(t, &[2]float64{30, 90}, req.TimeWindow)
	assert.Equal(t, "out", req.OutDir)

	req, err = parseArgs([]string{"obs.cal.oneh5", "-tr", "-5", "90", "-chr", "x", "y"})
	require.NoError(t, err)
	assert.Nil(t, req.TimeWindow)
	assert.Nil(t, req.Channels)
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no archive", args: nil},
		{name: "two archives", args: []string{"a.oneh5", "b.oneh5"}},
		{name: "short channel range", args: []string{"a.oneh5", "-chr", "10"}},
		{name: "missing output dir", args: []string{"a.oneh5", "-o"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args)
			assert.True(t, errors.Is(err, errUsage), "got %v", err)
		})
	}
}
