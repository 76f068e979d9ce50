package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandSentinel/internal/config"
	"BandSentinel/internal/model"
)

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-06-25")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 25, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("25/06/2024")
	assert.Error(t, err)

	d, err = parseDate("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), d, time.Minute)
}

func TestNewFilter_FromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Eligibility.DualRolePairs = []config.DualRolePair{{Members: []string{"paxg", "xaut"}, Default: "XAUT"}}

	f, err := newFilter(cfg)
	require.NoError(t, err)

	assets := []model.Asset{
		{ID: "pax-gold", AssetMeta: model.AssetMeta{Symbol: "PAXG", Name: "PAX Gold"}, Active: true},
		{ID: "tether-gold", AssetMeta: model.AssetMeta{Symbol: "XAUT", Name: "Tether Gold"}, Active: true},
	}
	included, rejected := f.Apply(assets)
	require.Len(t, included, 1)
	assert.Equal(t, "XAUT", included[0].Symbol)
	require.Len(t, rejected, 1)
	assert.Equal(t, "PAXG", rejected[0].Asset.Symbol)
}

func TestNewFilter_RejectsBadPair(t *testing.T) {
	cfg := &config.Config{}
	cfg.Eligibility.DualRolePairs = []config.DualRolePair{{Members: []string{"PAXG", "XAUT"}, Default: "BTC"}}

	_, err := newFilter(cfg)
	assert.Error(t, err)
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "sync", "calculate", "eligibility"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
