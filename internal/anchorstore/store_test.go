package anchorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridcore/internal/core"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchors.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	rec := core.AnchorRecord{
		AnchorPrice: decimal.NewFromInt(100000),
		GridStep:    decimal.NewFromFloat(0.2),
		GridCount:   50,
	}
	require.NoError(t, s.SaveAnchor(ctx, "strat-1", rec))

	loaded, ok, err := s.LoadAnchor(ctx, "strat-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, loaded.AnchorPrice.Equal(rec.AnchorPrice))
	require.True(t, loaded.GridStep.Equal(rec.GridStep))
	require.Equal(t, rec.GridCount, loaded.GridCount)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchors.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.LoadAnchor(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveReplacesPriorValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchors.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveAnchor(ctx, "strat-1", core.AnchorRecord{
		AnchorPrice: decimal.NewFromInt(100000), GridStep: decimal.NewFromFloat(0.2), GridCount: 50,
	}))
	require.NoError(t, s.SaveAnchor(ctx, "strat-1", core.AnchorRecord{
		AnchorPrice: decimal.NewFromInt(105000), GridStep: decimal.NewFromFloat(0.2), GridCount: 50,
	}))

	loaded, ok, err := s.LoadAnchor(ctx, "strat-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, loaded.AnchorPrice.Equal(decimal.NewFromInt(105000)))
}

func TestMatchesConfig(t *testing.T) {
	rec := core.AnchorRecord{GridStep: decimal.NewFromFloat(0.2), GridCount: 50}
	cfg := core.GridConfig{GridStep: decimal.NewFromFloat(0.2), GridCount: 50}
	require.True(t, MatchesConfig(rec, cfg))

	cfg.GridCount = 40
	require.False(t, MatchesConfig(rec, cfg))
}
