package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	defer s.Close()

	testStoreContract(t, s)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)

	r := sampleResult("bitcoin", day(2024, 6, 1), 124)
	require.NoError(t, s.UpsertResult(context.Background(), r))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Result(context.Background(), "bitcoin", day(2024, 6, 1))
	require.NoError(t, err)
	require.Equal(t, r, got)
}
