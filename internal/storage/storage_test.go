package storage

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := Open(InMemoryConfig(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := openTestStore(t)

	snap := &Snapshot{
		Spaces: []model.Space{
			{
				ID:         "a",
				NotebookID: "nb1",
				Name:       "Thermodynamics",
				Messages: []model.Message{
					{ID: "m1", Role: model.RoleUser, Content: "hi", CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
				},
				Metadata: model.SpaceMetadata{Pinned: true},
			},
		},
		CurrentSpaceID: "a",
	}
	require.NoError(t, s.Save(snap))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", got.CurrentSpaceID)
	require.Len(t, got.Spaces, 1)
	assert.Equal(t, "Thermodynamics", got.Spaces[0].Name)
	assert.True(t, got.Spaces[0].Metadata.Pinned)
	require.Len(t, got.Spaces[0].Messages, 1)
	assert.Equal(t, "hi", got.Spaces[0].Messages[0].Content)
}

func TestLoadMissingKeyReturnsEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got.Spaces)
	assert.Empty(t, got.CurrentSpaceID)
}

func TestLoadCorruptBlobDegradesToEmpty(t *testing.T) {
	s := openTestStore(t)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey, []byte("{not json"))
	})
	require.NoError(t, err)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got.Spaces)
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(&Snapshot{CurrentSpaceID: "a"}))
	require.NoError(t, s.Save(&Snapshot{CurrentSpaceID: "b"}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", got.CurrentSpaceID)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, logger.NewNop())
	assert.Error(t, err)
}
