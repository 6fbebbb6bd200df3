package deskclient

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	t.Run("load returns nil when nothing is stored", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

		session, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("save and load roundtrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		store := NewFileStore(path)

		saved := &StoredSession{
			DeskID:    "desk-1",
			Signature: "sig-1",
			ExpiresAt: time.Now().Add(30 * time.Minute).Truncate(time.Second),
		}
		require.NoError(t, store.Save(saved))

		loaded, err := store.Load()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, saved.DeskID, loaded.DeskID)
		assert.Equal(t, saved.Signature, loaded.Signature)
		assert.True(t, saved.ExpiresAt.Equal(loaded.ExpiresAt))
	})

	t.Run("credential file is owner-only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		store := NewFileStore(path)
		require.NoError(t, store.Save(&StoredSession{DeskID: "d", Signature: "s"}))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("corrupt file reads as no session", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		session, err := NewFileStore(path).Load()
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("clear removes the file and is idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		store := NewFileStore(path)
		require.NoError(t, store.Save(&StoredSession{DeskID: "d", Signature: "s"}))

		require.NoError(t, store.Clear())
		require.NoError(t, store.Clear())

		session, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, session)
	})
}
