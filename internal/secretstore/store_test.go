package secretstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/AlexZinkM/local-keystore/internal/model"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func testOptions() *Options {
	return &Options{
		ScryptN: 1 << 4,
		ScryptR: 8,
		ScryptP: 1,
		Timeout: time.Second,
	}
}

func openTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "secrets.db")
	store, err := Open(path, []byte("device passphrase"), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, path
}

func TestSetGetDelete(t *testing.T) {
	store, _ := openTestStore(t)

	got, err := store.Get("0xabc")
	require.NoError(t, err)
	require.True(t, got.IsNone())

	require.NoError(t, store.Set("0xabc", "hunter2", AccessWhenUnlocked))

	got, err = store.Get("0xabc")
	require.NoError(t, err)
	require.Equal(t, "hunter2", got.UnwrapOr(""))

	// Overwrite replaces
	require.NoError(t, store.Set("0xabc", "hunter3", AccessWhenUnlocked))
	got, err = store.Get("0xabc")
	require.NoError(t, err)
	require.Equal(t, "hunter3", got.UnwrapOr(""))

	require.NoError(t, store.Delete("0xabc"))
	got, err = store.Get("0xabc")
	require.NoError(t, err)
	require.True(t, got.IsNone())

	// Deleting a missing key is fine
	require.NoError(t, store.Delete("0xabc"))
}

func TestInvalidInput(t *testing.T) {
	store, _ := openTestStore(t)

	require.ErrorIs(t, store.Set("", "v", AccessWhenUnlocked), ErrInvalidKey)
	require.Error(t, store.Set("k", "v", AccessPolicy(9)))

	_, err := store.Get("")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestAccessPolicies(t *testing.T) {
	store, _ := openTestStore(t)

	require.NoError(t, store.Set("strict", "a", AccessWhenUnlocked))
	require.NoError(t, store.Set("relaxed", "b", AccessAfterFirstUnlock))

	store.Lock()
	require.False(t, store.IsUnlocked())

	_, err := store.Get("strict")
	require.ErrorIs(t, err, model.ErrProtectionUnavailable)

	got, err := store.Get("relaxed")
	require.NoError(t, err)
	require.Equal(t, "b", got.UnwrapOr(""))

	require.ErrorIs(t, store.Set("strict", "c", AccessWhenUnlocked), model.ErrProtectionUnavailable)
	require.ErrorIs(t, store.Delete("strict"), model.ErrProtectionUnavailable)

	require.ErrorIs(t, store.Unlock([]byte("wrong")), model.ErrProtectionUnavailable)
	require.False(t, store.IsUnlocked())

	require.NoError(t, store.Unlock([]byte("device passphrase")))
	got, err = store.Get("strict")
	require.NoError(t, err)
	require.Equal(t, "a", got.UnwrapOr(""))
}

func TestTamperedRecordsRejected(t *testing.T) {
	store, _ := openTestStore(t)

	require.NoError(t, store.Set("strict", "a", AccessWhenUnlocked))
	require.NoError(t, store.Set("relaxed", "b", AccessAfterFirstUnlock))

	rawRecord := func(key string) []byte {
		var record []byte
		require.NoError(t, store.db.View(func(tx *bbolt.Tx) error {
			record = append([]byte(nil), tx.Bucket(secretsBucket).Get([]byte(key))...)
			return nil
		}))
		return record
	}
	putRecord := func(key string, record []byte) {
		require.NoError(t, store.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(secretsBucket).Put([]byte(key), record)
		}))
	}

	// The policy is sealed, so flipping any stored byte breaks the record.
	strict := rawRecord("strict")
	for i := range strict {
		flipped := append([]byte(nil), strict...)
		flipped[i] ^= 0x01
		putRecord("strict", flipped)

		_, err := store.Get("strict")
		require.ErrorIs(t, err, model.ErrProtectionUnavailable, "byte %d", i)
	}

	// A relaxed record copied over a strict key does not read back.
	putRecord("strict", rawRecord("relaxed"))
	store.Lock()
	_, err := store.Get("strict")
	require.ErrorIs(t, err, model.ErrProtectionUnavailable)

	got, err := store.Get("relaxed")
	require.NoError(t, err)
	require.Equal(t, "b", got.UnwrapOr(""))
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")

	store, err := Open(path, []byte("pass"), testOptions())
	require.NoError(t, err)
	require.NoError(t, store.Set(RecentlyUsedKey, "0x01", AccessAfterFirstUnlock))
	require.NoError(t, store.Close())

	// Wrong passphrase is fatal to opening
	_, err = Open(path, []byte("nope"), testOptions())
	require.ErrorIs(t, err, model.ErrProtectionUnavailable)

	store, err = Open(path, []byte("pass"), testOptions())
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(RecentlyUsedKey)
	require.NoError(t, err)
	require.Equal(t, "0x01", got.UnwrapOr(""))
}

func TestParamsEncoding(t *testing.T) {
	n, r, p, err := decodeParams(encodeParams(1<<18, 8, 1))
	require.NoError(t, err)
	require.Equal(t, []int{1 << 18, 8, 1}, []int{n, r, p})

	_, _, _, err = decodeParams([]byte{1, 2})
	require.Error(t, err)
}
