package accountstore

import (
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/AlexZinkM/local-keystore/internal/crypto"
	"github.com/AlexZinkM/local-keystore/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(t.TempDir(), crypto.NewCodec(16))
	require.NoError(t, err)
	return store
}

func exportKey(t *testing.T, store *Store, account model.Account, password string) []byte {
	t.Helper()

	data, err := store.Export(account, []byte(password), []byte("export"))
	require.NoError(t, err)
	file, err := crypto.Unmarshal(data)
	require.NoError(t, err)
	raw, err := crypto.DecryptKey(file, []byte("export"))
	require.NoError(t, err)
	return raw
}

func encryptedKey(t *testing.T, password string) ([]byte, []byte, common.Address) {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	raw := ethcrypto.FromECDSA(key)

	file, err := crypto.NewCodec(16).EncryptKey(raw, []byte(password))
	require.NoError(t, err)
	data, err := crypto.Marshal(file)
	require.NoError(t, err)

	return data, raw, ethcrypto.PubkeyToAddress(key.PublicKey)
}

func TestCreateAndList(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Create([]byte("pw1"))
	require.NoError(t, err)
	b, err := store.Create([]byte("pw2"))
	require.NoError(t, err)

	accounts, err := store.Accounts()
	require.NoError(t, err)
	require.ElementsMatch(t, []model.Account{a, b}, accounts)

	has, err := store.Has(a)
	require.NoError(t, err)
	require.True(t, has)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		info, err := e.Info()
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestImportDeduplicates(t *testing.T) {
	store := newTestStore(t)
	data, raw, address := encryptedKey(t, "source")

	account, err := store.Import(data, []byte("source"), []byte("stored"))
	require.NoError(t, err)
	require.Equal(t, address, account.Address)
	require.Equal(t, raw, exportKey(t, store, account, "stored"))

	_, err = store.Import(data, []byte("source"), []byte("other"))
	require.ErrorIs(t, err, model.ErrDuplicateAccount)
	require.ErrorIs(t, err, model.ErrImportFailed)

	accounts, err := store.Accounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	// The surviving record is the original one
	require.Equal(t, raw, exportKey(t, store, account, "stored"))
}

func TestImportConcurrentSameKey(t *testing.T) {
	store := newTestStore(t)
	data, _, _ := encryptedKey(t, "source")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		dups int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Import(data, []byte("source"), []byte("stored"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				oks++
			case errors.Is(err, model.ErrDuplicateAccount):
				dups++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, oks)
	require.Equal(t, 7, dups)

	accounts, err := store.Accounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestImportWrongPassword(t *testing.T) {
	store := newTestStore(t)
	data, _, _ := encryptedKey(t, "source")

	_, err := store.Import(data, []byte("wrong"), []byte("stored"))
	require.ErrorIs(t, err, model.ErrImportFailed)
	require.ErrorIs(t, err, model.ErrDecryptionFailed)

	_, err = store.Import([]byte("garbage"), []byte("source"), []byte("stored"))
	require.ErrorIs(t, err, model.ErrImportFailed)

	accounts, err := store.Accounts()
	require.NoError(t, err)
	require.Empty(t, accounts)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	account, err := store.Create([]byte("pw"))
	require.NoError(t, err)

	require.ErrorIs(t, store.Delete(account, []byte("wrong")), model.ErrDecryptionFailed)

	require.NoError(t, store.Delete(account, []byte("pw")))

	has, err := store.Has(account)
	require.NoError(t, err)
	require.False(t, has)

	require.ErrorIs(t, store.Delete(account, []byte("pw")), model.ErrAccountNotFound)
}

func TestUpdatePassword(t *testing.T) {
	store := newTestStore(t)

	account, err := store.Create([]byte("old"))
	require.NoError(t, err)
	key := exportKey(t, store, account, "old")

	require.ErrorIs(t, store.UpdatePassword(account, []byte("wrong"), []byte("new")), model.ErrDecryptionFailed)

	require.NoError(t, store.UpdatePassword(account, []byte("old"), []byte("new")))

	_, err = store.Export(account, []byte("old"), []byte("x"))
	require.ErrorIs(t, err, model.ErrDecryptionFailed)
	require.Equal(t, key, exportKey(t, store, account, "new"))

	accounts, err := store.Accounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestUpdatePasswordWriteFailureKeepsOldPassword(t *testing.T) {
	store := newTestStore(t)

	account, err := store.Create([]byte("old"))
	require.NoError(t, err)

	store.writeFile = func(string, []byte) error {
		return errors.New("disk full")
	}
	require.Error(t, store.UpdatePassword(account, []byte("old"), []byte("new")))
	store.writeFile = writeKeyFile

	exportKey(t, store, account, "old")
	_, err = store.Export(account, []byte("new"), []byte("x"))
	require.ErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestExportDoesNotMutate(t *testing.T) {
	store := newTestStore(t)

	account, err := store.Create([]byte("pw1"))
	require.NoError(t, err)

	data, err := store.Export(account, []byte("pw1"), []byte("pw2"))
	require.NoError(t, err)

	file, err := crypto.Unmarshal(data)
	require.NoError(t, err)
	exported, err := crypto.DecryptKey(file, []byte("pw2"))
	require.NoError(t, err)

	// Stored record still needs pw1
	require.Equal(t, exported, exportKey(t, store, account, "pw1"))

	_, err = store.Export(model.Account{}, []byte("pw1"), []byte("pw2"))
	require.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestUnlockSignLock(t *testing.T) {
	store := newTestStore(t)
	chainID := big.NewInt(1)

	account, err := store.Create([]byte("pw"))
	require.NoError(t, err)

	to := common.HexToAddress("0x3535353535353535353535353535353535353535")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    9,
		To:       &to,
		Value:    big.NewInt(1e18),
		Gas:      21000,
		GasPrice: big.NewInt(20e9),
	})

	_, err = store.SignTx(account, tx, chainID)
	require.ErrorIs(t, err, model.ErrAccountLocked)

	_, err = store.Unlock(account, []byte("wrong"))
	require.ErrorIs(t, err, model.ErrDecryptionFailed)
	require.False(t, store.IsUnlocked(account))

	release, err := store.Unlock(account, []byte("pw"))
	require.NoError(t, err)
	require.True(t, store.IsUnlocked(account))

	signed, err := store.SignTx(account, tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.NewEIP155Signer(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, account.Address, sender)

	release()
	release()
	require.False(t, store.IsUnlocked(account))

	_, err = store.SignTx(account, tx, chainID)
	require.ErrorIs(t, err, model.ErrAccountLocked)
}

func TestUnlockNested(t *testing.T) {
	store := newTestStore(t)

	account, err := store.Create([]byte("pw"))
	require.NoError(t, err)

	r1, err := store.Unlock(account, []byte("pw"))
	require.NoError(t, err)
	r2, err := store.Unlock(account, []byte("pw"))
	require.NoError(t, err)

	r1()
	require.True(t, store.IsUnlocked(account))
	r2()
	require.False(t, store.IsUnlocked(account))
}

func TestRecordsSkipForeignFiles(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create([]byte("pw"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.Dir()+"/UTC--broken", []byte("{"), 0600))
	require.NoError(t, os.WriteFile(store.Dir()+"/README", []byte("hi"), 0600))

	accounts, err := store.Accounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}
