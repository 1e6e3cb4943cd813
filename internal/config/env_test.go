package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDefaults(t *testing.T) {
	t.Setenv("KEYSTORE_DIR", "/tmp/keys")
	t.Setenv("SECRET_STORE_PATH", "/tmp/secrets.db")

	require.NoError(t, Init())

	c := Get()
	require.Equal(t, "8080", c.Port)
	require.Equal(t, 2214, c.KDFIterations)
	require.Equal(t, 1<<18, c.ScryptN)
	require.Equal(t, uint64(1), c.DefaultChainID)
	require.Equal(t, "info", c.LogLevel)
}

func TestInitRequired(t *testing.T) {
	// Setenv restores the variables after the test
	t.Setenv("KEYSTORE_DIR", "")
	t.Setenv("SECRET_STORE_PATH", "")
	os.Unsetenv("KEYSTORE_DIR")
	os.Unsetenv("SECRET_STORE_PATH")

	require.Error(t, Init())
}

func TestValidate(t *testing.T) {
	valid := Config{KDFIterations: 1, ScryptN: 16, DefaultChainID: 1}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.ScryptN = 1000
	require.Error(t, bad.Validate())

	bad = valid
	bad.KDFIterations = 0
	require.Error(t, bad.Validate())

	bad = valid
	bad.DefaultChainID = 0
	require.Error(t, bad.Validate())
}
