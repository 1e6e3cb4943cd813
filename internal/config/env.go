package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Config contains all configuration parameters for the application.
// Note: the secret store passphrase is prompted at runtime, see PromptForPassphrase.
type Config struct {
	Port            string `envconfig:"PORT" default:"8080"`
	KeystoreDir     string `envconfig:"KEYSTORE_DIR" required:"true"`
	SecretStorePath string `envconfig:"SECRET_STORE_PATH" required:"true"`
	KDFIterations   int    `envconfig:"KDF_ITERATIONS" default:"2214"`
	ScryptN         int    `envconfig:"SECRET_STORE_SCRYPT_N" default:"262144"`
	DefaultChainID  uint64 `envconfig:"DEFAULT_CHAIN_ID" default:"1"`
	LogDir          string `envconfig:"LOG_DIR"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	return nil
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	if c.KDFIterations <= 0 {
		return errors.New("KDF_ITERATIONS must be positive")
	}
	if c.ScryptN <= 1 || c.ScryptN&(c.ScryptN-1) != 0 {
		return errors.New("SECRET_STORE_SCRYPT_N must be a power of two greater than 1")
	}
	if c.DefaultChainID == 0 {
		return errors.New("DEFAULT_CHAIN_ID must be positive")
	}
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// PromptForPassphrase prompts for the secret store passphrase in the
// terminal without echoing it. The caller must clear the returned slice.
func PromptForPassphrase(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter the passphrase")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	clear(raw)
	return out, nil
}
