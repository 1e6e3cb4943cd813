// rekey re-encrypts a keystore file under a new password offline. The
// account address and record id are kept; the KDF becomes PBKDF2.
// Usage: go run ./cmd/rekey --in UTC--...--<address> [--out new.json]
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/AlexZinkM/local-keystore/internal/config"
	"github.com/AlexZinkM/local-keystore/internal/crypto"

	"github.com/jessevdk/go-flags"
)

var opts = struct {
	In         string `long:"in" short:"i" required:"true" description:"Keystore file to re-encrypt"`
	Out        string `long:"out" short:"o" description:"Output file, stdout when empty"`
	Iterations int    `long:"iterations" description:"PBKDF2 iteration count of the new record"`
}{
	Iterations: crypto.DefaultIterations,
}

func init() {
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
}

func main() {
	os.Exit(mainInt())
}

func mainInt() int {
	data, err := os.ReadFile(opts.In)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	file, err := crypto.Unmarshal(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	password, err := config.PromptForPassphrase("Current password: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer clear(password)

	newPassword, err := config.PromptForPassphrase("New password: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer clear(newPassword)

	confirm, err := config.PromptForPassphrase("Confirm new password: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	match := bytes.Equal(newPassword, confirm)
	clear(confirm)
	if !match {
		fmt.Fprintln(os.Stderr, "passwords do not match")
		return 1
	}

	rekeyed, err := crypto.NewCodec(opts.Iterations).Reencrypt(file, password, newPassword)
	if err != nil {
		fmt.Fprintln(os.Stderr, "re-encrypt failed:", err)
		return 1
	}
	out, err := crypto.Marshal(rekeyed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if opts.Out == "" {
		fmt.Println(string(out))
		return 0
	}
	if err := os.WriteFile(opts.Out, out, 0600); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Fprintln(os.Stderr, "Wrote", opts.Out)
	return 0
}
