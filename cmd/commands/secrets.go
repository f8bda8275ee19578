package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/lazytasks/internal/config"
	"github.com/dohr-michael/lazytasks/internal/secrets"
)

var envKeyRe = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// NewSecretsCommand returns the secrets subcommand.
func NewSecretsCommand() *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Manage encrypted secrets",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the age key used to encrypt secrets",
				Action: runSecretsInit,
			},
			{
				Name:      "set",
				Usage:     "Encrypt a value and store it in .env (reference it as ${{ .Env.KEY }})",
				ArgsUsage: "<KEY>",
				Action:    runSecretsSet,
			},
		},
	}
}

func runSecretsInit(_ context.Context, _ *cli.Command) error {
	keyPath := secrets.KeyPath()
	recipient, err := secrets.EnsureKey(keyPath)
	if err != nil {
		return err
	}
	fmt.Printf("Key:        %s\n", keyPath)
	fmt.Printf("Public key: %s\n", recipient.String())
	return nil
}

func runSecretsSet(_ context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if !envKeyRe.MatchString(key) {
		return fmt.Errorf("usage: lazytasks secrets set <KEY> (uppercase letters, digits, underscores)")
	}

	value, err := readSecret(fmt.Sprintf("Value for %s: ", key))
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("empty value, nothing stored")
	}

	recipient, err := secrets.EnsureKey(secrets.KeyPath())
	if err != nil {
		return err
	}
	blob, err := secrets.Encrypt(value, recipient)
	if err != nil {
		return err
	}

	dotenvPath := config.DotenvPath()
	if err := secrets.SetEntry(dotenvPath, key, blob); err != nil {
		return err
	}
	fmt.Printf("Stored encrypted %s in %s\n", key, dotenvPath)
	return nil
}

// readSecret reads one line without echo when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
