package secrets

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"filippo.io/age"

	"github.com/dohr-michael/lazytasks/internal/config"
)

// DecryptConfig replaces every ENC[age:...] value in cfg with its plaintext.
// The key file is only read when at least one value is encrypted.
func DecryptConfig(cfg *config.Config, keyPath string) error {
	if !hasEncrypted(cfg) {
		return nil
	}

	identity, err := LoadIdentity(keyPath)
	if err != nil {
		return err
	}

	var errs []error
	decrypt := func(name string, v *string) {
		if !IsEncrypted(*v) {
			return
		}
		plain, err := Decrypt(*v, identity)
		if err != nil {
			errs = append(errs, fmt.Errorf("decrypt %s: %w", name, err))
			return
		}
		*v = plain
	}

	decrypt("telegram.bot_token", &cfg.Telegram.BotToken)
	decrypt("telegram.webhook_secret", &cfg.Telegram.WebhookSecret)

	for _, name := range providerNames(cfg) {
		p := cfg.Models.Providers[name]
		decrypt("models.providers."+name+".auth.api_key", &p.Auth.APIKey)
		decrypt("models.providers."+name+".auth.token", &p.Auth.Token)
		cfg.Models.Providers[name] = p
	}

	return errors.Join(errs...)
}

// Loader returns a config transform suitable for config.Reloader.SetTransform.
func Loader(keyPath string) func(*config.Config) error {
	return func(cfg *config.Config) error {
		return DecryptConfig(cfg, keyPath)
	}
}

func hasEncrypted(cfg *config.Config) bool {
	if IsEncrypted(cfg.Telegram.BotToken) || IsEncrypted(cfg.Telegram.WebhookSecret) {
		return true
	}
	for _, p := range cfg.Models.Providers {
		if IsEncrypted(p.Auth.APIKey) || IsEncrypted(p.Auth.Token) {
			return true
		}
	}
	return false
}

func providerNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Models.Providers))
	for name := range cfg.Models.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnsureKey generates the key file if it is missing and returns its recipient.
func EnsureKey(path string) (*age.X25519Recipient, error) {
	if err := GenerateIdentity(path); err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("age key %s is readable by others (mode %o)", path, info.Mode().Perm())
	}
	id, err := LoadIdentity(path)
	if err != nil {
		return nil, err
	}
	return id.Recipient(), nil
}
