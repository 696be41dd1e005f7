package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// vaultReader is the part of the Vault logical API the resolver reads through.
type vaultReader interface {
	ReadWithContext(ctx context.Context, path string) (*api.Secret, error)
}

// newVaultReader builds a reader from VAULT_ADDR and VAULT_TOKEN.
var newVaultReader = func() (vaultReader, error) {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		return nil, fmt.Errorf("VAULT_ADDR environment variable not set")
	}
	token := os.Getenv("VAULT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN environment variable not set")
	}

	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Vault client: %w", err)
	}
	client.SetToken(token)
	return client.Logical(), nil
}

// resolveVault reads a path#key reference, e.g.
// secret/data/wshealth#metadata_url. KV v1 and v2 mounts are both read.
func resolveVault(ctx context.Context, ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" {
		return "", fmt.Errorf("invalid Vault reference %q: expected path#key", ref)
	}

	reader, err := newVaultReader()
	if err != nil {
		return "", err
	}

	secret, err := reader.ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("reading Vault secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret found at %s", path)
	}

	data := secret.Data
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}

	switch v := data[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("key %q not found at %s", key, path)
	default:
		return "", fmt.Errorf("key %q at %s is a %T, want a string", key, path, v)
	}
}
