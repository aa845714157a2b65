// internal/wallet/registry.go
package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// Registry maps chat user IDs to their wallet public keys. Private keys
// never enter this process; signing happens in the external signer service.
type Registry struct {
	wallets map[string]solana.PublicKey
}

type registryFile struct {
	Wallets []struct {
		UserID    string `yaml:"user_id"`
		PublicKey string `yaml:"public_key"`
	} `yaml:"wallets"`
}

// Load reads the user to wallet mapping from a YAML file.
func Load(path string) (*Registry, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Wallets) == 0 {
		return nil, fmt.Errorf("no wallets found in configuration")
	}

	wallets := make(map[string]solana.PublicKey, len(file.Wallets))
	for _, entry := range file.Wallets {
		if entry.UserID == "" || entry.PublicKey == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(entry.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid public key for user %s: %w", entry.UserID, err)
		}
		wallets[entry.UserID] = key
	}

	if len(wallets) == 0 {
		return nil, fmt.Errorf("no valid wallets loaded")
	}
	return &Registry{wallets: wallets}, nil
}

// NewRegistry builds a registry from an in-memory mapping.
func NewRegistry(wallets map[string]solana.PublicKey) *Registry {
	copied := make(map[string]solana.PublicKey, len(wallets))
	for userID, key := range wallets {
		copied[userID] = key
	}
	return &Registry{wallets: copied}
}

// Lookup returns the wallet public key for a user.
func (r *Registry) Lookup(userID string) (solana.PublicKey, bool) {
	key, ok := r.wallets[userID]
	return key, ok
}

// Len returns the number of registered wallets.
func (r *Registry) Len() int { return len(r.wallets) }
