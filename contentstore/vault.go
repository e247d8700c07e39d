package contentstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/yakrover/agent-registry/interfaces"
)

// VaultStore stores capability documents in a HashiCorp Vault KV v2 mount.
// Useful for fleets whose documents must stay inside a private boundary
// while still being content-addressed.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultStore creates a Vault-backed content store using token
// authentication.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount (e.g. "secret")
//   - dataPath: path within the mount (e.g. "capability-documents")
//   - token: Vault token with read/write access to the path
func NewVaultStore(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Put writes document bytes under their content address. Vault versions
// overwrites, but identical bytes always land at the same path with the
// same content.
func (s *VaultStore) Put(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	addr := interfaces.ComputeContentAddress(data)

	_, err := s.client.Logical().WriteWithContext(ctx, s.secretPath(addr), map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to store document in Vault: %w", err)
	}

	s.log.Debug("stored document in Vault",
		slog.String("address", addr.String()),
		slog.Int("size", len(data)))
	return addr, nil
}

// Get reads document bytes by content address.
func (s *VaultStore) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.secretPath(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, addr)
	}

	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, addr)
	}
	encoded, ok := inner["content"].(string)
	if !ok {
		return nil, fmt.Errorf("malformed Vault document at %s: missing content field", addr)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed Vault document at %s: %w", addr, err)
	}
	return data, nil
}

// Available checks whether the Vault server responds to health checks.
func (s *VaultStore) Available(ctx context.Context) bool {
	health, err := s.client.Sys().HealthWithContext(ctx)
	return err == nil && health != nil
}

// Name returns a unique identifier for this backend.
func (s *VaultStore) Name() string {
	return fmt.Sprintf("vault-%s-%s", s.mountPath, s.dataPath)
}

// LocationURI returns the URI this backend was constructed from.
func (s *VaultStore) LocationURI() string {
	return s.locationURI
}

func (s *VaultStore) secretPath(addr interfaces.ContentAddress) string {
	return fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, addr)
}
