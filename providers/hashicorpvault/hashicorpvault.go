// Package hashicorpvault guards the master-secret layer with HashiCorp
// Vault's transit engine instead of the local passphrase KDF: the root of
// the hierarchy becomes a transit key that never leaves Vault.
package hashicorpvault

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
)

// VaultGuard implements keyring.MasterGuard over a Vault transit key.
type VaultGuard struct {
	client  *api.Client
	keyName string
}

// New creates a VaultGuard for the named transit key. Address, namespace and
// AppRole credentials come from the VAULT_ADDR, VAULT_NAMESPACE,
// VAULT_ROLE_ID and VAULT_SECRET_ID environment variables.
func New(keyName string) (*VaultGuard, error) {
	if keyName == "" {
		return nil, fmt.Errorf("transit key name is required")
	}

	config := api.DefaultConfig()
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		config.Address = addr
	}
	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
		client.SetNamespace(namespace)
	}

	// AppRole authentication
	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID != "" && secretID != "" {
		resp, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to login with AppRole: %w", err)
		}
		if resp.Auth == nil {
			return nil, fmt.Errorf("no auth info returned from AppRole login")
		}
		client.SetToken(resp.Auth.ClientToken)
	}

	return &VaultGuard{client: client, keyName: keyName}, nil
}

// EnsureKey creates the transit key if it does not exist yet.
func (v *VaultGuard) EnsureKey(ctx context.Context) error {
	_, err := v.client.Logical().Write(fmt.Sprintf("transit/keys/%s", v.keyName), map[string]interface{}{
		"type": "aes256-gcm96",
	})
	if err != nil {
		return fmt.Errorf("failed to create transit key '%s': %w", v.keyName, err)
	}
	return nil
}

// WrapMaster encrypts the master secret with the transit key.
func (v *VaultGuard) WrapMaster(ctx context.Context, plaintext []byte) ([]byte, error) {
	resp, err := v.client.Logical().Write(fmt.Sprintf("transit/encrypt/%s", v.keyName), map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt with key '%s': %w", v.keyName, err)
	}
	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("ciphertext not found in response")
	}
	return []byte(ciphertext), nil
}

// UnwrapMaster decrypts a master secret wrapped by WrapMaster.
func (v *VaultGuard) UnwrapMaster(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := v.client.Logical().Write(fmt.Sprintf("transit/decrypt/%s", v.keyName), map[string]any{
		"ciphertext": string(ciphertext),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt with key '%s': %w", v.keyName, err)
	}
	plaintextBase64, ok := resp.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("plaintext not found in response")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}
