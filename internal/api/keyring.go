package api

import (
	"crypto/subtle"
	"errors"
	"strings"

	"beautycity/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permReadSlots         = "read:slots"
	permReadCatalog       = "read:catalog"
	permWriteAppointments = "write:appointments"
	permExport            = "export"
)

var (
	errPermissionDenied = errors.New("permission denied")
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
)

// keyring holds the configured service clients (site widget, call-center, payment
// webhook relay) and checks their key pairs. Shared by HTTP and gRPC.
type keyring struct {
	apiKeyHeader string
	extraHeader  string
	clients      map[string]config.APIClientKey
}

func newKeyring(cfg *config.APIConfig) *keyring {
	clients := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		clients[k.Key] = k
	}
	return &keyring{
		apiKeyHeader: headerName(cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader:  headerName(cfg.Auth.HeaderExtra, apiExtraHeaderDefault),
		clients:      clients,
	}
}

func headerName(configured, def string) string {
	h := strings.ToLower(strings.TrimSpace(configured))
	if h == "" {
		return def
	}
	return h
}

// verify checks the key pair and that the client holds the required permission.
func (k *keyring) verify(apiKey, extra, required string) error {
	apiKey, extra = strings.TrimSpace(apiKey), strings.TrimSpace(extra)
	if apiKey == "" || extra == "" {
		return errMissingKey
	}

	client, ok := k.clients[apiKey]
	if !ok {
		return errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}
	if !hasPermission(client, required) {
		return errPermissionDenied
	}
	return nil
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}
