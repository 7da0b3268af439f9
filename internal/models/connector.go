package models

import (
	"errors"
	"fmt"
)

// Configuration-class failures: surfaced to callers as errors before any
// network call is attempted, unlike data-shape problems which degrade.
var (
	ErrMissingConnector  = errors.New("no connector provided")
	ErrMissingCredential = errors.New("missing required credential")
)

// KeyType names one credential field of a connector.
type KeyType string

const (
	KeyAPIKey     KeyType = "api_key"
	KeyAppKey     KeyType = "app_key"
	KeyAccountID  KeyType = "account_id"
	KeyAPIDomain  KeyType = "api_domain"
	KeyHost       KeyType = "host"
	KeyPort       KeyType = "port"
	KeyUser       KeyType = "user"
	KeyPassword   KeyType = "password"
	KeyDatabase   KeyType = "database"
	KeyInterface  KeyType = "interface"
	KeyProjectID  KeyType = "project_id"
	KeyRegion     KeyType = "region"
	KeySSHKey     KeyType = "ssh_private_key"
	KeyKubeconfig KeyType = "kubeconfig"
)

type ConnectorKey struct {
	Type  KeyType `json:"key_type" yaml:"key_type"`
	Value string  `json:"value" yaml:"value"`
}

// Connector is a stored credential set plus type tag. It is immutable for
// the duration of a task execution and owned by the caller.
type Connector struct {
	ID   string         `json:"id" yaml:"id"`
	Name string         `json:"name" yaml:"name"`
	Type Source         `json:"type" yaml:"type"`
	Keys []ConnectorKey `json:"keys" yaml:"keys"`
}

// Credentials converts the ordered key list into the plain string-keyed map
// the vendor clients expect. Later duplicates win.
func (c *Connector) Credentials() map[string]string {
	creds := make(map[string]string, len(c.Keys))
	for _, k := range c.Keys {
		creds[string(k.Type)] = k.Value
	}
	return creds
}

// RequireCredentials returns the credential map after checking every listed
// key is present and non-empty. A missing key is a configuration error.
func (c *Connector) RequireCredentials(required ...KeyType) (map[string]string, error) {
	creds := c.Credentials()
	for _, k := range required {
		if creds[string(k)] == "" {
			return nil, fmt.Errorf("connector %q: %w: %s", c.Name, ErrMissingCredential, k)
		}
	}
	return creds, nil
}

// Credential returns a single optional credential value, empty if absent.
func (c *Connector) Credential(key KeyType) string {
	for _, k := range c.Keys {
		if k.Type == key {
			return k.Value
		}
	}
	return ""
}
