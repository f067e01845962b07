package transfer

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/google/go-containerregistry/pkg/authn"
)

const (
	authFilePerms    = 0o600
	credentialsParts = 2
)

// authFile is the containers-auth.json / docker config.json layout.
type authFile struct {
	Auths map[string]dockerregistry.AuthConfig `json:"auths"`
}

func readAuthFile(path string) (*authFile, error) {
	f := &authFile{Auths: map[string]dockerregistry.AuthConfig{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read auth file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return f, nil
	}

	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse auth file %s: %w", path, err)
	}
	if f.Auths == nil {
		f.Auths = map[string]dockerregistry.AuthConfig{}
	}
	return f, nil
}

// storeCredentials adds or replaces the entry for host, keeping other entries.
func storeCredentials(path, host, username, password string) error {
	f, err := readAuthFile(path)
	if err != nil {
		return err
	}

	f.Auths[host] = dockerregistry.AuthConfig{
		Auth: base64.StdEncoding.EncodeToString([]byte(username + ":" + password)),
	}

	data, err := json.MarshalIndent(f, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to encode auth file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create auth file directory: %w", err)
	}
	return os.WriteFile(path, data, authFilePerms)
}

// credentials returns the username and password stored for host, trying the
// https:// form used by older docker clients.
func (f *authFile) credentials(host string) (string, string, bool) {
	entry, ok := f.Auths[host]
	if !ok {
		entry, ok = f.Auths["https://"+host]
	}
	if !ok {
		return "", "", false
	}

	if entry.Username != "" {
		return entry.Username, entry.Password, true
	}

	decoded, err := base64.StdEncoding.DecodeString(entry.Auth)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", credentialsParts)
	if len(parts) != credentialsParts {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// fileKeychain resolves credentials only from the explicit auth-file, never
// from ambient docker configuration or credential helpers.
type fileKeychain struct {
	path string
}

func (k fileKeychain) Resolve(res authn.Resource) (authn.Authenticator, error) {
	f, err := readAuthFile(k.path)
	if err != nil {
		return nil, err
	}

	username, password, ok := f.credentials(res.RegistryStr())
	if !ok {
		return authn.Anonymous, nil
	}
	return authn.FromConfig(authn.AuthConfig{Username: username, Password: password}), nil
}
