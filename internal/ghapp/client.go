package ghapp

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v60/github"
)

// ClientFactory creates GitHub API clients authenticated as a GitHub App
// installation. Webhook events carry their own installation ids, so clients
// are minted per event rather than once at startup. ghinstallation handles
// JWT signing and installation token exchange/refresh.
type ClientFactory struct {
	appID      int64
	privateKey []byte
	baseURL    string
	transport  http.RoundTripper
}

// Option configures a ClientFactory.
type Option func(*ClientFactory)

// WithBaseURL points the factory at a non-default API endpoint. Used for
// GitHub Enterprise and for tests running against httptest servers.
func WithBaseURL(url string) Option {
	return func(f *ClientFactory) { f.baseURL = url }
}

// WithTransport overrides the underlying HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *ClientFactory) { f.transport = rt }
}

// NewClientFactory creates a factory for the given GitHub App.
//
// privateKey can be either:
//   - Raw PEM bytes (begins with "-----BEGIN")
//   - Base64-encoded PEM bytes
//
// If privateKey is nil or empty and privateKeyPath is provided, the key is
// read from that file path.
func NewClientFactory(appID int64, privateKey []byte, privateKeyPath string, opts ...Option) (*ClientFactory, error) {
	key, err := resolvePrivateKey(privateKey, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("resolving private key: %w", err)
	}

	f := &ClientFactory{
		appID:      appID,
		privateKey: key,
		transport:  http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// InstallationClient returns a GitHub client scoped to one installation.
func (f *ClientFactory) InstallationClient(installationID int64) (*gogithub.Client, error) {
	transport, err := ghinstallation.New(f.transport, f.appID, installationID, f.privateKey)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}
	if f.baseURL != "" {
		transport.BaseURL = strings.TrimRight(f.baseURL, "/")
	}

	client := gogithub.NewClient(&http.Client{Transport: transport})
	if f.baseURL != "" {
		client, err = client.WithEnterpriseURLs(f.baseURL, f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("setting API base URL: %w", err)
		}
	}
	return client, nil
}

// resolvePrivateKey returns PEM-encoded private key bytes from either the
// provided raw/base64-encoded key or by reading from a file path.
func resolvePrivateKey(key []byte, keyPath string) ([]byte, error) {
	if len(key) > 0 {
		s := strings.TrimSpace(string(key))
		if strings.HasPrefix(s, "-----BEGIN") {
			return []byte(s), nil
		}
		// Try base64 decode
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			// Try URL-safe base64
			decoded, err = base64.URLEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("private key is neither PEM nor valid base64: %w", err)
			}
		}
		return decoded, nil
	}

	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key file %s: %w", keyPath, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("no private key provided: set private_key or private_key_path")
}
