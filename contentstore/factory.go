package contentstore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/yakrover/agent-registry/interfaces"
)

// StoreFactory creates content stores from URI strings and assembles
// multi-backend configurations.
type StoreFactory struct {
	log *slog.Logger
}

// NewStoreFactory creates a factory that builds content store backends.
func NewStoreFactory(log *slog.Logger) *StoreFactory {
	return &StoreFactory{log: log}
}

// StoreFor creates a content store from a location URI.
//
// Supported schemes:
//   - ipfs://host:port
//   - file:///base/dir
//   - s3://bucket/prefix?region=...&endpoint=...&access_key=...&secret_key=...
//   - vault://host:port/mount/path?token=...&tls=true
func (f *StoreFactory) StoreFor(locationURI string) (interfaces.ContentStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid location URI %q: %w", locationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ipfs":
		host := u.Hostname()
		port := u.Port()
		if port == "" {
			port = "5001"
		}
		return NewIPFSStore(host, port, f.log)

	case "file":
		return NewFileStore(u.Path, f.log)

	case "s3":
		q := u.Query()
		region := q.Get("region")
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(
			u.Host,
			strings.TrimPrefix(u.Path, "/"),
			region,
			q.Get("endpoint"),
			q.Get("access_key"),
			q.Get("secret_key"),
			f.log,
		)

	case "vault":
		q := u.Query()
		scheme := "http"
		if q.Get("tls") == "true" {
			scheme = "https"
		}
		mount, data, ok := strings.Cut(strings.Trim(u.Path, "/"), "/")
		if !ok {
			return nil, fmt.Errorf("invalid vault URI %q: path must be <mount>/<data-path>", locationURI)
		}
		return NewVaultStore(fmt.Sprintf("%s://%s", scheme, u.Host), mount, data, q.Get("token"), f.log)

	default:
		return nil, fmt.Errorf("unsupported content store scheme: %s", u.Scheme)
	}
}

// CreateMultiStore assembles a multi-backend store from a list of location
// URIs, skipping URIs that fail to construct. At least one backend must be
// valid.
func (f *StoreFactory) CreateMultiStore(locationURIs []string) (interfaces.ContentStore, error) {
	backends := make([]interfaces.ContentStore, 0, len(locationURIs))
	for _, uri := range locationURIs {
		backend, err := f.StoreFor(uri)
		if err != nil {
			f.log.Warn("failed to create content store backend",
				slog.String("location_uri", uri),
				"err", err)
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid content store backends in %v", locationURIs)
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiStore(backends, f.log), nil
}
