package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/yakrover/agent-registry/interfaces"
)

// IPFSStore stores capability documents on an IPFS node.
type IPFSStore struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSStore creates a content store connected to the IPFS API at the
// specified host and port.
func NewIPFSStore(host, port string, log *slog.Logger) (*IPFSStore, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSStore{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s", apiURL),
	}, nil
}

// Put adds document bytes to IPFS and returns their content address.
// Documents are added as raw CIDv1 blocks so the daemon's CID matches the
// address computed from the bytes; re-adding identical bytes returns the
// same address.
func (s *IPFSStore) Put(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	want := interfaces.ComputeContentAddress(data)

	if !s.shell.IsUp() {
		return "", fmt.Errorf("%w: ipfs node %s:%s not reachable", interfaces.ErrStoreUnavailable, s.host, s.port)
	}

	cidStr, err := s.shell.Add(bytes.NewReader(data),
		shell.CidVersion(1),
		shell.RawLeaves(true),
		shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("failed to add document to IPFS: %w", err)
	}

	addr := interfaces.ContentAddress(cidStr)
	if addr != want {
		// Documents above the chunk size get a dag-pb root CID instead of
		// the raw block CID. The daemon's CID stays authoritative.
		s.log.Warn("IPFS CID differs from computed raw address",
			slog.String("ipfs_cid", cidStr),
			slog.String("computed", want.String()),
			slog.Int("size", len(data)))
	}

	s.log.Debug("stored document in IPFS",
		slog.String("address", addr.String()),
		slog.Int("size", len(data)))
	return addr, nil
}

// Get fetches document bytes by content address. Returns ErrNotFound if the
// address is unknown to the node and its peers.
func (s *IPFSStore) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	if !s.shell.IsUp() {
		return nil, fmt.Errorf("%w: ipfs node %s:%s not reachable", interfaces.ErrStoreUnavailable, s.host, s.port)
	}

	reader, err := s.shell.Cat("/ipfs/" + addr.String())
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no link named") {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, addr)
		}
		return nil, fmt.Errorf("failed to fetch document from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read document from IPFS: %w", err)
	}
	return data, nil
}

// Available checks whether the IPFS node is reachable.
func (s *IPFSStore) Available(ctx context.Context) bool {
	return s.shell.IsUp()
}

// Name returns a unique identifier for this backend.
func (s *IPFSStore) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", s.host, s.port)
}

// LocationURI returns the URI this backend was constructed from.
func (s *IPFSStore) LocationURI() string {
	return s.locationURI
}
