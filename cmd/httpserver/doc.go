// Package main (cmd/httpserver) implements the discovery server for the
// agent registry.
//
// The discovery server provides HTTP endpoints for capability-based entity
// lookup. Queries are accelerated by an optional secondary index, but every
// candidate is re-checked against the on-chain registry before it is
// returned, and capability documents are fetched from content-addressed
// storage. Without a configured index, queries fall back to direct ledger
// scans.
//
// Configuration is handled through command-line flags, with separate
// settings for ledger connectivity, content store backends, the index,
// HTTP endpoints, logging, and performance tuning.
//
// The server implements graceful shutdown on receiving termination signals
// (SIGINT/SIGTERM) and supports health checks, metrics collection, and
// optional profiling endpoints.
//
// Example usage:
//
//	discovery-server --rpc-addr=http://localhost:8545 \
//	    --registry-addr=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	    --chain-id=31337 \
//	    --listen-addr=0.0.0.0:8080 \
//	    --store-uri=ipfs://127.0.0.1:5001 \
//	    --index-url=http://localhost:8000
package main
