// Package main (cmd/registrar) implements the owner-side CLI of the agent
// registry.
//
// The registrar publishes capability documents to content-addressed
// storage, mints entities on the on-chain registry, and commits their
// attributes. All ledger writes for the owner account go through the
// account sequencer, so concurrent registrar invocations against the same
// key are not supported.
//
// A registration can be persisted to a file with --registration-file; an
// interrupted or failed run invoked again with the same file resumes at the
// failed step instead of minting a second entity.
//
// Example usage:
//
//	registrar --registry-addr=0x5FbDB...aa3 --chain-id=31337 \
//	    --private-key=$KEY --store-uri=ipfs://127.0.0.1:5001 \
//	    register --document=./agent.json \
//	    --attribute=category=translation --attribute=tier=pro \
//	    --registration-file=./agent.reg.json
package main
