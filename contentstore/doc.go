// Package contentstore implements interfaces.ContentStore over IPFS, S3,
// HashiCorp Vault, and the local filesystem, with a multi-backend fallback
// composite and a bounded-retry decorator.
//
// Every backend addresses documents by the same deterministic CIDv1
// (raw codec, sha2-256) of the document bytes, so a document published
// through one backend resolves at the same address on any other.
package contentstore
