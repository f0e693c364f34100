// Package registry stores device object archives in OCI registries.
//
// An archive is pushed as a single layer of an OCI 1.1 artifact manifest.
// Push and Pull work against any oras.Target, so the same code serves a
// remote repository, an OCI layout directory, or an in-memory store.
// Client adds registry authentication and OpenRemote, which reads the layer
// lazily with HTTP range requests instead of downloading it.
package registry
