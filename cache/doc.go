// Package cache keeps fixed-size blocks of remote archives on local disk.
//
// A BlockCache wraps a devarchive.ByteSource so that repeated opens of the
// same remote archive, and repeated reads of the same header or shader
// table, are served from disk instead of the network. Blocks are keyed by
// the source ID, which for HTTP and registry sources includes the ETag or
// digest, so a changed archive never hits stale blocks.
package cache
