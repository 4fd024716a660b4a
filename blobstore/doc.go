// Package blobstore abstracts where point cloud trees (.bvh) and payloads
// (.lod) live.
//
// Stream workers only need positioned reads of a fixed slot size, so a Blob
// is a context-aware ReaderAt with a known size. Stores must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, pread by default or read-only mmap
//   - MemoryStore: in-memory blobs for tests and generated datasets
//   - CachingStore: block cache (RAM and optional disk) in front of any store
//   - s3.Store and minio.Store: range reads against object storage
package blobstore
