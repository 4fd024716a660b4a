// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: An open file with positioned reads, writes and sync
//   - [FileSystem]: Open, stat, list, rename and remove
//
// # Implementations
//
//   - [LocalFS]: Production implementation using the os package
//   - [FaultyFS]: Test utility that injects read latency and I/O errors
//
// Stream workers issue one positioned read per node. Tests wrap the local
// filesystem to make those reads slow or failing:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".lod", fs.Fault{ReadDelay: 20 * time.Millisecond})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// Operations take no context.Context. Local reads are short and not
// interruptible at the syscall level; remote storage goes through
// blobstore, which is context aware.
package fs
