// Package lodstream streams level-of-detail point cloud nodes from storage
// into a fixed pool of memory slots.
//
// Every model is a tree file (.bvh) plus a payload file (.lod) holding the
// surfels of each node back to back. All models of a session share one node
// size, which is the size of every slot. A renderer decides each frame
// which nodes it wants and how much; lodstream keeps the most important of
// them resident within a memory budget.
//
// # Quick Start
//
//	ctx := context.Background()
//	s, err := lodstream.Open(ctx,
//	    lodstream.WithStore(blobstore.NewLocalStore("/data/scans")),
//	    lodstream.WithModels(registry.Entry{Path: "bunny.bvh"}),
//	    lodstream.WithMemoryRatio(0.25),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
// # Frame Loop
//
// One goroutine drives the session. Each frame it closes the previous one
// and then requests the current cut:
//
//	for frame := range frames {
//	    s.Reconcile()                        // commit loads, cancel stale ones
//	    for _, n := range cut(frame) {
//	        st, _ := s.Request(id, n.Node, n.Priority)
//	        if st == lodstream.StatusResident {
//	            draw(s.Slot(id, n.Node))
//	        }
//	    }
//	}
//
// Loads run on background workers. A finished load becomes visible on the
// next Reconcile; loads no worker has started by then are cancelled, so a
// node that is still wanted must be requested again. When the pool is full
// a request evicts the least important resident node ranking strictly
// below it, or is rejected.
//
// # Storage
//
// Trees and payloads are read through a blobstore.BlobStore: local files
// (pread or mmap), S3, MinIO or memory. Remote stores can sit behind a RAM
// and disk block cache. OpenConfig builds all of this from a config.Config
// or a renderer .vis file.
package lodstream
