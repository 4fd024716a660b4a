// Package testutil builds synthetic point cloud datasets for tests and
// benchmarks.
//
// Every payload byte is a function of (seed, node, offset), so a test can
// check that a slot holds exactly the node it claims to hold:
//
//	tree := testutil.NewTree(2, 4, 1024, 32)
//	testutil.PutDataset(t, store, "campus.bvh", tree, 7)
//	require.True(t, testutil.IsNodePayload(slot, 7, node))
//
// # Random Cuts
//
//	rng := testutil.NewRNG(seed)
//	prio := rng.Zipf(100, 1.2) // skewed priorities
package testutil
