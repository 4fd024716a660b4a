package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lodstream/blobstore"
)

// TestStore_Integration requires a running MinIO instance at
// LODSTREAM_MINIO_ENDPOINT (default localhost:9000).
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("LODSTREAM_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	store, err := Dial(endpoint, "minioadmin", "minioadmin", "lodstream-test", "it/", false)
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	if _, err := store.client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := store.client.BucketExists(ctx, store.bucket)
	require.NoError(t, err)

	if !exists {
		require.NoError(t, store.client.MakeBucket(ctx, store.bucket, minio.MakeBucketOptions{}))
	}

	// 1. Put and range read
	require.NoError(t, store.Put(ctx, "m.lod", []byte("0123456789")))

	b, err := store.Open(ctx, "m.lod")
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(buf))

	n, err = b.ReadAt(ctx, buf, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)

	// 2. List and delete
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "m.lod")

	require.NoError(t, store.Delete(ctx, "m.lod"))

	_, err = store.Open(ctx, "m.lod")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
