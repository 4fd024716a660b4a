package s3

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lodstream/blobstore"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)

	return out, args.Error(1)
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)

	return out, args.Error(1)
}

func (m *mockClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)

	return out, args.Error(1)
}

func (m *mockClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)

	return out, args.Error(1)
}

func (m *mockClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)

	return out, args.Error(1)
}

func (m *mockClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.UploadPartOutput)

	return out, args.Error(1)
}

func (m *mockClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)

	return out, args.Error(1)
}

func (m *mockClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)

	return out, args.Error(1)
}

func (m *mockClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.AbortMultipartUploadOutput)

	return out, args.Error(1)
}

func keyIs(key string) any {
	return mock.MatchedBy(func(in any) bool {
		switch v := in.(type) {
		case *s3.HeadObjectInput:
			return aws.ToString(v.Key) == key
		case *s3.GetObjectInput:
			return aws.ToString(v.Key) == key
		case *s3.DeleteObjectInput:
			return aws.ToString(v.Key) == key
		case *s3.PutObjectInput:
			return aws.ToString(v.Key) == key
		}

		return false
	})
}

func TestStore_Open(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "scans", "campus")
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, keyIs("campus/missing.bvh")).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(ctx, "missing.bvh")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("RangeRead", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, keyIs("campus/a.lod")).
			Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(100)}, nil).Once()
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.Range) == "bytes=96-99"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("tail")))}, nil).Once()

		b, err := store.Open(ctx, "a.lod")
		require.NoError(t, err)
		assert.Equal(t, int64(100), b.Size())

		buf := make([]byte, 8)
		n, err := b.ReadAt(ctx, buf, 96)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 4, n)
		assert.Equal(t, "tail", string(buf[:n]))

		_, err = b.ReadAt(ctx, buf, 100)
		assert.ErrorIs(t, err, io.EOF)
	})

	client.AssertExpectations(t)
}

func TestStore_PutDeleteList(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "scans", "campus/")
	ctx := context.Background()

	client.On("PutObject", mock.Anything, keyIs("campus/a.bvh")).Return(&s3.PutObjectOutput{}, nil).Once()
	require.NoError(t, store.Put(ctx, "a.bvh", []byte("tree")))

	client.On("DeleteObject", mock.Anything, keyIs("campus/a.bvh")).Return(&s3.DeleteObjectOutput{}, nil).Once()
	require.NoError(t, store.Delete(ctx, "a.bvh"))

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "campus"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{{Key: aws.String("campus/b.lod")}, {Key: aws.String("campus/a.bvh")}},
	}, nil).Once()

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.bvh", "b.lod"}, names)

	client.AssertExpectations(t)
}
