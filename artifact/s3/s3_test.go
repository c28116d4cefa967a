package s3

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/artifact"
)

// fakeBucket is an in-memory stand-in for a single S3 bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	// pageSize forces pagination when > 0.
	pageSize int
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func (f *fakeBucket) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if f.pageSize > 0 && len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func newTestStore(t *testing.T, bucket *fakeBucket) *Store {
	t.Helper()
	store, err := New(context.Background(), "artifacts", func(o *Options) {
		o.Prefix = "/flowmesh/"
		o.Client = bucket
	})
	require.NoError(t, err)
	return store
}

func TestStore_SaveLoadVersions(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	store := newTestStore(t, bucket)

	v1, err := store.Save(ctx, "s1", "report.md", []byte("draft"))
	require.NoError(t, err)
	v2, err := store.Save(ctx, "s1", "report.md", []byte("final"))
	require.NoError(t, err)
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)

	assert.Contains(t, bucket.objects, "flowmesh/s1/report.md/0000000002")

	latest, err := store.Load(ctx, "s1", "report.md")
	require.NoError(t, err)
	assert.Equal(t, "final", string(latest))

	first, err := store.LoadVersion(ctx, "s1", "report.md", 1)
	require.NoError(t, err)
	assert.Equal(t, "draft", string(first))

	_, err = store.LoadVersion(ctx, "s1", "report.md", 7)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	_, err = store.Load(ctx, "s1", "missing")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestStore_ListAndDeletePaginated(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	bucket.pageSize = 2
	store := newTestStore(t, bucket)

	for _, name := range []string{"b.txt", "a.txt", "b.txt", "c/d.txt"} {
		_, err := store.Save(ctx, "s1", name, []byte(name))
		require.NoError(t, err)
	}
	_, err := store.Save(ctx, "s2", "other.txt", []byte("x"))
	require.NoError(t, err)

	names, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c/d.txt"}, names)

	require.NoError(t, store.Delete(ctx, "s1", "b.txt"))
	names, err = store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "c/d.txt"}, names)

	assert.ErrorIs(t, store.Delete(ctx, "s1", "b.txt"), artifact.ErrNotFound)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), " ", func(o *Options) { o.Client = newFakeBucket() })
	assert.ErrorContains(t, err, "bucket is required")
}
