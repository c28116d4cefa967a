// Package s3 stores artifacts in an S3-compatible bucket.
//
// Each version is its own object keyed
// "<prefix>/<session>/<name>/<version>" with a zero-padded version so that
// lexical listing order is version order.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hupe1980/flowmesh/artifact"
	"github.com/hupe1980/flowmesh/core"
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Options configures a Store.
type Options struct {
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// Client replaces the client built from the options above.
	Client API
}

// Store implements core.ArtifactStore on top of S3.
type Store struct {
	client API
	bucket string
	prefix string
}

var _ core.ArtifactStore = (*Store)(nil)

const versionWidth = 10

// New creates a store for bucket. Credentials come from the default AWS
// chain unless a static key pair is configured.
func New(ctx context.Context, bucket string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Region: "us-east-1"}
	for _, fn := range optFns {
		fn(&opts)
	}

	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	client := opts.Client
	if client == nil {
		loadOptions := []func(*config.LoadOptions) error{
			config.WithRegion(opts.Region),
		}
		if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
			loadOptions = append(loadOptions, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
			))
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		endpoint := strings.TrimSpace(opts.Endpoint)
		client = awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
			o.UsePathStyle = opts.UsePathStyle
		})
	}

	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}, nil
}

// Save uploads data as the next version of the artifact.
func (s *Store) Save(ctx context.Context, sessionID, name string, data []byte) (int, error) {
	versions, err := s.versions(ctx, sessionID, name)
	if err != nil {
		return 0, err
	}

	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	key := s.versionKey(sessionID, name, next)
	if _, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return 0, fmt.Errorf("s3 put object %s: %w", key, err)
	}

	return next, nil
}

// Load downloads the latest version of the artifact.
func (s *Store) Load(ctx context.Context, sessionID, name string) ([]byte, error) {
	return s.LoadVersion(ctx, sessionID, name, 0)
}

// LoadVersion downloads a specific version. Version 0 means latest.
func (s *Store) LoadVersion(ctx context.Context, sessionID, name string, version int) ([]byte, error) {
	if version == 0 {
		versions, err := s.versions(ctx, sessionID, name)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("load %s/%s: %w", sessionID, name, artifact.ErrNotFound)
		}
		version = versions[len(versions)-1]
	}

	key := s.versionKey(sessionID, name, version)
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("load %s: %w", key, artifact.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// List returns the sorted artifact names stored for the session.
func (s *Store) List(ctx context.Context, sessionID string) ([]string, error) {
	base := s.sessionPrefix(sessionID)

	keys, err := s.listKeys(ctx, base)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, key := range keys {
		name, _, ok := splitVersionKey(strings.TrimPrefix(key, base))
		if ok && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	return names, nil
}

// Delete removes every version of the artifact.
func (s *Store) Delete(ctx context.Context, sessionID, name string) error {
	versions, err := s.versions(ctx, sessionID, name)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("delete %s/%s: %w", sessionID, name, artifact.ErrNotFound)
	}

	for _, v := range versions {
		key := s.versionKey(sessionID, name, v)
		if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("s3 delete object %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) versions(ctx context.Context, sessionID, name string) ([]int, error) {
	base := s.sessionPrefix(sessionID)

	keys, err := s.listKeys(ctx, base+name+"/")
	if err != nil {
		return nil, err
	}

	var out []int
	for _, key := range keys {
		n, v, ok := splitVersionKey(strings.TrimPrefix(key, base))
		if ok && n == name {
			out = append(out, v)
		}
	}
	slices.Sort(out)

	return out, nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	p := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

func (s *Store) sessionPrefix(sessionID string) string {
	if s.prefix == "" {
		return sessionID + "/"
	}
	return path.Join(s.prefix, sessionID) + "/"
}

func (s *Store) versionKey(sessionID, name string, version int) string {
	return fmt.Sprintf("%s%s/%0*d", s.sessionPrefix(sessionID), name, versionWidth, version)
}

// splitVersionKey parses "<name>/<version>" relative to a session prefix.
func splitVersionKey(rel string) (string, int, bool) {
	i := strings.LastIndex(rel, "/")
	if i <= 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(rel[i+1:])
	if err != nil {
		return "", 0, false
	}
	return rel[:i], v, true
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && strings.EqualFold(apiErr.ErrorCode(), "NotFound")
}
