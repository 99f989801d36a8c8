// Package s3 serves a file tree from an S3 (or MinIO) bucket. Directories
// are key prefixes; an empty "dir/" object marks a directory that has no
// children yet.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/sly67/treedesk/internal/logging"
	"github.com/sly67/treedesk/internal/metrics"
	"github.com/sly67/treedesk/pkg/models"
)

// BackendConfig is a JSON-serializable config for S3 backends.
type BackendConfig struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
}

// S3Backend implements storage.Backend on a bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string // "" or ends with "/"
}

// NewBackend creates a new S3 backend from a BackendConfig.
func NewBackend(ctx context.Context, cfg BackendConfig) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	backend := &S3Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.Prefix),
	}

	if err := backend.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.Error(err))
	}

	return backend, nil
}

// NewBackendFromJSON creates an S3Backend from raw JSON config.
func NewBackendFromJSON(ctx context.Context, raw json.RawMessage) (*S3Backend, error) {
	var cfg BackendConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return NewBackend(ctx, cfg)
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (b *S3Backend) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		_, createErr := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(b.bucket),
		})
		metrics.RecordS3Operation("create_bucket", time.Since(start))
		if createErr != nil {
			return fmt.Errorf("bucket %s does not exist and cannot create: %w", b.bucket, createErr)
		}
		logging.Info("created S3 bucket", zap.String("bucket", b.bucket))
	}
	return nil
}

// fileKey is the object key of a file.
func (b *S3Backend) fileKey(dir, name string) string {
	if dir == "" {
		return b.prefix + name
	}
	return b.prefix + dir + "/" + name
}

// dirPrefix is the key prefix of a directory's children.
func (b *S3Backend) dirPrefix(dir string) string {
	if dir == "" {
		return b.prefix
	}
	return b.prefix + dir + "/"
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (b *S3Backend) fileExists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordS3Operation("head_object", time.Since(start))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// dirExists reports whether any key, marker included, lives under dir.
func (b *S3Backend) dirExists(ctx context.Context, dir string) (bool, error) {
	if dir == "" {
		return true, nil
	}
	start := time.Now()
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(b.dirPrefix(dir)),
		MaxKeys: aws.Int32(1),
	})
	metrics.RecordS3Operation("list_objects", time.Since(start))
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0, nil
}

// kindOf reports what lives at dir/name, if anything.
func (b *S3Backend) kindOf(ctx context.Context, dir, name string) (models.Kind, bool, error) {
	isFile, err := b.fileExists(ctx, b.fileKey(dir, name))
	if err != nil {
		return "", false, err
	}
	if isFile {
		return models.KindFile, true, nil
	}
	isDir, err := b.dirExists(ctx, joinRel(dir, name))
	if err != nil {
		return "", false, err
	}
	if isDir {
		return models.KindDirectory, true, nil
	}
	return "", false, nil
}

func (b *S3Backend) requireDir(ctx context.Context, op, dir string) error {
	ok, err := b.dirExists(ctx, dir)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, dir, err)
	}
	if !ok {
		return &fs.PathError{Op: op, Path: dir, Err: fs.ErrNotExist}
	}
	return nil
}

// List returns the immediate children of dir.
func (b *S3Backend) List(ctx context.Context, dir string) ([]models.Entry, error) {
	if err := b.requireDir(ctx, "list", dir); err != nil {
		return nil, err
	}

	prefix := b.dirPrefix(dir)
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var prefixes []types.CommonPrefix
	var objects []types.Object
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		metrics.RecordS3Operation("list_objects", time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		prefixes = append(prefixes, page.CommonPrefixes...)
		objects = append(objects, page.Contents...)
	}

	return entriesFromListing(prefix, prefixes, objects), nil
}

// entriesFromListing turns one delimited listing into entries ordered by
// name. The directory's own marker object is skipped.
func entriesFromListing(prefix string, prefixes []types.CommonPrefix, objects []types.Object) []models.Entry {
	entries := make([]models.Entry, 0, len(prefixes)+len(objects))
	for _, cp := range prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
		if name == "" {
			continue
		}
		entries = append(entries, models.Entry{Name: name, Type: models.KindDirectory})
	}
	for _, obj := range objects {
		name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		entries = append(entries, models.Entry{Name: name, Type: models.KindFile})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Create makes an empty object or a directory marker.
func (b *S3Backend) Create(ctx context.Context, parent, name string, kind models.Kind) error {
	if err := b.requireDir(ctx, "create", parent); err != nil {
		return err
	}
	_, exists, err := b.kindOf(ctx, parent, name)
	if err != nil {
		return fmt.Errorf("create %s: %w", joinRel(parent, name), err)
	}
	if exists {
		return &fs.PathError{Op: "create", Path: joinRel(parent, name), Err: fs.ErrExist}
	}

	var key string
	switch kind {
	case models.KindFile:
		key = b.fileKey(parent, name)
	case models.KindDirectory:
		key = b.dirPrefix(joinRel(parent, name))
	default:
		return &fs.PathError{Op: "create", Path: joinRel(parent, name), Err: fs.ErrInvalid}
	}
	return b.put(ctx, key, nil)
}

// Rename copies every key under the old name to the new one, then deletes
// the originals.
func (b *S3Backend) Rename(ctx context.Context, parent, oldName, newName string) error {
	kind, exists, err := b.kindOf(ctx, parent, oldName)
	if err != nil {
		return fmt.Errorf("rename %s: %w", joinRel(parent, oldName), err)
	}
	if !exists {
		return &fs.PathError{Op: "rename", Path: joinRel(parent, oldName), Err: fs.ErrNotExist}
	}
	if _, taken, err := b.kindOf(ctx, parent, newName); err != nil {
		return fmt.Errorf("rename %s: %w", joinRel(parent, newName), err)
	} else if taken {
		return &fs.PathError{Op: "rename", Path: joinRel(parent, newName), Err: fs.ErrExist}
	}

	if kind == models.KindFile {
		src, dst := b.fileKey(parent, oldName), b.fileKey(parent, newName)
		if err := b.copy(ctx, src, dst); err != nil {
			return err
		}
		return b.deleteKeys(ctx, []string{src})
	}

	oldPrefix := b.dirPrefix(joinRel(parent, oldName))
	newPrefix := b.dirPrefix(joinRel(parent, newName))
	keys, err := b.keysUnder(ctx, oldPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := b.copy(ctx, key, newPrefix+strings.TrimPrefix(key, oldPrefix)); err != nil {
			return err
		}
	}
	return b.deleteKeys(ctx, keys)
}

// Delete removes a file object or every key under a directory.
func (b *S3Backend) Delete(ctx context.Context, parent, name string) error {
	kind, exists, err := b.kindOf(ctx, parent, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", joinRel(parent, name), err)
	}
	if !exists {
		return &fs.PathError{Op: "delete", Path: joinRel(parent, name), Err: fs.ErrNotExist}
	}
	if kind == models.KindFile {
		return b.deleteKeys(ctx, []string{b.fileKey(parent, name)})
	}
	keys, err := b.keysUnder(ctx, b.dirPrefix(joinRel(parent, name)))
	if err != nil {
		return err
	}
	return b.deleteKeys(ctx, keys)
}

// Read returns the content of a file object.
func (b *S3Backend) Read(ctx context.Context, dir, name string) ([]byte, error) {
	start := time.Now()
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fileKey(dir, name)),
	})
	metrics.RecordS3Operation("get_object", time.Since(start))
	if err != nil {
		if isNotFound(err) {
			if ok, _ := b.dirExists(ctx, joinRel(dir, name)); ok {
				return nil, &fs.PathError{Op: "read", Path: joinRel(dir, name), Err: fs.ErrInvalid}
			}
			return nil, &fs.PathError{Op: "read", Path: joinRel(dir, name), Err: fs.ErrNotExist}
		}
		return nil, fmt.Errorf("get object %s: %w", joinRel(dir, name), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", joinRel(dir, name), err)
	}
	return data, nil
}

// Write uploads the content of a file.
func (b *S3Backend) Write(ctx context.Context, dir, name string, data []byte) error {
	if err := b.requireDir(ctx, "write", dir); err != nil {
		return err
	}
	if ok, err := b.dirExists(ctx, joinRel(dir, name)); err != nil {
		return fmt.Errorf("write %s: %w", joinRel(dir, name), err)
	} else if ok {
		return &fs.PathError{Op: "write", Path: joinRel(dir, name), Err: fs.ErrInvalid}
	}
	return b.put(ctx, b.fileKey(dir, name), data)
}

func (b *S3Backend) put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	metrics.RecordS3Operation("put_object", time.Since(start))
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	logging.Debug("S3 put object", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// copySource builds the URL-encoded "bucket/key" value CopyObject expects.
// PathEscape leaves "+" alone, which S3 would read as a space.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.PathEscape(seg), "+", "%2B")
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func (b *S3Backend) copy(ctx context.Context, srcKey, dstKey string) error {
	start := time.Now()
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(b.bucket, srcKey)),
	})
	metrics.RecordS3Operation("copy_object", time.Since(start))
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// keysUnder lists every key with the given prefix, without a delimiter.
func (b *S3Backend) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	var keys []string
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		metrics.RecordS3Operation("list_objects", time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// deleteKeys removes keys in batches of at most 1000, the S3 limit.
func (b *S3Backend) deleteKeys(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		n := min(len(keys), 1000)
		batch := make([]types.ObjectIdentifier, 0, n)
		for _, k := range keys[:n] {
			batch = append(batch, types.ObjectIdentifier{Key: aws.String(k)})
		}

		start := time.Now()
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		metrics.RecordS3Operation("delete_objects", time.Since(start))
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message))
		}
		keys = keys[n:]
	}
	return nil
}

// Type returns "s3".
func (b *S3Backend) Type() string { return "s3" }

// Close is a no-op; the SDK client holds no resources that need releasing.
func (b *S3Backend) Close() error { return nil }
