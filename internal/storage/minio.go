package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// MinioOptions configures the S3-compatible backend.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

type s3 struct {
	client *minio.Client
	bucket string
}

// NewMinio returns a new S3-compatible backend.
// Chunks are stored as `bucket/fileID/seq' objects. The bucket is created when missing.
func NewMinio(ctx context.Context, opts MinioOptions) (Backend, error) {
	if opts.AccessKey == "" || opts.SecretKey == "" || opts.Bucket == "" {
		return nil, errors.New("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "minio endpoint")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create minio client")
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "could not check bucket")
	}
	if !exists {
		if err = client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "could not create bucket")
		}
	}

	return &s3{
		client: client,
		bucket: opts.Bucket,
	}, nil
}

func (b *s3) Name() string {
	return "minio"
}

func (b *s3) PutChunk(ctx context.Context, fileID string, seq int, data []byte) error {
	if err := checkFileID(fileID); err != nil {
		return err
	}

	_, err := b.client.PutObject(ctx, b.bucket, objectName(fileID, seq), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return errors.Wrap(err, "could not write chunk")
}

func (b *s3) GetChunk(ctx context.Context, fileID string, seq int) ([]byte, error) {
	if err := checkFileID(fileID); err != nil {
		return nil, err
	}

	object, err := b.client.GetObject(ctx, b.bucket, objectName(fileID, seq), minio.GetObjectOptions{})
	if err != nil {
		return nil, b.wrap(err, fileID, seq)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, b.wrap(err, fileID, seq)
	}
	return data, nil
}

func (b *s3) FileIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{}) {
		if object.Err != nil {
			return nil, errors.Wrap(object.Err, "could not list files")
		}

		// Non recursive listing returns the file IDs as common prefixes.
		if !strings.HasSuffix(object.Key, "/") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(object.Key, "/"))
	}

	return ids, nil
}

func (b *s3) RemoveFile(ctx context.Context, fileID string) error {
	if err := checkFileID(fileID); err != nil {
		return err
	}

	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    fileID + "/",
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return errors.Wrap(object.Err, "could not list file chunks")
		}

		if err := b.client.RemoveObject(ctx, b.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return errors.Wrap(err, "could not delete chunk")
		}
	}

	return nil
}

func (b *s3) Close() error {
	return nil
}

func (b *s3) wrap(err error, fileID string, seq int) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Wrapf(ErrNotFound, "%s/%d", fileID, seq)
	}
	return errors.Wrap(err, "could not read chunk")
}

func objectName(fileID string, seq int) string {
	return path.Join(fileID, ChunkName(seq))
}

// normaliseEndpoint accepts either "minio:9000" or "http(s)://minio:9000".
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	if !strings.Contains(raw, "://") {
		return raw, false, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	if u.Host == "" {
		return "", false, errors.New("invalid endpoint")
	}
	if u.Path != "" && u.Path != "/" {
		return "", false, errors.New("endpoint must not contain a path")
	}
	return u.Host, u.Scheme == "https", nil
}
