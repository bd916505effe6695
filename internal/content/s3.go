package content

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings for an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // optional key prefix the served tree lives under
	UseSSL    bool
}

// S3Storage serves a tree stored in an S3-compatible bucket. Directories
// are modeled as key prefixes, the usual object store convention.
type S3Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Storage connects to the bucket described by cfg.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Storage) key(name string) string {
	name = fsName(name)
	if name == "." {
		return s.prefix
	}
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func notExist(name string) error {
	return fmt.Errorf("%s: %w", name, fs.ErrNotExist)
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

func (s *S3Storage) Stat(ctx context.Context, name string) (FileInfo, error) {
	if fsName(name) == "." {
		return FileInfo{Name: ".", Dir: true}, nil
	}

	key := s.key(name)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return FileInfo{
			Name:    path.Base(name),
			Size:    info.Size,
			ModTime: info.LastModified,
		}, nil
	}
	if !isNoSuchKey(err) {
		return FileInfo{}, err
	}

	// No object at the key; it may still be a directory prefix.
	if s.prefixExists(ctx, key) {
		return FileInfo{Name: path.Base(name), Dir: true}, nil
	}
	return FileInfo{}, notExist(name)
}

func (s *S3Storage) prefixExists(ctx context.Context, key string) bool {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:  key + "/",
		MaxKeys: 1,
	})
	for object := range objects {
		if object.Err == nil {
			return true
		}
	}
	return false
}

func (s *S3Storage) Open(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat forces the first request so missing keys are
	// reported here rather than on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, notExist(name)
		}
		return nil, err
	}
	return obj, nil
}

func (s *S3Storage) ReadFile(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (s *S3Storage) ReadDir(ctx context.Context, name string) ([]FileInfo, error) {
	key := s.key(name)
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}

	var infos []FileInfo
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix: prefix,
	})
	for object := range objects {
		if object.Err != nil {
			return nil, object.Err
		}
		rel := strings.TrimPrefix(object.Key, prefix)
		if rel == "" {
			continue
		}
		if dir, ok := strings.CutSuffix(rel, "/"); ok {
			infos = append(infos, FileInfo{Name: dir, Dir: true})
			continue
		}
		infos = append(infos, FileInfo{
			Name:    rel,
			Size:    object.Size,
			ModTime: object.LastModified,
		})
	}
	if len(infos) == 0 && fsName(name) != "." && !s.prefixExists(ctx, key) {
		return nil, notExist(name)
	}
	return infos, nil
}
