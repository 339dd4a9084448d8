package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"Go_Drop/config"
	"Go_Drop/internal/log"
)

// MinioStore implements Store with a MinIO client and a single bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore builds a Store from a MinIO client.
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// PutObject uploads an object to MinIO. A failed streaming upload is
// aborted by the client, so no partial object remains.
func (s *MinioStore) PutObject(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) (ObjectInfo, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: info.Size, ContentType: opts.ContentType}, nil
}

// GetObject fetches an object and its size from MinIO.
func (s *MinioStore) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, translateMinioErr(err)
	}
	return obj, ObjectInfo{Key: key, Size: stat.Size, ContentType: stat.ContentType}, nil
}

func (s *MinioStore) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateMinioErr(err)
	}
	return ObjectInfo{Key: key, Size: stat.Size, ContentType: stat.ContentType}, nil
}

// RemoveObject deletes an object from MinIO.
func (s *MinioStore) RemoveObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func translateMinioErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return err
}

// InitMinio connects to MinIO and creates the bucket when missing.
func InitMinio(cfg config.Config) (*MinioStore, error) {
	client, err := minio.New(fmt.Sprintf("%s:%s", cfg.MinioHost, cfg.MinioPort), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioUsername, cfg.MinioPassword, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	log.Infof("init minio success: bucket %s", cfg.BucketName)
	return NewMinioStore(client, cfg.BucketName), nil
}

// InitStore builds the Store selected by STORAGE_DRIVER and exits on failure.
func InitStore() Store {
	sc := config.StorageConfigInstance
	switch sc.Driver {
	case config.StorageDriverMinio:
		store, err := InitMinio(config.AppConfig)
		if err != nil {
			log.Fatalf("init minio fail: %v", err)
		}
		return store
	default:
		store, err := NewLocalStore(sc.UploadDir)
		if err != nil {
			log.Fatalf("init local storage fail: %v", err)
		}
		log.Infof("init local storage success: %s", sc.UploadDir)
		return store
	}
}
