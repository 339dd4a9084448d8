package config

import (
	"path/filepath"
	"sync"
	"time"
)

const (
	StorageDriverLocal = "local"
	StorageDriverMinio = "minio"
)

// StorageConfig holds object storage and chunked upload settings.
type StorageConfig struct {
	Driver    string `json:"driver"`     // local, minio
	UploadDir string `json:"upload_dir"` // root for chunks/, files/, thumbs/ with the local driver
	ChunkDir  string `json:"chunk_dir"`  // chunks always live on local disk

	SweepProbability float64       `json:"sweep_probability"` // chance per init call to sweep orphans
	ChunkMaxAge      time.Duration `json:"chunk_max_age"`
	MergeLockTTL     time.Duration `json:"merge_lock_ttl"`

	ThumbSize      int `json:"thumb_size"`
	ThumbSmallSize int `json:"thumb_small_size"`
}

var StorageConfigInstance *StorageConfig
var storageConfigOnce sync.Once

// InitStorageConfig initializes storage config.
func InitStorageConfig() {
	storageConfigOnce.Do(func() {
		uploadDir := getEnv("UPLOAD_DIR", "uploads")
		StorageConfigInstance = &StorageConfig{
			Driver:           getEnv("STORAGE_DRIVER", StorageDriverLocal),
			UploadDir:        uploadDir,
			ChunkDir:         getEnv("CHUNK_DIR", filepath.Join(uploadDir, "chunks")),
			SweepProbability: getEnvFloat("SWEEP_PROBABILITY", 0.01),
			ChunkMaxAge:      getEnvDuration("CHUNK_MAX_AGE", 24*time.Hour),
			MergeLockTTL:     getEnvDuration("MERGE_LOCK_TTL", 5*time.Minute),
			ThumbSize:        getEnvInt("THUMB_SIZE", 480),
			ThumbSmallSize:   getEnvInt("THUMB_SMALL_SIZE", 160),
		}
	})
}
