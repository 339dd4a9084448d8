package utils

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetToken returns a random token.
func GetToken() string {
	return uuid.NewString()
}

func randomSuffix(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// NewUploadID returns an opaque upload session id: unix millis plus random.
func NewUploadID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + randomSuffix(12)
}

// NewStorageName returns "{unixMillis}-{random}{ext}" keeping the original
// extension of name.
func NewStorageName(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 16 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + randomSuffix(9) + ext
}
