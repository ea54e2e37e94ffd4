package proofstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

// MaxProofSize caps an uploaded payment proof.
const MaxProofSize = 10 << 20

var allowedContentTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

var ErrUnsupportedProof = errors.New("proof must be a PNG, JPEG, WebP or PDF file up to 10 MB")

// Config holds S3 configuration for payment proofs
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("S3_PROOFS_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when proof uploads are enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when proof uploads are enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when proof uploads are enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if proof uploads go to S3
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey builds the key of a proof: payment-proofs/YYYY/MM/<user>/<id><ext>
func ObjectKey(userID uint, id, ext string, at time.Time) string {
	return fmt.Sprintf("payment-proofs/%04d/%02d/%d/%s%s", at.Year(), int(at.Month()), userID, id, ext)
}

// Extension validates an upload and returns the extension to store it under.
func Extension(contentType string, size int64) (string, error) {
	if size <= 0 || size > MaxProofSize {
		return "", ErrUnsupportedProof
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := allowedContentTypes[ct]
	if !ok {
		return "", ErrUnsupportedProof
	}
	return ext, nil
}
