package blob

import (
	"fmt"
	"os"
	"time"

	"newsriver/internal/pkg/config"
)

// Config holds the settings for the S3-compatible object store that
// keeps extracted article text. Cloudflare R2 is the usual target; any
// S3-compatible endpoint works.
type Config struct {
	// Bucket is the bucket articles are written to. Required.
	Bucket string

	// Endpoint overrides the S3 endpoint, e.g.
	// "https://<account>.r2.cloudflarestorage.com". Empty means plain
	// AWS S3.
	Endpoint string

	// Region is the signing region. R2 uses "auto".
	// Default: "auto"
	Region string

	// AccessKeyID and SecretAccessKey are static credentials. When both
	// are empty the ambient AWS credential chain is used instead.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle addresses the bucket in the URL path instead of the
	// host, which some S3-compatible services require.
	// Default: false
	UsePathStyle bool

	// Timeout bounds a single upload. Zero disables the bound and
	// leaves the caller's context in charge.
	// Default: 30s
	Timeout time.Duration
}

// DefaultConfig returns the production defaults for the object store.
func DefaultConfig() Config {
	return Config{
		Region:  "auto",
		Timeout: 30 * time.Second,
	}
}

// Validate checks the configuration for values that would fail at the
// first upload.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket must not be empty")
	}

	if c.Region == "" {
		return fmt.Errorf("region must not be empty")
	}

	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("access key id and secret access key must be set together")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}

	return nil
}

// LoadConfigFromEnv loads the object store configuration from
// environment variables. The loaded configuration is validated before
// it is returned.
//
// Environment variables:
//   - BLOB_BUCKET: bucket name (required)
//   - BLOB_ENDPOINT: S3-compatible endpoint URL (default: AWS S3)
//   - BLOB_REGION: signing region (default: auto)
//   - BLOB_ACCESS_KEY_ID / BLOB_SECRET_ACCESS_KEY: static credentials,
//     both or neither (default: ambient AWS credential chain)
//   - BLOB_USE_PATH_STYLE: "true" or "false" (default: false)
//   - BLOB_UPLOAD_TIMEOUT: duration string, e.g. "30s" (default: 30s)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.Bucket = os.Getenv("BLOB_BUCKET")
	cfg.Endpoint = os.Getenv("BLOB_ENDPOINT")
	cfg.AccessKeyID = os.Getenv("BLOB_ACCESS_KEY_ID")
	cfg.SecretAccessKey = os.Getenv("BLOB_SECRET_ACCESS_KEY")

	cfg.Region = config.LoadEnvString("BLOB_REGION", cfg.Region)

	// Accepts the usual boolean spellings ("1", "t", "True"); junk falls
	// back to host-style addressing.
	cfg.UsePathStyle = config.LoadEnvBool("BLOB_USE_PATH_STYLE", cfg.UsePathStyle).Value.(bool)

	if val := os.Getenv("BLOB_UPLOAD_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid BLOB_UPLOAD_TIMEOUT: %v (expected format: '30s', '1m')", err)
		}
		cfg.Timeout = parsed
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
