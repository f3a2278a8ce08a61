// Package dumps locates and fetches the monthly public data dumps that
// ingestion runs are built from. The dump bucket is public, so the
// client runs anonymously unless keys are configured.
package dumps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cratelabs/discolake/internal/domain"
)

// DumpTypes are the published dump families, in release order.
var DumpTypes = []string{"artists", "labels", "masters", "releases"}

type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	UseSSL    bool
	AccessKey string
	SecretKey string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("dump endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("dump bucket is required")
	}
	return nil
}

// objectAPI is the slice of the object-store client the dump client
// uses. *minio.Client satisfies it.
type objectAPI interface {
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FGetObject(ctx context.Context, bucket, key, filePath string, opts minio.GetObjectOptions) error
}

type Client struct {
	api    objectAPI
	bucket string
	log    *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.Wrap(domain.KindConfiguration, "dump client config", err)
	}
	creds := credentials.NewStatic(cfg.AccessKey, cfg.SecretKey, "", credentials.SignatureAnonymous)
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     creds,
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindExternalService, "dump client", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{api: api, bucket: cfg.Bucket, log: log}, nil
}

// ObjectKey is the bucket layout of one dump file: year directory, then
// discogs_<yyyymmdd>_<type>.xml.gz.
func ObjectKey(ymd, dumpType string) string {
	return fmt.Sprintf("data/%s/discogs_%s_%s.xml.gz", ymd[:4], ymd, dumpType)
}

// FindDumpDate scans a month's days in descending order and returns the
// last day (YYYYMMDD) for which a dump of probeType is published. Months
// with no published dump report a not-found error.
func (c *Client) FindDumpDate(ctx context.Context, month, probeType string) (string, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return "", domain.E(domain.KindFormat, "invalid month %q, want YYYY-MM", month)
	}
	if !validDumpType(probeType) {
		return "", domain.E(domain.KindFormat, "invalid probe type %q", probeType)
	}

	lastDay := start.AddDate(0, 1, -1).Day()
	for day := lastDay; day >= 1; day-- {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ymd := fmt.Sprintf("%s%02d", start.Format("200601"), day)
		_, err := c.api.StatObject(ctx, c.bucket, ObjectKey(ymd, probeType), minio.StatObjectOptions{})
		if err == nil {
			return ymd, nil
		}
	}
	return "", domain.E(domain.KindValidation, "no %s dump published for month %s", probeType, month)
}

// Fetch downloads the named dump types for one date into destDir and
// returns the local paths, downloaded or preexisting. Files already in
// place are left untouched, so a partially failed fetch can be retried.
func (c *Client) Fetch(ctx context.Context, ymd string, types []string, destDir string) ([]string, error) {
	if len(ymd) != 8 || strings.Trim(ymd, "0123456789") != "" {
		return nil, domain.E(domain.KindFormat, "invalid dump date %q, want YYYYMMDD", ymd)
	}
	if len(types) == 0 {
		types = DumpTypes
	}
	for _, dumpType := range types {
		if !validDumpType(dumpType) {
			return nil, domain.E(domain.KindFormat, "invalid dump type %q", dumpType)
		}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dumps dir: %w", err)
	}

	var paths []string
	for _, dumpType := range types {
		key := ObjectKey(ymd, dumpType)
		dest := filepath.Join(destDir, filepath.Base(key))
		if _, err := os.Stat(dest); err == nil {
			c.log.Info("dump already present", "file", dest)
			paths = append(paths, dest)
			continue
		}
		// FGetObject downloads to a .part file and renames on success.
		if err := c.api.FGetObject(ctx, c.bucket, key, dest, minio.GetObjectOptions{}); err != nil {
			return paths, domain.Wrap(domain.KindExternalService, fmt.Sprintf("fetch %s", key), err)
		}
		c.log.Info("dump fetched", "file", dest)
		paths = append(paths, dest)
	}
	return paths, nil
}

func validDumpType(dumpType string) bool {
	for _, known := range DumpTypes {
		if dumpType == known {
			return true
		}
	}
	return false
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
