// Package coldstore exports the curated tier to S3-compatible object
// storage, so a deployment can keep the Redis curated keyspace small
// while retaining every curated snapshot durably off-box. Grounded on
// the pack's AWS SDK v2 cache-store pattern: a thin client wrapper, a
// URL-hash key under a configurable prefix, and a plain (unconditional)
// put that treats a 412/409 answer as success.
package coldstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/applog"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/urlkey"
)

// putter is the subset of *s3.Client Exporter needs, narrowed so tests
// can substitute a fake without standing up a real bucket.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter implements internal/admin.ColdStore, copying every curated
// entry held by a store.Store to an S3 bucket.
type Exporter struct {
	client putter
	store  store.Store
	bucket string
	prefix string
}

// New builds an Exporter. Credentials, region, and endpoint resolve via
// the AWS SDK's default credential chain (env vars, shared config,
// instance profile), the same as the rest of the ecosystem pack does
// it; region is also accepted explicitly since it is the one setting
// the YAML config surface exposes directly.
func New(ctx context.Context, st store.Store, bucket, prefix, region string) (*Exporter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	return &Exporter{client: client, store: st, bucket: bucket, prefix: prefix}, nil
}

// key derives the S3 object key for a curated entry the same way the
// Redis curated key is derived, so the two tiers stay addressable by
// the same hash even though cold storage is a separate backend.
func (e *Exporter) key(sourceURL string) (string, error) {
	normalized, err := urlkey.Normalize(sourceURL)
	if err != nil {
		return "", err
	}
	return e.prefix + "curated/" + urlkey.Hash(normalized) + ".json", nil
}

// Export copies every curated-tier entry to S3, encoded with the same
// envelope the store package uses for Redis, so a restore can decode an
// exported object with store.DecodeResponse unchanged. Individual
// encode or key failures are logged and skipped rather than aborting
// the whole run; a partial export still beats none.
func (e *Exporter) Export(ctx context.Context) error {
	entries, err := e.store.AllCurated(ctx)
	if err != nil {
		return fmt.Errorf("listing curated entries: %w", err)
	}

	var exported, skipped int
	for i := range entries {
		resp := entries[i]
		key, err := e.key(resp.SourceURL)
		if err != nil {
			applog.Emit("error", "coldstore", nil, fmt.Sprintf("coldstore: skip %q: %v", resp.SourceURL, err))
			skipped++
			continue
		}
		raw, err := store.EncodeResponse(&resp)
		if err != nil {
			applog.Emit("error", "coldstore", nil, fmt.Sprintf("coldstore: skip %q: encode: %v", resp.SourceURL, err))
			skipped++
			continue
		}
		if err := e.put(ctx, key, raw); err != nil {
			applog.Emit("error", "coldstore", nil, fmt.Sprintf("coldstore: put %q: %v", key, err))
			skipped++
			continue
		}
		exported++
	}

	applog.Emit("info", "coldstore", nil, fmt.Sprintf("coldstore: export done exported=%d skipped=%d", exported, skipped))
	return nil
}

func (e *Exporter) put(ctx context.Context, key string, body []byte) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil && isConflict(err) {
		// A 412/409 from the backend is taken as "already stored". No
		// precondition is sent, so a plain bucket overwrites instead.
		return nil
	}
	return err
}

func isConflict(err error) bool {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == http.StatusPreconditionFailed || re.HTTPStatusCode() == http.StatusConflict
	}
	return false
}
