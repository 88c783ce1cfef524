// Package dump writes the diagnostic snapshots named in spec.md's §6 CLI
// surface: a hot-set snapshot or decision-trace export, written atomically to
// local disk and optionally mirrored to S3 via aws-sdk-go-v2, grounded on
// coinbase-trader's write-to-tempfile-then-rename state persistence and
// aristath-sentinel's bundled AWS SDK dependency set.
package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shadowtick/liquidator/internal/hotset"
	"github.com/shadowtick/liquidator/pkg/types"
)

// SchemaVersion is bumped whenever Entry's field set changes in a
// non-additive way; verify-dump refuses to parse a newer schema than it
// knows.
const SchemaVersion = 1

// Entry is one hot-set/candidate row in a dump, matching spec.md §6's
// `{address, lastHf, block, triggerKind, totalCollateralUsd, totalDebtUsd,
// reserves?}`.
type Entry struct {
	Address            types.Address     `json:"address"`
	LastHf              float64           `json:"lastHf"`
	Block               uint64            `json:"block"`
	TriggerKind         hotset.TriggerKind `json:"triggerKind"`
	TotalCollateralUsd  float64           `json:"totalCollateralUsd"`
	TotalDebtUsd        float64           `json:"totalDebtUsd"`
	Reserves            []ReserveSnapshot `json:"reserves,omitempty"`
}

// ReserveSnapshot is the optional per-reserve detail verify-dump needs to
// recompute a health factor without re-hitting the chain.
type ReserveSnapshot struct {
	Asset               types.Address `json:"asset"`
	CollateralAmount    string        `json:"collateralAmount,omitempty"`
	DebtAmount          string        `json:"debtAmount,omitempty"`
	PriceUsd            float64       `json:"priceUsd"`
	LiquidationThresholdBps int       `json:"liquidationThresholdBps,omitempty"`
}

// Dump is the root document written to disk.
type Dump struct {
	SchemaVersion int       `json:"schemaVersion"`
	Timestamp     time.Time `json:"timestamp"`
	Mode          string    `json:"mode"`
	Count         int       `json:"count"`
	Threshold     float64   `json:"threshold"`
	Entries       []Entry   `json:"entries"`
}

// New builds a Dump from a set of entries, filling in count/timestamp.
func New(mode string, threshold float64, entries []Entry) Dump {
	return Dump{
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now(),
		Mode:          mode,
		Count:         len(entries),
		Threshold:     threshold,
		Entries:       entries,
	}
}

// WriteAtomic marshals d as indented JSON and writes it to path via a
// temp-file-then-rename, so a crash mid-write never leaves a truncated or
// partially-written dump for verify-dump to choke on.
func WriteAtomic(path string, d Dump) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("dump: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dump-*.tmp")
	if err != nil {
		return fmt.Errorf("dump: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("dump: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dump: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("dump: rename into place: %w", err)
	}
	return nil
}

// Load reads and parses a dump file previously written by WriteAtomic,
// rejecting a schema version newer than this build understands.
func Load(path string) (Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dump{}, fmt.Errorf("dump: read %s: %w", path, err)
	}
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return Dump{}, fmt.Errorf("dump: parse %s: %w", path, err)
	}
	if d.SchemaVersion > SchemaVersion {
		return Dump{}, fmt.Errorf("dump: %s has schema version %d, this build understands up to %d", path, d.SchemaVersion, SchemaVersion)
	}
	return d, nil
}

// Uploader mirrors a written dump file to S3, an optional step gated behind
// whether the operator configured a bucket; nothing in the mandatory local
// write path depends on it.
type Uploader struct {
	bucket string
	prefix string
	client *manager.Uploader
}

// NewUploader builds an Uploader from the default AWS credential chain
// (env vars, shared config, IMDS), matching how aristath-sentinel's bundled
// SDK dependency set expects callers to authenticate.
func NewUploader(ctx context.Context, bucket, prefix string) (*Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("dump: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Uploader{
		bucket: bucket,
		prefix: prefix,
		client: manager.NewUploader(client),
	}, nil
}

// Upload streams the local dump file at path to s3://bucket/prefix/<base>.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dump: open %s for upload: %w", path, err)
	}
	defer f.Close()

	key := filepath.Join(u.prefix, filepath.Base(path))
	_, err = u.client.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("dump: upload %s to s3://%s/%s: %w", path, u.bucket, key, err)
	}
	return nil
}
