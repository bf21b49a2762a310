package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

const manifestName = "manifest.json"

// s3API is the union of the read and write subsets.
type s3API interface {
	s3ReaderAPI
	s3WriterAPI
}

var _ outbound.BlobStore = (*BlobStore)(nil)

// Config configures the S3 store.
type Config struct {
	Bucket string

	// Prefix is prepended to every key, without a trailing slash.
	Prefix string

	// Gzip compresses every blob and sets Content-Encoding.
	Gzip bool

	// Retain is how many committed runs are kept, current included.
	// Default: 5
	Retain int

	// Endpoint overrides the S3 endpoint, e.g. for LocalStack.
	Endpoint string

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Retain: 5,
		Logger: slog.Default(),
	}
}

// manifest is the commit pointer. Readers resolve it first and then read
// blobs from the run it names, so replacing it switches every blob at once.
type manifest struct {
	RunID       string    `json:"runId"`
	CommittedAt time.Time `json:"committedAt"`
	Blobs       []string  `json:"blobs"`
}

// BlobStore stores each run under <prefix>/runs/<runId>/ and commits by
// overwriting <prefix>/manifest.json.
type BlobStore struct {
	client s3API
	bucket string
	prefix string
	gzip   bool
	retain int
	logger *slog.Logger
	now    func() time.Time
}

// NewBlobStore creates a store from an AWS config.
func NewBlobStore(awsCfg aws.Config, cfg Config) (*BlobStore, error) {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newBlobStore(client, cfg)
}

func newBlobStore(client s3API, cfg Config) (*BlobStore, error) {
	defaults := ConfigDefaults()
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Retain <= 0 {
		cfg.Retain = defaults.Retain
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		gzip:   cfg.Gzip,
		retain: cfg.Retain,
		logger: cfg.Logger.With("component", "s3-blob-store", "bucket", cfg.Bucket),
		now:    time.Now,
	}, nil
}

func (s *BlobStore) key(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

func (s *BlobStore) runKey(runID, name string) string {
	return s.key("runs", runID, name)
}

func (s *BlobStore) loadManifest(ctx context.Context) (*manifest, error) {
	data, err := getObject(ctx, s.client, s.bucket, s.key(manifestName))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if m.RunID == "" {
		return nil, fmt.Errorf("manifest has no run id")
	}
	return &m, nil
}

// LoadState resolves the manifest and reads _state.json from its run.
func (s *BlobStore) LoadState(ctx context.Context) ([]byte, error) {
	m, err := s.loadManifest(ctx)
	if errors.Is(err, errObjectNotFound) {
		return nil, outbound.ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := getObject(ctx, s.client, s.bucket, s.runKey(m.RunID, outbound.StateBlobName))
	if err != nil {
		return nil, fmt.Errorf("reading state of run %s: %w", m.RunID, err)
	}
	return data, nil
}

// Commit uploads every blob under a new run id with conditional writes and
// then replaces the manifest.
func (s *BlobStore) Commit(ctx context.Context, snapshot outbound.Snapshot) error {
	now := s.now().UTC()
	runID := now.Format("20060102T150405.000000000Z")

	blobs := snapshot.Blobs()
	names := make([]string, 0, len(blobs))
	for name := range blobs {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := putObject(ctx, s.client, s.bucket, s.runKey(runID, name), blobs[name], s.gzip, true); err != nil {
			return fmt.Errorf("uploading run %s: %w", runID, err)
		}
	}

	m, err := json.Marshal(manifest{RunID: runID, CommittedAt: now, Blobs: names})
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := putObject(ctx, s.client, s.bucket, s.key(manifestName), m, false, false); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	s.logger.Info("committed run", "run", runID, "blobs", len(names))

	if err := s.prune(ctx, runID); err != nil {
		s.logger.Warn("failed to prune old runs", "error", err)
	}
	return nil
}

// prune deletes the objects of runs older than the retention window.
func (s *BlobStore) prune(ctx context.Context, current string) error {
	runsPrefix := s.key("runs") + "/"
	keys, err := listKeys(ctx, s.client, s.bucket, runsPrefix)
	if err != nil {
		return err
	}

	byRun := make(map[string][]string)
	for _, k := range keys {
		runID, _, ok := strings.Cut(strings.TrimPrefix(k, runsPrefix), "/")
		if !ok {
			continue
		}
		byRun[runID] = append(byRun[runID], k)
	}

	runs := make([]string, 0, len(byRun))
	for runID := range byRun {
		runs = append(runs, runID)
	}
	slices.Sort(runs)
	if len(runs) <= s.retain {
		return nil
	}

	var errs []error
	for _, runID := range runs[:len(runs)-s.retain] {
		if runID == current {
			continue
		}
		for _, k := range byRun[runID] {
			if err := deleteObject(ctx, s.client, s.bucket, k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *BlobStore) Close() error {
	return nil
}
