package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/gfapi/internal/logger"
	promMetrics "github.com/marmos91/gfapi/pkg/metrics/prometheus"
	"github.com/marmos91/gfapi/pkg/native"
	"github.com/marmos91/gfapi/pkg/native/libgfapi"
	"github.com/marmos91/gfapi/pkg/native/local"
	"github.com/marmos91/gfapi/pkg/native/simvol"
	"github.com/marmos91/gfapi/pkg/native/simvol/badgerstore"
	"github.com/marmos91/gfapi/pkg/native/simvol/fscontent"
	"github.com/marmos91/gfapi/pkg/native/simvol/s3content"
)

// SimOptions are the options of the "sim" driver.
type SimOptions struct {
	// MetadataStore persists inode records: memory or badger
	MetadataStore string `mapstructure:"metadata_store"`

	// ContentStore holds file bytes: memory, fs or s3
	ContentStore string `mapstructure:"content_store"`

	Badger BadgerOptions `mapstructure:"badger"`
	FS     FSOptions     `mapstructure:"fs"`
	S3     S3Options     `mapstructure:"s3"`

	// Uid and Gid are the caller credentials (0 = root)
	Uid uint32 `mapstructure:"uid"`
	Gid uint32 `mapstructure:"gid"`

	// Capacity and MaxInodes size the volume (0 = simvol defaults)
	Capacity  int64  `mapstructure:"capacity"`
	MaxInodes uint64 `mapstructure:"max_inodes"`

	// Hosts lists the volfile servers that answer (empty = any)
	Hosts []string `mapstructure:"hosts"`
}

// BadgerOptions configure the BadgerDB metadata store.
type BadgerOptions struct {
	DBPath   string `mapstructure:"db_path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// FSOptions configure the filesystem content store.
type FSOptions struct {
	BasePath string `mapstructure:"base_path"`
}

// S3Options configure the S3 content store.
type S3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// LocalOptions are the options of the "local" driver.
type LocalOptions struct {
	// Root is the directory holding one subdirectory per volume
	Root string `mapstructure:"root"`
}

// CreateDriver creates the native backend selected by cfg.
//
// Supported types:
//   - "gfapi": libgfapi through cgo (functional only in builds with the gfapi tag)
//   - "sim": pkg/native/simvol with memory/badger metadata and memory/fs/s3 content
//   - "local": pkg/native/local, volumes are directories under a root
//
// A returned driver that implements io.Closer owns resources (databases,
// clients) and must be closed after the last client using it.
func CreateDriver(ctx context.Context, cfg *DriverConfig) (native.Driver, error) {
	switch cfg.Type {
	case "gfapi":
		return libgfapi.Driver(), nil
	case "sim":
		return createSimDriver(ctx, cfg.Sim)
	case "local":
		return createLocalDriver(ctx, cfg.Local)
	default:
		return nil, fmt.Errorf("unknown driver type: %q (supported: gfapi, sim, local)", cfg.Type)
	}
}

func decodeSimOptions(options map[string]any) (*SimOptions, error) {
	var opts SimOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode sim driver options: %w", err)
	}

	switch opts.MetadataStore {
	case "", "memory":
	case "badger":
		if opts.Badger.DBPath == "" && !opts.Badger.InMemory {
			return nil, fmt.Errorf("badger metadata store: db_path is required")
		}
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q (supported: memory, badger)", opts.MetadataStore)
	}

	switch opts.ContentStore {
	case "", "memory":
	case "fs":
		if opts.FS.BasePath == "" {
			return nil, fmt.Errorf("fs content store: base_path is required")
		}
	case "s3":
		if opts.S3.Bucket == "" {
			return nil, fmt.Errorf("S3 content store: bucket is required")
		}
		if opts.S3.Region == "" {
			return nil, fmt.Errorf("S3 content store: region is required")
		}
	default:
		return nil, fmt.Errorf("unknown content store type: %q (supported: memory, fs, s3)", opts.ContentStore)
	}

	return &opts, nil
}

func decodeLocalOptions(options map[string]any) (*LocalOptions, error) {
	var opts LocalOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode local driver options: %w", err)
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("local driver: root is required")
	}
	return &opts, nil
}

// createSimDriver builds the stores and the simulated-volume driver.
func createSimDriver(ctx context.Context, options map[string]any) (native.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := decodeSimOptions(options)
	if err != nil {
		return nil, err
	}

	meta, err := createMetadataStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	content, err := createContentStore(ctx, opts)
	if err != nil {
		return nil, errors.Join(err, meta.Close())
	}

	return simvol.NewDriver(simvol.Config{
		Metadata:  meta,
		Content:   content,
		Uid:       opts.Uid,
		Gid:       opts.Gid,
		Capacity:  opts.Capacity,
		MaxInodes: opts.MaxInodes,
		Hosts:     opts.Hosts,
	}), nil
}

func createMetadataStore(ctx context.Context, opts *SimOptions) (simvol.MetadataStore, error) {
	if opts.MetadataStore != "badger" {
		return simvol.NewMemoryMetadataStore(), nil
	}

	store, err := badgerstore.New(ctx, badgerstore.Config{
		DBPath:   opts.Badger.DBPath,
		InMemory: opts.Badger.InMemory,
		Metrics:  promMetrics.NewStoreMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}
	logger.Info("Badger metadata store initialized: path=%s", opts.Badger.DBPath)
	return store, nil
}

func createContentStore(ctx context.Context, opts *SimOptions) (simvol.ContentStore, error) {
	switch opts.ContentStore {
	case "s3":
		return createS3ContentStore(ctx, &opts.S3)
	case "fs":
		store, err := fscontent.New(ctx, opts.FS.BasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create fs content store: %w", err)
		}
		logger.Info("Filesystem content store initialized: path=%s", opts.FS.BasePath)
		return store, nil
	default:
		return simvol.NewMemoryContentStore(), nil
	}
}

// createS3ContentStore creates an S3-based content store.
func createS3ContentStore(ctx context.Context, storeCfg *S3Options) (simvol.ContentStore, error) {
	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials when provided, otherwise the default chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Content Store
	// ========================================================================

	store, err := s3content.New(ctx, s3content.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		Metrics:   promMetrics.NewStoreMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// createLocalDriver creates the loopback driver.
func createLocalDriver(ctx context.Context, options map[string]any) (native.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := decodeLocalOptions(options)
	if err != nil {
		return nil, err
	}
	return local.NewDriver(opts.Root), nil
}
