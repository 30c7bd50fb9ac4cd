package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/oodb/internal/manifest"
	"github.com/hupe1980/oodb/pagestore"
	miniostore "github.com/hupe1980/oodb/pagestore/minio"
	"github.com/hupe1980/oodb/pagestore/s3"
	"github.com/hupe1980/oodb/resource"
)

// OpenStore builds the store described by cfg: the backend, optionally
// wrapped with compression, IO limits of rc and a read cache.
func OpenStore(ctx context.Context, cfg *Config, rc *resource.Controller) (pagestore.Store, error) {
	algo, err := pagestore.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var store pagestore.Store
	switch cfg.Store.Backend {
	case "local":
		store = pagestore.NewLocalStore(cfg.Store.Path)
	case "memory":
		store = pagestore.NewMemoryStore()
	case "s3":
		store, err = openS3(ctx, cfg.Store, algo)
		if err != nil {
			return nil, err
		}
		// openS3 applies compression below the commit pointer.
		algo = pagestore.CompressionNone
	case "minio":
		store, err = openMinio(cfg.Store)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if algo != pagestore.CompressionNone {
		store = pagestore.NewCompressedStore(store, algo)
	}
	if rc != nil {
		store = pagestore.NewThrottledStore(store, rc)
	}
	if cfg.CacheBytes > 0 {
		store = pagestore.NewCachingStore(store, cfg.CacheBytes, rc, pagestore.WithUncachedPrefix(manifest.CurrentFileName))
	}
	return store, nil
}

func openS3(ctx context.Context, sc StoreConfig, algo pagestore.Compression) (pagestore.Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if sc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(sc.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
	})

	var store pagestore.Store = s3.NewStore(client, sc.Bucket, sc.Prefix)
	if algo != pagestore.CompressionNone {
		store = pagestore.NewCompressedStore(store, algo)
	}
	if sc.CommitTable != "" {
		ddb := dynamodb.NewFromConfig(awsCfg)
		store = s3.NewCommitStore(store, ddb, sc.CommitTable, fmt.Sprintf("s3://%s/%s", sc.Bucket, sc.Prefix))
	}
	return store, nil
}

func openMinio(sc StoreConfig) (pagestore.Store, error) {
	client, err := minio.New(sc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
		Secure: sc.UseSSL,
		Region: sc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return miniostore.NewStore(client, sc.Bucket, sc.Prefix), nil
}
