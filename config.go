package lodstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/blobstore/minio"
	"github.com/hupe1980/lodstream/blobstore/s3"
	"github.com/hupe1980/lodstream/catalog"
	"github.com/hupe1980/lodstream/catalog/dynamodb"
	"github.com/hupe1980/lodstream/config"
	blockcache "github.com/hupe1980/lodstream/internal/cache"
)

// OpenConfig opens a session described by cfg. Options in opts are applied
// after the ones derived from cfg.
func OpenConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// A .vis file carries its own budgets along with the model list.
	if cfg.Catalog.Kind == "vis" {
		settings, err := config.LoadVisFile(cfg.Catalog.VisFile)
		if err != nil {
			return nil, translateError(err)
		}

		c := *cfg
		settings.Apply(&c)
		c.Catalog.Kind = "static"
		cfg = &c
	}

	store, closer, err := NewStore(ctx, cfg.Store, cfg.Cache)
	if err != nil {
		return nil, err
	}

	cat, err := NewCatalog(ctx, cfg)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}

	eviction, err := EvictionPolicy(cfg.Stream.Eviction)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}

	base := []Option{
		WithStore(store),
		WithCatalog(cat),
		WithLogger(NewLoggerFromConfig(cfg.Logging)),
		WithWorkers(cfg.Stream.Workers),
		WithMemoryRatio(cfg.Stream.MemoryRatio),
		WithSlotCount(cfg.Stream.SlotCount),
		WithIOLimit(cfg.Stream.IOLimitBytesPerSec()),
		WithEviction(eviction),
		WithWatchDir(cfg.Watch.Dir),
		WithWatchDebounce(cfg.Watch.Debounce),
	}

	if n, _ := config.ParseSize(cfg.Stream.CacheSize); n > 0 {
		base = append(base, WithCacheBytes(n))
	}

	s, err := Open(ctx, append(base, opts...)...)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}

	s.closer = closer

	return s, nil
}

// NewStore builds the blob store of sc. Remote stores get a block cache
// when cc is enabled; the returned closer releases it and may be nil.
func NewStore(ctx context.Context, sc config.StoreConfig, cc config.CacheConfig) (blobstore.BlobStore, io.Closer, error) {
	var (
		store blobstore.BlobStore
		err   error
	)

	switch sc.Kind {
	case "", "local":
		return blobstore.NewLocalStore(sc.Root, blobstore.WithMmap(sc.Mmap)), nil, nil
	case "s3":
		store, err = s3.New(ctx, sc.Bucket, sc.Prefix)
	case "minio":
		store, err = minio.Dial(sc.Endpoint, sc.AccessKey, sc.SecretKey, sc.Bucket, sc.Prefix, sc.Secure)
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidStore, sc.Kind)
	}

	if err != nil {
		return nil, nil, err
	}

	if !cc.Enabled {
		return store, nil, nil
	}

	bc, err := newBlockCache(cc)
	if err != nil {
		return nil, nil, err
	}

	blockSize, _ := config.ParseSize(cc.BlockSize)

	return blobstore.NewCachingStore(store, bc, int64(blockSize)), bc, nil
}

// newBlockCache builds a RAM block cache, tiered over a disk cache when a
// directory is configured.
func newBlockCache(cc config.CacheConfig) (blockcache.BlockCache, error) {
	ramSize, err := config.ParseSize(cc.RAMSize)
	if err != nil {
		return nil, err
	}

	ram := blockcache.NewShardedLRUBlockCache(int64(ramSize), nil)
	if cc.Directory == "" {
		return ram, nil
	}

	diskSize, err := config.ParseSize(cc.DiskSize)
	if err != nil {
		return nil, err
	}

	comp, err := blockcache.ParseCompression(cc.Compression)
	if err != nil {
		return nil, err
	}

	disk, err := blockcache.NewDiskBlockCache(blockcache.DiskCacheConfig{
		RootDir:      cc.Directory,
		MaxSizeBytes: int64(diskSize),
		Compression:  comp,
	})
	if err != nil {
		return nil, err
	}

	return blockcache.NewTieredBlockCache(ram, disk), nil
}

// NewCatalog builds the catalog of cfg.
func NewCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, error) {
	switch cfg.Catalog.Kind {
	case "", "static":
		return catalog.FromConfig(cfg.Models), nil
	case "vis":
		settings, err := config.LoadVisFile(cfg.Catalog.VisFile)
		if err != nil {
			return nil, translateError(err)
		}

		return catalog.FromSettings(settings), nil
	case "dynamodb":
		return dynamodb.Dial(ctx, cfg.Catalog.Table, cfg.Catalog.Session)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidCatalog, cfg.Catalog.Kind)
	}
}

// NewLoggerFromConfig builds a text or JSON logger at the configured level.
func NewLoggerFromConfig(lc config.LoggingConfig) *Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}

	if strings.EqualFold(lc.Format, "json") {
		return NewJSONLogger(level)
	}

	return NewTextLogger(level)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
