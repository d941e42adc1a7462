package inflight

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerConfig configures the BadgerDB store tier.
type BadgerConfig struct {
	// Dir holds the LSM tree and metadata; ValueDir the value log files.
	// They may be the same directory.
	Dir      string
	ValueDir string

	// SyncWrites syncs every write to disk. Off by default: a warm-cache
	// tier tolerates losing the newest writes on a crash.
	SyncWrites bool

	Compression        options.CompressionType
	ZSTDCompressionLvl int

	// DetectConflicts is expensive and pointless for last-write-wins
	// cache entries.
	DetectConflicts bool

	ValueThreshold int
	MemTableSize   int64
	IndexCacheSize int64
	BlockCacheSize int64
	MaxTableSize   int64
	NumCompactors  int

	ValueLogFileSize int64

	// Value log garbage collection.
	GCInterval     time.Duration
	GCDiscardRatio float64

	Logger badger.Logger
}

// DefaultBadgerConfig returns defaults tuned for small serialized query
// results: no compression, generous memtables, aggressive value-log GC.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:      dir,
		ValueDir: dir,

		SyncWrites:      false,
		Compression:     options.None,
		DetectConflicts: false,

		ValueThreshold: 4 << 10,  // 4KB
		MemTableSize:   64 << 20, // 64MB
		MaxTableSize:   64 << 20, // 64MB
		IndexCacheSize: 0,
		BlockCacheSize: 0,

		NumCompactors: runtime.GOMAXPROCS(0),

		ValueLogFileSize: 256 << 20, // 256MB

		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.7,
	}
}

type badgerStore struct {
	db             *badger.DB
	gcInterval     time.Duration
	gcDiscardRatio float64

	closeOnce sync.Once
	wg        sync.WaitGroup
	doneCh    chan struct{}
}

var _ Store = (*badgerStore)(nil)

// NewBadgerStore opens a BadgerDB-backed Store. Opening is blocking, so it
// runs in a goroutine and ctx can abandon it.
func NewBadgerStore(ctx context.Context, cfg BadgerConfig) (Store, error) {
	opts := badger.
		DefaultOptions(cfg.Dir).
		WithValueDir(cfg.ValueDir).
		WithSyncWrites(cfg.SyncWrites).
		WithCompression(cfg.Compression).
		WithZSTDCompressionLevel(cfg.ZSTDCompressionLvl).
		WithDetectConflicts(cfg.DetectConflicts).
		WithMemTableSize(cfg.MemTableSize).
		WithIndexCacheSize(cfg.IndexCacheSize).
		WithBlockCacheSize(cfg.BlockCacheSize).
		WithBaseTableSize(cfg.MaxTableSize).
		WithNumCompactors(cfg.NumCompactors).
		WithValueLogFileSize(cfg.ValueLogFileSize).
		WithValueThreshold(int64(cfg.ValueThreshold)).
		WithChecksumVerificationMode(options.NoVerification)

	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	}

	type openResult struct {
		db  *badger.DB
		err error
	}
	resCh := make(chan openResult, 1)
	go func() {
		db, err := badger.Open(opts)
		resCh <- openResult{db: db, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resCh:
		if r.err != nil {
			return nil, r.err
		}
		st := &badgerStore{
			db:             r.db,
			gcInterval:     cfg.GCInterval,
			gcDiscardRatio: cfg.GCDiscardRatio,
			doneCh:         make(chan struct{}),
		}
		st.wg.Add(1)
		go st.runValueLogGC()
		return st, nil
	}
}

func (b *badgerStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry *Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}

		return item.Value(func(v []byte) error {
			var e Entry
			if err := e.Unmarshal(v); err != nil {
				return err
			}
			entry = &e
			return nil
		})
	})

	return entry, err
}

func (b *badgerStore) Set(ctx context.Context, key string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := entry.Marshal()
	if err != nil {
		return err
	}

	// Map the entry's expiry to a storage-level TTL so badger reclaims
	// dead entries on its own. Already-expired entries get a short grace
	// window rather than an instant drop.
	var ttl time.Duration
	if entry.ExpiresAfter > 0 {
		now := time.Now().UnixMilli()
		if entry.ExpiresAfter > now {
			ttl = time.Duration(entry.ExpiresAfter-now) * time.Millisecond
		} else {
			ttl = 30 * time.Second
		}
	}

	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *badgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *badgerStore) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.doneCh)
		b.wg.Wait()
		err = b.db.Close()
	})
	return err
}

// runValueLogGC periodically compacts the value log. badger.ErrNoRewrite
// just means there was nothing worth rewriting this round.
func (b *badgerStore) runValueLogGC() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				if err := b.db.RunValueLogGC(b.gcDiscardRatio); err != nil {
					break
				}
			}
		case <-b.doneCh:
			return
		}
	}
}
