// Package badgerstore persists simvol inode tables in BadgerDB.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/metrics"
	"github.com/marmos91/gfapi/pkg/native/simvol"
)

// storeKind labels this store in metrics.
const storeKind = "badger"

// Store implements simvol.MetadataStore on BadgerDB.
//
// Storage Model:
// One key per inode, "i:<volume>:<ino as 16 hex digits>", holding the JSON
// record produced by simvol.EncodeInode. The fixed-width inode number keeps
// a volume's records contiguous and ordered, so loading a volume is a single
// prefix scan.
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use; the store holds no
// other state.
type Store struct {
	db      *badger.DB
	metrics metrics.StoreMetrics
}

// Config configures a Store.
type Config struct {
	// DBPath is the directory BadgerDB keeps its files in.
	DBPath string

	// InMemory runs BadgerDB without touching disk (tests).
	InMemory bool

	// BadgerOptions overrides the defaults below when set.
	BadgerOptions *badger.Options

	// Metrics receives one observation per transaction. Default: no-op.
	Metrics metrics.StoreMetrics
}

// New opens (or creates) the database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.BadgerOptions != nil {
		opts = *cfg.BadgerOptions
	} else {
		opts = badger.DefaultOptions(cfg.DBPath)
		if cfg.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		}
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None) // records are small JSON
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}

	logger.Debug("badgerstore: opened %s", cfg.DBPath)
	return &Store{db: db, metrics: m}, nil
}

func (s *Store) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveOperation(storeKind, operation, time.Since(start), err)
}

func volumePrefix(volume string) []byte {
	return []byte("i:" + volume + ":")
}

func keyInode(volume string, ino uint64) []byte {
	key := volumePrefix(volume)
	return append(key, fmt.Sprintf("%016x", ino)...)
}

// LoadInodes scans every record of the volume.
func (s *Store) LoadInodes(ctx context.Context, volume string) ([]*simvol.Inode, error) {
	var inodes []*simvol.Inode
	var loaded int64

	start := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = volumePrefix(volume)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if len(inodes)%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := it.Item()
			ino, err := parseIno(item.Key())
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				in, err := simvol.DecodeInode(val)
				if err != nil {
					return fmt.Errorf("record %s: %w", item.Key(), err)
				}
				if in.Ino != ino {
					return fmt.Errorf("record %s holds inode %d", item.Key(), in.Ino)
				}
				loaded += int64(len(val))
				inodes = append(inodes, in)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	s.observe("LoadInodes", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load volume %s: %w", volume, err)
	}
	s.metrics.RecordBytes(storeKind, "read", loaded)
	return inodes, nil
}

func (s *Store) PutInode(ctx context.Context, volume string, in *simvol.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := simvol.EncodeInode(in)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyInode(volume, in.Ino), data)
	})
	s.observe("PutInode", start, err)
	if err != nil {
		return err
	}
	s.metrics.RecordBytes(storeKind, "write", int64(len(data)))
	return nil
}

func (s *Store) DeleteInode(ctx context.Context, volume string, ino uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(keyInode(volume, ino))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	s.observe("DeleteInode", start, err)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// parseIno decodes the inode number suffix of a key.
func parseIno(key []byte) (uint64, error) {
	if len(key) < 16 {
		return 0, fmt.Errorf("short key %q", key)
	}
	return strconv.ParseUint(string(key[len(key)-16:]), 16, 64)
}
