package history

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/zap"
)

// Store persists clipboard entries in leveldb. Keys are big-endian sequence
// numbers so iteration order is append order; values are the entry's
// timestamp (unix nanoseconds, 8 bytes) followed by its data.
type Store struct {
	db     *leveldb.DB
	closed bool
	mu     sync.RWMutex
	logger *zap.Logger
}

// OpenStore opens or creates the leveldb database at path
func OpenStore(path string, logger *zap.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening history store %s: %w", path, err)
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	logger.Info("Opened history store", zap.String("path", path))
	return newStore(db, logger), nil
}

func newStore(db *leveldb.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Put writes one entry
func (s *Store) Put(e Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	value := make([]byte, 8, 8+len(e.Data))
	binary.BigEndian.PutUint64(value, uint64(e.AddedAt.UnixNano()))
	value = append(value, e.Data...)

	return s.db.Put(seqKey(e.Seq), value, nil)
}

// Load returns up to limit entries, newest first
func (s *Store) Load(limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var entries []Entry
	for ok := iter.Last(); ok && len(entries) < limit; ok = iter.Prev() {
		entry, err := decodeEntry(iter.Key(), iter.Value())
		if err != nil {
			s.logger.Warn("Skipping corrupt history record", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, iter.Error()
}

// LastSeq returns the highest sequence number present, whether or not its
// record decodes. Zero means the store is empty.
func (s *Store) LastSeq() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	for ok := iter.Last(); ok; ok = iter.Prev() {
		if key := iter.Key(); len(key) == 8 {
			return binary.BigEndian.Uint64(key), nil
		}
	}
	return 0, iter.Error()
}

// Trim deletes everything but the newest keep entries
func (s *Store) Trim(keep int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	seen := 0
	for ok := iter.Last(); ok; ok = iter.Prev() {
		seen++
		if seen > keep {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	s.logger.Debug("Trimming history store", zap.Int("deleted", batch.Len()))
	return s.db.Write(batch, nil)
}

// Close closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func decodeEntry(key, value []byte) (Entry, error) {
	if len(key) != 8 || len(value) < 8 {
		return Entry{}, fmt.Errorf("record %x has %d value bytes", key, len(value))
	}
	return Entry{
		Seq:     binary.BigEndian.Uint64(key),
		AddedAt: time.Unix(0, int64(binary.BigEndian.Uint64(value))),
		Data:    append([]byte(nil), value[8:]...),
	}, nil
}
