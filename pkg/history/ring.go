package history

import (
	"sync"
	"time"

	"github.com/OccDeser/uniclip/internal/telemetry"
	"go.uber.org/zap"
)

// DefaultCapacity is how many clipboard entries are kept
const DefaultCapacity = 16

// Config represents history configuration
type Config struct {
	Capacity int `yaml:"capacity"`

	// StorePath enables leveldb persistence when set
	StorePath string `yaml:"store_path"`
}

// DefaultConfig keeps 16 entries in memory only
func DefaultConfig() *Config {
	return &Config{
		Capacity: DefaultCapacity,
	}
}

// Entry is one clipboard payload
type Entry struct {
	Seq     uint64
	Data    []byte
	AddedAt time.Time
}

// Option customizes a Ring
type Option func(*Ring)

// WithLogger sets the ring's logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Ring) {
		r.logger = logger
	}
}

// WithStore makes the ring write through to an already opened store
func WithStore(store *Store) Option {
	return func(r *Ring) {
		r.store = store
	}
}

// Ring is a bounded clipboard history, newest entry first. Appending to a
// full ring drops the oldest entry.
type Ring struct {
	capacity int
	entries  []Entry
	nextSeq  uint64
	updated  bool
	mu       sync.RWMutex

	store  *Store
	logger *zap.Logger
}

// NewRing creates a history ring. When a store is configured its newest
// entries are loaded back into the ring.
func NewRing(config *Config, opts ...Option) (*Ring, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	r := &Ring{
		capacity: config.Capacity,
		entries:  make([]Entry, 0, config.Capacity),
		nextSeq:  1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger, _ = zap.NewProduction()
	}

	if r.store == nil && config.StorePath != "" {
		store, err := OpenStore(config.StorePath, r.logger)
		if err != nil {
			return nil, err
		}
		r.store = store
	}

	if r.store != nil {
		if err := r.restore(); err != nil {
			return nil, err
		}
	}

	telemetry.HistoryEntries.Set(float64(len(r.entries)))
	return r, nil
}

// Append records a copy of data as the newest entry
func (r *Ring) Append(data []byte) {
	r.mu.Lock()
	entry := Entry{
		Seq:     r.nextSeq,
		Data:    append([]byte(nil), data...),
		AddedAt: time.Now(),
	}
	r.nextSeq++

	if len(r.entries) == r.capacity {
		r.entries = r.entries[:r.capacity-1]
	}
	r.entries = append(r.entries, Entry{})
	copy(r.entries[1:], r.entries)
	r.entries[0] = entry
	r.updated = true
	size := len(r.entries)
	r.mu.Unlock()

	telemetry.HistoryEntries.Set(float64(size))

	r.logger.Debug("Clipboard entry added",
		zap.Uint64("seq", entry.Seq),
		zap.Int("bytes", len(entry.Data)),
		zap.Int("history_size", size))

	if r.store == nil {
		return
	}
	if err := r.store.Put(entry); err != nil {
		r.logger.Warn("Failed to persist clipboard entry",
			zap.Uint64("seq", entry.Seq),
			zap.Error(err))
		return
	}
	if err := r.store.Trim(r.capacity); err != nil {
		r.logger.Warn("Failed to trim clipboard store", zap.Error(err))
	}
}

// Entries returns a copy of the history, newest first
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Latest returns the newest entry's data
func (r *Ring) Latest() ([]byte, error) {
	return r.Get(0)
}

// Get returns the data of the i-th newest entry
func (r *Ring) Get(i int) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil, ErrEmpty
	}
	if i < 0 || i >= len(r.entries) {
		return nil, ErrIndexOutOfRange
	}
	return append([]byte(nil), r.entries[i].Data...), nil
}

// Len returns the number of entries held
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cap returns the ring's capacity
func (r *Ring) Cap() int {
	return r.capacity
}

// Updated reports whether an entry was appended since the last TakeUpdated
func (r *Ring) Updated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updated
}

// TakeUpdated returns the updated flag and clears it
func (r *Ring) TakeUpdated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := r.updated
	r.updated = false
	return updated
}

// Close releases the store, if any
func (r *Ring) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *Ring) restore() error {
	lastSeq, err := r.store.LastSeq()
	if err != nil {
		return err
	}
	// Continue after the highest key even if its record was unreadable,
	// otherwise the next append would overwrite it
	r.nextSeq = lastSeq + 1

	entries, err := r.store.Load(r.capacity)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	r.entries = append(r.entries, entries...)

	r.logger.Info("Restored clipboard history",
		zap.Int("entries", len(entries)),
		zap.Uint64("latest_seq", lastSeq))
	return nil
}
