// Package cache implements the Cache Store (spec §4.3): durable per-day
// storage of canonical Frames with metadata, expiry, and digest
// verification.
//
// The atomic write path (write-to-temp, fsync, rename) is adapted from the
// teacher's internal/replication/executors_warm_cold.go performFileTransfer,
// which uses the identical temp-suffix + sha256 checksum + os.Rename
// sequence for file replication. The metadata index is fronted by an
// in-process TTL cache (github.com/patrickmn/go-cache, as used for the
// same purpose in winson1234-Hedgetechs) and optionally backed by Redis
// (github.com/redis/go-redis/v9, as in the teacher's
// src/infrastructure/data/cache.go RedisCacheManager) for sharing the
// index across processes.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/errorsx"
)

// Key identifies a cache entry's provider/market/chart/symbol/interval
// dimensions; Day is supplied separately per the "one day = one entry"
// invariant (spec §3).
type Key struct {
	Provider   string
	MarketType string
	ChartType  string
	Symbol     string
	Interval   string
}

// String renders the key's deterministic storage-layout path components
// (spec §6): <provider>/<market_type>/<chart_type>/daily/<SYMBOL>/<interval>
func (k Key) String() string {
	return filepath.Join(k.Provider, k.MarketType, k.ChartType, "daily", k.Symbol, k.Interval)
}

// Entry mirrors spec's CacheEntry: a record of one day's cached frame.
type Entry struct {
	Key            Key
	Day            string // YYYY-MM-DD
	FirstBarOpenUs int64
	LastBarOpenUs  int64
	RecordCount    int
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Digest         string
	FilePath       string
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// metaKey builds the in-process index key for (Key, day).
func metaKey(k Key, day string) string {
	return k.String() + "/" + day
}

// Store is the Cache Store. A single process-wide instance should be
// shared; it serializes metadata updates under mu and relies on atomic
// file rename for the single-writer-per-key+day guarantee (spec §4.3
// concurrency contract).
type Store struct {
	rootPath string
	mu       sync.Mutex // serializes metadata updates; readers use index snapshots
	index    *gocache.Cache
	redis    *redis.Client // optional: shares the metadata index across processes
}

// NewStore creates a Cache Store rooted at rootPath. expiryDefault is the
// lifetime of an entry in the in-process metadata index (swept every
// 2*expiryDefault); after it lapses the entry is read again from Redis or
// metadata.json. An entry's own expiry is the ExpiresAt passed to Put.
func NewStore(rootPath string, expiryDefault time.Duration) *Store {
	return &Store{
		rootPath: rootPath,
		index:    gocache.New(expiryDefault, expiryDefault*2),
	}
}

// SetRedis attaches a distributed metadata mirror, adapted from the
// teacher's RedisCacheManager: entries stored here are also pushed to
// client so multiple processes sharing rootPath's filesystem (e.g. an NFS
// mount) converge on one metadata view instead of each rebuilding its own
// in-process index from metadata.json alone.
func (s *Store) SetRedis(client *redis.Client) {
	s.redis = client
}

func (s *Store) dataPath(k Key, day string) string {
	return filepath.Join(s.rootPath, "data", k.String(), day+".json")
}

func (s *Store) metaPath() string {
	return filepath.Join(s.rootPath, "metadata.json")
}

// Get loads the day's frame if an entry exists, is not expired, and its
// digest matches the file contents. An expired, missing or unparseable
// entry is invalidated and returned as (nil, false, nil). On digest
// mismatch the entry is invalidated and Get returns (nil, false) with a
// CacheCorruption error; the next Get for that day is a plain miss
// (spec §4.3 failure mode (a)/(b)).
func (s *Store) Get(ctx context.Context, k Key, day string) (*bar.Frame, bool, error) {
	entry, ok := s.loadEntry(k, day)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		s.Invalidate(ctx, k, day)
		return nil, false, nil
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		s.Invalidate(ctx, k, day)
		return nil, false, nil
	}
	if digest(data) != entry.Digest {
		s.Invalidate(ctx, k, day)
		return nil, false, errorsx.New(errorsx.CacheCorruption, "cache", fmt.Sprintf("digest mismatch for %s/%s", k, day), nil)
	}

	var frame bar.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.Invalidate(ctx, k, day)
		return nil, false, nil
	}
	return &frame, true, nil
}

// Put writes frame atomically: serialize -> write to a temp file in the
// same directory -> fsync -> rename over the final path, then updates the
// metadata entry with the new digest and expiry. Adapted from
// executors_warm_cold.go's performFileTransfer temp-write+rename sequence.
func (s *Store) Put(ctx context.Context, k Key, day string, frame bar.Frame, expiresAt time.Time) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errorsx.New(errorsx.InternalInvariant, "cache", "marshal frame", err)
	}

	finalPath := s.dataPath(k, day)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}

	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cache: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: atomic rename: %w", err)
	}

	entry := Entry{
		Key: k, Day: day,
		RecordCount: frame.Len(),
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
		Digest:      digest(data),
		FilePath:    finalPath,
	}
	if frame.ChartType == bar.ChartKlines && len(frame.Bars) > 0 {
		entry.FirstBarOpenUs = frame.Bars[0].OpenTimeUs
		entry.LastBarOpenUs = frame.Bars[len(frame.Bars)-1].OpenTimeUs
	}

	return s.storeEntry(entry)
}

// Invalidate deletes the file and metadata entry for (k, day).
func (s *Store) Invalidate(ctx context.Context, k Key, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Delete(metaKey(k, day))
	if s.redis != nil {
		s.redis.Del(context.Background(), metaKey(k, day))
	}
	if entry, ok := s.readMetadataLocked(k, day); ok {
		os.Remove(entry.FilePath)
	}
	return s.deleteMetadataLocked(k, day)
}

// ListDays returns every known day string for k, in metadata order. It
// takes no range; narrowing to a window is left to the caller.
func (s *Store) ListDays(ctx context.Context, k Key) ([]string, error) {
	all, err := s.readAllMetadata()
	if err != nil {
		return nil, err
	}
	var days []string
	for _, e := range all {
		if e.Key == k {
			days = append(days, e.Day)
		}
	}
	return days, nil
}

// Validate walks all metadata entries and re-verifies each digest against
// its file, per SPEC_FULL.md §3's cache-integrity supplement.
func (s *Store) Validate(ctx context.Context) (Report, error) {
	all, err := s.readAllMetadata()
	if err != nil {
		return Report{}, err
	}
	var report Report
	for _, e := range all {
		report.Checked++
		data, err := os.ReadFile(e.FilePath)
		if err != nil {
			report.Missing = append(report.Missing, e)
			continue
		}
		if digest(data) != e.Digest {
			report.Corrupt = append(report.Corrupt, e)
		}
	}
	return report, nil
}

// Repair removes entries that Validate found missing or corrupt, so the
// next Get for that (key, day) is a clean miss and triggers a normal
// re-fetch.
func (s *Store) Repair(ctx context.Context) (Report, error) {
	report, err := s.Validate(ctx)
	if err != nil {
		return report, err
	}
	for _, e := range append(append([]Entry{}, report.Missing...), report.Corrupt...) {
		s.Invalidate(ctx, e.Key, e.Day)
	}
	return report, nil
}

// Report summarizes a Validate/Repair pass.
type Report struct {
	Checked int
	Missing []Entry
	Corrupt []Entry
}

// Stats summarizes the cache's current holdings for the `dsm cache stats`
// CLI subcommand (SPEC_FULL.md §6): how many day-entries are stored, how
// much disk they occupy, and the oldest/newest day on file.
type Stats struct {
	Entries    int
	TotalBytes int64
	OldestDay  string
	NewestDay  string
}

// Stats walks the metadata index and reports aggregate counts. Missing
// files (already removed out-of-band) are skipped rather than failing
// the whole call, matching Validate's tolerance for a torn-down entry.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	all, err := s.readAllMetadata()
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, e := range all {
		st.Entries++
		if info, statErr := os.Stat(e.FilePath); statErr == nil {
			st.TotalBytes += info.Size()
		}
		if st.OldestDay == "" || e.Day < st.OldestDay {
			st.OldestDay = e.Day
		}
		if e.Day > st.NewestDay {
			st.NewestDay = e.Day
		}
	}
	return st, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// --- metadata persistence -------------------------------------------------
//
// metadata.json is the process-wide mapping from key -> CacheEntry,
// persisted alongside the data files and updated atomically (spec §3
// CacheMetadata). The in-process go-cache index is an optimization in
// front of it; metadata.json remains the durable source of truth so the
// index can be rebuilt after restart.

type metadataFile struct {
	Entries []Entry `json:"entries"`
}

func (s *Store) readAllMetadata() ([]Entry, error) {
	data, err := os.ReadFile(s.metaPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read metadata: %w", err)
	}
	var mf metadataFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("cache: parse metadata: %w", err)
	}
	return mf.Entries, nil
}

func (s *Store) readMetadataLocked(k Key, day string) (Entry, bool) {
	if v, ok := s.index.Get(metaKey(k, day)); ok {
		return v.(Entry), true
	}
	if s.redis != nil {
		if e, ok := s.readRedisEntry(k, day); ok {
			s.index.Set(metaKey(k, day), e, gocache.DefaultExpiration)
			return e, true
		}
	}
	all, err := s.readAllMetadata()
	if err != nil {
		return Entry{}, false
	}
	for _, e := range all {
		if e.Key == k && e.Day == day {
			return e, true
		}
	}
	return Entry{}, false
}

// readRedisEntry looks up a mirrored metadata entry. Redis unavailability
// degrades to a miss here, not an error: the caller falls through to the
// durable metadata.json.
func (s *Store) readRedisEntry(k Key, day string) (Entry, bool) {
	data, err := s.redis.Get(context.Background(), metaKey(k, day)).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

// writeRedisEntry mirrors entry into Redis with the same expiry as the
// entry itself (no expiry if ExpiresAt is zero).
func (s *Store) writeRedisEntry(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			return
		}
	}
	s.redis.Set(context.Background(), metaKey(entry.Key, entry.Day), data, ttl)
}

func (s *Store) loadEntry(k Key, day string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMetadataLocked(k, day)
}

// storeEntry persists a new/updated metadata entry atomically and refreshes
// the in-process index.
func (s *Store) storeEntry(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAllMetadata()
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range all {
		if e.Key == entry.Key && e.Day == entry.Day {
			all[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, entry)
	}

	if err := s.writeMetadataLocked(all); err != nil {
		return err
	}
	s.index.Set(metaKey(entry.Key, entry.Day), entry, gocache.DefaultExpiration)
	if s.redis != nil {
		s.writeRedisEntry(entry)
	}
	return nil
}

func (s *Store) deleteMetadataLocked(k Key, day string) error {
	all, err := s.readAllMetadata()
	if err != nil {
		return err
	}
	out := all[:0]
	for _, e := range all {
		if e.Key == k && e.Day == day {
			continue
		}
		out = append(out, e)
	}
	return s.writeMetadataLocked(out)
}

// writeMetadataLocked serializes and atomically writes metadata.json,
// mirroring Put's temp-write+fsync+rename sequence. Callers must hold s.mu.
func (s *Store) writeMetadataLocked(entries []Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(metadataFile{Entries: entries}); err != nil {
		return fmt.Errorf("cache: marshal metadata: %w", err)
	}

	path := s.metaPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir for metadata: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: create temp metadata: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache: write temp metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache: fsync temp metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: atomic rename metadata: %w", err)
	}
	return nil
}
