package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/metrics"
)

// ClipCache holds synthesized sentence audio. Lookups check memory first,
// then disk, promoting disk hits into memory. Writes land in memory
// synchronously and on disk in the background.
type ClipCache struct {
	memory *MemoryCache
	disk   *DiskCache
	config Config

	stop chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewClipCache opens the clip cache described by config.
func NewClipCache(config Config) (*ClipCache, error) {
	if config.DiskPath == "" {
		return nil, fmt.Errorf("clip cache: disk path is required")
	}

	disk, err := NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	cc := &ClipCache{
		memory: NewMemoryCache(config.MemoryCapacity),
		disk:   disk,
		config: config,
		stop:   make(chan struct{}),
	}

	if config.TTL > 0 {
		if n := disk.RemoveOlderThan(time.Now().Add(-config.TTL)); n > 0 {
			log.Debug("Expired cached clips", "count", n)
		}
	}
	if config.CleanupInterval > 0 {
		cc.wg.Add(1)
		go cc.sweep()
	}
	return cc, nil
}

// Key derives the cache key for one sentence rendering. Backend keeps local
// and remote audio for the same sentence apart.
func Key(backend, text, voice string, speed float64) string {
	data := fmt.Sprintf("%s|%s|%s|%.2f", backend, text, voice, speed)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// Get returns cached PCM for key.
func (cc *ClipCache) Get(key string) ([]byte, bool) {
	if data, ok := cc.memory.Get(key); ok {
		metrics.CacheHit(LevelMemory.String())
		return data, true
	}
	if data, ok := cc.disk.Get(key); ok {
		metrics.CacheHit(LevelDisk.String())
		_ = cc.memory.Put(key, data)
		return data, true
	}
	metrics.CacheMiss()
	return nil, false
}

// Put stores PCM for key.
func (cc *ClipCache) Put(key string, pcm []byte) {
	if err := cc.memory.Put(key, pcm); err != nil && err != ErrItemTooLarge {
		log.Warn("Memory cache write failed", "err", err)
	}

	cc.wg.Add(1)
	go func() {
		defer cc.wg.Done()
		if err := cc.disk.Put(key, pcm); err != nil && err != ErrItemTooLarge {
			log.Warn("Disk cache write failed", "err", err)
		}
	}()
}

// Clear empties both tiers.
func (cc *ClipCache) Clear() error {
	if err := cc.memory.Clear(); err != nil {
		return fmt.Errorf("memory clear: %w", err)
	}
	if err := cc.disk.Clear(); err != nil {
		return fmt.Errorf("disk clear: %w", err)
	}
	return nil
}

// Stats returns per-tier statistics.
func (cc *ClipCache) Stats() map[Level]Stats {
	return map[Level]Stats{
		LevelMemory: cc.memory.Stats(),
		LevelDisk:   cc.disk.Stats(),
	}
}

// Close waits for pending disk writes and saves the index.
func (cc *ClipCache) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		close(cc.stop)
		cc.wg.Wait()
		if cerr := cc.disk.Close(); cerr != nil {
			err = fmt.Errorf("failed to close disk cache: %w", cerr)
		}
	})
	return err
}

func (cc *ClipCache) sweep() {
	defer cc.wg.Done()

	t := time.NewTicker(cc.config.CleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-cc.stop:
			return
		case <-t.C:
		}
		if cc.config.TTL <= 0 {
			continue
		}
		removed := cc.disk.RemoveOlderThan(time.Now().Add(-cc.config.TTL))
		pruned := cc.memory.Prune(cc.config.TTL)
		if removed+pruned > 0 {
			log.Debug("Cache sweep", "disk_removed", removed, "memory_pruned", pruned)
		}
	}
}
