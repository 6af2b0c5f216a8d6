package cache

import "fmt"

// Stats is a snapshot of the cache's accumulated counters. Counters grow
// monotonically for the life of the store; only Clear resets them.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	TotalSize int64
	ItemCount int
	HitRate   float64
	HumanSize string
}

// Stats returns the current counters plus derived hit rate and a
// human-readable size.
func (c *FileCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		TotalSize: c.totalSize,
		ItemCount: len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	s.HumanSize = formatBytes(c.totalSize)
	return s
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
