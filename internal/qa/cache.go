package qa

import (
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
)

// Cache keeps composed answers keyed by tenant and normalized question
// signature. Entries expire by TTL only; there is no invalidation on
// writes, so answers may be briefly stale after a mutation.
type Cache struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	answer  string
	planSig string
	at      time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{TTL: ttl, Now: time.Now, entries: map[string]cacheEntry{}}
}

// Signature builds the tenant-scoped cache key for a question:
// lower-cased, whitespace-collapsed, prefixed with the tenant so
// answers never cross tenants.
func Signature(tenantID, text string) string {
	return tenantID + "|" + strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Get returns the answer for an exact signature match within TTL.
func (c *Cache) Get(sig string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sig]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.at) > c.TTL {
		delete(c.entries, sig)
		return "", false
	}
	return e.answer, true
}

// minLenRatio is the similarity bar for near-match lookups: the shorter
// signature must cover at least this fraction of the longer one.
const minLenRatio = 0.9

// GetNear returns the answer of a fresh near-match entry from the same
// tenant, but only when that entry was produced by the same call list
// the fresh plan resolves to. Different call lists mean a
// similar-looking question asks for different data, so the cache is
// bypassed.
func (c *Cache) GetNear(sig, planSig string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	tenant, question, _ := strings.Cut(sig, "|")
	var keys, questions []string
	for k, e := range c.entries {
		if now.Sub(e.at) > c.TTL {
			delete(c.entries, k)
			continue
		}
		kt, kq, _ := strings.Cut(k, "|")
		if kt != tenant {
			continue
		}
		keys = append(keys, k)
		questions = append(questions, kq)
	}
	for _, m := range fuzzy.Find(question, questions) {
		if !similarLength(question, questions[m.Index]) {
			continue
		}
		if e := c.entries[keys[m.Index]]; e.planSig == planSig {
			return e.answer, true
		}
	}
	return "", false
}

func (c *Cache) Put(sig, planSig, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sig] = cacheEntry{answer: answer, planSig: planSig, at: c.now()}
}

func similarLength(a, b string) bool {
	la, lb := len(a), len(b)
	if la > lb {
		la, lb = lb, la
	}
	if lb == 0 {
		return false
	}
	return float64(la)/float64(lb) >= minLenRatio
}
