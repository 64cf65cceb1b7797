package gitlab_http

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Older gitlab versions do not expose Pipeline.ref in their graphql schema.
// The answer is cached per host for a day so the probe does not run (and
// potentially fail) on every refresh cycle.
const capabilityTTL = 24 * time.Hour

const refProbeQuery = `{ __type(name: "Pipeline") { fields { name } } }`

type capabilityEntry struct {
	supportsRef bool
	lastChecked time.Time
}

type capabilityCache struct {
	mu      sync.Mutex
	entries map[string]capabilityEntry
	ttl     time.Duration
	now     func() time.Time
}

func newCapabilityCache() *capabilityCache {
	return &capabilityCache{
		entries: make(map[string]capabilityEntry),
		ttl:     capabilityTTL,
		now:     time.Now,
	}
}

type probeFunc func(ctx context.Context, host, token string) (bool, error)

// supportsRef returns the cached capability for host, probing when the
// entry is missing or older than the freshness window. A failed probe
// degrades to false instead of failing the caller.
func (cc *capabilityCache) supportsRef(ctx context.Context, host string, probe probeFunc, token string) bool {
	cc.mu.Lock()
	if e, ok := cc.entries[host]; ok && cc.now().Sub(e.lastChecked) < cc.ttl {
		cc.mu.Unlock()
		return e.supportsRef
	}
	cc.mu.Unlock()

	supported, err := probe(ctx, host, token)
	if err != nil {
		supported = false
	}

	cc.mu.Lock()
	cc.entries[host] = capabilityEntry{supportsRef: supported, lastChecked: cc.now()}
	cc.mu.Unlock()
	return supported
}

// probeRefField asks the host's schema whether the Pipeline type has a ref
// field.
func (c *Client) probeRefField(ctx context.Context, host, token string) (bool, error) {
	body, err := c.graphQL(ctx, host, refProbeQuery, token)
	if err != nil {
		return false, err
	}

	var parsed struct {
		Data struct {
			Type *struct {
				Fields []struct {
					Name string `json:"name"`
				} `json:"fields"`
			} `json:"__type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, err
	}
	if parsed.Data.Type == nil {
		return false, nil
	}
	for _, f := range parsed.Data.Type.Fields {
		if f.Name == "ref" {
			return true, nil
		}
	}
	return false, nil
}
