// Package graph implements the abstract knowledge-graph capability
// consumed by the core (spec.md §6): get_file_by_path,
// get_contents_by_property, get_related_nodes, get_dependencies.
// Responses are opaque property bags. A local modernc.org/sqlite cache
// sits in front of an HTTP-JSON remote source so repeated within-run
// queries don't re-hit the network, grounded on the teacher's
// local-cache-over-remote-source pattern for store-backed lookups.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	_ "modernc.org/sqlite"

	"codenerd/internal/logging"
)

// Node is an opaque property bag, matching spec.md §6's "responses are
// opaque property bags".
type Node struct {
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
}

// Client consumes the knowledge-graph capability. When the graph is
// empty or unreachable, every method degrades gracefully to (nil, nil)
// rather than an error - the core then skips dependency enrichment and
// proceeds with direct-file context only, per spec.md §6.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *sql.DB
}

// New constructs a Client backed by an HTTP remote and a local sqlite
// cache database at cachePath (":memory:" is accepted for tests).
func New(baseURL, cachePath string, timeout time.Duration) (*Client, error) {
	db, err := sql.Open("sqlite", cachePath)
	if err != nil {
		return nil, fmt.Errorf("open graph cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS node_cache (
		cache_key TEXT PRIMARY KEY,
		payload   TEXT NOT NULL,
		cached_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      db,
	}, nil
}

// Close releases the local cache database handle.
func (c *Client) Close() error {
	return c.cache.Close()
}

// GetFileByPath returns the file node for path, or nil if absent or the
// graph is unreachable.
func (c *Client) GetFileByPath(ctx context.Context, path string) (*Node, error) {
	return c.cachedFetch(ctx, "file:"+path, fmt.Sprintf("%s/files/by-path?path=%s", c.baseURL, path))
}

// GetContentsByProperty returns nodes matching kind/key/value.
func (c *Client) GetContentsByProperty(ctx context.Context, kind, key, value string) ([]Node, error) {
	return c.cachedFetchMany(ctx, fmt.Sprintf("contents:%s:%s:%s", kind, key, value),
		fmt.Sprintf("%s/contents?kind=%s&key=%s&value=%s", c.baseURL, kind, key, value))
}

// GetRelatedNodes returns nodes related to nodeID by relation, up to
// depth hops.
func (c *Client) GetRelatedNodes(ctx context.Context, nodeID, relation string, depth int) ([]Node, error) {
	return c.cachedFetchMany(ctx, fmt.Sprintf("related:%s:%s:%d", nodeID, relation, depth),
		fmt.Sprintf("%s/related?node=%s&relation=%s&depth=%d", c.baseURL, nodeID, relation, depth))
}

// GetDependencies returns the dependency nodes of symbolID.
func (c *Client) GetDependencies(ctx context.Context, symbolID string) ([]Node, error) {
	return c.cachedFetchMany(ctx, "deps:"+symbolID, fmt.Sprintf("%s/dependencies?symbol=%s", c.baseURL, symbolID))
}

func (c *Client) cachedFetch(ctx context.Context, key, url string) (*Node, error) {
	if cached, ok := c.readCache(key); ok {
		var n Node
		if err := json.Unmarshal([]byte(cached), &n); err == nil {
			return &n, nil
		}
	}

	body, err := c.get(ctx, url)
	if err != nil {
		logging.Adapters("graph unreachable, degrading to direct-file context: %v", err)
		return nil, nil
	}
	if len(body) == 0 {
		return nil, nil
	}

	var n Node
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, nil
	}
	c.writeCache(key, string(body))
	return &n, nil
}

func (c *Client) cachedFetchMany(ctx context.Context, key, url string) ([]Node, error) {
	if cached, ok := c.readCache(key); ok {
		var nodes []Node
		if err := json.Unmarshal([]byte(cached), &nodes); err == nil {
			return nodes, nil
		}
	}

	body, err := c.get(ctx, url)
	if err != nil {
		logging.Adapters("graph unreachable, degrading to direct-file context: %v", err)
		return nil, nil
	}
	if len(body) == 0 {
		return nil, nil
	}

	var nodes []Node
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, nil
	}
	c.writeCache(key, string(body))
	return nodes, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("graph request failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) readCache(key string) (string, bool) {
	var payload string
	err := c.cache.QueryRow(`SELECT payload FROM node_cache WHERE cache_key = ?`, key).Scan(&payload)
	if err != nil {
		return "", false
	}
	return payload, true
}

func (c *Client) writeCache(key, payload string) {
	_, err := c.cache.Exec(`INSERT INTO node_cache (cache_key, payload, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		key, payload, time.Now().UnixMilli())
	if err != nil {
		logging.AdaptersDebug("graph cache write failed for key=%s: %v", key, err)
	}
}
