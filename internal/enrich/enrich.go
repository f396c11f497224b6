package enrich

// Package enrich is a client for the Enrichr over-representation API.
// Gene lists are registered with addList and each gene-set library is
// queried with enrich. Responses are cached on disk so re-running an
// analysis does not hammer the service.

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the public Enrichr endpoint for human and mouse
// gene sets.
const DefaultBaseURL = "https://maayanlab.cloud/Enrichr"

// ErrEmptyGeneList is returned when Run is called without genes.
var ErrEmptyGeneList = errors.New("enrich: empty gene list")

// httpClient performs requests; tests may replace it with a mock transport.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// Pathway is one enriched term from a gene-set library.
type Pathway struct {
	GeneSet       string   `json:"gene_set"`
	Term          string   `json:"term"`
	P             float64  `json:"p_value"`
	AdjustedP     float64  `json:"adjusted_p_value"`
	ZScore        float64  `json:"z_score"`
	CombinedScore float64  `json:"combined_score"`
	Genes         []string `json:"genes"`
}

// Cache structures
type cachedEntry struct {
	Pathways    []Pathway `json:"pathways"`
	RetrievedAt int64     `json:"retrieved_at"`
}

var (
	cacheMu       sync.RWMutex
	cache         map[string]cachedEntry
	cacheLoaded   bool
	cacheFilePath string
	cacheTTLSecs  int64
)

// SetCacheFilePath overrides the on-disk cache location.
func SetCacheFilePath(path string) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cacheFilePath = path
	cache = nil
	cacheLoaded = false
}

// SetCacheTTLSeconds overrides the cache entry lifetime.
func SetCacheTTLSeconds(secs int64) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cacheTTLSecs = secs
}

// FlushCache writes the in-memory cache to disk.
func FlushCache() { saveCache() }

// cache TTL in seconds (default 7 days)
func cacheTTL() int64 {
	if cacheTTLSecs > 0 {
		return cacheTTLSecs
	}
	if s := os.Getenv("ENRICHR_CACHE_TTL_SECONDS"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	}
	return int64(7 * 24 * 3600)
}

func defaultCachePath() string {
	if cacheFilePath != "" {
		return cacheFilePath
	}
	if dir, err := os.UserCacheDir(); err == nil {
		p := filepath.Join(dir, "autobio")
		_ = os.MkdirAll(p, 0o755)
		return filepath.Join(p, "enrichr_cache.json")
	}
	return filepath.Join(os.TempDir(), "autobio_enrichr_cache.json")
}

func loadCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cacheLoaded {
		return
	}
	path := defaultCachePath()
	cache = make(map[string]cachedEntry)
	data, err := os.ReadFile(path)
	if err != nil {
		cacheLoaded = true
		return
	}
	_ = json.Unmarshal(data, &cache)
	cacheLoaded = true
}

func saveCache() {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	path := defaultCachePath()
	b, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, b, 0o644)
}

// cacheKey identifies a (gene list, library) query independent of gene
// order.
func cacheKey(genes []string, geneSet string) string {
	sorted := append([]string{}, genes...)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, ",") + "|" + geneSet))
	return hex.EncodeToString(sum[:])
}

func getCached(key string) ([]Pathway, bool) {
	loadCache()
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	e, ok := cache[key]
	if !ok {
		return nil, false
	}
	ttl := cacheTTL()
	if ttl > 0 && time.Now().Unix()-e.RetrievedAt > ttl {
		return nil, false
	}
	return e.Pathways, true
}

func setCached(key string, pathways []Pathway) {
	loadCache()
	cacheMu.Lock()
	cache[key] = cachedEntry{Pathways: pathways, RetrievedAt: time.Now().Unix()}
	cacheMu.Unlock()
	saveCache()
}

// BaseURLForOrganism maps an organism name to its Enrichr variant. Human
// and mouse share the main instance.
func BaseURLForOrganism(organism string) string {
	switch strings.ToLower(organism) {
	case "fly":
		return "https://maayanlab.cloud/FlyEnrichr"
	case "yeast":
		return "https://maayanlab.cloud/YeastEnrichr"
	case "worm":
		return "https://maayanlab.cloud/WormEnrichr"
	case "fish":
		return "https://maayanlab.cloud/FishEnrichr"
	default:
		return DefaultBaseURL
	}
}

type addListResponse struct {
	UserListID int64  `json:"userListId"`
	ShortID    string `json:"shortId"`
}

// AddList registers a gene list with Enrichr and returns its list id.
func AddList(ctx context.Context, baseURL string, genes []string, description string) (int64, error) {
	if len(genes) == 0 {
		return 0, ErrEmptyGeneList
	}
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("list", strings.Join(genes, "\n"))
	_ = mw.WriteField("description", description)
	_ = mw.Close()

	url := strings.TrimRight(baseURL, "/") + "/addList"
	body, err := doWithRetry(ctx, "POST", url, mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return 0, err
	}
	var out addListResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("enrich: parse addList response: %w (body: %s)", err, string(body))
	}
	if out.UserListID == 0 {
		return 0, fmt.Errorf("enrich: addList rejected gene list (body: %s)", string(body))
	}
	return out.UserListID, nil
}

// Enrich queries one gene-set library for a registered list, returning
// terms in the service's rank order.
func Enrich(ctx context.Context, baseURL string, listID int64, geneSet string) ([]Pathway, error) {
	url := fmt.Sprintf("%s/enrich?userListId=%d&backgroundType=%s",
		strings.TrimRight(baseURL, "/"), listID, geneSet)
	body, err := doWithRetry(ctx, "GET", url, "", nil)
	if err != nil {
		return nil, err
	}
	// Rows are positional arrays: rank, term, p, z-score, combined
	// score, overlapping genes, adjusted p, old p, old adjusted p.
	var payload map[string][]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("enrich: parse enrich response: %w", err)
	}
	rows, ok := payload[geneSet]
	if !ok {
		return nil, fmt.Errorf("enrich: response missing library %q", geneSet)
	}
	pathways := make([]Pathway, 0, len(rows))
	for _, raw := range rows {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < 7 {
			return nil, fmt.Errorf("enrich: malformed result row: %s", string(raw))
		}
		var p Pathway
		p.GeneSet = geneSet
		if err := json.Unmarshal(fields[1], &p.Term); err != nil {
			return nil, fmt.Errorf("enrich: malformed term: %s", string(fields[1]))
		}
		_ = json.Unmarshal(fields[2], &p.P)
		_ = json.Unmarshal(fields[3], &p.ZScore)
		_ = json.Unmarshal(fields[4], &p.CombinedScore)
		_ = json.Unmarshal(fields[5], &p.Genes)
		_ = json.Unmarshal(fields[6], &p.AdjustedP)
		pathways = append(pathways, p)
	}
	return pathways, nil
}

// Run registers genes once and queries every library, returning the
// pathways whose adjusted p-value passes the cutoff. Cached libraries
// are served without touching the network.
func Run(ctx context.Context, baseURL string, genes []string, description string, geneSets []string, cutoff float64) ([]Pathway, error) {
	if len(genes) == 0 {
		return nil, ErrEmptyGeneList
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var all []Pathway
	var missing []string
	for _, set := range geneSets {
		if cached, ok := getCached(cacheKey(genes, set)); ok {
			all = append(all, cached...)
			continue
		}
		missing = append(missing, set)
	}

	if len(missing) > 0 {
		listID, err := AddList(ctx, baseURL, genes, description)
		if err != nil {
			return nil, err
		}
		for _, set := range missing {
			pathways, err := Enrich(ctx, baseURL, listID, set)
			if err != nil {
				return nil, err
			}
			setCached(cacheKey(genes, set), pathways)
			all = append(all, pathways...)
		}
	}

	filtered := make([]Pathway, 0, len(all))
	for _, p := range all {
		if p.AdjustedP <= cutoff {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// doWithRetry performs the request up to three times, honouring
// Retry-After on 429 responses and backing off on transient failures.
func doWithRetry(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("User-Agent", "autobio/1.0 (https://github.com/stmball/auto-bioinformatics)")

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			data, rerr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				if rerr != nil {
					return nil, rerr
				}
				return data, nil
			case resp.StatusCode == 429 || resp.StatusCode >= 500:
				lastErr = fmt.Errorf("enrich: %s returned %d", url, resp.StatusCode)
				if wait := retryAfter(resp, attempt); !sleepCtx(ctx, wait) {
					return nil, ctx.Err()
				}
				continue
			default:
				return nil, fmt.Errorf("enrich: %s returned status %d: %s", url, resp.StatusCode, string(data))
			}
		}
		if !sleepCtx(ctx, time.Duration(attempt*300)*time.Millisecond) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func retryAfter(resp *http.Response, attempt int) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(attempt*500) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
