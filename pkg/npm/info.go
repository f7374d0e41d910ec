package npm

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/canopyscan/canopy/pkg/cache"
	"github.com/canopyscan/canopy/pkg/runner"
)

// DefaultInfoWorkers bounds concurrent `yarn info` invocations.
const DefaultInfoWorkers = 20

const memCacheSize = 4096

// PackageInfo is the registry metadata for one package version, as
// reported by `yarn info --json`. It fills in what the local tree cannot
// provide (declared licenses, source repository, homepage).
type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	License     string `json:"license"`
	Homepage    string `json:"homepage"`
	Repository  string `json:"repository"`
}

// infoLine is one NDJSON object of `yarn info` output. yarn may retry
// internally and emit several status lines; only the inspect-typed one
// carries the payload.
type infoLine struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type infoPayload struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	License     any    `json:"license"`
	Homepage    string `json:"homepage"`
	Repository  any    `json:"repository"`
}

// InfoResolver fetches package metadata with bounded concurrency behind a
// two-level cache: a per-process LRU that is never evicted during a run
// in practice, and a persistent disk/Redis cache keyed by canonical id.
//
// A fetch that finds no success payload resolves to nil and is not
// cached; missing metadata degrades the result, it never fails a run.
type InfoResolver struct {
	run     runner.Runner
	log     *log.Logger
	disk    cache.Cache
	ttl     time.Duration
	workers int
	workDir string
	refresh bool

	mem *lru.Cache[string, *PackageInfo]
}

// InfoOptions configures an InfoResolver.
type InfoOptions struct {
	Cache   cache.Cache   // persistent layer; nil disables it
	TTL     time.Duration // disk entry lifetime, DefaultTTL when zero
	Workers int           // concurrent fetches, DefaultInfoWorkers when zero
	WorkDir string        // directory yarn runs in
	Refresh bool          // bypass the persistent layer
}

// NewInfoResolver creates a resolver issuing `yarn info` through run.
func NewInfoResolver(run runner.Runner, logger *log.Logger, opts InfoOptions) *InfoResolver {
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultTTL
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultInfoWorkers
	}
	mem, _ := lru.New[string, *PackageInfo](memCacheSize)
	return &InfoResolver{
		run:     run,
		log:     logger,
		disk:    opts.Cache,
		ttl:     opts.TTL,
		workers: opts.Workers,
		workDir: opts.WorkDir,
		refresh: opts.Refresh,
		mem:     mem,
	}
}

// Get returns metadata for id, or nil when the registry has none.
func (r *InfoResolver) Get(ctx context.Context, id PackageID) (*PackageInfo, error) {
	key := id.String()

	if info, ok := r.mem.Get(key); ok {
		return info, nil
	}

	if !r.refresh {
		if data, ok, _ := r.disk.Get(ctx, key); ok {
			var info PackageInfo
			if err := json.Unmarshal(data, &info); err == nil {
				r.mem.Add(key, &info)
				return &info, nil
			}
		}
	}

	info := r.fetch(ctx, id)
	if info == nil {
		return nil, ctx.Err()
	}

	r.mem.Add(key, info)
	if data, err := json.Marshal(info); err == nil {
		_ = r.disk.Set(ctx, key, data, r.ttl)
	}
	return info, nil
}

// GetAll fetches metadata for all ids with bounded concurrency. Ids
// already in the in-memory cache are not dispatched again. The returned
// slice contains one entry per id with known metadata; order is not
// guaranteed.
func (r *InfoResolver) GetAll(ctx context.Context, ids []PackageID) ([]*PackageInfo, error) {
	var (
		out  []*PackageInfo
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan PackageID)
	)

	seen := make(map[string]bool, len(ids))
	var pending []PackageID
	for _, id := range ids {
		key := id.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		if info, ok := r.mem.Get(key); ok {
			if info != nil {
				out = append(out, info)
			}
			continue
		}
		pending = append(pending, id)
	}

	workers := min(r.workers, len(pending))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				info, err := r.Get(ctx, id)
				if err != nil {
					r.log.Debug("info fetch aborted", "id", id.Spec(), "err", err)
					continue
				}
				if info == nil {
					continue
				}
				mu.Lock()
				out = append(out, info)
				mu.Unlock()
			}
		}()
	}

	for _, id := range pending {
		select {
		case jobs <- id:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return out, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	return out, ctx.Err()
}

// fetch runs `yarn info` and extracts the success payload. All failure
// shapes (command failure, malformed JSON, error-typed entries, missing
// payload) resolve to nil.
func (r *InfoResolver) fetch(ctx context.Context, id PackageID) *PackageInfo {
	res, err := r.run.Run(ctx, r.workDir, "yarn", "info", id.Spec(), "--json")
	if err != nil {
		r.log.Debug("yarn info failed", "id", id.Spec(), "err", err)
		return nil
	}

	var payload *infoPayload
	sc := bufio.NewScanner(strings.NewReader(res.Stdout))
	sc.Buffer(make([]byte, 1024), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var l infoLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			r.log.Debug("unparsable info line", "id", id.Spec(), "line", line)
			continue
		}
		switch l.Type {
		case "inspect":
			var p infoPayload
			if err := json.Unmarshal(l.Data, &p); err != nil {
				r.log.Debug("unparsable info payload", "id", id.Spec(), "err", err)
				continue
			}
			payload = &p
		case "warning", "error":
			r.log.Debug("yarn info diagnostic", "id", id.Spec(), "type", l.Type, "data", string(l.Data))
		}
	}
	if payload == nil {
		return nil
	}

	return &PackageInfo{
		Name:        payload.Name,
		Version:     payload.Version,
		Description: payload.Description,
		License:     stringField(payload.License, "type"),
		Homepage:    payload.Homepage,
		Repository:  stringField(payload.Repository, "url"),
	}
}

// stringField tolerates the two shapes registry metadata uses for
// license and repository entries: a bare string or an object.
func stringField(v any, key string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[key].(string); ok {
			return s
		}
	}
	return ""
}
