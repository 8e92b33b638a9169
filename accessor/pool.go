package accessor

import (
	"context"
	"fmt"
	"sync"

	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/schema"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheSize = 64

// Pool keeps recently used files open. Opens of the same path are shared,
// and each handle serves one read at a time.
type Pool struct {
	opener Opener
	cache  *lru.Cache
	opens  singleflight.Group
}

type handle struct {
	mu     sync.Mutex
	path   string
	file   File
	closed bool
}

func (h *handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if err := h.file.Close(); err != nil {
		core.Warnf(context.Background(), "closing %s: %v", h.path, err)
	}
}

// NewPool wraps opener with a handle cache of the given size.
func NewPool(opener Opener, size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.NewWithEvict(size, func(_ interface{}, value interface{}) {
		value.(*handle).close()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handle cache: %w", err)
	}
	return &Pool{opener: opener, cache: cache}, nil
}

func (p *Pool) acquire(path string) (*handle, error) {
	if v, ok := p.cache.Get(path); ok {
		return v.(*handle), nil
	}
	v, err, _ := p.opens.Do(path, func() (interface{}, error) {
		if v, ok := p.cache.Get(path); ok {
			return v, nil
		}
		f, err := p.opener.Open(path)
		if err != nil {
			return nil, err
		}
		h := &handle{path: path, file: f}
		p.cache.Add(path, h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*handle), nil
}

// withFile runs fn holding the handle lock. A handle evicted between
// lookup and lock is reopened.
func (p *Pool) withFile(ctx context.Context, path string, fn func(File) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := p.acquire(path)
		if err != nil {
			return core.WrapError(core.KindAccess, err, "open %s", path)
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			continue
		}
		err = fn(h.file)
		h.mu.Unlock()
		return err
	}
}

func (p *Pool) Describe(ctx context.Context, path string) (*schema.Dataset, error) {
	var ds *schema.Dataset
	err := p.withFile(ctx, path, func(f File) error {
		var err error
		ds, err = Describe(path, f)
		return err
	})
	return ds, err
}

func (p *Pool) Read(ctx context.Context, path, variable string, ranges []schema.Range) (*schema.Array, error) {
	var out *schema.Array
	err := p.withFile(ctx, path, func(f File) error {
		var err error
		out, err = f.Read(variable, ranges)
		if err != nil {
			return core.WrapError(core.KindAccess, err, "read %s from %s", variable, path)
		}
		return nil
	})
	return out, err
}

// Forget closes the handle of path, if open, so the next access reopens it.
func (p *Pool) Forget(path string) {
	p.cache.Remove(path)
}

// Purge closes every open handle. The pool stays usable.
func (p *Pool) Purge() {
	p.cache.Purge()
}

// Len is the number of open handles.
func (p *Pool) Len() int {
	return p.cache.Len()
}
