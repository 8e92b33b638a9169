// Package catalog publishes datasets by name. The published set is an
// immutable snapshot replaced wholesale on reload.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gigapi/gigapi-dars/accessor"
	"github.com/gigapi/gigapi-dars/aggregate"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/schema"
	"github.com/gigapi/gigapi-dars/slab"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Dataset is a published, fully described dataset.
type Dataset struct {
	Name string
	// Path is the backing file of a single file dataset, empty for an
	// aggregation.
	Path    string
	Members int
	Source  slab.Source
}

func (d *Dataset) Schema() *schema.Dataset {
	return d.Source.Schema()
}

// slot builds its dataset at most once per snapshot. A build that fails
// to read a file is retried by the next Get; any other outcome is kept.
type slot struct {
	entry Entry
	mu    sync.Mutex
	done  bool
	ds    *Dataset
	err   error
}

func (s *slot) failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}

type snapshot struct {
	slots  map[string]*slot
	names  []string
	loaded time.Time
}

// Catalog resolves dataset names to datasets.
type Catalog struct {
	fs          afero.Fs
	acc         accessor.Accessor
	parallelism int
	current     atomic.Pointer[snapshot]
}

func New(fs afero.Fs, acc accessor.Accessor, parallelism int) *Catalog {
	if parallelism <= 0 {
		parallelism = slab.DefaultParallelism
	}
	c := &Catalog{fs: fs, acc: acc, parallelism: parallelism}
	c.current.Store(&snapshot{slots: map[string]*slot{}})
	return c
}

// Fs is the filesystem datasets are read from.
func (c *Catalog) Fs() afero.Fs {
	return c.fs
}

// Load replaces the published set with the configured entries plus every
// servable file under dataDir. Broken entries are logged and skipped.
// Datasets are described lazily on first Get unless Warm is called.
func (c *Catalog) Load(ctx context.Context, entries []Entry, dataDir string) error {
	next := &snapshot{slots: map[string]*slot{}, loaded: time.Now()}
	add := func(e Entry) {
		if err := e.validate(); err != nil {
			core.Errorf(ctx, "catalog: %v", err)
			return
		}
		if _, dup := next.slots[e.Name]; dup {
			core.Warnf(ctx, "catalog: duplicate dataset %q ignored", e.Name)
			return
		}
		next.slots[e.Name] = &slot{entry: e}
		next.names = append(next.names, e.Name)
	}
	for _, e := range entries {
		add(e.rooted(dataDir))
	}
	if dataDir != "" {
		ok, err := afero.DirExists(c.fs, dataDir)
		if err != nil {
			return fmt.Errorf("failed to stat data dir %s: %w", dataDir, err)
		}
		if !ok {
			return fmt.Errorf("data dir %s does not exist", dataDir)
		}
		scanned, errs := ScanDir(c.fs, dataDir)
		for _, err := range errs {
			core.Errorf(ctx, "catalog: %v", err)
		}
		for _, e := range scanned {
			add(e)
		}
	}
	sort.Strings(next.names)
	c.current.Store(next)
	core.Infof(ctx, "catalog: published %d datasets", len(next.names))
	return nil
}

// Names lists the published datasets, sorted.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.current.Load().names...)
}

// Entry returns the configuration of a published dataset.
func (c *Catalog) Entry(name string) (Entry, bool) {
	s, ok := c.current.Load().slots[name]
	if !ok {
		return Entry{}, false
	}
	return s.entry, true
}

// Get returns the dataset, building it on first access.
func (c *Catalog) Get(ctx context.Context, name string) (*Dataset, error) {
	s, ok := c.current.Load().slots[name]
	if !ok {
		return nil, core.NewError(core.KindNotFound, "dataset %q not found", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.ds, s.err
	}
	start := time.Now()
	// the result is shared, so one caller's deadline must not poison it
	s.ds, s.err = c.build(context.WithoutCancel(ctx), s.entry)
	s.done = s.err == nil || !errors.Is(s.err, core.ErrAccess)
	if s.err != nil {
		core.Errorf(ctx, "catalog: dataset %q not published: %v", name, s.err)
		return nil, s.err
	}
	core.Debugf(ctx, "catalog: built %q in %v", name, time.Since(start))
	return s.ds, nil
}

// Warm builds every dataset of the current snapshot and drops the ones
// that fail, publishing the result as a new snapshot.
func (c *Catalog) Warm(ctx context.Context) error {
	cur := c.current.Load()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, name := range cur.names {
		name := name
		g.Go(func() error {
			c.Get(gctx, name)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	next := &snapshot{slots: map[string]*slot{}, loaded: cur.loaded}
	for _, name := range cur.names {
		s := cur.slots[name]
		if s.failed() {
			continue
		}
		next.slots[name] = s
		next.names = append(next.names, name)
	}
	// a concurrent Load wins
	if c.current.CompareAndSwap(cur, next) {
		core.Infof(ctx, "catalog: %d of %d datasets ready", len(next.names), len(cur.names))
	}
	return nil
}

func (c *Catalog) build(ctx context.Context, e Entry) (*Dataset, error) {
	if e.Aggregation == nil {
		ds, err := c.acc.Describe(ctx, e.Path)
		if err != nil {
			return nil, err
		}
		ds = ds.WithName(e.Name)
		return &Dataset{Name: e.Name, Path: e.Path, Members: 1, Source: &slab.File{Path: e.Path, Dataset: ds}}, nil
	}

	paths, err := c.memberPaths(e.Aggregation)
	if err != nil {
		return nil, core.WrapError(core.KindAccess, err, "dataset %q", e.Name)
	}
	members := make([]aggregate.Member, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			ds, err := c.acc.Describe(gctx, p)
			if err != nil {
				return fmt.Errorf("member %d (%s): %w", i, p, err)
			}
			members[i] = aggregate.Member{Path: p, Dataset: ds}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	v, err := aggregate.Build(aggregate.Spec{Name: e.Name, Dimension: e.Aggregation.Dimension, Members: members})
	if err != nil {
		return nil, err
	}
	return &Dataset{Name: e.Name, Members: len(members), Source: v}, nil
}

func (c *Catalog) memberPaths(a *Aggregation) ([]string, error) {
	paths := append([]string(nil), a.Members...)
	for _, s := range a.Scan {
		found, err := scanMembers(c.fs, s)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.Location, err)
		}
		paths = append(paths, found...)
	}
	return paths, nil
}
