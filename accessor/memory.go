package accessor

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gigapi/gigapi-dars/schema"
)

// MemFile is the content of one in-memory file.
type MemFile struct {
	Dims  []schema.Dimension
	Vars  []schema.Variable
	Attrs schema.Attributes
	Data  map[string]*schema.Array
}

// Memory is an Opener over files held in memory, keyed by path.
type Memory struct {
	mu     sync.RWMutex
	files  map[string]*MemFile
	fail   map[string]error
	opens  atomic.Int64
	reads  atomic.Int64
	closes atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{files: map[string]*MemFile{}, fail: map[string]error{}}
}

// Put stores or replaces a file.
func (m *Memory) Put(path string, f *MemFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = f
}

// FailReads makes every read of path return err. A nil err clears it.
func (m *Memory) FailReads(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, path)
		return
	}
	m.fail[path] = err
}

func (m *Memory) Opens() int64  { return m.opens.Load() }
func (m *Memory) Reads() int64  { return m.reads.Load() }
func (m *Memory) Closes() int64 { return m.closes.Load() }

func (m *Memory) Open(path string) (File, error) {
	m.mu.RLock()
	f, ok := m.files[path]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	m.opens.Add(1)
	return &memHandle{mem: m, path: path, file: f}, nil
}

type memHandle struct {
	mem  *Memory
	path string
	file *MemFile
}

func (h *memHandle) Dimensions() []schema.Dimension { return h.file.Dims }
func (h *memHandle) Variables() []schema.Variable   { return h.file.Vars }
func (h *memHandle) Attributes() schema.Attributes  { return h.file.Attrs }

func (h *memHandle) Read(variable string, ranges []schema.Range) (*schema.Array, error) {
	h.mem.reads.Add(1)
	h.mem.mu.RLock()
	err := h.mem.fail[h.path]
	h.mem.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	a, ok := h.file.Data[variable]
	if !ok {
		return nil, fmt.Errorf("no data for variable %q", variable)
	}
	return a.Slice(ranges)
}

func (h *memHandle) Close() error {
	h.mem.closes.Add(1)
	return nil
}
