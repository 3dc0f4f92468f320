package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// snapshotMagic opens every vector file; the byte after it is the format version.
var snapshotMagic = [4]byte{'P', 'V', 'E', 'C'}

const snapshotVersion byte = 1

// ErrCorruptSnapshot is returned by Load when a vector file fails its checksum
// or is truncated.
var ErrCorruptSnapshot = errors.New("corrupt vector snapshot")

// MemoryIndex holds one vector per id for a single space. Entries are packed in
// slot order; removal moves the last slot into the hole.
type MemoryIndex struct {
	mu    sync.RWMutex
	dims  int
	slots []entry
	slot  map[string]int
}

type entry struct {
	id  string
	vec []float32
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{dims: dimensions, slot: make(map[string]int)}, nil
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dims
}

// Upsert stores a copy of vec under id.
func (m *MemoryIndex) Upsert(id string, vec []float32) error {
	if len(vec) != m.dims {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), m.dims)
	}
	cp := append([]float32(nil), vec...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.slot[id]; ok {
		m.slots[i].vec = cp
		return nil
	}
	m.slot[id] = len(m.slots)
	m.slots = append(m.slots, entry{id: id, vec: cp})
	return nil
}

// Get returns the vector stored under id. Callers must not modify it.
func (m *MemoryIndex) Get(id string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.slot[id]
	if !ok {
		return nil, false
	}
	return m.slots[i].vec, true
}

// Remove drops the given ids. Unknown ids are ignored.
func (m *MemoryIndex) Remove(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		i, ok := m.slot[id]
		if !ok {
			continue
		}
		last := len(m.slots) - 1
		if i != last {
			m.slots[i] = m.slots[last]
			m.slot[m.slots[i].id] = i
		}
		m.slots[last] = entry{}
		m.slots = m.slots[:last]
		delete(m.slot, id)
	}
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

// Save writes the index to path through a temporary file, so a crash never
// leaves a half-written snapshot behind.
//
// Layout (little endian): magic[4] version[1] dims u32 count u32, then per entry
// idLen u32, id, dims float32 values; a CRC32 (IEEE) of everything before it closes the file.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := m.writeTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) writeTo(f io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := crc32.NewIEEE()
	w := bufio.NewWriter(io.MultiWriter(f, sum))
	header := make([]byte, 13)
	copy(header, snapshotMagic[:])
	header[4] = snapshotVersion
	binary.LittleEndian.PutUint32(header[5:], uint32(m.dims))
	binary.LittleEndian.PutUint32(header[9:], uint32(len(m.slots)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	buf := make([]byte, 4+4*m.dims)
	for _, e := range m.slots {
		binary.LittleEndian.PutUint32(buf, uint32(len(e.id)))
		if _, err := w.Write(buf[:4]); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
		if _, err := w.WriteString(e.id); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
		encodeFloats(buf[4:], e.vec)
		if _, err := w.Write(buf[4:]); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return binary.Write(f, binary.LittleEndian, sum.Sum32())
}

// Load replaces the contents of m with the snapshot at path. A missing file
// leaves m unchanged and is not an error.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read snapshot file: %w", err)
	}
	if len(data) < 17 {
		return ErrCorruptSnapshot
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return ErrCorruptSnapshot
	}
	if [4]byte(body[:4]) != snapshotMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}
	if body[4] != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", body[4])
	}
	dims := int(binary.LittleEndian.Uint32(body[5:]))
	if dims != m.dims {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dims, m.dims)
	}
	count := int(binary.LittleEndian.Uint32(body[9:]))
	rest := body[13:]

	slots := make([]entry, 0, count)
	slot := make(map[string]int, count)
	for range count {
		if len(rest) < 4 {
			return ErrCorruptSnapshot
		}
		idLen := int(binary.LittleEndian.Uint32(rest))
		rest = rest[4:]
		if len(rest) < idLen+4*dims {
			return ErrCorruptSnapshot
		}
		id := string(rest[:idLen])
		vec := decodeFloats(rest[idLen : idLen+4*dims])
		rest = rest[idLen+4*dims:]
		slot[id] = len(slots)
		slots = append(slots, entry{id: id, vec: vec})
	}
	if len(rest) != 0 {
		return ErrCorruptSnapshot
	}

	m.mu.Lock()
	m.slots, m.slot = slots, slot
	m.mu.Unlock()
	return nil
}

func encodeFloats(dst []byte, vec []float32) {
	for i, v := range vec {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

func decodeFloats(src []byte) []float32 {
	out := make([]float32, len(src)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
	return out
}
