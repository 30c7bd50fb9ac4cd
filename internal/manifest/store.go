package manifest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/codec"
	"github.com/hupe1980/oodb/pagestore"
)

const (
	envelopeMagic  = 0x4f4f444d // "OODM"
	envelopeHeader = 16
)

// Store manages manifest blobs and the CURRENT pointer.
type Store struct {
	store pagestore.Store
	codec codec.Codec
	mu    sync.Mutex
}

// NewStore creates a manifest store. A nil codec selects codec.Default.
func NewStore(store pagestore.Store, c codec.Codec) *Store {
	if c == nil {
		c = codec.Default
	}
	return &Store{store: store, codec: c}
}

// FileName returns the blob name of a manifest version.
func FileName(id uint64) string {
	return fmt.Sprintf("%s-%06d", ManifestFileName, id)
}

// Load loads the current manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	return s.LoadVersion(ctx, 0)
}

// LoadVersion loads a specific version id. 0 means latest.
func (s *Store) LoadVersion(ctx context.Context, id uint64) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := FileName(id)
	if id == 0 {
		b, err := s.store.Get(ctx, CurrentFileName)
		if err != nil {
			if errors.Is(err, pagestore.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		name = strings.TrimSpace(string(b))
	}

	data, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", name, err)
	}
	return s.decode(name, data)
}

// Save assigns the next commit id to m and makes it current.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.ID++
	m.CreatedAt = time.Now()

	data, err := s.encode(m)
	if err != nil {
		m.ID--
		return err
	}

	name := FileName(m.ID)
	if err := s.store.Put(ctx, name, data); err != nil {
		m.ID--
		return err
	}
	if err := s.store.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		m.ID--
		return err
	}
	return nil
}

// ListVersions returns the ids of all stored manifests, oldest first.
func (s *Store) ListVersions(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.store.List(ctx, ManifestFileName+"-")
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(names))
	for _, name := range names {
		id, err := strconv.ParseUint(strings.TrimPrefix(name, ManifestFileName+"-"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteVersion deletes the manifest blob of a version.
func (s *Store) DeleteVersion(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, FileName(id))
}

func (s *Store) encode(m *Manifest) ([]byte, error) {
	payload, err := s.codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	out := make([]byte, envelopeHeader+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], envelopeMagic)
	binary.LittleEndian.PutUint32(out[4:8], CurrentVersion)
	binary.LittleEndian.PutUint32(out[8:12], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(payload)))
	copy(out[envelopeHeader:], payload)
	return out, nil
}

func (s *Store) decode(name string, data []byte) (*Manifest, error) {
	if len(data) < envelopeHeader {
		return nil, fmt.Errorf("%w: %s: short header", ErrCorrupt, name)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != envelopeMagic {
		return nil, fmt.Errorf("%w: %s: bad magic", ErrCorrupt, name)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != CurrentVersion {
		return nil, fmt.Errorf("%w: %s: version %d", ErrIncompatibleVersion, name, v)
	}
	length := binary.LittleEndian.Uint32(data[12:16])
	payload := data[envelopeHeader:]
	if int(length) != len(payload) {
		return nil, fmt.Errorf("%w: %s: length %d, have %d", ErrCorrupt, name, length, len(payload))
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(data[8:12]) {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorrupt, name)
	}

	m := &Manifest{}
	if err := s.codec.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, m.Version)
	}
	if m.Trees == nil {
		m.Trees = make(map[string]btree.Meta)
	}
	return m, nil
}
