package labels

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Fallback is the name logged for a class id the map does not know.
const Fallback = "Unknown"

var ErrNoNames = errors.New("no class names found")

type Map map[int]string

func (m Map) Name(id int) string {
	if name, ok := m[id]; ok {
		return name
	}
	return Fallback
}

// Default is the class order the bundled traffic sign model was trained with.
func Default() Map {
	names := []string{
		"Green Light",
		"Red Light",
		"Speed Limit 10",
		"Speed Limit 100",
		"Speed Limit 110",
		"Speed Limit 120",
		"Speed Limit 20",
		"Speed Limit 30",
		"Speed Limit 40",
		"Speed Limit 50",
		"Speed Limit 60",
		"Speed Limit 70",
		"Speed Limit 80",
		"Speed Limit 90",
		"Stop",
	}

	m := make(Map, len(names))
	for i, n := range names {
		m[i] = n
	}
	return m
}

// dataFile mirrors the part of an Ultralytics data.yaml we care about.
// names is either a sequence or an id -> name mapping.
type dataFile struct {
	Names yaml.Node `yaml:"names"`
}

func Parse(data []byte) (Map, error) {
	var f dataFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unable to parse label file: %w", err)
	}

	m := Map{}

	switch f.Names.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := f.Names.Decode(&list); err != nil {
			return nil, fmt.Errorf("unable to decode names list: %w", err)
		}
		for i, n := range list {
			m[i] = n
		}
	case yaml.MappingNode:
		if err := f.Names.Decode(&m); err != nil {
			return nil, fmt.Errorf("unable to decode names map: %w", err)
		}
	}

	if len(m) == 0 {
		return nil, ErrNoNames
	}

	return m, nil
}

func LoadFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return Parse(data)
}

// Store holds the active label map and allows it to be swapped at runtime.
type Store struct {
	mu sync.RWMutex
	m  Map
}

func NewStore(m Map) *Store {
	return &Store{m: m}
}

func (s *Store) Name(id int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Name(id)
}

func (s *Store) Map() Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m
}

func (s *Store) Set(m Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m
}

// Reload replaces the map with the contents of path. On failure the
// previous map stays active.
func (s *Store) Reload(path string) error {
	m, err := LoadFile(path)
	if err != nil {
		return err
	}
	s.Set(m)
	return nil
}
