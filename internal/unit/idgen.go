package unit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chrisallenlane/andon/internal/util"
	"gopkg.in/yaml.v3"
)

// SequenceStore manages per-prefix sequence numbers for unit IDs.
// Sequences persist across runs so IDs stay stable and unique for the
// life of the project.
type SequenceStore struct {
	path string
	mu   sync.Mutex
}

// SequenceData represents the sequences.yaml file structure.
type SequenceData struct {
	Prefixes map[string]int `yaml:"prefixes"`
}

// NewSequenceStore creates a new sequence store at the given path.
func NewSequenceStore(path string) *SequenceStore {
	return &SequenceStore{path: path}
}

func (s *SequenceStore) load() (*SequenceData, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SequenceData{Prefixes: make(map[string]int)}, nil
		}
		return nil, fmt.Errorf("read sequences: %w", err)
	}

	var sd SequenceData
	if err := yaml.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("parse sequences: %w", err)
	}
	if sd.Prefixes == nil {
		sd.Prefixes = make(map[string]int)
	}
	return &sd, nil
}

func (s *SequenceStore) save(sd *SequenceData) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create sequences directory: %w", err)
	}

	data, err := yaml.Marshal(sd)
	if err != nil {
		return fmt.Errorf("marshal sequences: %w", err)
	}

	if err := util.AtomicWriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write sequences: %w", err)
	}
	return nil
}

// NextID returns the next unit ID for the given prefix, formatted as
// PREFIX-NNN with a zero-padded sequence. The prefix is normalized to
// uppercase; an empty prefix uses "UNIT".
func (s *SequenceStore) NextID(prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(prefix)
	if key == "" {
		key = "UNIT"
	}

	sd, err := s.load()
	if err != nil {
		return "", err
	}

	next := sd.Prefixes[key] + 1
	sd.Prefixes[key] = next

	if err := s.save(sd); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%03d", key, next), nil
}

var idPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-(\d+)$`)

// ParseID splits a unit ID into prefix and sequence number.
func ParseID(id string) (prefix string, seq int, err error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", 0, fmt.Errorf("invalid unit ID: %q", id)
	}
	seq, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, fmt.Errorf("invalid unit sequence in %q: %w", id, err)
	}
	return m[1], seq, nil
}

// SlugID derives a stable unit ID from an arbitrary identifier such as a
// file path or ticket key. Used when the scope source already provides
// unique names and sequence allocation would only obscure them.
func SlugID(raw string) string {
	slug := strings.ToUpper(raw)
	slug = strings.NewReplacer("/", "-", "\\", "-", ".", "-", " ", "-", "_", "-").Replace(slug)
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return slug
}
