package chain

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/jtagchain/pkg/bsdl"
)

// Repository resolves an IDCODE to a part description.
type Repository interface {
	Lookup(id uint32) (*bsdl.Description, bool)
}

// MemoryRepository holds descriptions keyed by IDCODE. Descriptions whose
// IDCODE_REGISTER has X bits match every code that agrees on the defined
// bits; exact codes take precedence.
type MemoryRepository struct {
	mu        sync.RWMutex
	exact     map[uint32]*bsdl.Description
	wildcards []*bsdl.Description
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{exact: make(map[uint32]*bsdl.Description)}
}

// Add registers d under its IDCODE pattern.
func (r *MemoryRepository) Add(d *bsdl.Description) error {
	if d == nil || d.IDMask == 0 {
		return fmt.Errorf("chain: %s has no IDCODE_REGISTER", entityName(d))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.IDMask == 0xFFFFFFFF {
		r.exact[d.IDValue] = d
		return nil
	}
	r.wildcards = append(r.wildcards, d)
	return nil
}

// AddFile describes a parsed file and adds it.
func (r *MemoryRepository) AddFile(f *bsdl.File) (*bsdl.Description, error) {
	d, err := f.Describe()
	if err != nil {
		return nil, err
	}
	if err := r.Add(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *MemoryRepository) Lookup(id uint32) (*bsdl.Description, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.exact[id]; ok {
		return d, true
	}
	for _, d := range r.wildcards {
		if id&d.IDMask == d.IDValue&d.IDMask {
			return d, true
		}
	}
	return nil, false
}

// Len returns the number of descriptions held.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.wildcards)
}

// LoadFiles parses and adds each path.
func (r *MemoryRepository) LoadFiles(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	parser, err := bsdl.NewParser()
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := r.load(parser, path); err != nil {
			return err
		}
	}
	return nil
}

// LoadDir walks root and adds every .bsd, .bsdl and .bsm file. Files that do
// not parse, or that describe a part without an IDCODE, are skipped with a
// warning so one bad file does not hide the rest of a library.
func (r *MemoryRepository) LoadDir(root string) error {
	parser, err := bsdl.NewParser()
	if err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isBSDLFile(path) {
			return nil
		}
		if err := r.load(parser, path); err != nil {
			logger.WithField("file", path).Warnf("skipping BSDL file: %v", err)
		}
		return nil
	})
}

func (r *MemoryRepository) load(parser *bsdl.Parser, path string) error {
	f, err := parser.ParseFile(path)
	if err != nil {
		return fmt.Errorf("chain: parse %s: %w", path, err)
	}
	d, err := r.AddFile(f)
	if err != nil {
		return fmt.Errorf("chain: add %s: %w", path, err)
	}
	logger.WithFields(logrus.Fields{
		"entity": d.Entity,
		"idcode": fmt.Sprintf("%08X/%08X", d.IDValue, d.IDMask),
	}).Debug("loaded BSDL")
	return nil
}

func isBSDLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bsd", ".bsdl", ".bsm":
		return true
	}
	return false
}

func entityName(d *bsdl.Description) string {
	if d == nil {
		return "description"
	}
	return d.Entity
}
