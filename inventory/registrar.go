// Package inventory records the loader as a firmware component with a class
// identifier and a comparable version, the way update agents enumerate
// installed components.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ComponentClass 本加载器的组件类别标识（对模块路径做 v5 派生，结果固定）
var ComponentClass = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/darkit/dtbloader"))

// Registrar 组件登记服务
type Registrar interface {
	Register(class uuid.UUID, version uint32) error
}

// Entry 一条登记记录
type Entry struct {
	Class   uuid.UUID `yaml:"class" json:"class"`
	Version uint32    `yaml:"version" json:"version"`
	Display string    `yaml:"display" json:"display"`
}

// Memory 内存登记表
type Memory struct {
	mu      sync.Mutex
	entries map[uuid.UUID]uint32
}

// NewMemory 创建内存登记表
func NewMemory() *Memory {
	return &Memory{entries: make(map[uuid.UUID]uint32)}
}

func (m *Memory) Register(class uuid.UUID, version uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[class] = version
	return nil
}

// Version 返回已登记的版本
func (m *Memory) Version(class uuid.UUID) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[class]
	return v, ok
}

type fileDocument struct {
	Components []Entry `yaml:"components"`
}

// FileRegistrar persists registrations to a YAML document. Registering a
// class that is already present replaces its entry.
type FileRegistrar struct {
	Path string

	mu sync.Mutex
}

// NewFileRegistrar 创建基于文件的登记表
func NewFileRegistrar(path string) *FileRegistrar {
	return &FileRegistrar{Path: path}
}

func (f *FileRegistrar) Register(class uuid.UUID, version uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].Class == class {
			entries[i].Version = version
			entries[i].Display = FormatVersion(version)
			replaced = true
		}
	}
	if !replaced {
		entries = append(entries, Entry{Class: class, Version: version, Display: FormatVersion(version)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Class.String() < entries[j].Class.String() })

	data, err := yaml.Marshal(fileDocument{Components: entries})
	if err != nil {
		return fmt.Errorf("inventory: encode: %w", err)
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("inventory: %w", err)
	}
	return nil
}

// Entries 读取当前登记的全部组件
func (f *FileRegistrar) Entries() ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileRegistrar) load() ([]Entry, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("inventory: decode %s: %w", f.Path, err)
	}
	return doc.Components, nil
}
