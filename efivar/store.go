// Package efivar reads vendor-scoped UEFI variables.
package efivar

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound 变量不存在。对调用方来说这是常态，不是故障。
var ErrNotFound = errors.New("efivar: variable not found")

// Store reads a named variable in the namespace of a vendor GUID.
type Store interface {
	Get(name string, vendor uuid.UUID) ([]byte, error)
}

type key struct {
	name   string
	vendor uuid.UUID
}

// Memory 内存变量存储，用于测试和模拟启动
type Memory struct {
	mu   sync.RWMutex
	vars map[key][]byte
}

// NewMemory 创建空的内存存储
func NewMemory() *Memory {
	return &Memory{vars: make(map[key][]byte)}
}

// Set stores a copy of data under name/vendor.
func (m *Memory) Set(name string, vendor uuid.UUID, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key{name, vendor}] = append([]byte(nil), data...)
}

// Delete 删除变量
func (m *Memory) Delete(name string, vendor uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vars, key{name, vendor})
}

func (m *Memory) Get(name string, vendor uuid.UUID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.vars[key{name, vendor}]
	if !ok {
		return nil, fmt.Errorf("%w: %s-%s", ErrNotFound, name, vendor)
	}
	return append([]byte(nil), data...), nil
}
