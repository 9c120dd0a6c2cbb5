package firmware

import (
	"sync"

	"github.com/google/uuid"
)

// Tables 进程级配置表注册点。
//
// Install 以 GUID 为键注册数据，同名注册会替换旧值；data 为 nil 表示撤销注册。
type Tables interface {
	Install(guid uuid.UUID, data []byte) error
	Lookup(guid uuid.UUID) ([]byte, bool)
}

// MemoryTables is an in-process Tables implementation. Installed slices are
// held by reference, as the firmware holds a pointer to the installed table,
// so later in-place writes by the consumer are visible through Lookup.
type MemoryTables struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID][]byte
	installs map[uuid.UUID]int
}

// NewMemoryTables 创建空注册表
func NewMemoryTables() *MemoryTables {
	return &MemoryTables{
		entries:  make(map[uuid.UUID][]byte),
		installs: make(map[uuid.UUID]int),
	}
}

func (t *MemoryTables) Install(guid uuid.UUID, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.installs[guid]++
	if data == nil {
		delete(t.entries, guid)
		return nil
	}
	t.entries[guid] = data
	return nil
}

func (t *MemoryTables) Lookup(guid uuid.UUID) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, ok := t.entries[guid]
	return data, ok
}

// Installs 返回某 GUID 被 Install（含撤销）的次数
func (t *MemoryTables) Installs(guid uuid.UUID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.installs[guid]
}
