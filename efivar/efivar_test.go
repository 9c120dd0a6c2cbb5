package efivar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vendor = uuid.MustParse("9042a9de-23dc-4a38-96fb-7aded080516a")

func TestMemory(t *testing.T) {
	m := NewMemory()
	_, err := m.Get("UEFIDisplayInfo", vendor)
	assert.ErrorIs(t, err, ErrNotFound)

	data := []byte{1, 2, 3}
	m.Set("UEFIDisplayInfo", vendor, data)
	data[0] = 9

	got, err := m.Get("UEFIDisplayInfo", vendor)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	_, err = m.Get("UEFIDisplayInfo", uuid.Nil)
	assert.ErrorIs(t, err, ErrNotFound)

	m.Delete("UEFIDisplayInfo", vendor)
	_, err = m.Get("UEFIDisplayInfo", vendor)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEfivarfs(t *testing.T) {
	dir := t.TempDir()
	name := FileName("UEFIDisplayInfo", vendor)
	assert.Equal(t, "UEFIDisplayInfo-9042a9de-23dc-4a38-96fb-7aded080516a", name)

	// 4 字节属性 + 数据
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0x07, 0, 0, 0, 0xaa, 0xbb}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName("Short", vendor)), []byte{0x07}, 0o644))

	store := Efivarfs{Dir: dir}
	got, err := store.Get("UEFIDisplayInfo", vendor)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, got)

	_, err = store.Get("Missing", vendor)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get("Short", vendor)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMountedOnPlainDir(t *testing.T) {
	assert.False(t, Mounted(t.TempDir()))
}
