//go:build linux
// +build linux

package efivar

import "golang.org/x/sys/unix"

// Mounted reports whether dir is an efivarfs mount.
func Mounted(dir string) bool {
	if dir == "" {
		dir = DefaultEfivarfsDir
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return false
	}
	return uint32(st.Type) == uint32(unix.EFIVARFS_MAGIC)
}

// Default 返回平台变量存储；efivarfs 未挂载时返回空存储
func Default() Store {
	if Mounted(DefaultEfivarfsDir) {
		return Efivarfs{Dir: DefaultEfivarfsDir}
	}
	return NewMemory()
}
