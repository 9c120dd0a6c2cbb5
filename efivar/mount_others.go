//go:build !linux
// +build !linux

package efivar

// Mounted 非 Linux 平台不支持 efivarfs
func Mounted(string) bool { return false }

// Default 返回空存储：其他平台上所有变量都按不存在处理
func Default() Store {
	return NewMemory()
}
