//go:build linux
// +build linux

package smbios

// Default 返回当前平台的身份表读取链：优先解析原始结构表，失败时退回 sysfs 属性文件
func Default() Source {
	return Chain(TableSource{}, SysfsSource{})
}
