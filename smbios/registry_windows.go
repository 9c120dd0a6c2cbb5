//go:build windows
// +build windows

package smbios

import (
	"golang.org/x/sys/windows/registry"

	"github.com/darkit/dtbloader/chid"
)

// biosKey 固件在启动时把 SMBIOS 字符串镜像到此注册表键下
const biosKey = `HARDWARE\DESCRIPTION\System\BIOS`

// RegistrySource 从 HKLM\HARDWARE\DESCRIPTION\System\BIOS 读取身份字段
type RegistrySource struct{}

func (RegistrySource) Identity() (chid.Record, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, biosKey, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return chid.Record{}, notAvailable(biosKey, err)
	}
	defer k.Close()

	r := chid.Record{
		Manufacturer:          readRegistryString(k, "SystemManufacturer"),
		Family:                readRegistryString(k, "SystemFamily"),
		ProductName:           readRegistryString(k, "SystemProductName"),
		ProductSku:            readRegistryString(k, "SystemSKU"),
		BaseboardManufacturer: readRegistryString(k, "BaseBoardManufacturer"),
		BaseboardProduct:      readRegistryString(k, "BaseBoardProduct"),
	}
	return r, nil
}

// readRegistryString 读取注册表字符串值，不存在时返回空串
func readRegistryString(k registry.Key, name string) string {
	value, _, err := k.GetStringValue(name)
	if err != nil {
		return ""
	}
	return value
}

// Default 返回当前平台的身份表读取链
func Default() Source {
	return RegistrySource{}
}
