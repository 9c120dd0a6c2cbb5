// Package firmware models the pre-boot services the loader talks to: the
// configuration table registry and one-shot platform event notification.
package firmware

import "github.com/google/uuid"

// 常用配置表与协议 GUID（RFC 4122 文本形式）
var (
	// FdtTableGUID 设备树配置表
	FdtTableGUID = uuid.MustParse("b1b621d5-f19c-41a5-830b-d9152c69aae0")
	// AcpiTableGUID ACPI 1.0 RSDP
	AcpiTableGUID = uuid.MustParse("eb9d2d30-2d88-11d3-9a16-0090273fc14d")
	// Acpi20TableGUID ACPI 2.0+ RSDP
	Acpi20TableGUID = uuid.MustParse("8868e871-e4f1-11d3-bc22-0080c73c8881")
	// SmbiosTableGUID SMBIOS 2.x 入口点
	SmbiosTableGUID = uuid.MustParse("eb9d2d31-2d88-11d3-9a16-0090273fc14d")
	// Smbios3TableGUID SMBIOS 3.x 入口点
	Smbios3TableGUID = uuid.MustParse("f2fd1544-9794-4a2c-992e-e5bbcf20e394")
	// GraphicsOutputProtocolGUID 也是 UEFIDisplayInfo 变量的厂商命名空间
	GraphicsOutputProtocolGUID = uuid.MustParse("9042a9de-23dc-4a38-96fb-7aded080516a")
)

// AcpiTableGUIDs 备用硬件描述机制的两个注册项
var AcpiTableGUIDs = []uuid.UUID{AcpiTableGUID, Acpi20TableGUID}
