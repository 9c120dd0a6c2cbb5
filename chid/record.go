// Package chid derives Computer Hardware IDs (CHIDs) from SMBIOS identity
// strings.
//
// A CHID is a name-based (version 5) UUID computed over a fixed namespace and
// a '&'-joined, UTF-16LE encoded subset of the platform identity fields. The
// scheme matches Microsoft's ComputerHardwareIds.exe and fwupd, so identifiers
// computed here can be looked up in existing hardware databases.
package chid

import "fmt"

// Field 选择 Record 中的一个身份字段
type Field int

const (
	Manufacturer Field = iota
	Family
	ProductName
	ProductSku
	BaseboardManufacturer
	BaseboardProduct
)

var fieldNames = [...]string{
	Manufacturer:          "Manufacturer",
	Family:                "Family",
	ProductName:           "ProductName",
	ProductSku:            "ProductSku",
	BaseboardManufacturer: "BaseboardManufacturer",
	BaseboardProduct:      "BaseboardProduct",
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Record 平台身份记录（SMBIOS Type 1 / Type 2 字段）
//
// 缺失的字段保持为空字符串，派生时按空串处理。记录在一次启动会话内只填充一次，
// 之后只读。
type Record struct {
	Manufacturer          string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Family                string `json:"family,omitempty" yaml:"family,omitempty"`
	ProductName           string `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	ProductSku            string `json:"product_sku,omitempty" yaml:"product_sku,omitempty"`
	BaseboardManufacturer string `json:"baseboard_manufacturer,omitempty" yaml:"baseboard_manufacturer,omitempty"`
	BaseboardProduct      string `json:"baseboard_product,omitempty" yaml:"baseboard_product,omitempty"`
}

// Get 返回指定字段的值，未知字段返回空串
func (r Record) Get(f Field) string {
	switch f {
	case Manufacturer:
		return r.Manufacturer
	case Family:
		return r.Family
	case ProductName:
		return r.ProductName
	case ProductSku:
		return r.ProductSku
	case BaseboardManufacturer:
		return r.BaseboardManufacturer
	case BaseboardProduct:
		return r.BaseboardProduct
	default:
		return ""
	}
}

// IsZero reports whether no identity field is populated.
func (r Record) IsZero() bool {
	return r == Record{}
}
