package chid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// VariantID 是 HardwareID-N 中的 N
type VariantID int

// Variant 一个具名的、有序的字段组合
type Variant struct {
	ID     VariantID
	Label  string
	Fields []Field
}

// Derive 计算该组合在 MicrosoftNamespace 下的 CHID
func (v Variant) Derive(r Record) uuid.UUID {
	return Derive(MicrosoftNamespace, v.Fields, r)
}

func (v Variant) String() string {
	return v.Label
}

// Describe 以 "Manufacturer + Family + ..." 形式描述字段组合
func (v Variant) Describe() string {
	names := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		names[i] = f.String()
	}
	return strings.Join(names, " + ")
}

// catalog 已实现的 CHID 组合。
//
// HardwareID-0/1/2 需要 BIOS 厂商与版本字段，HardwareID-12 需要机箱类型，
// 这些组合没有派生规则，不出现在表中。
var catalog = []Variant{
	{3, "HardwareID-3", []Field{Manufacturer, Family, ProductName, ProductSku, BaseboardManufacturer, BaseboardProduct}},
	{4, "HardwareID-4", []Field{Manufacturer, Family, ProductName, ProductSku}},
	{5, "HardwareID-5", []Field{Manufacturer, Family, ProductName}},
	{6, "HardwareID-6", []Field{Manufacturer, ProductSku, BaseboardManufacturer, BaseboardProduct}},
	{7, "HardwareID-7", []Field{Manufacturer, ProductSku}},
	{8, "HardwareID-8", []Field{Manufacturer, ProductName, BaseboardManufacturer, BaseboardProduct}},
	{9, "HardwareID-9", []Field{Manufacturer, ProductName}},
	{10, "HardwareID-10", []Field{Manufacturer, Family, BaseboardManufacturer, BaseboardProduct}},
	{11, "HardwareID-11", []Field{Manufacturer, Family}},
	{13, "HardwareID-13", []Field{Manufacturer, BaseboardManufacturer, BaseboardProduct}},
	{14, "HardwareID-14", []Field{Manufacturer}},
}

// Catalog returns a copy of every supported variant in ascending id order.
func Catalog() []Variant {
	out := make([]Variant, len(catalog))
	for i, v := range catalog {
		out[i] = v
		out[i].Fields = append([]Field(nil), v.Fields...)
	}
	return out
}

// Lookup 按编号查找组合
func Lookup(id VariantID) (Variant, bool) {
	for _, v := range catalog {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// PriorityList 参与 DTB 解析的组合，按从具体到一般排列
type PriorityList []VariantID

// DefaultPriority 默认解析顺序。
//
// 先尝试带主板信息的组合，再退到产品名/SKU；仅厂商的 HardwareID-14 过于宽泛，
// 只用于诊断输出。
var DefaultPriority = PriorityList{3, 6, 8, 10, 4, 5, 7, 9, 11, 13}

var (
	ErrUnknownVariant   = errors.New("chid: unknown or unsupported variant")
	ErrDuplicateVariant = errors.New("chid: duplicate variant in priority list")
	ErrEmptyPriority    = errors.New("chid: empty priority list")
)

// Validate 检查列表非空、无重复且只包含已实现的组合
func (p PriorityList) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPriority
	}
	seen := mapset.NewThreadUnsafeSet[VariantID]()
	for _, id := range p {
		if _, ok := Lookup(id); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownVariant, int(id))
		}
		if !seen.Add(id) {
			return fmt.Errorf("%w: %d", ErrDuplicateVariant, int(id))
		}
	}
	return nil
}

// Variants resolves the list into catalog entries. Unknown ids are skipped;
// call Validate first to reject them.
func (p PriorityList) Variants() []Variant {
	out := make([]Variant, 0, len(p))
	for _, id := range p {
		if v, ok := Lookup(id); ok {
			out = append(out, v)
		}
	}
	return out
}

// Labels returns the HardwareID labels of the list in order.
func (p PriorityList) Labels() []string {
	out := make([]string, 0, len(p))
	for _, v := range p.Variants() {
		out = append(out, v.Label)
	}
	return out
}

// ParseVariant accepts "HardwareID-3", "hardwareid-3", "CHID-3" or "3".
func ParseVariant(s string) (VariantID, error) {
	raw := strings.TrimSpace(s)
	lower := strings.ToLower(raw)
	for _, prefix := range []string{"hardwareid-", "chid-", "chid_"} {
		if strings.HasPrefix(lower, prefix) {
			raw = raw[len(prefix):]
			break
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
	id := VariantID(n)
	if _, ok := Lookup(id); !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
	return id, nil
}

// ParsePriority 解析并校验一组组合名
func ParsePriority(labels []string) (PriorityList, error) {
	p := make(PriorityList, 0, len(labels))
	for _, l := range labels {
		id, err := ParseVariant(l)
		if err != nil {
			return nil, err
		}
		p = append(p, id)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Computed 一个组合及其派生结果
type Computed struct {
	Variant Variant
	ID      uuid.UUID
}

// Compute 为记录计算目录中所有组合的 CHID，用于诊断输出
func Compute(r Record) []Computed {
	out := make([]Computed, 0, len(catalog))
	for _, v := range Catalog() {
		out = append(out, Computed{Variant: v, ID: v.Derive(r)})
	}
	return out
}
