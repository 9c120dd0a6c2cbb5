package smbios

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/darkit/dtbloader/chid"
)

// DefaultTablePath Linux 内核导出的原始 SMBIOS 结构表
const DefaultTablePath = "/sys/firmware/dmi/tables/DMI"

const (
	typeSystemInformation    = 1
	typeBaseboardInformation = 2
	typeEndOfTable           = 127

	headerLen = 4
)

// SMBIOS 结构中字符串编号所在的偏移
const (
	sysManufacturer = 0x04
	sysProductName  = 0x05
	sysSKUNumber    = 0x19
	sysFamily       = 0x1a

	boardManufacturer = 0x04
	boardProduct      = 0x05
)

// ErrMalformedTable 结构表无法解析
var ErrMalformedTable = errors.New("smbios: malformed structure table")

// Structure is one SMBIOS structure: its formatted area and string set.
type Structure struct {
	Type      uint8
	Handle    uint16
	Formatted []byte
	Strings   []string
}

// String returns the string referenced by the byte at offset of the
// formatted area. Index 0 and out-of-range offsets yield "".
func (s Structure) String(offset int) string {
	if offset >= len(s.Formatted) {
		return ""
	}
	n := int(s.Formatted[offset])
	if n == 0 || n > len(s.Strings) {
		return ""
	}
	return s.Strings[n-1]
}

// Structures walks a raw structure table until the end-of-table marker or
// the end of the buffer.
func Structures(table []byte) ([]Structure, error) {
	var out []Structure
	off := 0
	for off+headerLen <= len(table) {
		typ := table[off]
		length := int(table[off+1])
		if length < headerLen || off+length > len(table) {
			return out, fmt.Errorf("%w: structure at %#x has length %d", ErrMalformedTable, off, length)
		}
		s := Structure{
			Type:      typ,
			Handle:    uint16(table[off+2]) | uint16(table[off+3])<<8,
			Formatted: table[off : off+length],
		}

		// 非格式化区：以 NUL 结尾的字符串序列，双 NUL 结束
		strs := table[off+length:]
		end := bytes.Index(strs, []byte{0, 0})
		if end < 0 {
			return out, fmt.Errorf("%w: unterminated string set at %#x", ErrMalformedTable, off)
		}
		if end > 0 {
			for _, raw := range bytes.Split(strs[:end], []byte{0}) {
				s.Strings = append(s.Strings, string(raw))
			}
		}
		out = append(out, s)

		if typ == typeEndOfTable {
			break
		}
		off += length + end + 2
	}
	return out, nil
}

// ParseTable extracts the identity record from a raw SMBIOS structure table.
func ParseTable(table []byte) (chid.Record, error) {
	structs, err := Structures(table)
	if err != nil && len(structs) == 0 {
		return chid.Record{}, err
	}

	var r chid.Record
	found := false
	for _, s := range structs {
		switch s.Type {
		case typeSystemInformation:
			r.Manufacturer = s.String(sysManufacturer)
			r.ProductName = s.String(sysProductName)
			r.ProductSku = s.String(sysSKUNumber)
			r.Family = s.String(sysFamily)
			found = true
		case typeBaseboardInformation:
			r.BaseboardManufacturer = s.String(boardManufacturer)
			r.BaseboardProduct = s.String(boardProduct)
			found = true
		}
	}
	if !found {
		return chid.Record{}, fmt.Errorf("%w: no system or baseboard information", ErrNotAvailable)
	}
	return r, nil
}

// TableSource 从原始结构表文件读取身份
type TableSource struct {
	Path string
}

func (s TableSource) Identity() (chid.Record, error) {
	path := s.Path
	if path == "" {
		path = DefaultTablePath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return chid.Record{}, notAvailable(path, err)
	}
	return ParseTable(data)
}
