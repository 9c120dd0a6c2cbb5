package chid

import (
	"crypto/sha1"
	"encoding/binary"
	"unicode/utf16"

	"github.com/google/uuid"
)

// MicrosoftNamespace is the namespace every CHID is hashed under.
var MicrosoftNamespace = FromGUIDBytes([16]byte{
	0x12, 0xd8, 0xff, 0x70, // Data1 0x70ffd812
	0x7f, 0x4c, // Data2 0x4c7f
	0x7d, 0x4c, // Data3 0x4c7d
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
})

// separator 为 UTF-16LE 编码的 "&"
var separator = []byte{'&', 0x00}

// Normalize 返回字段参与哈希的规范字节序列
//
// 规则按顺序执行：去掉前导空格、去掉前导 '0'、去掉尾随空格。
// 去前导零沿用 ComputerHardwareIds.exe/fwupd 的行为，"0123" 与 "123" 结果相同，
// 这是为了与现有 CHID 数据库保持一致。输出为 UTF-16LE，不含终止符。
func Normalize(s string) []byte {
	units := utf16.Encode([]rune(s))

	start := 0
	for start < len(units) && units[start] == ' ' {
		start++
	}
	for start < len(units) && units[start] == '0' {
		start++
	}
	end := len(units)
	for end > start && units[end-1] == ' ' {
		end--
	}

	out := make([]byte, 0, (end-start)*2)
	for _, u := range units[start:end] {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

// Derive computes the CHID of record r over the ordered field list.
//
// The namespace bytes are fed to SHA-1 in RFC 4122 (big-endian) order, each
// normalized field follows with a UTF-16LE '&' between fields, and the first
// 16 digest bytes become a version 5, RFC 4122 variant UUID. Derive never
// fails; for identical inputs it always yields the same value.
func Derive(namespace uuid.UUID, fields []Field, r Record) uuid.UUID {
	var data []byte
	for i, f := range fields {
		data = append(data, Normalize(r.Get(f))...)
		if i != len(fields)-1 {
			data = append(data, separator...)
		}
	}
	return uuid.NewHash(sha1.New(), namespace, data, 5)
}

// FromGUIDBytes converts a GUID in firmware storage layout (little-endian
// Data1, Data2, Data3 followed by 8 raw bytes) into an RFC 4122 UUID.
func FromGUIDBytes(g [16]byte) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(g[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(g[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(g[6:8]))
	copy(u[8:], g[8:])
	return u
}

// ToGUIDBytes 是 FromGUIDBytes 的逆操作，返回固件存储布局
func ToGUIDBytes(u uuid.UUID) [16]byte {
	var g [16]byte
	binary.LittleEndian.PutUint32(g[0:4], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(g[4:6], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(g[6:8], binary.BigEndian.Uint16(u[6:8]))
	copy(g[8:], u[8:])
	return g
}
