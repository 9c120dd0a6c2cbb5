// Package fdt reads, validates, repacks and merges flattened device tree
// blobs (devicetree specification v0.4, blob version 17).
//
// The package covers what a boot loader needs: header validation, growing a
// blob into a larger buffer, an editable tree model and overlay application
// with the same semantics as libfdt's fdt_overlay_apply.
package fdt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// Magic 设备树头部魔数
	Magic uint32 = 0xd00dfeed
	// HeaderSize 头部长度，也是一个合法 blob 的最小长度
	HeaderSize = 40
	// Version 生成 blob 时写入的版本
	Version = 17
	// LastCompVersion 生成 blob 时写入的最低兼容版本
	LastCompVersion = 16
)

const (
	tokenBeginNode uint32 = 0x1
	tokenEndNode   uint32 = 0x2
	tokenProp      uint32 = 0x3
	tokenNop       uint32 = 0x4
	tokenEnd       uint32 = 0x9
)

var (
	ErrTruncated    = errors.New("fdt: truncated blob")
	ErrBadMagic     = errors.New("fdt: bad magic")
	ErrBadVersion   = errors.New("fdt: unsupported version")
	ErrBadLayout    = errors.New("fdt: block layout out of bounds")
	ErrBadStructure = errors.New("fdt: malformed structure block")
	ErrNoSpace      = errors.New("fdt: insufficient buffer space")
	ErrNotFound     = errors.New("fdt: node or property not found")
	ErrBadOverlay   = errors.New("fdt: malformed overlay")
	ErrBadPhandle   = errors.New("fdt: bad phandle")
)

// Header is the fixed-size blob header. All fields are big-endian on disk.
type Header struct {
	Magic           uint32
	TotalSize       uint32
	OffDtStruct     uint32
	OffDtStrings    uint32
	OffMemRsvmap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeDtStrings   uint32
	SizeDtStruct    uint32
}

// ReadHeader 解析头部，不做版本与布局校验
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", ErrTruncated, len(b), HeaderSize)
	}
	u := func(i int) uint32 { return binary.BigEndian.Uint32(b[i*4:]) }
	return Header{
		Magic:           u(0),
		TotalSize:       u(1),
		OffDtStruct:     u(2),
		OffDtStrings:    u(3),
		OffMemRsvmap:    u(4),
		Version:         u(5),
		LastCompVersion: u(6),
		BootCPUIDPhys:   u(7),
		SizeDtStrings:   u(8),
		SizeDtStruct:    u(9),
	}, nil
}

func (h Header) put(b []byte) {
	for i, v := range []uint32{
		h.Magic, h.TotalSize, h.OffDtStruct, h.OffDtStrings, h.OffMemRsvmap,
		h.Version, h.LastCompVersion, h.BootCPUIDPhys, h.SizeDtStrings, h.SizeDtStruct,
	} {
		binary.BigEndian.PutUint32(b[i*4:], v)
	}
}

// Validate checks the header of b: magic, version and that every block lies
// inside the declared total size, which itself must fit in b.
func Validate(b []byte) error {
	h, err := ReadHeader(b)
	if err != nil {
		return err
	}
	return h.validate(len(b))
}

func (h Header) validate(avail int) error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: %#08x", ErrBadMagic, h.Magic)
	}
	if h.Version < Version || h.LastCompVersion > Version {
		return fmt.Errorf("%w: version %d, last compatible %d", ErrBadVersion, h.Version, h.LastCompVersion)
	}
	total := uint64(h.TotalSize)
	if total < HeaderSize {
		return fmt.Errorf("%w: totalsize %d", ErrBadLayout, total)
	}
	if total > uint64(avail) {
		return fmt.Errorf("%w: totalsize %d exceeds %d bytes read", ErrTruncated, total, avail)
	}
	inside := func(off, size uint32) bool {
		return uint64(off) >= HeaderSize && uint64(off)+uint64(size) <= total
	}
	if !inside(h.OffMemRsvmap, 16) || h.OffMemRsvmap%8 != 0 {
		return fmt.Errorf("%w: memory reservation map at %#x", ErrBadLayout, h.OffMemRsvmap)
	}
	if !inside(h.OffDtStruct, h.SizeDtStruct) || h.OffDtStruct%4 != 0 {
		return fmt.Errorf("%w: structure block %#x+%#x", ErrBadLayout, h.OffDtStruct, h.SizeDtStruct)
	}
	if !inside(h.OffDtStrings, h.SizeDtStrings) {
		return fmt.Errorf("%w: strings block %#x+%#x", ErrBadLayout, h.OffDtStrings, h.SizeDtStrings)
	}
	return nil
}

// TotalSize returns the declared total size of b, or 0 when b is too short
// to hold a header.
func TotalSize(b []byte) uint32 {
	if len(b) < HeaderSize {
		return 0
	}
	return binary.BigEndian.Uint32(b[4:8])
}

// Checksum 计算 CRC-32 (IEEE)，覆盖头部声明的 totalsize 字节。
//
// 与固件 CalculateCrc32 的结果一致；头部不可读或 totalsize 越界时覆盖整个 b。
func Checksum(b []byte) uint32 {
	n := int(TotalSize(b))
	if n < HeaderSize || n > len(b) {
		n = len(b)
	}
	return crc32.ChecksumIEEE(b[:n])
}

// memRsvSize 返回保留内存表（含终止项）的字节数
func memRsvSize(b []byte, h Header) (int, error) {
	end := int(h.TotalSize)
	for off := int(h.OffMemRsvmap); off+16 <= end; off += 16 {
		addr := binary.BigEndian.Uint64(b[off:])
		size := binary.BigEndian.Uint64(b[off+8:])
		if addr == 0 && size == 0 {
			return off + 16 - int(h.OffMemRsvmap), nil
		}
	}
	return 0, fmt.Errorf("%w: unterminated memory reservation map", ErrBadLayout)
}

// OpenInto repacks the blob src into dst and sets its total size to len(dst).
//
// The memory reservation map, structure block and strings block are copied
// in that order without modification; the remaining space is left zeroed as
// headroom for later edits. src must be a valid blob and is not modified.
func OpenInto(src, dst []byte) error {
	h, err := ReadHeader(src)
	if err != nil {
		return err
	}
	if err := h.validate(len(src)); err != nil {
		return err
	}
	rsv, err := memRsvSize(src, h)
	if err != nil {
		return err
	}

	offRsv := HeaderSize
	offStruct := offRsv + rsv
	offStrings := offStruct + int(h.SizeDtStruct)
	need := offStrings + int(h.SizeDtStrings)
	if need > len(dst) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrNoSpace, need, len(dst))
	}

	// dst 可能复用旧缓冲区，先清零
	clear(dst)
	copy(dst[offRsv:], src[h.OffMemRsvmap:int(h.OffMemRsvmap)+rsv])
	copy(dst[offStruct:], src[h.OffDtStruct:h.OffDtStruct+h.SizeDtStruct])
	copy(dst[offStrings:], src[h.OffDtStrings:h.OffDtStrings+h.SizeDtStrings])

	h.TotalSize = uint32(len(dst))
	h.OffMemRsvmap = uint32(offRsv)
	h.OffDtStruct = uint32(offStruct)
	h.OffDtStrings = uint32(offStrings)
	if h.Version > Version {
		h.Version = Version
	}
	h.put(dst)
	return nil
}
