package dtbloader

import (
	"encoding/binary"

	"github.com/darkit/dtbloader/efivar"
	"github.com/darkit/dtbloader/firmware"
)

const (
	// DisplayInfoVariable 显示信息变量名，厂商命名空间为 GOP GUID
	DisplayInfoVariable = "UEFIDisplayInfo"
	// DisplayInfoMagic VersionInfo 高 16 位的标记
	DisplayInfoMagic = 0xaa
	// DisplayInfoSize 变量的完整布局大小
	DisplayInfoSize = 112

	displayInfoPanelOffset = 40
)

// DisplayInfo 显示信息变量中关心的两个字段。
//
// 布局（小端）：VersionInfo u32，9 个 u32 填充，PanelID u32，17 个 u32 填充。
type DisplayInfo struct {
	VersionInfo uint32
	PanelID     uint32
}

// ParseDisplayInfo 解析变量内容
func ParseDisplayInfo(b []byte) (DisplayInfo, error) {
	if len(b) < displayInfoPanelOffset+4 {
		return DisplayInfo{}, newError(Invalid, ErrDisplayInfoInvalid, "display info variable too short", nil).
			WithDetail(fieldSize, len(b))
	}
	return DisplayInfo{
		VersionInfo: binary.LittleEndian.Uint32(b[0:]),
		PanelID:     binary.LittleEndian.Uint32(b[displayInfoPanelOffset:]),
	}, nil
}

// Valid reports whether the magic tag occupies the upper half of VersionInfo.
func (d DisplayInfo) Valid() bool {
	return d.VersionInfo>>16 == DisplayInfoMagic
}

// Marshal 编码为完整的 112 字节布局
func (d DisplayInfo) Marshal() []byte {
	b := make([]byte, DisplayInfoSize)
	binary.LittleEndian.PutUint32(b[0:], d.VersionInfo)
	binary.LittleEndian.PutUint32(b[displayInfoPanelOffset:], d.PanelID)
	return b
}

// ReadDisplayInfo 从平台变量读取显示信息；变量缺失时返回 NotFound
func ReadDisplayInfo(store efivar.Store) (DisplayInfo, error) {
	raw, err := store.Get(DisplayInfoVariable, firmware.GraphicsOutputProtocolGUID)
	if err != nil {
		kind := Unexpected
		if classify(err) == NotFound {
			kind = NotFound
		}
		return DisplayInfo{}, newError(kind, ErrPlatformVariable, "display info unavailable", err)
	}
	return ParseDisplayInfo(raw)
}
