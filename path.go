package dtbloader

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// BlobPath 由目录分量与文件名分量拼出卷内路径。
//
// 目录分量以 "/" 连接，文件名分量以 "-" 连接，最后追加扩展名。结果是 io/fs
// 风格的相对路径，不以 "/" 开头。空分量会被忽略。
func BlobPath(dirs, parts []string, ext string) string {
	var b strings.Builder
	for _, d := range dirs {
		d = strings.Trim(d, "/")
		if d == "" {
			continue
		}
		b.WriteString(d)
		b.WriteByte('/')
	}
	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if !first {
			b.WriteByte('-')
		}
		b.WriteString(p)
		first = false
	}
	b.WriteString(ext)
	return b.String()
}

// Layout 描述卷上的 DTB 存放布局
type Layout struct {
	BlobDir   string `mapstructure:"blob_dir" json:"blob_dir" yaml:"blob_dir"`
	Extension string `mapstructure:"extension" json:"extension" yaml:"extension"`
	Override  string `mapstructure:"override" json:"override" yaml:"override"`
	PanelDir  string `mapstructure:"panel_dir" json:"panel_dir" yaml:"panel_dir"`
}

// DefaultLayout 默认布局：dtb/<chid>.dtb，覆盖文件 MY.dtb，面板目录 dtb/qcom-panels
func DefaultLayout() Layout {
	return Layout{
		BlobDir:   "dtb",
		Extension: ".dtb",
		Override:  "MY.dtb",
		PanelDir:  "dtb/qcom-panels",
	}
}

// BasePath dtb/<chid>.dtb
func (l Layout) BasePath(id uuid.UUID) string {
	return BlobPath([]string{l.BlobDir}, []string{id.String()}, l.Extension)
}

// DevicePanelPath dtb/<chid>-panel-<panel id hex>.dtb
func (l Layout) DevicePanelPath(id uuid.UUID, panelID uint32) string {
	return BlobPath([]string{l.BlobDir}, []string{id.String(), "panel", panelHex(panelID)}, l.Extension)
}

// GlobalPanelPath dtb/qcom-panels/panel-<panel id hex>.dtb
func (l Layout) GlobalPanelPath(panelID uint32) string {
	return BlobPath([]string{l.PanelDir}, []string{"panel", panelHex(panelID)}, l.Extension)
}

// OverridePath 卷根目录下的手工覆盖文件
func (l Layout) OverridePath() string {
	return strings.Trim(l.Override, "/")
}

func panelHex(id uint32) string {
	return strconv.FormatUint(uint64(id), 16)
}
