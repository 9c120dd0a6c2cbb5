package efivar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultEfivarfsDir Linux efivarfs 挂载点
const DefaultEfivarfsDir = "/sys/firmware/efi/efivars"

// attrLen efivarfs 文件开头的 4 字节属性字段
const attrLen = 4

// Efivarfs 通过 efivarfs 读取变量。
//
// 文件名为 "<Name>-<vendor guid>"，内容为 4 字节属性加变量数据。
// 非 UEFI 启动或未挂载 efivarfs 时，所有变量都按不存在处理。
type Efivarfs struct {
	Dir string
}

// FileName 返回变量在 efivarfs 中的文件名
func FileName(name string, vendor uuid.UUID) string {
	return name + "-" + vendor.String()
}

func (e Efivarfs) Get(name string, vendor uuid.UUID) ([]byte, error) {
	dir := e.Dir
	if dir == "" {
		dir = DefaultEfivarfsDir
	}
	path := filepath.Join(dir, FileName(name, vendor))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("efivar: read %s: %w", path, err)
	}
	if len(data) < attrLen {
		return nil, fmt.Errorf("efivar: %s: short attribute header (%d bytes)", path, len(data))
	}
	return data[attrLen:], nil
}
