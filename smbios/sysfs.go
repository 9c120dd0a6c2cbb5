package smbios

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/darkit/dtbloader/chid"
)

// DefaultSysfsDir Linux DMI 属性目录
const DefaultSysfsDir = "/sys/class/dmi/id"

// SysfsSource 从 /sys/class/dmi/id 读取身份字段。
//
// 内核已经把 SMBIOS 字符串拆成单独的文件，这里只读取 CHID 需要的六个。
// 单个文件缺失（例如旧内核没有 product_sku）按空串处理；目录缺失或全部为空时返回 ErrNotAvailable。
type SysfsSource struct {
	Dir string
}

func (s SysfsSource) Identity() (chid.Record, error) {
	dir := s.Dir
	if dir == "" {
		dir = DefaultSysfsDir
	}
	if _, err := os.Stat(dir); err != nil {
		return chid.Record{}, notAvailable(dir, err)
	}

	var r chid.Record
	dmiFields := map[string]*string{
		"sys_vendor":     &r.Manufacturer,
		"product_family": &r.Family,
		"product_name":   &r.ProductName,
		"product_sku":    &r.ProductSku,
		"board_vendor":   &r.BaseboardManufacturer,
		"board_name":     &r.BaseboardProduct,
	}
	for file, field := range dmiFields {
		if data, err := readFileString(filepath.Join(dir, file)); err == nil {
			*field = data
		}
	}

	if r.IsZero() {
		return chid.Record{}, notAvailable(dir, os.ErrNotExist)
	}
	return r, nil
}

// readFileString 读取 sysfs 属性，只去掉内核追加的换行。
// 首尾空格必须保留给 chid.Normalize 处理。
func readFileString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n\x00"), nil
}
