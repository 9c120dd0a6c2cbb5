package inventory

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeVersion 把 "major.minor.patch" 打包为可单调比较的 32 位版本号。
//
// 布局：major 占高 8 位，minor 占次 8 位，patch 占低 16 位；缺省段按 0 处理，
// 允许 "v" 前缀以及 "-rc1" 之类的预发布后缀（后缀不参与编码）。
func EncodeVersion(s string) (uint32, error) {
	segs, err := parseVersion(s)
	if err != nil {
		return 0, err
	}
	limits := []int{0xff, 0xff, 0xffff}
	for len(segs) < 3 {
		segs = append(segs, 0)
	}
	if len(segs) > 3 {
		return 0, fmt.Errorf("inventory: version %q has more than three segments", s)
	}
	for i, v := range segs {
		if v > limits[i] {
			return 0, fmt.Errorf("inventory: version %q segment %d exceeds %d", s, i, limits[i])
		}
	}
	return uint32(segs[0])<<24 | uint32(segs[1])<<16 | uint32(segs[2]), nil
}

// FormatVersion EncodeVersion 的逆运算
func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>24, (v>>16)&0xff, v&0xffff)
}

// CompareVersions compares two dotted versions segment by segment.
//
//	返回值：
//	-1: a < b, 0: a == b, 1: a > b
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < max(len(va), len(vb)); i++ {
		x, y := 0, 0
		if i < len(va) {
			x = va[i]
		}
		if i < len(vb) {
			y = vb[i]
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
	}
	return 0, nil
}

// parseVersion 解析版本号数字段
func parseVersion(s string) ([]int, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexAny(raw, "-+"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return nil, fmt.Errorf("inventory: empty version %q", s)
	}
	parts := strings.Split(raw, ".")
	segs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("inventory: invalid version segment %q in %q", p, s)
		}
		segs = append(segs, n)
	}
	return segs, nil
}
