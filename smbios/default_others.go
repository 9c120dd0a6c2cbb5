//go:build !linux && !windows
// +build !linux,!windows

package smbios

import (
	"fmt"
	"runtime"

	"github.com/darkit/dtbloader/chid"
)

// Default 其他平台没有可用的身份表来源
func Default() Source {
	return SourceFunc(func() (chid.Record, error) {
		return chid.Record{}, fmt.Errorf("%w: unsupported platform %s", ErrNotAvailable, runtime.GOOS)
	})
}
