// Package smbios reads the platform identity strings (SMBIOS Type 1 System
// Information and Type 2 Baseboard Information) that CHIDs are derived from.
package smbios

import (
	"errors"
	"fmt"
	"sync"

	"github.com/darkit/dtbloader/chid"
)

// ErrNotAvailable 身份表尚未发布或当前平台不提供
var ErrNotAvailable = errors.New("smbios: identity tables not available")

// Source 平台身份表读取接口。
//
// 设计目标：
//  1. 各平台实现返回同一语义的六个字段（见 chid.Record）。
//  2. 信息源缺失时返回 ErrNotAvailable，由调用方决定是否延迟处理。
//  3. 只做字符串提取，不做任何规范化；规范化统一在 chid.Normalize 中完成。
type Source interface {
	Identity() (chid.Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (chid.Record, error)

func (f SourceFunc) Identity() (chid.Record, error) { return f() }

// Static 返回固定记录，用于配置覆盖与测试
type Static chid.Record

func (s Static) Identity() (chid.Record, error) { return chid.Record(s), nil }

// Chain tries each source in order and returns the first record read without
// error. If every source fails the last error is returned.
func Chain(srcs ...Source) Source {
	return SourceFunc(func() (chid.Record, error) {
		err := error(ErrNotAvailable)
		for _, s := range srcs {
			if s == nil {
				continue
			}
			r, e := s.Identity()
			if e == nil {
				return r, nil
			}
			err = e
		}
		return chid.Record{}, err
	})
}

// onceSource 缓存第一次成功读取的记录
type onceSource struct {
	mu     sync.RWMutex
	src    Source
	record chid.Record
	done   bool
}

// Once memoizes the first successful read of src, so the record stays
// immutable for the rest of the session. Failures are not cached: a deferred
// caller can retry once the tables are published.
func Once(src Source) Source {
	return &onceSource{src: src}
}

func (o *onceSource) Identity() (chid.Record, error) {
	o.mu.RLock()
	if o.done {
		defer o.mu.RUnlock()
		return o.record, nil
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	// 双重检查
	if o.done {
		return o.record, nil
	}

	r, err := o.src.Identity()
	if err != nil {
		return chid.Record{}, err
	}
	o.record = r
	o.done = true
	return r, nil
}

func notAvailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrNotAvailable, what, err)
}
