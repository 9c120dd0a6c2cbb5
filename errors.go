package dtbloader

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/darkit/dtbloader/efivar"
	"github.com/darkit/dtbloader/fdt"
)

// ErrorKind 错误类别
type ErrorKind int

const (
	// NotFound 预期内的缺失：文件、变量或 overlay 不存在，驱动回退
	NotFound ErrorKind = iota
	// Invalid 文件存在但过短或头部校验失败
	Invalid
	// ResourceExhausted 内存分配失败
	ResourceExhausted
	// Unexpected 协作方返回的其他错误
	Unexpected
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Invalid:
		return "invalid"
	case ResourceExhausted:
		return "resource_exhausted"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// ErrorCode 错误代码
type ErrorCode string

const (
	ErrArtifactMissing    ErrorCode = "ARTIFACT_MISSING"
	ErrArtifactTooSmall   ErrorCode = "ARTIFACT_TOO_SMALL"
	ErrArtifactMalformed  ErrorCode = "ARTIFACT_MALFORMED"
	ErrAllocation         ErrorCode = "ALLOCATION_FAILED"
	ErrStorage            ErrorCode = "STORAGE_FAILURE"
	ErrNoArtifact         ErrorCode = "NO_ARTIFACT"
	ErrIdentityMissing    ErrorCode = "IDENTITY_UNAVAILABLE"
	ErrOverlayMerge       ErrorCode = "OVERLAY_MERGE_FAILED"
	ErrActivation         ErrorCode = "ACTIVATION_FAILED"
	ErrInvalidState       ErrorCode = "INVALID_STATE"
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrInvalidIdentifier  ErrorCode = "INVALID_IDENTIFIER"
	ErrInventoryRegister  ErrorCode = "INVENTORY_REGISTRATION"
	ErrPlatformVariable   ErrorCode = "PLATFORM_VARIABLE"
	ErrDisplayInfoInvalid ErrorCode = "DISPLAY_INFO_INVALID"
)

// LoadError 加载流程中的错误
type LoadError struct {
	Kind    ErrorKind      // 错误类别
	Code    ErrorCode      // 错误代码
	Message string         // 错误消息
	Details map[string]any // 错误详情
	Cause   error          // 原始错误
}

// Error 实现 error 接口
func (e *LoadError) Error() string {
	parts := []string{fmt.Sprintf("[%s:%s]", strings.ToUpper(e.Kind.String()), e.Code), e.Message}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("caused by: %v", e.Cause))
	}
	return strings.Join(parts, " ")
}

// Is 类别与代码都相同即视为同一错误
func (e *LoadError) Is(target error) bool {
	if t, ok := target.(*LoadError); ok {
		return e.Kind == t.Kind && e.Code == t.Code
	}
	return false
}

// Unwrap 解包原始错误
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// WithDetail 添加错误详情
func (e *LoadError) WithDetail(key string, value any) *LoadError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(kind ErrorKind, code ErrorCode, message string, cause error) *LoadError {
	return &LoadError{Kind: kind, Code: code, Message: message, Cause: cause}
}

// classify 把协作方错误映射到统一的错误类别
func classify(err error) ErrorKind {
	var le *LoadError
	switch {
	case errors.As(err, &le):
		return le.Kind
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, efivar.ErrNotFound):
		return NotFound
	case errors.Is(err, fdt.ErrTruncated), errors.Is(err, fdt.ErrBadMagic),
		errors.Is(err, fdt.ErrBadVersion), errors.Is(err, fdt.ErrBadLayout),
		errors.Is(err, fdt.ErrBadStructure):
		return Invalid
	case errors.Is(err, errAllocation):
		return ResourceExhausted
	default:
		return Unexpected
	}
}

// KindOf 返回错误类别；nil 返回 -1
func KindOf(err error) ErrorKind {
	if err == nil {
		return -1
	}
	return classify(err)
}

// IsNotFound 检查是否为缺失类错误
func IsNotFound(err error) bool {
	return err != nil && classify(err) == NotFound
}

// IsInvalid 检查是否为格式错误
func IsInvalid(err error) bool {
	return err != nil && classify(err) == Invalid
}

// IsResourceExhausted 检查是否为分配失败
func IsResourceExhausted(err error) bool {
	return err != nil && classify(err) == ResourceExhausted
}
