package dtbloader

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"

	"github.com/darkit/dtbloader/fdt"
)

var errAllocation = errors.New("allocation failed")

// Allocator 分配指定大小的缓冲区，失败时返回的错误应包裹 errAllocation
type Allocator func(size int) ([]byte, error)

// LimitedAllocator 返回一个拒绝超过 limit 字节请求的分配器
func LimitedAllocator(limit int) Allocator {
	return func(size int) ([]byte, error) {
		if size < 0 || size > limit {
			return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", errAllocation, size, limit)
		}
		return make([]byte, size), nil
	}
}

// Artifact 一个已加载的设备树 blob。
//
// 缓冲区可能大于头部声明的 totalsize（增长后的预留空间）。BytesRead 和
// ReadChecksum 描述从存储读入时的原始内容，之后的增长与合并不会改变它们。
type Artifact struct {
	buf          []byte
	bytesRead    int
	readChecksum uint32
	path         string
}

// NewArtifact wraps an in-memory blob, validating its header.
func NewArtifact(path string, blob []byte) (*Artifact, error) {
	if len(blob) < fdt.HeaderSize {
		return nil, newError(Invalid, ErrArtifactTooSmall, "artifact smaller than header", nil).
			WithDetail(fieldPath, path).WithDetail(fieldSize, len(blob))
	}
	if err := fdt.Validate(blob); err != nil {
		return nil, newError(Invalid, ErrArtifactMalformed, "artifact header invalid", err).
			WithDetail(fieldPath, path)
	}
	return &Artifact{
		buf:          blob,
		bytesRead:    len(blob),
		readChecksum: crc32.ChecksumIEEE(blob),
		path:         path,
	}, nil
}

// Path 读取该 blob 的卷内路径
func (a *Artifact) Path() string { return a.path }

// BytesRead 从存储读入的字节数
func (a *Artifact) BytesRead() int { return a.bytesRead }

// ReadChecksum CRC-32 over the bytes as read from storage.
func (a *Artifact) ReadChecksum() uint32 { return a.readChecksum }

// Bytes 返回完整的底层缓冲区（含预留空间）
func (a *Artifact) Bytes() []byte { return a.buf }

// Cap 缓冲区大小
func (a *Artifact) Cap() int { return len(a.buf) }

// TotalSize 头部声明的大小
func (a *Artifact) TotalSize() uint32 { return fdt.TotalSize(a.buf) }

// Blob 返回头部声明范围内的内容
func (a *Artifact) Blob() []byte {
	n := int(a.TotalSize())
	if n > len(a.buf) {
		n = len(a.buf)
	}
	return a.buf[:n]
}

// loadArtifact 从卷上读取并校验一个 blob
func loadArtifact(fsys fs.FS, path string, alloc Allocator) (*Artifact, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(NotFound, ErrArtifactMissing, "artifact not found", err).WithDetail(fieldPath, path)
		}
		return nil, newError(Unexpected, ErrStorage, "failed to open artifact", err).WithDetail(fieldPath, path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, newError(Unexpected, ErrStorage, "failed to stat artifact", err).WithDetail(fieldPath, path)
	}
	if info.IsDir() {
		return nil, newError(NotFound, ErrArtifactMissing, "artifact path is a directory", nil).WithDetail(fieldPath, path)
	}
	size := info.Size()
	if size < fdt.HeaderSize {
		return nil, newError(Invalid, ErrArtifactTooSmall, "artifact smaller than header", nil).
			WithDetail(fieldPath, path).WithDetail(fieldSize, size)
	}

	buf, err := alloc(int(size))
	if err != nil {
		return nil, newError(ResourceExhausted, ErrAllocation, "failed to allocate artifact buffer", err).
			WithDetail(fieldPath, path).WithDetail(fieldSize, size)
	}
	n, err := io.ReadFull(f, buf)
	if err != nil {
		return nil, newError(Unexpected, ErrStorage, "failed to read artifact", err).WithDetail(fieldPath, path)
	}
	if err := fdt.Validate(buf[:n]); err != nil {
		return nil, newError(Invalid, ErrArtifactMalformed, "artifact header invalid", err).WithDetail(fieldPath, path)
	}
	return &Artifact{
		buf:          buf,
		bytesRead:    n,
		readChecksum: crc32.ChecksumIEEE(buf[:n]),
		path:         path,
	}, nil
}
