package dtbloader

import (
	"go.uber.org/zap"

	"github.com/darkit/dtbloader/fdt"
)

// Growth 为已加载的 blob 预留补丁空间
type Growth struct {
	Alloc  Allocator
	Logger *zap.Logger
}

// NewGrowth 创建增长器，alloc 为 nil 时使用默认上限的分配器
func NewGrowth(alloc Allocator, logger *zap.Logger) *Growth {
	if alloc == nil {
		alloc = LimitedAllocator(DefaultMaxArtifactSize)
	}
	return &Growth{Alloc: alloc, Logger: orNop(logger)}
}

// Grow repacks a into a new buffer of its declared total size plus extra
// bytes. On failure a is left untouched and the error is returned for the
// caller to report; it is never fatal to activation.
func (g *Growth) Grow(a *Artifact, extra int) error {
	log := orNop(g.Logger)
	size := int(a.TotalSize()) + extra
	if size < len(a.buf) {
		size = len(a.buf)
	}

	buf, err := g.Alloc(size)
	if err != nil {
		err = newError(ResourceExhausted, ErrAllocation, "failed to allocate grown buffer", err).WithDetail(fieldSize, size)
		log.Warn("growth skipped", zap.String(fieldPath, a.path), kindField(err), zap.Error(err))
		return err
	}
	if err := fdt.OpenInto(a.Blob(), buf); err != nil {
		err = newError(classify(err), ErrArtifactMalformed, "failed to repack artifact", err).WithDetail(fieldSize, size)
		log.Warn("growth skipped", zap.String(fieldPath, a.path), kindField(err), zap.Error(err))
		return err
	}

	a.buf = buf
	log.Debug("artifact grown", zap.String(fieldPath, a.path), zap.Int(fieldSize, size))
	return nil
}
