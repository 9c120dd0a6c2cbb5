package dtbloader

import (
	"io/fs"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/darkit/dtbloader/chid"
)

// Resolution 解析结果
type Resolution struct {
	Artifact *Artifact
	// Variant 命中的组合；使用覆盖文件时为 nil
	Variant *chid.Variant
	// CHID 命中组合的标识；使用覆盖文件时为零值
	CHID uuid.UUID
	Path string
}

// Override reports whether the manual override file was used.
func (r *Resolution) Override() bool {
	return r.Variant == nil
}

// Resolver 按优先级在卷上查找 DTB
type Resolver struct {
	FS     fs.FS
	Layout Layout
	Alloc  Allocator
	Logger *zap.Logger
}

// NewResolver 创建解析器，alloc 为 nil 时使用默认上限的分配器
func NewResolver(fsys fs.FS, layout Layout, alloc Allocator, logger *zap.Logger) *Resolver {
	if alloc == nil {
		alloc = LimitedAllocator(DefaultMaxArtifactSize)
	}
	return &Resolver{FS: fsys, Layout: layout, Alloc: alloc, Logger: orNop(logger)}
}

// Resolve walks priority in order and loads dtb/<chid>.dtb for the first
// variant whose file is present and valid, falling back to the override file.
//
// Missing, undersized, malformed and unreadable candidates are skipped. Only
// a failure to allocate a candidate's buffer aborts the search.
func (r *Resolver) Resolve(record chid.Record, priority chid.PriorityList) (*Resolution, error) {
	log := orNop(r.Logger)
	tried := make([]string, 0, len(priority)+1)

	for _, v := range priority.Variants() {
		id := v.Derive(record)
		path := r.Layout.BasePath(id)
		tried = append(tried, path)

		a, err := loadArtifact(r.FS, path, r.Alloc)
		if err == nil {
			log.Info("artifact resolved",
				zap.String(fieldVariant, v.Label), zap.Stringer(fieldCHID, id),
				zap.String(fieldPath, path), zap.Int(fieldSize, a.BytesRead()))
			return &Resolution{Artifact: a, Variant: &v, CHID: id, Path: path}, nil
		}
		if IsResourceExhausted(err) {
			log.Error("artifact allocation failed", zap.String(fieldPath, path), zap.Error(err))
			return nil, err
		}
		r.skip(log, path, err, zap.String(fieldVariant, v.Label), zap.Stringer(fieldCHID, id))
	}

	path := r.Layout.OverridePath()
	tried = append(tried, path)
	a, err := loadArtifact(r.FS, path, r.Alloc)
	if err == nil {
		log.Info("artifact resolved from override", zap.String(fieldPath, path), zap.Int(fieldSize, a.BytesRead()))
		return &Resolution{Artifact: a, Path: path}, nil
	}
	if IsResourceExhausted(err) {
		log.Error("artifact allocation failed", zap.String(fieldPath, path), zap.Error(err))
		return nil, err
	}
	r.skip(log, path, err)

	return nil, newError(NotFound, ErrNoArtifact, "no artifact matched this machine", nil).
		WithDetail("tried", tried)
}

func (r *Resolver) skip(log *zap.Logger, path string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String(fieldPath, path), kindField(err))
	switch KindOf(err) {
	case NotFound:
		log.Debug("candidate missing", fields...)
	case Invalid:
		log.Warn("candidate invalid", append(fields, zap.Error(err))...)
	default:
		log.Warn("candidate unreadable", append(fields, zap.Error(err))...)
	}
}
