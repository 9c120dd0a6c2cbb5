package dtbloader

import (
	"io/fs"

	"go.uber.org/zap"

	"github.com/darkit/dtbloader/efivar"
	"github.com/darkit/dtbloader/fdt"
)

// OverlayOutcome 面板 overlay 的处理结果
type OverlayOutcome int

const (
	// OverlayNotApplicable 变量缺失、无效或标记不匹配
	OverlayNotApplicable OverlayOutcome = iota
	// OverlayNotFound 两个候选路径都没有 overlay
	OverlayNotFound
	// OverlayApplied overlay 已合并
	OverlayApplied
	// OverlayFailed overlay 找到但合并失败，基础 blob 保持不变
	OverlayFailed
)

func (o OverlayOutcome) String() string {
	switch o {
	case OverlayNotApplicable:
		return "not_applicable"
	case OverlayNotFound:
		return "not_found"
	case OverlayApplied:
		return "applied"
	case OverlayFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PanelOverlay merges a display-panel overlay selected by the panel id the
// firmware publishes in the UEFIDisplayInfo variable.
type PanelOverlay struct {
	FS     fs.FS
	Layout Layout
	Vars   efivar.Store
	Alloc  Allocator
	Logger *zap.Logger
}

// Apply looks up the panel id, then tries dtb/<chid>-panel-<id>.dtb for the
// variant that resolved res and dtb/qcom-panels/panel-<id>.dtb, merging the
// first overlay found into res.Artifact.
//
// The merged tree must fit the artifact's current buffer; otherwise, or when
// the merge itself fails, the artifact keeps its previous content. The
// returned error only describes a failed merge and is never fatal.
func (p *PanelOverlay) Apply(res *Resolution) (OverlayOutcome, error) {
	log := orNop(p.Logger)

	info, err := ReadDisplayInfo(p.Vars)
	if err != nil {
		if IsNotFound(err) {
			log.Debug("no display info variable")
		} else {
			log.Warn("display info unreadable", kindField(err), zap.Error(err))
		}
		return OverlayNotApplicable, nil
	}
	if !info.Valid() {
		log.Info("display info magic mismatch", zap.Uint32("version_info", info.VersionInfo))
		return OverlayNotApplicable, nil
	}
	log = log.With(zap.Uint32(fieldPanelID, info.PanelID))

	var candidates []string
	if !res.Override() {
		candidates = append(candidates, p.Layout.DevicePanelPath(res.CHID, info.PanelID))
	}
	candidates = append(candidates, p.Layout.GlobalPanelPath(info.PanelID))

	var ov *Artifact
	for _, path := range candidates {
		a, err := loadArtifact(p.FS, path, p.allocator())
		if err == nil {
			ov = a
			break
		}
		if IsNotFound(err) {
			log.Debug("panel overlay missing", zap.String(fieldPath, path))
		} else {
			log.Warn("panel overlay unusable", zap.String(fieldPath, path), kindField(err), zap.Error(err))
		}
	}
	if ov == nil {
		log.Info("no panel overlay found")
		return OverlayNotFound, nil
	}

	if err := mergeInto(res.Artifact, ov); err != nil {
		log.Warn("panel overlay not applied", zap.String(fieldPath, ov.Path()), kindField(err), zap.Error(err))
		return OverlayFailed, err
	}
	log.Info("panel overlay applied", zap.String(fieldPath, ov.Path()))
	return OverlayApplied, nil
}

func (p *PanelOverlay) allocator() Allocator {
	if p.Alloc == nil {
		return LimitedAllocator(DefaultMaxArtifactSize)
	}
	return p.Alloc
}

// mergeInto 在解析副本上合并，成功后写回 base 的缓冲区
func mergeInto(base, ov *Artifact) error {
	bt, err := fdt.Parse(base.Blob())
	if err != nil {
		return newError(Invalid, ErrOverlayMerge, "base artifact unparsable", err)
	}
	ot, err := fdt.Parse(ov.Blob())
	if err != nil {
		return newError(Invalid, ErrOverlayMerge, "overlay unparsable", err).WithDetail(fieldPath, ov.Path())
	}
	if err := fdt.ApplyOverlay(bt, ot); err != nil {
		return newError(Invalid, ErrOverlayMerge, "overlay merge failed", err).WithDetail(fieldPath, ov.Path())
	}
	if err := bt.FlattenInto(base.buf); err != nil {
		return newError(ResourceExhausted, ErrOverlayMerge, "merged tree exceeds artifact buffer", err).
			WithDetail(fieldSize, base.Cap())
	}
	return nil
}
