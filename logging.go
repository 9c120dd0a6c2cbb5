package dtbloader

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 日志字段名
const (
	fieldCHID    = "chid"
	fieldVariant = "variant"
	fieldPath    = "path"
	fieldPanelID = "panel_id"
	fieldCRC32   = "crc32"
	fieldSize    = "size"
	fieldKind    = "kind"
)

// NewLogger builds a JSON production logger, or a console logger when
// development is set, at the given level ("debug", "info", "warn", "error").
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func kindField(err error) zap.Field {
	return zap.String(fieldKind, KindOf(err).String())
}

func crcField(v uint32) zap.Field {
	return zap.String(fieldCRC32, fmtCRC(v))
}

func fmtCRC(v uint32) string {
	return fmt.Sprintf("%08x", v)
}
