package dtbloader

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Install validates blob as a device tree and writes it to
// <volumeRoot>/<blob dir>/<id>.<ext>, replacing any previous file
// atomically. It returns the written path.
func Install(volumeRoot string, layout Layout, id uuid.UUID, blob []byte) (string, error) {
	if id == uuid.Nil {
		return "", newError(Invalid, ErrInvalidIdentifier, "nil identifier", nil)
	}
	if _, err := NewArtifact("", blob); err != nil {
		return "", err
	}

	target := filepath.Join(volumeRoot, filepath.FromSlash(layout.BasePath(id)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", newError(Unexpected, ErrStorage, "failed to create blob directory", err).WithDetail(fieldPath, target)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".dtb-*")
	if err != nil {
		return "", newError(Unexpected, ErrStorage, "failed to create temporary file", err).WithDetail(fieldPath, target)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return "", newError(Unexpected, ErrStorage, "failed to write blob", err).WithDetail(fieldPath, target)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", newError(Unexpected, ErrStorage, "failed to sync blob", err).WithDetail(fieldPath, target)
	}
	if err := tmp.Close(); err != nil {
		return "", newError(Unexpected, ErrStorage, "failed to close blob", err).WithDetail(fieldPath, target)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", newError(Unexpected, ErrStorage, "failed to replace blob", err).WithDetail(fieldPath, target)
	}
	return target, nil
}
