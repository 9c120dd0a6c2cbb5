package dtbloader

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/darkit/dtbloader/chid"
)

// brokenFS 对指定路径返回 I/O 错误
type brokenFS struct {
	fs.FS
	broken string
}

func (b brokenFS) Open(name string) (fs.File, error) {
	if name == b.broken {
		return nil, &fs.PathError{Op: "open", Path: name, Err: errors.New("device error")}
	}
	return b.FS.Open(name)
}

func TestResolveSkipsMissingSpecific(t *testing.T) {
	l := DefaultLayout()
	fsys := volume(map[string][]byte{
		l.BasePath(mustUUID(yogaCHID9)): baseBlob("general"),
	})

	r := NewResolver(fsys, l, nil, nil)
	res, err := r.Resolve(yoga, chid.PriorityList{3, 9})
	require.NoError(t, err)

	require.NotNil(t, res.Variant)
	assert.Equal(t, chid.VariantID(9), res.Variant.ID)
	assert.Equal(t, yogaCHID9, res.CHID.String())
	assert.Equal(t, "dtb/"+yogaCHID9+".dtb", res.Path)
	assert.False(t, res.Override())
	assert.Equal(t, "general", modelOf(t, res.Artifact.Blob()))
}

func TestResolvePrefersMoreSpecific(t *testing.T) {
	l := DefaultLayout()
	fsys := volume(map[string][]byte{
		l.BasePath(mustUUID(yogaCHID3)): baseBlob("specific"),
		l.BasePath(mustUUID(yogaCHID9)): baseBlob("general"),
		l.OverridePath():                baseBlob("override"),
	})

	res, err := NewResolver(fsys, l, nil, nil).Resolve(yoga, chid.DefaultPriority)
	require.NoError(t, err)
	assert.Equal(t, chid.VariantID(3), res.Variant.ID)
	assert.Equal(t, "specific", modelOf(t, res.Artifact.Blob()))
}

func TestResolveOverride(t *testing.T) {
	l := DefaultLayout()
	fsys := volume(map[string][]byte{
		l.OverridePath(): baseBlob("override"),
	})

	res, err := NewResolver(fsys, l, nil, nil).Resolve(yoga, chid.DefaultPriority)
	require.NoError(t, err)
	assert.True(t, res.Override())
	assert.Nil(t, res.Variant)
	assert.Equal(t, uuid.Nil, res.CHID)
	assert.Equal(t, "MY.dtb", res.Path)
	assert.Equal(t, "override", modelOf(t, res.Artifact.Blob()))
}

func TestResolveSkipsInvalidCandidates(t *testing.T) {
	l := DefaultLayout()
	junk := make([]byte, 64)
	copy(junk, "not a device tree")
	chid6 := variant(t, 6).Derive(yoga)
	chid8 := variant(t, 8).Derive(yoga)

	fsys := brokenFS{
		FS: volume(map[string][]byte{
			l.BasePath(mustUUID(yogaCHID3)): baseBlob("x")[:10],
			l.BasePath(chid6):               junk,
			l.BasePath(chid8):               baseBlob("unreadable"),
			l.BasePath(mustUUID(yogaCHID9)): baseBlob("general"),
		}),
		broken: l.BasePath(chid8),
	}

	core, logs := observer.New(zapcore.DebugLevel)
	res, err := NewResolver(fsys, l, nil, zap.New(core)).Resolve(yoga, chid.PriorityList{3, 6, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, chid.VariantID(9), res.Variant.ID)

	assert.Equal(t, 2, logs.FilterMessage("candidate invalid").Len())
	unreadable := logs.FilterMessage("candidate unreadable").All()
	require.Len(t, unreadable, 1)
	assert.Equal(t, "unexpected", unreadable[0].ContextMap()[fieldKind])
}

func TestResolveNotFound(t *testing.T) {
	res, err := NewResolver(volume(nil), DefaultLayout(), nil, nil).Resolve(yoga, chid.PriorityList{3, 9})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrNoArtifact, le.Code)
	assert.Len(t, le.Details["tried"], 3)
}

func TestResolveAllocationFailureAborts(t *testing.T) {
	l := DefaultLayout()
	fsys := volume(map[string][]byte{
		l.BasePath(mustUUID(yogaCHID3)): baseBlob("specific"),
		l.OverridePath():                baseBlob("override"),
	})
	alloc, calls := countingAlloc(1)

	res, err := NewResolver(fsys, l, alloc, nil).Resolve(yoga, chid.DefaultPriority)
	assert.Nil(t, res)
	assert.True(t, IsResourceExhausted(err))
	assert.Equal(t, 1, *calls, "override must not be tried")
}

func TestResolveOversizedCandidate(t *testing.T) {
	l := DefaultLayout()
	blob := baseBlob("specific")
	fsys := volume(map[string][]byte{l.BasePath(mustUUID(yogaCHID3)): blob})

	_, err := NewResolver(fsys, l, LimitedAllocator(len(blob)-1), nil).Resolve(yoga, chid.DefaultPriority)
	assert.ErrorIs(t, err, &LoadError{Kind: ResourceExhausted, Code: ErrAllocation})
}

func TestResolveDirectoryCandidate(t *testing.T) {
	l := DefaultLayout()
	fsys := volume(map[string][]byte{
		l.BasePath(mustUUID(yogaCHID3)) + "/nested": []byte("x"),
		l.OverridePath(): baseBlob("override"),
	})
	res, err := NewResolver(fsys, l, nil, nil).Resolve(yoga, chid.PriorityList{3})
	require.NoError(t, err)
	assert.True(t, res.Override())
}

func TestLoadArtifactRecordsReadState(t *testing.T) {
	blob := append(baseBlob("padded"), 0, 0, 0, 0)
	a := loadedArtifact(t, "x.dtb", blob)

	assert.Equal(t, len(blob), a.BytesRead())
	assert.Equal(t, uint32(len(blob)-4), a.TotalSize())
	assert.Len(t, a.Blob(), len(blob)-4)
	assert.Equal(t, len(blob), a.Cap())
	assert.Equal(t, "x.dtb", a.Path())
	assert.NotZero(t, a.ReadChecksum())
}
