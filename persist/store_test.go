package persist

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spheray/prim"
)

func newStore(t *testing.T) (*Store, hackpadfs.FS) {
	t.Helper()
	fsys, err := mem.NewFS()
	require.NoError(t, err)
	s, err := NewStore(fsys, "saves")
	require.NoError(t, err)
	return s, fsys
}

func sampleRecords() []prim.Record {
	root := prim.Primitive{Size: mgl32.Vec3{1, 1, 1}, Transform: mgl32.Ident4(), Parent: -1}
	child := prim.Primitive{
		Position:  mgl32.Vec3{1, 0, 0},
		Size:      mgl32.Vec3{0.5, 0.5, 0.5},
		Bevel:     0.1,
		Transform: mgl32.Translate3D(1, 0, 0),
		Operation: prim.Difference,
		Shape:     prim.Box,
	}
	return []prim.Record{prim.ToRecord(root, -1), prim.ToRecord(child, 0)}
}

func TestSaveLoad(t *testing.T) {
	s, _ := newStore(t)
	recs := sampleRecords()

	require.NoError(t, s.Save("  castle ", recs))
	got, err := s.Load("castle")
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"castle"}, names)
}

func TestSaveConflict(t *testing.T) {
	s, fsys := newStore(t)
	require.NoError(t, s.Save("a", sampleRecords()))

	err := s.Save("a", sampleRecords()[:1])
	require.ErrorIs(t, err, ErrConflict)

	got, err := s.Load("a")
	require.NoError(t, err)
	assert.Len(t, got, 2, "conflicting save must not touch the file")

	entries, err := hackpadfs.ReadDir(fsys, "saves")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestNames(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"scene", "scene", nil},
		{"\t scene \n", "scene", nil},
		{"café", "café", nil},
		{"   ", "", ErrEmptyName},
		{"", "", ErrEmptyName},
		{"a/b", "", ErrInvalidName},
		{"..", "", ErrInvalidName},
		{".hidden", "", ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizedNamesCollide(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Save("café", sampleRecords()))
	assert.ErrorIs(t, s.Save("café", sampleRecords()), ErrConflict)
	ok, err := s.Exists(" café")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadErrors(t *testing.T) {
	s, fsys := newStore(t)

	_, err := s.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load(" ")
	assert.ErrorIs(t, err, ErrEmptyName)

	write := func(name, body string) {
		f, err := hackpadfs.OpenFile(fsys, "saves/"+name+Ext, hackpadfs.FlagWriteOnly|hackpadfs.FlagCreate, 0o644)
		require.NoError(t, err)
		_, err = hackpadfs.WriteFile(f, []byte(body))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	write("garbage", "{not json")
	_, err = s.Load("garbage")
	assert.ErrorIs(t, err, prim.ErrMalformed)

	write("forward", `{"primitives":[{"parentIndex":-1},{"parentIndex":2},{"parentIndex":0}]}`)
	_, err = s.Load("forward")
	assert.ErrorIs(t, err, prim.ErrMalformed)

	write("tworoots", `{"primitives":[{"parentIndex":-1},{"parentIndex":-1}]}`)
	_, err = s.Load("tworoots")
	assert.ErrorIs(t, err, prim.ErrMalformed)
}

func TestSaveRejectsMalformed(t *testing.T) {
	s, _ := newStore(t)
	bad := sampleRecords()
	bad[1].Parent = 5
	assert.ErrorIs(t, s.Save("bad", bad), prim.ErrMalformed)
	ok, err := s.Exists("bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAndList(t *testing.T) {
	s, _ := newStore(t)
	for _, n := range []string{"b", "a", "c"} {
		require.NoError(t, s.Save(n, sampleRecords()))
	}
	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, s.Delete("b"))
	assert.ErrorIs(t, s.Delete("b"), ErrNotFound)
	names, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)
}
