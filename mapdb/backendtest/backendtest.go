// Package backendtest is a conformance suite which every mapdb.Backend
// implementation is expected to pass.
package backendtest

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.mapshift.dev/core/mapblock"
	"go.mapshift.dev/core/mapdb"
)

// Suite configures a conformance run of a Backend implementation.
type Suite struct {
	// Constructor of the Backend under test.
	Constructor mapdb.Constructor
	// NewLocation returns a fresh, empty Location on each call.
	NewLocation func(t *testing.T) mapdb.Location
	// Persistent is true if committed blocks survive Close and a re-open.
	Persistent bool
	// CreatesOnDemand is true if the Backend cannot detect a missing
	// database, and MustExist therefore cannot fail.
	CreatesOnDemand bool
}

// Run the conformance suite as subtests of |t|.
func (s Suite) Run(t *testing.T) {
	t.Run("EmptyDatabase", s.testEmptyDatabase)
	t.Run("SaveCommitListLoad", s.testSaveCommitListLoad)
	t.Run("OverwriteInLaterTransaction", s.testOverwrite)
	t.Run("CloseDiscardsOpenTransaction", s.testCloseDiscards)
	t.Run("MustExistOnMissingDatabase", s.testMustExistMissing)
}

// Fixtures are block positions exercising axis extremes and sign handling.
var Fixtures = []mapblock.Pos{
	{X: 0, Y: 0, Z: 0},
	{X: -1, Y: -1, Z: -1},
	{X: 1, Y: -2, Z: 3},
	{X: mapblock.MaxPosCoord, Y: mapblock.MinPosCoord, Z: mapblock.MaxPosCoord},
	{X: mapblock.MinPosCoord, Y: mapblock.MaxPosCoord, Z: mapblock.MinPosCoord},
	{X: -300, Y: 20, Z: 1000},
}

// FixturePayload returns a distinct payload for |pos| and |gen|.
func FixturePayload(pos mapblock.Pos, gen int) []byte {
	return []byte(pos.String() + "@" + string(rune('a'+gen)))
}

func (s Suite) testEmptyDatabase(t *testing.T) {
	var ctx = context.Background()
	var b = s.open(t, s.NewLocation(t), mapdb.CreateIfMissing)
	defer func() { require.NoError(t, b.Close()) }()

	var out, err = b.ListAllLoadableBlocks(ctx)
	require.NoError(t, err)
	require.Empty(t, out)

	data, err := b.LoadBlock(ctx, Fixtures[1])
	require.NoError(t, err)
	require.Nil(t, data)
}

func (s Suite) testSaveCommitListLoad(t *testing.T) {
	var ctx = context.Background()
	var loc = s.NewLocation(t)
	var b = s.open(t, loc, mapdb.CreateIfMissing)

	require.NoError(t, b.BeginSave(ctx))
	for _, pos := range Fixtures {
		require.NoError(t, b.SaveBlock(ctx, pos, FixturePayload(pos, 0)))
	}
	require.NoError(t, b.EndSave(ctx))

	s.verify(t, b, 0)

	if s.Persistent {
		require.NoError(t, b.Close())
		b = s.open(t, loc, mapdb.MustExist)
		s.verify(t, b, 0)
	}
	require.NoError(t, b.Close())
}

func (s Suite) testOverwrite(t *testing.T) {
	var ctx = context.Background()
	var b = s.open(t, s.NewLocation(t), mapdb.CreateIfMissing)
	defer func() { require.NoError(t, b.Close()) }()

	for gen := 0; gen != 2; gen++ {
		require.NoError(t, b.BeginSave(ctx))
		for _, pos := range Fixtures {
			require.NoError(t, b.SaveBlock(ctx, pos, FixturePayload(pos, gen)))
		}
		require.NoError(t, b.EndSave(ctx))
	}
	s.verify(t, b, 1)
}

func (s Suite) testCloseDiscards(t *testing.T) {
	if !s.Persistent {
		t.Skip("backend is not persistent")
	}
	var ctx = context.Background()
	var loc = s.NewLocation(t)
	var b = s.open(t, loc, mapdb.CreateIfMissing)

	require.NoError(t, b.BeginSave(ctx))
	require.NoError(t, b.SaveBlock(ctx, Fixtures[0], FixturePayload(Fixtures[0], 0)))
	require.NoError(t, b.EndSave(ctx))

	require.NoError(t, b.BeginSave(ctx))
	require.NoError(t, b.SaveBlock(ctx, Fixtures[0], FixturePayload(Fixtures[0], 1)))
	require.NoError(t, b.SaveBlock(ctx, Fixtures[1], FixturePayload(Fixtures[1], 1)))
	require.NoError(t, b.Close()) // Without EndSave.

	b = s.open(t, loc, mapdb.MustExist)
	defer func() { require.NoError(t, b.Close()) }()

	var out, err = b.ListAllLoadableBlocks(ctx)
	require.NoError(t, err)
	require.Equal(t, []mapblock.Pos{Fixtures[0]}, out)

	data, err := b.LoadBlock(ctx, Fixtures[0])
	require.NoError(t, err)
	require.Equal(t, FixturePayload(Fixtures[0], 0), data)
}

func (s Suite) testMustExistMissing(t *testing.T) {
	if s.CreatesOnDemand {
		t.Skip("backend creates its database on demand")
	}
	var _, err = s.Constructor(s.NewLocation(t), mapdb.MustExist)
	require.Error(t, err)

	var oe *mapdb.OpenError
	require.True(t, errors.As(err, &oe), "expected *OpenError, got %#v", err)
}

func (s Suite) open(t *testing.T, loc mapdb.Location, mode mapdb.OpenMode) mapdb.Backend {
	var b, err = s.Constructor(loc, mode)
	require.NoError(t, err)
	return b
}

func (s Suite) verify(t *testing.T, b mapdb.Backend, gen int) {
	var ctx = context.Background()

	var out, err = b.ListAllLoadableBlocks(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, Fixtures, out)

	for _, pos := range Fixtures {
		data, err := b.LoadBlock(ctx, pos)
		require.NoError(t, err)
		require.Equal(t, FixturePayload(pos, gen), data, "pos %s", pos)
	}
}
