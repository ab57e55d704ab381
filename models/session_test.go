package models

import (
	"context"
	"testing"

	"github.com/aukilabs/tilestream/tiles"
	"github.com/stretchr/testify/require"
)

func TestSessionStats(t *testing.T) {
	session := NewSession(42, "dynamic")
	require.NotEmpty(t, session.SessionUUID)
	require.Zero(t, session.Stats().UpdatedAt)

	session.UpdateStats(func(s *Stats) {
		s.CurrentTile = tiles.ID{Col: 1, Row: 2}
		s.ActiveTiles = []tiles.ID{{Col: 1, Row: 2}, {Col: 0, Row: 2}}
		s.TilesEntered++
	})

	stats := session.Stats()
	require.Equal(t, tiles.ID{Col: 1, Row: 2}, stats.CurrentTile)
	require.Equal(t, 1, stats.TilesEntered)
	require.NotZero(t, stats.UpdatedAt)

	stats.ActiveTiles[0] = tiles.ID{Col: 9, Row: 9}
	require.Equal(t, tiles.ID{Col: 1, Row: 2}, session.Stats().ActiveTiles[0])
}

func TestSessionClose(t *testing.T) {
	session := NewSession(42, "dynamic")
	session.Close()
	session.Close()

	select {
	case <-session.Done():
	default:
		t.Fatal("session is not closed")
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("add and get", func(t *testing.T) {
		var store SessionStore
		session := NewSession(store.NewID(), "dynamic")

		require.NoError(t, store.Add(ctx, session))
		require.Equal(t, 1, store.Len())

		s, ok := store.GetByGlobalID(store.GlobalSessionID(session.ID))
		require.True(t, ok)
		require.Equal(t, session, s)
	})

	t.Run("global id uses server id", func(t *testing.T) {
		store := SessionStore{ServerID: "eu"}
		require.Equal(t, "eux2a", store.GlobalSessionID(42))
	})

	t.Run("remove closes the session and releases its id", func(t *testing.T) {
		var store SessionStore
		session := NewSession(store.NewID(), "static")
		require.NoError(t, store.Add(ctx, session))

		store.Remove(ctx, session)
		require.Zero(t, store.Len())
		require.Equal(t, session.ID, store.NewID())

		select {
		case <-session.Done():
		default:
			t.Fatal("session is not closed")
		}

		store.Remove(ctx, session)
	})

	t.Run("list and info are ordered by id", func(t *testing.T) {
		store := SessionStore{ServerID: "test"}
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Add(ctx, NewSession(store.NewID(), "dynamic")))
		}

		sessions := store.List()
		require.Len(t, sessions, 3)
		for i, s := range sessions {
			require.Equal(t, uint32(i+1), s.ID)
		}

		infos := store.Info()
		require.Len(t, infos, 3)
		require.Equal(t, "testx1", infos[0].ID)
		require.Equal(t, "dynamic", infos[0].Variant)
	})
}
