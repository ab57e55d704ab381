package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/dem"
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/models"
	"github.com/aukilabs/tilestream/modules"
	"github.com/aukilabs/tilestream/modules/terrain"
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/streaming"
	"github.com/aukilabs/tilestream/tiles"
	tswebsocket "github.com/aukilabs/tilestream/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestServer(t *testing.T, generator producer.Generator) *httptest.Server {
	layout := tiles.Layout{Size: tiles.Size{X: 4, Y: 4}, Scale: 1}

	p, err := producer.New(producer.Options{
		Source:    dem.NewTestingSource(t, 12, 12),
		Layout:    layout,
		CacheDir:  filepath.Join(t.TempDir(), "tiles"),
		Generator: generator,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var sessions models.SessionStore

	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			h := &tswebsocket.RealtimeHandler{
				ClientPingInterval: time.Second,
				ClientIdleTimeout:  time.Minute,
				Sessions:           &sessions,
				Variant:            streaming.Dynamic.String(),
				Modules: []modules.Module{
					&terrain.Module{
						Graph:    p.Graph(),
						Layout:   layout,
						Variant:  streaming.Dynamic,
						Producer: p,
					},
				},
			}
			defer h.Close()

			tswebsocket.Handle(ctx, conn, h)
		},
	})
	t.Cleanup(server.Close)
	return server
}

func TestRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := newTestServer(t, producer.HeightfieldGenerator{})

		res, err := Run(context.Background(), "http://localtilestream", server.URL, "smoketest", time.Second*5)
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)
		require.Equal(t, "Terrain_1_1", res.StartTile)
		require.Equal(t, 9, res.Activations)
		require.Zero(t, res.Failures)
		require.NotEmpty(t, res.SessionID)
		require.Greater(t, res.LatencyMilliSec, float64(0))
	})

	t.Run("generation failure", func(t *testing.T) {
		failing := tiles.ID{Col: 0, Row: 0}
		generator := producer.GeneratorFunc(func(ctx context.Context, path string, e dem.Elevation) (producer.Heightfield, error) {
			if filepath.Base(path) == failing.Name()+producer.RasterExt {
				return producer.Heightfield{}, errors.New("generator crashed")
			}
			return producer.HeightfieldGenerator{}.GenerateTerrain(ctx, path, e)
		})
		server := newTestServer(t, generator)

		res, err := Run(context.Background(), "http://localtilestream", server.URL, "smoketest", time.Second*5)
		require.Error(t, err)
		require.Equal(t, StatusFailed, res.Status)
		require.Equal(t, 8, res.Activations)
		require.Equal(t, 1, res.Failures)
	})

	t.Run("offline", func(t *testing.T) {
		res, err := Run(context.Background(), "http://localtilestream", "http://127.0.0.1:1", "smoketest", time.Second)
		require.Error(t, err)
		require.Equal(t, StatusFailed, res.Status)
		require.NotEmpty(t, res.Error)
		require.Zero(t, res.LatencyMilliSec)
	})
}

func TestHandleSmokeTest(t *testing.T) {
	server := newTestServer(t, producer.HeightfieldGenerator{})

	results := make(chan Results, 1)
	h := HandleSmokeTest(context.Background(), Options{
		Endpoint:  "http://localtilestream",
		UserAgent: "smoketest",
		SendResult: func(_ context.Context, res Results) error {
			results <- res
			return nil
		},
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/smoke-test", nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString("{")))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("run", func(t *testing.T) {
		body, err := json.Marshal(Request{
			Endpoint: server.URL,
			Timeout:  time.Second * 5,
		})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBuffer(body)))
		require.Equal(t, http.StatusAccepted, w.Code)

		select {
		case res := <-results:
			require.Equal(t, "http://localtilestream", res.FromEndpoint)
			require.Equal(t, server.URL, res.ToEndpoint)
			require.Equal(t, StatusSuccess, res.Status)

		case <-time.After(10 * time.Second):
			t.Fatal("no smoke test result")
		}
	})
}

func TestNeighborhoodSize(t *testing.T) {
	t.Run("center tile", func(t *testing.T) {
		require.Equal(t, 9, neighborhoodSize(messages.InitResponse{
			Cols:  3,
			Rows:  3,
			Start: messages.NewTileRef(tiles.ID{Col: 1, Row: 1}),
		}))
	})

	t.Run("failed tiles are counted", func(t *testing.T) {
		require.Equal(t, 4, neighborhoodSize(messages.InitResponse{
			Cols:   2,
			Rows:   2,
			Start:  messages.NewTileRef(tiles.ID{}),
			Active: messages.NewTileRefs([]tiles.ID{{}, {Col: 1}}),
		}))
	})

	t.Run("single tile grid", func(t *testing.T) {
		require.Equal(t, 1, neighborhoodSize(messages.InitResponse{
			Cols:  1,
			Rows:  1,
			Start: messages.NewTileRef(tiles.ID{}),
		}))
	})
}
