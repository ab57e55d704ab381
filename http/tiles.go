package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/models"
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/tiles"
)

// TilesPath is the path prefix tile rasters are served under.
const TilesPath = "/tiles/"

// HandleTileRaster serves the cropped rasters found in cacheDir. Tiles are
// addressed by name, as in /tiles/Terrain_1_2.
func HandleTileRaster(cacheDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		id, err := tiles.ParseName(strings.TrimPrefix(r.URL.Path, TilesPath))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		path := filepath.Join(cacheDir, id.Name()+producer.RasterExt)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			logs.Error(errors.New("opening tile raster failed").
				WithTag("tile", id.Name()).
				Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/zstd")
		http.ServeContent(w, r, id.Name()+producer.RasterExt, info.ModTime(), f)
	}
}

// HandleSessions lists the streaming sessions of the server as JSON.
func HandleSessions(sessions *models.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Count    int                  `json:"count"`
			Sessions []models.SessionInfo `json:"sessions"`
		}{
			Count:    sessions.Len(),
			Sessions: sessions.Info(),
		})
	}
}
