package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/tilestream/catalog"
	"github.com/aukilabs/tilestream/dem"
	"github.com/aukilabs/tilestream/featureflag"
	tshttp "github.com/aukilabs/tilestream/http"
	"github.com/aukilabs/tilestream/models"
	"github.com/aukilabs/tilestream/modules"
	"github.com/aukilabs/tilestream/modules/terrain"
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/smoketest"
	"github.com/aukilabs/tilestream/streaming"
	"github.com/aukilabs/tilestream/tiles"
	tswebsocket "github.com/aukilabs/tilestream/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The tilestream version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "tilestream_info",
		Help:        "Tilestream information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"TILESTREAM_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"TILESTREAM_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"TILESTREAM_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	LogLevel           string        `cli:""        env:"TILESTREAM_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"TILESTREAM_LOG_INDENT"           help:"Indent logs."`
	DEM                demConfig     `cli:""        env:"-"                               help:"Elevation raster configuration."`
	Tiles              tilesConfig   `cli:""        env:"-"                               help:"Tile configuration."`
	Variant            string        `cli:""        env:"TILESTREAM_VARIANT"              help:"Streaming variant (dynamic|static)."`
	PingInterval       time.Duration `cli:",hidden" env:"TILESTREAM_PING_INTERVAL"        help:"Client ping (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"TILESTREAM_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"TILESTREAM_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Events             eventsConfig  `cli:",hidden" env:"-"                               help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"TILESTREAM_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	Version            bool          `cli:""        env:"-"                               help:"Show version."`
	Help               bool          `cli:""        env:"-"                               help:"Show help."`
}

type demConfig struct {
	Path         string `cli:"" env:"TILESTREAM_DEM_PATH"          help:"Path of the elevation raster."`
	MetadataPath string `cli:"" env:"TILESTREAM_DEM_METADATA_PATH" help:"Path of the elevation raster metadata. Defaults to the raster path with a .yaml extension."`
	URL          string `cli:"" env:"TILESTREAM_DEM_URL"           help:"URL the elevation raster and its metadata are fetched from before starting."`
}

type tilesConfig struct {
	Width       int     `cli:""        env:"TILESTREAM_TILE_WIDTH"       help:"Tile width in raster samples."`
	Height      int     `cli:""        env:"TILESTREAM_TILE_HEIGHT"      help:"Tile height in raster samples."`
	Scale       float64 `cli:""        env:"TILESTREAM_TILE_SCALE"       help:"World units per raster sample."`
	CacheDir    string  `cli:""        env:"TILESTREAM_TILE_CACHE_DIR"   help:"Directory where cropped tile rasters are stored."`
	CatalogPath string  `cli:""        env:"TILESTREAM_TILE_CATALOG"     help:"Path of the generated tile catalog database."`
	Workers     int     `cli:",hidden" env:"TILESTREAM_TILE_WORKERS"     help:"The number of tile generation workers."`
	Rate        float64 `cli:",hidden" env:"TILESTREAM_TILE_RATE"        help:"The maximum number of tiles generated per second. Zero means unlimited."`
	Burst       int     `cli:",hidden" env:"TILESTREAM_TILE_BURST"       help:"The number of tiles that can be generated at once above the rate."`
	QueueSize   int     `cli:",hidden" env:"TILESTREAM_TILE_QUEUE_SIZE"  help:"The size of the queue where generation requests are stored."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"TILESTREAM_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"TILESTREAM_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"TILESTREAM_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"TILESTREAM_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:           ":4000",
		AdminAddr:      ":18190",
		PublicEndpoint: "http://localhost:4000",
		LogLevel:       logs.InfoLevel.String(),
		DEM: demConfig{
			Path: "data/terrain.raw",
		},
		Tiles: tilesConfig{
			Width:       256,
			Height:      256,
			Scale:       1,
			CacheDir:    "data/tiles",
			CatalogPath: "data/tiles.db",
			Workers:     runtime.NumCPU(),
			Burst:       1,
			QueueSize:   256,
		},
		Variant:            streaming.Dynamic.String(),
		PingInterval:       time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the terrain tile streaming server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	variant, err := validateConfig(conf)
	if err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "tilestream",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	if unknown := featureFlags.Unknown(); len(unknown) != 0 {
		logs.Warn(errors.New("unknown feature flags").WithTag("flags", unknown))
	}

	if conf.DEM.URL != "" {
		if err := dem.Fetch(ctx, conf.DEM.URL, conf.DEM.Path, transport); err != nil {
			logs.Fatal(err)
		}
	}

	metadataPath := conf.DEM.MetadataPath
	if metadataPath == "" {
		metadataPath = dem.MetadataPath(conf.DEM.Path)
	}

	source, err := dem.Open(conf.DEM.Path, metadataPath)
	if err != nil {
		logs.Fatal(err)
	}

	layout := tiles.Layout{
		Size:  tiles.Size{X: conf.Tiles.Width, Y: conf.Tiles.Height},
		Scale: conf.Tiles.Scale,
	}

	var tileCatalog producer.Catalog
	featureFlags.IfNotSet(featureflag.FlagDisableCatalog, func() {
		c, err := catalog.Open(conf.Tiles.CatalogPath)
		if err != nil {
			logs.Fatal(err)
		}
		tileCatalog = c
	})
	if c, ok := tileCatalog.(*catalog.Catalog); ok {
		defer c.Close()
	}

	tileProducer, err := producer.New(producer.Options{
		Source:    source,
		Layout:    layout,
		CacheDir:  conf.Tiles.CacheDir,
		Generator: producer.HeightfieldGenerator{},
		Catalog:   tileCatalog,
		Rate:      conf.Tiles.Rate,
		Burst:     conf.Tiles.Burst,
		QueueSize: conf.Tiles.QueueSize,
	})
	if err != nil {
		logs.Fatal(err)
	}
	defer tileProducer.Close()

	graph := tileProducer.Graph()
	if graph.Len() == 0 {
		logs.Fatal(errors.New("elevation raster is smaller than a tile").
			WithType(streaming.ErrTypeEmptyGrid).
			WithTag("raster_width", source.Metadata.Width).
			WithTag("raster_height", source.Metadata.Height).
			WithTag("tile_width", layout.Size.X).
			WithTag("tile_height", layout.Size.Y))
	}

	async := variant == streaming.Dynamic
	featureFlags.IfSet(featureflag.FlagDisableAsyncGeneration, func() {
		async = false
	})

	if async {
		tileProducer.Start(ctx, conf.Tiles.Workers)
	}

	var ready readiness
	if variant == streaming.Static {
		go func() {
			start := time.Now()
			if err := tileProducer.Prebake(ctx, conf.Tiles.Workers); err != nil {
				logs.Fatal(errors.New("prebaking tiles failed").Wrap(err))
			}

			logs.WithTag("tiles", graph.Len()).
				WithTag("duration", time.Since(start).String()).
				Info("tiles prebaked")
			ready.set()
		}()
	} else {
		ready.set()
	}

	var sessions models.SessionStore
	rasterBaseURL := conf.PublicEndpoint + tshttp.TilesPath
	contactDedup := !featureFlags.IsSet(featureflag.FlagDisableContactDedup)

	var service http.ServeMux
	service.Handle("/", tshttp.HandleWithCORS(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh tswebsocket.Handler = &tswebsocket.RealtimeHandler{
				ClientPingInterval: conf.PingInterval,
				ClientIdleTimeout:  conf.ClientIdleTimeout,
				Sessions:           &sessions,
				Variant:            variant.String(),
				Modules: []modules.Module{
					&terrain.Module{
						Graph:         graph,
						Layout:        layout,
						Variant:       variant,
						Producer:      tileProducer,
						Async:         async,
						ContactDedup:  contactDedup,
						RasterBaseURL: rasterBaseURL,
					},
				},
			}
			h := tswebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = tswebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			tswebsocket.Handle(ctx, conn, h)
		},
	}))
	service.Handle(tshttp.TilesPath, tshttp.HandleWithCORS(tshttp.HandleTileRaster(conf.Tiles.CacheDir)))
	service.Handle("/health", tshttp.HandleWithCORS(http.HandlerFunc(tshttp.HandleHealthCheck)))
	service.Handle("/ready", tshttp.HandleWithCORS(tshttp.HandleReadyCheck(ready.get)))
	service.Handle("/version", tshttp.HandleWithCORS(tshttp.HandleVersion(version)))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", tshttp.HandleHealthCheck)
	admin.HandleFunc("/ready", tshttp.HandleReadyCheck(ready.get))
	admin.HandleFunc("/sessions", tshttp.HandleSessions(&sessions))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:   conf.PublicEndpoint,
		UserAgent:  fmt.Sprintf("Tilestream %s", version),
		SendResult: logSmokeTestResult,
	}))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("variant", variant.String()).
		WithTag("grid", fmt.Sprintf("%dx%d", graph.Cols(), graph.Rows())).
		WithTag("async", async).
		WithTag("feature_flags", featureFlags.List()).
		Info("starting tilestream server")

	tshttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			tshttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func logSmokeTestResult(ctx context.Context, res smoketest.Results) error {
	logs.WithTag("to_endpoint", res.ToEndpoint).
		WithTag("status", res.Status).
		WithTag("session_id", res.SessionID).
		WithTag("activations", res.Activations).
		WithTag("failures", res.Failures).
		WithTag("latency_ms", res.LatencyMilliSec).
		Info("smoke test completed")
	return nil
}

func validateConfig(conf config) (streaming.Variant, error) {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return 0, errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.DEM.Path == "" {
		return 0, errors.New("missing dem path").WithType(dem.ErrTypeMissingSource)
	}

	if conf.Tiles.Width <= 0 || conf.Tiles.Height <= 0 {
		return 0, errors.New("tile size must be positive").
			WithTag("width", conf.Tiles.Width).
			WithTag("height", conf.Tiles.Height)
	}

	if conf.Tiles.Scale <= 0 {
		return 0, errors.New("tile scale must be positive").
			WithTag("scale", conf.Tiles.Scale)
	}

	if conf.Tiles.CacheDir == "" {
		return 0, errors.New("missing tile cache directory")
	}

	if conf.Tiles.CatalogPath != "" {
		if err := os.MkdirAll(filepath.Dir(conf.Tiles.CatalogPath), 0o755); err != nil {
			return 0, errors.New("creating catalog directory failed").
				WithTag("path", conf.Tiles.CatalogPath).
				Wrap(err)
		}
	}

	return streaming.ParseVariant(conf.Variant)
}
