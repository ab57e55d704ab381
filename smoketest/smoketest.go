package smoketest

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/tiles"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	defaultTimeout = 10 * time.Second
)

// Request is the body of a smoke test request.
type Request struct {
	// The tilestream endpoint to test. Defaults to the endpoint of the
	// server running the test.
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout"`
}

// Results describes a smoke test run.
type Results struct {
	FromEndpoint    string  `json:"from_endpoint"`
	ToEndpoint      string  `json:"to_endpoint"`
	Status          string  `json:"status"`
	SessionID       string  `json:"session_id,omitempty"`
	StartTile       string  `json:"start_tile,omitempty"`
	Activations     int     `json:"activations"`
	Failures        int     `json:"failures"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

type Options struct {
	Endpoint   string
	UserAgent  string
	SendResult func(context.Context, Results) error
}

// HandleSmokeTest starts a smoke test in the background and replies
// immediately. Results are reported to opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		if req.Endpoint == "" {
			req.Endpoint = opts.Endpoint
		}

		go func() {
			res, err := Run(ctx, opts.Endpoint, req.Endpoint, opts.UserAgent, req.Timeout)
			if err != nil {
				logs.Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusAccepted)
	}
}

// Run opens a streaming session on the endpoint and waits until every tile
// of the start neighborhood is reported, either activated or failed.
func Run(ctx context.Context, from, to, userAgent string, timeout time.Duration) (Results, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	res := Results{
		FromEndpoint: from,
		ToEndpoint:   to,
		Status:       StatusFailed,
	}

	err := run(ctx, &res, userAgent, timeout)
	if err != nil {
		res.Error = err.Error()
		return res, errors.New("smoke test failed").
			WithTag("to_endpoint", to).
			Wrap(err)
	}

	res.Status = StatusSuccess
	return res, nil
}

func run(ctx context.Context, res *Results, userAgent string, timeout time.Duration) error {
	wsURL := strings.Replace(res.ToEndpoint, "http", "ws", 1)

	config, err := websocket.NewConfig(wsURL, res.FromEndpoint)
	if err != nil {
		return errors.New("invalid endpoint").Wrap(err)
	}
	config.Dialer = &net.Dialer{Timeout: timeout}
	config.Header.Set("User-Agent", userAgent)
	config.Header.Set("X-Client-Id", "smoketest-"+uuid.NewString())

	start := time.Now()

	conn, err := websocket.DialConfig(config)
	if err != nil {
		return errors.New("dialing endpoint failed").Wrap(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return errors.New("setting deadline failed").Wrap(err)
	}

	const initRequestID = 1

	req, err := messages.NewMsg(messages.MsgTypeInit, initRequestID, messages.InitRequest{})
	if err != nil {
		return err
	}
	if _, err := messages.Send(conn, req); err != nil {
		return errors.New("sending init failed").Wrap(err)
	}

	expected := -1
	for expected < 0 || res.Activations+res.Failures < expected {
		msg, _, err := messages.Receive(conn)
		if err != nil {
			return errors.New("receiving message failed").Wrap(err)
		}

		switch msg.Type {
		case messages.MsgTypeInitResponse:
			var session messages.InitResponse
			if err := msg.DataTo(&session); err != nil {
				return err
			}

			res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000
			res.SessionID = session.SessionID
			res.StartTile = session.Start.Name
			expected = neighborhoodSize(session)

		case messages.MsgTypeTileActivate:
			res.Activations++

		case messages.MsgTypeError:
			var e messages.ErrorResponse
			if err := msg.DataTo(&e); err != nil {
				return err
			}

			if e.Code != messages.ErrorCodeGenerationFailed {
				return errors.New("session initialization failed").
					WithTag("code", e.Code).
					WithTag("message", e.Message)
			}
			res.Failures++
		}
	}

	if res.Failures != 0 {
		return errors.New("tile generation failed").
			WithTag("failures", res.Failures)
	}
	return nil
}

// neighborhoodSize returns the number of tiles the server reports after
// init: the start tile and its neighbors. Tiles that failed to generate are
// missing from the active list of the response but still reported.
func neighborhoodSize(res messages.InitResponse) int {
	g := tiles.NewGraph(res.Cols, res.Rows)
	if !g.Contains(res.Start.ID) {
		return len(res.Active)
	}
	return 1 + len(g.NeighborsOf(res.Start.ID))
}
