package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/modules"
	"github.com/aukilabs/tilestream/producer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	moduleLabel         = "module"
	publicEndpointLabel = "public_endpoint"
	statusLabel         = "status"

	defaultModule = "tilestream"

	// The message type label of generation results, which do not come from
	// a client message.
	resultMsgType = "generation_result"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{publicEndpointLabel})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket message.",
	}, []string{publicEndpointLabel, errTypeLabel})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{publicEndpointLabel, errTypeLabel, msgTypeLabel})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{publicEndpointLabel, msgTypeLabel, moduleLabel})

	wsGenerationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_generation_results",
		Help: "The number of background tile generations delivered to connections.",
	}, []string{publicEndpointLabel, statusLabel})

	wsSessionLifetime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_session_lifetime_seconds",
		Help:    "The time between a streaming session start and its client disconnection.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{publicEndpointLabel})
)

func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	return &handlerWithMetrics{
		Handler:        h,
		publicEndpoint: publicEndpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	publicEndpoint string
}

func (h *handlerWithMetrics) labels(kv ...string) prometheus.Labels {
	l := prometheus.Labels{publicEndpointLabel: h.publicEndpoint}
	for i := 0; i+1 < len(kv); i += 2 {
		l[kv[i]] = kv[i+1]
	}
	return l
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedClients.With(h.labels()).Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleInit(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleInit(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.With(h.labels()).Dec()

	if s := h.CurrentSession(); s != nil {
		wsSessionLifetime.With(h.labels()).Observe(time.Since(s.CreatedAt).Seconds())
	}

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandleWithModule(ctx context.Context, module modules.Module, respond messages.ResponseSender, msg messages.Msg) error {
	return h.measureLatency(msg.TypeString(), module.Name(), func() error {
		return h.Handler.HandleWithModule(ctx, module, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleResult(ctx context.Context, respond messages.ResponseSender, res producer.Result) error {
	status := "generated"
	if res.Err != nil {
		status = "failed"
	}
	wsGenerationResults.With(h.labels(statusLabel, status)).Inc()

	return h.measureLatency(resultMsgType, defaultModule, func() error {
		return h.Handler.HandleResult(ctx, respond, res)
	})
}

func (h *handlerWithMetrics) SendPing(ctx context.Context, respond messages.ResponseSender) error {
	return h.measureLatency(string(messages.MsgTypePing), defaultModule, func() error {
		return h.Handler.SendPing(ctx, respond)
	})
}

func (h *handlerWithMetrics) Receiver() messages.Receiver {
	receive := h.Handler.Receiver()

	return func() (messages.Msg, int, error) {
		msg, n, err := receive()
		msgType := msg.TypeString()

		if err != nil {
			wsReceiveError.With(h.labels(errTypeLabel, errors.Type(err))).Inc()
		} else {
			wsReceivedMsgs.With(h.labels(msgTypeLabel, msgType)).Inc()
		}

		if n != 0 {
			wsReceivedBytes.With(h.labels(msgTypeLabel, msgType)).Add(float64(n))
		}
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() messages.Sender {
	send := h.Handler.Sender()

	return func(msg messages.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := send(msg)
		if err != nil {
			wsSendError.With(h.labels(
				msgTypeLabel, msgType,
				errTypeLabel, errors.Type(err),
			)).Inc()
		}

		if n != 0 {
			wsSentMsgs.With(h.labels(msgTypeLabel, msgType)).Inc()
			wsSentBytes.With(h.labels(msgTypeLabel, msgType)).Add(float64(n))
		}
		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(msgType string, module string, f func() error) error {
	start := time.Now()

	err := f()
	if errors.IsType(err, messages.ErrTypeMsgSkip) {
		return err
	}

	wsMsgLatency.
		With(h.labels(msgTypeLabel, msgType, moduleLabel, module)).
		Observe(time.Since(start).Seconds())
	return err
}
