package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/producer"
	"golang.org/x/net/websocket"
)

const (
	sessionIDTag = "session_id"

	xForwardedForHeader = "X-Forwarded-For"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	tagMutex    sync.RWMutex
	sessionID   string
	sessionUUID string
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)
	h.originalRequest = conn.Request()

	h.entry().
		WithTag("http_headers", h.httpHeaders()).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleInit(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	joined := h.CurrentSession() != nil

	if err := h.Handler.HandleInit(ctx, respond, msg); err != nil {
		return err
	}

	if joined {
		return nil
	}

	session := h.CurrentSession()
	if session == nil {
		h.entry().
			WithTag("request_id", msg.RequestID).
			Info("client failed to start a session")
		return nil
	}

	h.tagMutex.Lock()
	h.sessionID = session.GlobalID
	h.sessionUUID = session.SessionUUID
	h.tagMutex.Unlock()

	h.entry().
		WithTag("request_id", msg.RequestID).
		WithTag("variant", session.Variant).
		Info("streaming session started")
	return nil
}

func (h *handlerWithLogs) HandleResult(ctx context.Context, respond messages.ResponseSender, res producer.Result) error {
	err := h.Handler.HandleResult(ctx, respond, res)

	entry := h.entry().WithTag("tile", res.ID.Name())
	if res.Err != nil {
		entry = entry.WithTag("generation_error", res.Err.Error())
	}
	entry.Debug("generation result handled")

	return err
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := h.entry()
	if err != nil {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() messages.Receiver {
	receive := h.Handler.Receiver()

	return func() (messages.Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			h.entry().Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() messages.Sender {
	sender := h.Handler.Sender()

	return func(msg messages.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			h.entry().
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msgType).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) entry() logs.Entry {
	h.tagMutex.RLock()
	defer h.tagMutex.RUnlock()

	return logs.WithTag(sessionIDTag, h.sessionID).
		WithTag("session_uuid", h.sessionUUID).
		WithClientID(h.GetClientID())
}

func (h *handlerWithLogs) httpHeaders() any {
	var userAgent, forwardedFor string
	if h.originalRequest != nil {
		userAgent = h.originalRequest.UserAgent()
		forwardedFor = h.originalRequest.Header.Get(xForwardedForHeader)
	}

	return struct {
		UserAgent     string `json:"user_agent,omitempty"`
		XForwardedFor string `json:"x_forwarded_for,omitempty"`
	}{
		UserAgent:     userAgent,
		XForwardedFor: forwardedFor,
	}
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := h.entry().WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}
