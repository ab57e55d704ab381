package websocket

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&RealtimeHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("contact")
	h.incCounter("contact")
	require.Equal(t, 2, h.counter["contact"])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&RealtimeHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("contact")
	h.incCounter("contact")
	h.incCounter("ping")

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	mutex.Lock()
	defer mutex.Unlock()

	logString := b.String()
	require.Contains(t, logString, `"contact":2`)
	require.Contains(t, logString, `"ping":1`)
	require.Contains(t, logString, fmt.Sprintf(`"%s":"%s"`, logs.ClientIDTag, testClientID))
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&RealtimeHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// No summary is logged until a message is counted.
	h.incCounter("init")

	wg.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	require.Contains(t, b.String(), "inbound message summary")
}
