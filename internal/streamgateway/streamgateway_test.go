package streamgateway

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iotstackcloud/teltonikaupdater/internal/eventbus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestGateway() (*Gateway, *eventbus.Bus) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	bus := eventbus.New(log)
	return New(bus, log), bus
}

func TestStreamForwardsScopedJobEvents(t *testing.T) {
	gw, bus := newTestGateway()
	srv := httptest.NewServer(gw.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/stream?job=job1", nil)
	require.NoError(t, err)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// give the handler a moment to subscribe before emitting
	time.Sleep(50 * time.Millisecond)
	bus.Emit(eventbus.UpdateEvent{Type: eventbus.EventJobStarted, JobID: "job1"})
	bus.Emit(eventbus.UpdateEvent{Type: eventbus.EventJobStarted, JobID: "otherJob"})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "type: job_started"))
}
