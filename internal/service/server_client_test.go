// internal/service/server_client_test.go
package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/model"
)

func codeServerConfig(endpoint string) *config.CodeServerConfig {
	return &config.CodeServerConfig{
		Endpoint:     endpoint,
		FetchTimeout: 2 * time.Second,
	}
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getserial", r.URL.Path)
		assert.Equal(t, "TOP-1", r.URL.Query().Get("qr1"))
		assert.Equal(t, "BOT 2", r.URL.Query().Get("qr2"))
		w.Write([]byte("S3R14LNUM83R\n\n02:00:00:00:00:01\n02:00:00:00:00:02\n"))
	}))
	defer server.Close()

	client := NewCodeClient(codeServerConfig(server.URL), zap.NewNop())
	events := make(chan model.Event, 1)

	client.Fetch(context.Background(), 5, "TOP-1", "BOT 2", events)

	event := waitEvent(t, events)
	require.Equal(t, model.EventRecordFetched, event.Type)
	assert.Equal(t, uint64(5), event.Generation)
	require.NotNil(t, event.Record)
	assert.Equal(t, "S3R14LNUM83R", event.Record.Serial)
	assert.Equal(t, []string{"02:00:00:00:00:01", "02:00:00:00:00:02"}, event.Record.MACs)
}

func TestFetchSendsAPIKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.Write([]byte("SER\n02:00:00:00:00:01\n"))
	}))
	defer server.Close()

	cfg := codeServerConfig(server.URL)
	cfg.APIKey = "sekrit"
	client := NewCodeClient(cfg, zap.NewNop())
	events := make(chan model.Event, 1)

	client.Fetch(context.Background(), 1, "a", "b", events)

	event := waitEvent(t, events)
	require.Equal(t, model.EventRecordFetched, event.Type)
	assert.Equal(t, "sekrit", gotKey)
}

func TestFetchServerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown board", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewCodeClient(codeServerConfig(server.URL), zap.NewNop())
	events := make(chan model.Event, 1)

	client.Fetch(context.Background(), 1, "a", "b", events)

	event := waitEvent(t, events)
	require.Equal(t, model.EventFetchFailed, event.Type)

	var serverErr *model.ServerError
	require.ErrorAs(t, event.Err, &serverErr)
	assert.Contains(t, serverErr.Error(), "404")
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	cfg := codeServerConfig(server.URL)
	cfg.FetchTimeout = 50 * time.Millisecond
	client := NewCodeClient(cfg, zap.NewNop())
	events := make(chan model.Event, 1)

	client.Fetch(context.Background(), 1, "a", "b", events)

	event := waitEvent(t, events)
	require.Equal(t, model.EventFetchFailed, event.Type)

	var serverErr *model.ServerError
	assert.ErrorAs(t, event.Err, &serverErr)
}

func TestFetchCanceledContext(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := NewCodeClient(codeServerConfig(server.URL), zap.NewNop())
	events := make(chan model.Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	client.Fetch(ctx, 1, "a", "b", events)

	<-started
	cancel()

	event := waitEvent(t, events)
	assert.Equal(t, model.EventFetchFailed, event.Type)
}

func TestParseRecord(t *testing.T) {
	record, err := ParseRecord("S3R14LNUM83R\n\n02:00:00:00:00:01\n02:00:00:00:00:02\n")
	require.NoError(t, err)
	assert.Equal(t, "S3R14LNUM83R", record.Serial)
	assert.Equal(t, []string{"02:00:00:00:00:01", "02:00:00:00:00:02"}, record.MACs)
}

func TestParseRecordNormalizesAndDeduplicates(t *testing.T) {
	record, err := ParseRecord("SER\nAA:BB:CC:DD:EE:FF\naa:bb:cc:dd:ee:ff\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, record.MACs)
}

func TestParseRecordRejectsBadBodies(t *testing.T) {
	cases := map[string]string{
		"empty body":    "",
		"blank body":    "\n\n\n",
		"serial only":   "SER\n",
		"malformed MAC": "SER\nnot-a-mac\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord(body)
			require.Error(t, err)

			var serverErr *model.ServerError
			assert.ErrorAs(t, err, &serverErr)
		})
	}
}
