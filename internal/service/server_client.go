// internal/service/server_client.go
package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/model"
)

// maxResponseBytes bounds the code server response body. Real
// responses are a serial number and a handful of MAC lines.
const maxResponseBytes = 64 * 1024

// CodeClient fetches the expected serial number and MAC addresses for
// a pair of scanned codes from the code server.
//
// Local test server one-liner:
//
//	ncat -lk 8000 -c 'sleep 1; printf "HTTP/1.1 200 OK\r\n\r\nS3R14LNUM83R\n02:00:00:00:00:01\n02:00:00:00:00:02\n"'
type CodeClient struct {
	cfg        *config.CodeServerConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCodeClient creates a new code server client
func NewCodeClient(cfg *config.CodeServerConfig, logger *zap.Logger) *CodeClient {
	return &CodeClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		logger: logger.With(
			zap.String("service", "code-server"),
			zap.String("endpoint", cfg.Endpoint),
		),
	}
}

// Fetch issues one GET for the scanned pair on a background goroutine
// and delivers exactly one terminal event: a record or an error. The
// context cancels an in-flight request on reset; the resulting error
// event carries a stale generation and is dropped by the owner.
func (c *CodeClient) Fetch(ctx context.Context, generation uint64, qr1, qr2 string, events chan<- model.Event) {
	go func() {
		record, err := c.fetch(ctx, qr1, qr2)

		event := model.Event{
			Generation: generation,
			Timestamp:  time.Now(),
		}
		if err != nil {
			event.Type = model.EventFetchFailed
			event.Err = err
		} else {
			event.Type = model.EventRecordFetched
			event.Record = record
		}

		select {
		case events <- event:
		default:
			c.logger.Warn("Event channel full, dropping fetch result")
		}
	}()
}

// fetch performs the request and parses the response body
func (c *CodeClient) fetch(ctx context.Context, qr1, qr2 string) (*model.ServerRecord, error) {
	requestURL := fmt.Sprintf("%s/getserial?qr1=%s&qr2=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"),
		url.QueryEscape(qr1),
		url.QueryEscape(qr2),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &model.ServerError{Reason: "invalid request", Err: err}
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	c.logger.Info("Fetching serial and MACs from code server")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Code server request failed", zap.Error(err))
		return nil, &model.ServerError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &model.ServerError{Reason: "reading response failed", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Code server returned error status",
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, &model.ServerError{
			Reason: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	record, err := ParseRecord(string(body))
	if err != nil {
		c.logger.Error("Code server response unparsable", zap.Error(err))
		return nil, err
	}

	c.logger.Info("Received record from code server",
		zap.String("serial", record.Serial),
		zap.Int("mac_count", len(record.MACs)),
	)
	return record, nil
}

// ParseRecord parses the plaintext response body: the first line is
// the serial number, every following non-blank line is a MAC address.
// Blank lines separate groups and are skipped.
func ParseRecord(body string) (*model.ServerRecord, error) {
	record := &model.ServerRecord{}
	seen := make(map[string]bool)

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if record.Serial == "" {
			record.Serial = line
			continue
		}

		mac, err := model.NormalizeMAC(line)
		if err != nil {
			return nil, &model.ServerError{
				Reason: fmt.Sprintf("malformed MAC line %q", line),
			}
		}
		if !seen[mac] {
			seen[mac] = true
			record.MACs = append(record.MACs, mac)
		}
	}

	if record.Serial == "" {
		return nil, &model.ServerError{Reason: "empty response body"}
	}
	if len(record.MACs) == 0 {
		return nil, &model.ServerError{Reason: "response contains no MAC addresses"}
	}

	return record, nil
}
