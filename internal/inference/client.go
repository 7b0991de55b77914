package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/varsilias/mpt-chat/internal/config"
	"github.com/varsilias/mpt-chat/internal/prompt"
)

var (
	ErrRetriesExhausted = errors.New("inference failed after retry")
	ErrEmptyOutput      = errors.New("inference response has no outputs")
)

// Client calls a remote prediction endpoint that continues a prompt.
type Client struct {
	url        string
	apiKey     string
	params     Params
	timeout    time.Duration
	retryDelay time.Duration
	log        *slog.Logger
	client     *http.Client
}

// Params are the sampling parameters sent with every request.
type Params struct {
	Temperature float64
	TopP        float64
	OutputLen   int
}

type predictRequest struct {
	Inputs      []string `json:"inputs"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	OutputLen   int      `json:"output_len"`
}

type predictResponse struct {
	Outputs []string `json:"outputs"`
}

func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	return &Client{
		url:    cfg.EndpointURL,
		apiKey: cfg.APIKey,
		params: Params{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			OutputLen:   cfg.OutputLen,
		},
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		log:        log,
		// per-attempt deadlines come from the request context
		client: &http.Client{},
	}
}

// Complete sends prompt to the endpoint and returns the continuation with
// the echoed prompt removed. A failed call is retried once after the retry
// delay; if that fails too the error wraps ErrRetriesExhausted.
func (c *Client) Complete(ctx context.Context, sent string) (string, error) {
	out, err := c.predict(ctx, sent)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.Warn("inference call failed, retrying", "err", err, "delay", c.retryDelay.String())

		t := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}

		out, err = c.predict(ctx, sent)
		if err != nil {
			c.log.Error("inference retry failed", "err", err)
			return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}
	}
	return StripEcho(sent, out), nil
}

// predict performs one request bounded by the configured timeout.
func (c *Client) predict(ctx context.Context, sent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b, err := json.Marshal(predictRequest{
		Inputs:      []string{sent},
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		OutputLen:   c.params.OutputLen,
	})
	if err != nil {
		return "", fmt.Errorf("marshal predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read predict response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("predict status=%d body=%s", res.StatusCode, clip(string(body), 400))
	}

	var out predictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode predict response: %w", err)
	}
	if len(out.Outputs) == 0 {
		return "", ErrEmptyOutput
	}
	c.log.Debug("predict", "prompt_chars", utf8.RuneCountInString(sent), "output_chars", utf8.RuneCountInString(out.Outputs[0]), "duration_ms", time.Since(start).Milliseconds())
	return out.Outputs[0], nil
}

// StripEcho removes the prompt the endpoint echoes in front of its
// continuation. The echo normally arrives with role markers removed; an
// echo with markers intact is accepted too. If neither matches, the output
// is cut at the length of the marker-free prompt.
func StripEcho(sent, output string) string {
	clean := prompt.StripMarkers(sent)
	switch {
	case strings.HasPrefix(output, clean):
		return output[len(clean):]
	case strings.HasPrefix(output, sent):
		return output[len(sent):]
	}
	return skipRunes(output, utf8.RuneCountInString(clean))
}

func skipRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
