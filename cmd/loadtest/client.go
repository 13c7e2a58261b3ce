package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
)

// RenderRequest is a POST /render body. Options go in the nested data
// object; a plain string data would reset every other field to defaults.
type RenderRequest struct {
	Data     RenderOptions `json:"data"`
	AsBase64 bool          `json:"asBase64"`
}

// RenderOptions is the subset of render options the load test varies
type RenderOptions struct {
	Data        string              `json:"data"`
	Type        string              `json:"type"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	DotsOptions options.DotsOptions `json:"dotsOptions"`
}

// Client sends render requests to the QR render service
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new render client
func NewClient(baseURL string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: baseURL,
	}
}

// RequestResult holds the result of a single request
type RequestResult struct {
	Format     string
	Latency    time.Duration
	Success    bool
	Timeout    bool
	Error      error
	Bytes      int64
	StatusCode int
}

// WaitReady polls GET /ready until the service reports ready or ctx ends
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("service not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// SendRequest posts one render request for the job
func (c *Client) SendRequest(ctx context.Context, j job) RequestResult {
	result := RequestResult{Format: j.format}

	body, err := json.Marshal(buildRequest(j))
	if err != nil {
		result.Error = err
		return result
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		result.Error = err
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Latency = time.Since(start)
		result.Timeout = isTimeout(err)
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	// renders arrive as one payload, so latency includes the body
	n, err := io.Copy(io.Discard, resp.Body)
	result.Latency = time.Since(start)
	result.StatusCode = resp.StatusCode
	result.Bytes = n
	if err != nil {
		result.Timeout = isTimeout(err)
		result.Error = err
		return result
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Success = true
	case resp.StatusCode >= 500:
		result.Error = fmt.Errorf("server error: %d", resp.StatusCode)
	default:
		result.Error = fmt.Errorf("client error: %d", resp.StatusCode)
	}
	return result
}

// isTimeout covers both the request context deadline and http.Client.Timeout
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func buildRequest(j job) RenderRequest {
	size := sizes[rand.Intn(len(sizes))]
	return RenderRequest{
		Data: RenderOptions{
			Data:   payloadSamples[rand.Intn(len(payloadSamples))],
			Type:   j.format,
			Width:  size,
			Height: size,
			DotsOptions: options.DotsOptions{
				Type:  dotStyles[rand.Intn(len(dotStyles))],
				Color: "#1f2937",
			},
		},
		AsBase64: j.asBase64,
	}
}

var sizes = []int{200, 300, 512, 1024}

var dotStyles = []string{"square", "dots", "rounded", "extra-rounded", "classy", "classy-rounded"}

// Payload samples of varying length to exercise different QR versions
var payloadSamples = []string{
	"https://example.com",
	"https://example.com/products/12345?utm_source=qr&utm_medium=print",
	"WIFI:T:WPA;S:office-guest;P:correct-horse-battery-staple;;",
	"mailto:support@example.com?subject=Order%20help",
	"BEGIN:VCARD\nVERSION:3.0\nN:Doe;Jane\nORG:Example Inc\nTEL:+1-555-0100\nEMAIL:jane@example.com\nEND:VCARD",
	"geo:37.7749,-122.4194",
	"Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris.",
}
