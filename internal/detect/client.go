package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client talks to the inference sidecar over HTTP. The sidecar additionally
// exposes the standard gRPC health service, which CheckHealth probes for the
// readiness endpoint.
type Client struct {
	baseURL    string
	healthAddr string
	httpClient *http.Client
}

var _ Detector = (*Client)(nil)

// NewClient creates a sidecar client. healthAddr is optional; without it
// CheckHealth reports healthy as long as baseURL is set.
func NewClient(baseURL, healthAddr string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthAddr: healthAddr,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type detectResponse struct {
	Objects []Object `json:"objects"`
	// Annotated carries the rendered JPEG, base64-encoded, when requested.
	Annotated string `json:"annotated,omitempty"`
}

func (c *Client) Detect(ctx context.Context, image []byte) (Result, error) {
	resp, err := c.post(ctx, "/detect", image)
	if err != nil {
		return Result{}, err
	}
	return Result{Objects: resp.Objects}, nil
}

func (c *Client) Annotate(ctx context.Context, image []byte) (Result, []byte, error) {
	resp, err := c.post(ctx, "/detect?annotate=1", image)
	if err != nil {
		return Result{}, nil, err
	}
	rendered, err := base64.StdEncoding.DecodeString(resp.Annotated)
	if err != nil {
		return Result{}, nil, fmt.Errorf("detect: decode annotated image: %w", err)
	}
	return Result{Objects: resp.Objects}, rendered, nil
}

func (c *Client) post(ctx context.Context, path string, image []byte) (*detectResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: inference call: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4<<10))
		return nil, fmt.Errorf("detect: inference returned %d: %s", httpResp.StatusCode, bytes.TrimSpace(body))
	}
	var resp detectResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("detect: decode inference response: %w", err)
	}
	return &resp, nil
}

// CheckHealth probes the sidecar's gRPC health service.
func (c *Client) CheckHealth(ctx context.Context) error {
	if c.healthAddr == "" {
		return nil
	}
	conn, err := grpc.NewClient(c.healthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("detect: model server not serving: %s", resp.GetStatus())
	}
	return nil
}
