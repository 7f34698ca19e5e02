// Package inventoryclient calls the inventory service over HTTP/JSON. It
// satisfies the reservation workflow's inventory port.
package inventoryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"
)

const (
	peerInventory = "inventory"

	endpointAvailability = "GET /inventory/items/{id}/availability"
	endpointReserve      = "POST /inventory/items/{id}/reserve"
	endpointRelease      = "POST /inventory/items/{id}/release"

	maxErrorBody = 4 << 10
)

type availabilityResponse struct {
	ItemID    int64 `json:"item_id"`
	Available bool  `json:"available"`
}

type outcomeResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventoryclient: %s returned %d: %s", e.Endpoint, e.Status, e.Message)
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tracer     trace.Tracer
	log        observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

// New builds a client for baseURL. The http.Client carries no timeout of its
// own; every call is bounded by the caller's context.
func New(baseURL string, httpClient *http.Client, tel observability.Observability) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("inventoryclient: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("inventoryclient: base url %q needs scheme and host", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Client{
		baseURL:      u,
		httpClient:   httpClient,
		tracer:       otel.Tracer("libraryhold.inventoryclient"),
		log:          tel.Logger().With(observability.F("component", "inventory_client")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}, nil
}

func (c *Client) CheckAvailability(ctx context.Context, itemID int64) (bool, error) {
	var resp availabilityResponse
	if err := c.do(ctx, http.MethodGet, endpointAvailability, itemPath(itemID, "availability"), &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

func (c *Client) Reserve(ctx context.Context, itemID int64) (dominv.Outcome, error) {
	var resp outcomeResponse
	if err := c.do(ctx, http.MethodPost, endpointReserve, itemPath(itemID, "reserve"), &resp); err != nil {
		return dominv.Outcome{}, err
	}
	return dominv.Outcome{Success: resp.Success, Reason: resp.Reason}, nil
}

func (c *Client) Release(ctx context.Context, itemID int64) (dominv.Outcome, error) {
	var resp outcomeResponse
	if err := c.do(ctx, http.MethodPost, endpointRelease, itemPath(itemID, "release"), &resp); err != nil {
		return dominv.Outcome{}, err
	}
	return dominv.Outcome{Success: resp.Success, Reason: resp.Reason}, nil
}

func itemPath(itemID int64, action string) string {
	return "/inventory/items/" + strconv.FormatInt(itemID, 10) + "/" + action
}

func (c *Client) do(ctx context.Context, method, endpoint, path string, out any) (err error) {
	target := c.baseURL.JoinPath(path)

	ctx, span := c.tracer.Start(ctx, "call-inventory "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target.String()),
			attribute.String("peer.service", peerInventory),
		),
	)
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = outcomeFor(ctx, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logctx.FromOr(ctx, c.log).Warn("inventory_call_failed",
				observability.F("endpoint", endpoint),
				observability.Err(err),
			)
		}
		span.End()
		c.extCounter.Add(1,
			observability.L("peer", peerInventory),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerInventory),
			observability.L("endpoint", endpoint),
		)
	}()

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("inventoryclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inventoryclient: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{Endpoint: endpoint, Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("inventoryclient: decode %s: %w", endpoint, err)
	}
	return nil
}

func outcomeFor(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "canceled"
	}
	var se *StatusError
	if errors.As(err, &se) {
		return "bad_status"
	}
	return "error"
}
