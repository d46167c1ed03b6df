// Package client is a Go client for the sensor readings API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Reading is a stored sensor measurement.
type Reading struct {
	DeviceUUID  string `json:"device_uuid"`
	Type        string `json:"type"`
	Value       int    `json:"value"`
	DateCreated int64  `json:"date_created"`
}

// NewReading is the body of a write. A nil DateCreated lets the server
// stamp the current time.
type NewReading struct {
	Type        string `json:"type"`
	Value       int    `json:"value"`
	DateCreated *int64 `json:"date_created,omitempty"`
}

// Query filters reads. Zero values impose no constraint.
type Query struct {
	Type  string
	Start *int64
	End   *int64
}

type Mean struct {
	Value float64 `json:"value"`
}

type Quartiles struct {
	Quartile1 int `json:"quartile_1"`
	Quartile3 int `json:"quartile_3"`
}

type DeviceSummary struct {
	DeviceUUID       string  `json:"device_uuid"`
	NumberOfReadings int     `json:"number_of_readings"`
	MinReadingValue  int     `json:"min_reading_value"`
	MaxReadingValue  int     `json:"max_reading_value"`
	MeanReadingValue float64 `json:"mean_reading_value"`
	MedianValue      int     `json:"median_reading_value"`
	Quartile1Value   int     `json:"quartile_1_value"`
	Quartile3Value   int     `json:"quartile_3_value"`
}

// Error is a non-2xx response decoded from the API error envelope.
type Error struct {
	StatusCode int
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to one API server.
type Client struct {
	http *resty.Client
}

// New returns a Client for baseURL, e.g. "http://localhost:8000".
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// Write stores a reading for device and returns it as stored.
func (c *Client) Write(ctx context.Context, device string, r NewReading) (Reading, error) {
	var out Reading
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("device", device).
		SetHeader("Content-Type", "application/json").
		SetBody(r).
		Post("/devices/{device}/readings/")
	if err := check(resp, err); err != nil {
		return Reading{}, err
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Reading{}, err
	}
	return out, nil
}

func (c *Client) List(ctx context.Context, device string, q Query) ([]Reading, error) {
	var out []Reading
	err := c.get(ctx, "/devices/{device}/readings/", device, q, &out)
	return out, err
}

// Min returns the lowest reading; ok is false when nothing matched.
func (c *Client) Min(ctx context.Context, device string, q Query) (Reading, bool, error) {
	return getOptional[Reading](ctx, c, "/devices/{device}/readings/min/", device, q)
}

func (c *Client) Max(ctx context.Context, device string, q Query) (Reading, bool, error) {
	return getOptional[Reading](ctx, c, "/devices/{device}/readings/max/", device, q)
}

func (c *Client) Mean(ctx context.Context, device string, q Query) (Mean, bool, error) {
	return getOptional[Mean](ctx, c, "/devices/{device}/readings/mean/", device, q)
}

func (c *Client) Median(ctx context.Context, device string, q Query) (Reading, bool, error) {
	return getOptional[Reading](ctx, c, "/devices/{device}/readings/median/", device, q)
}

func (c *Client) Quartiles(ctx context.Context, device string, q Query) (Quartiles, bool, error) {
	return getOptional[Quartiles](ctx, c, "/devices/{device}/readings/quartiles/", device, q)
}

func (c *Client) Summary(ctx context.Context, q Query) ([]DeviceSummary, error) {
	var out []DeviceSummary
	err := c.get(ctx, "/summary/", "", q, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	return check(resp, err)
}

func (c *Client) get(ctx context.Context, path, device string, q Query, out any) error {
	req := c.http.R().SetContext(ctx).SetQueryParams(q.params())
	if device != "" {
		req.SetPathParam("device", device)
	}
	resp, err := req.Get(path)
	if err := check(resp, err); err != nil {
		return err
	}
	return json.Unmarshal(resp.Body(), out)
}

// getOptional decodes a single result, treating the empty object as no result.
func getOptional[T any](ctx context.Context, c *Client, path, device string, q Query) (T, bool, error) {
	var raw json.RawMessage
	var out T
	if err := c.get(ctx, path, device, q, &raw); err != nil {
		return out, false, err
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("{}")) {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func (q Query) params() map[string]string {
	params := map[string]string{}
	if q.Type != "" {
		params["type"] = q.Type
	}
	if q.Start != nil {
		params["start"] = strconv.FormatInt(*q.Start, 10)
	}
	if q.End != nil {
		params["end"] = strconv.FormatInt(*q.End, 10)
	}
	return params
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	apiErr := &Error{StatusCode: resp.StatusCode()}
	if jsonErr := json.Unmarshal(resp.Body(), apiErr); jsonErr != nil || apiErr.Code == "" {
		apiErr.Code = "unexpected_response"
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return apiErr
}
