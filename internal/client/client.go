// Package client is an HTTP client for the booking API, used by shareitctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shareit/internal/models"

	"github.com/redis/go-redis/v9"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client calls the booking endpoints on behalf of one acting user.
type Client struct {
	baseURL    string
	userID     int64
	token      string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(baseURL string, userID int64) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIKey sets the client key headers checked by the server auth layer.
func (c *Client) WithAPIKey(apiKey, apiExtra string) *Client {
	c.apiKey = apiKey
	c.apiExtra = apiExtra
	return c
}

// WithToken authenticates with a bearer token instead of the user id header.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// UseRedisCache enables read-through caching of single bookings.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.BookingResponse, error) {
	var resp models.BookingResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/bookings", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DecideBooking(ctx context.Context, bookingID int64, approved bool) (*models.BookingResponse, error) {
	endpoint := fmt.Sprintf("%s/bookings/%d?approved=%t", c.baseURL, bookingID, approved)
	var resp models.BookingResponse
	if err := c.doJSON(ctx, http.MethodPatch, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	c.dropCache(ctx, c.bookingCacheKey(bookingID))
	return &resp, nil
}

func (c *Client) GetBooking(ctx context.Context, bookingID int64) (*models.BookingResponse, error) {
	cacheKey := c.bookingCacheKey(bookingID)
	var resp models.BookingResponse
	if c.readCache(ctx, cacheKey, &resp) {
		return &resp, nil
	}

	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/bookings/%d", c.baseURL, bookingID), nil, &resp); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, resp)
	return &resp, nil
}

// ListBookings lists the caller's bookings as booker, or as item owner when
// owner is set. A nil page requests the whole list.
func (c *Client) ListBookings(ctx context.Context, owner bool, state string, page *models.Page) ([]models.BookingResponse, error) {
	endpoint := c.baseURL + "/bookings"
	if owner {
		endpoint += "/owner"
	}

	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if page != nil {
		q.Set("from", strconv.Itoa(page.From))
		q.Set("size", strconv.Itoa(page.Size))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var resp []models.BookingResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ExportOwnerBookings streams the owner's bookings workbook into w.
func (c *Client) ExportOwnerBookings(ctx context.Context, state string, w io.Writer) error {
	endpoint := c.baseURL + "/bookings/owner/export"
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// bookingCacheKey is per user: visibility of a booking depends on who asks.
func (c *Client) bookingCacheKey(bookingID int64) string {
	return fmt.Sprintf("booking:%d:%d", c.userID, bookingID)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}

func (c *Client) addHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.userID > 0 {
		req.Header.Set(models.UserIDHeader, strconv.FormatInt(c.userID, 10))
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
