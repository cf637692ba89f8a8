package delivery

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Gateway request headers.
const (
	HeaderSignature  = "X-Tiergate-Signature"
	HeaderTimestamp  = "X-Tiergate-Timestamp"
	HeaderDeliveryID = "X-Tiergate-Delivery-Id"
)

const (
	courierTimeout = 30 * time.Second
)

// HTTPCourier talks to the chat gateway over signed HTTP.
type HTTPCourier struct {
	client  *http.Client
	baseURL string
	secret  string
}

// NewHTTPCourier creates a courier for the gateway at baseURL. Requests
// are HMAC-signed with secret.
func NewHTTPCourier(baseURL, secret string) *HTTPCourier {
	return &HTTPCourier{
		client: &http.Client{
			Timeout: courierTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
			// Don't follow redirects - security measure
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
	}
}

// NewHTTPCourierWithClient creates a courier with a custom HTTP client,
// mainly for tests.
func NewHTTPCourierWithClient(baseURL, secret string, client *http.Client) *HTTPCourier {
	c := NewHTTPCourier(baseURL, secret)
	c.client = client
	return c
}

type openChannelRequest struct {
	UserID string `json:"user_id"`
}

type openChannelResponse struct {
	ChannelID string `json:"channel_id"`
}

type sendMessageRequest struct {
	ChannelID string `json:"channel_id"`
	Message
}

// OpenDirectChannel asks the gateway for a private channel to the user.
// A 403 from the gateway means the user cannot receive direct messages
// and maps to ErrDeliveryForbidden.
func (c *HTTPCourier) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	resp, err := c.post(ctx, "/v1/channels", openChannelRequest{UserID: userID})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusForbidden, http.StatusNotFound:
		return "", ErrDeliveryForbidden
	default:
		return "", fmt.Errorf("gateway open channel: status %d", resp.StatusCode)
	}

	var out openChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode open channel response: %w", err)
	}
	if out.ChannelID == "" {
		return "", fmt.Errorf("gateway open channel: empty channel id")
	}
	return out.ChannelID, nil
}

// Send posts a message to a channel.
func (c *HTTPCourier) Send(ctx context.Context, channelID string, msg Message) error {
	resp, err := c.post(ctx, "/v1/messages", sendMessageRequest{ChannelID: channelID, Message: msg})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gateway send: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPCourier) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}

	timestamp := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, GenerateSignature(c.secret, timestamp, body))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderDeliveryID, ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())
	req.Header.Set("User-Agent", "Tiergate-Courier/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	return resp, nil
}
