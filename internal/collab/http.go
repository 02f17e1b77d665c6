package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultRequestTimeout = 10 * time.Second

	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
)

// newHTTPClient builds the tuned client both collaborators share.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
		},
	}
}

// HTTPCartService talks to the cart service over its JSON API.
type HTTPCartService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCartService creates a cart client. timeout of zero uses the default.
func NewHTTPCartService(baseURL string, timeout time.Duration) *HTTPCartService {
	return &HTTPCartService{
		baseURL: baseURL,
		client:  newHTTPClient(timeout),
	}
}

// GetOrCreateCart asks the cart service for the session's cart, creating one
// if needed. The call is idempotent on the cart service side.
func (s *HTTPCartService) GetOrCreateCart(ctx context.Context, sessionToken string) (*Cart, error) {
	body, err := json.Marshal(map[string]string{"session_token": sessionToken})
	if err != nil {
		return nil, fmt.Errorf("marshal cart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/api/v1/carts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build cart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var cart Cart
	if err := s.do(req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetCheckoutStartedAt fetches the cart and returns its checkout-start
// timestamp, nil when checkout has not begun.
func (s *HTTPCartService) GetCheckoutStartedAt(ctx context.Context, cartID string) (*time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/api/v1/carts/"+url.PathEscape(cartID), nil)
	if err != nil {
		return nil, fmt.Errorf("build cart request: %w", err)
	}

	var cart Cart
	if err := s.do(req, &cart); err != nil {
		return nil, err
	}
	return cart.CheckoutStartedAt, nil
}

func (s *HTTPCartService) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("cart service request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrCartNotFound
	case resp.StatusCode >= http.StatusMultipleChoices:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("cart service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode cart response: %w", err)
	}
	return nil
}

// HTTPOrderService talks to the order service over its JSON API.
type HTTPOrderService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOrderService creates an order client. timeout of zero uses the
// default.
func NewHTTPOrderService(baseURL string, timeout time.Duration) *HTTPOrderService {
	return &HTTPOrderService{
		baseURL: baseURL,
		client:  newHTTPClient(timeout),
	}
}

// GetOrder fetches an order for display enrichment. A missing order is not
// an attribution failure; callers treat ErrOrderNotFound as "not visible
// yet".
func (s *HTTPOrderService) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/api/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order service request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrOrderNotFound
	case resp.StatusCode >= http.StatusMultipleChoices:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &order, nil
}
