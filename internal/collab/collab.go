// Package collab holds the clients for the cart and order collaborator
// services. The attribution pipeline only ever reads from them; carts and
// orders stay owned by their own services.
package collab

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCartNotFound means the cart service has no record of the cart.
	ErrCartNotFound = errors.New("cart not found")

	// ErrOrderNotFound means the order service has no record of the order.
	ErrOrderNotFound = errors.New("order not found")
)

// Cart is the slice of the cart service's record this pipeline needs.
type Cart struct {
	ID                string     `json:"id"`
	CheckoutStartedAt *time.Time `json:"checkout_started_at,omitempty"`
}

// Order is display enrichment only. Conversion truth lives on the session
// record, never here.
type Order struct {
	ID       string    `json:"id"`
	CartID   *string   `json:"cart_id,omitempty"`
	Total    string    `json:"total"`
	PlacedAt time.Time `json:"placed_at"`
}

// CartService exposes the cart collaborator.
type CartService interface {
	// GetOrCreateCart returns the cart for a session, creating one on the
	// cart service if none exists yet.
	GetOrCreateCart(ctx context.Context, sessionToken string) (*Cart, error)
	// GetCheckoutStartedAt returns when checkout began for the cart, or nil
	// if it has not.
	GetCheckoutStartedAt(ctx context.Context, cartID string) (*time.Time, error)
}

// OrderService exposes the order collaborator.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}
