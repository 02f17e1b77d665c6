package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SessionState is the lifecycle state of a visitor session.
// Transitions are monotonic: ACTIVE -> CONVERTED or ACTIVE -> EXPIRED, never reversed.
type SessionState string

const (
	StateActive    SessionState = "ACTIVE"
	StateConverted SessionState = "CONVERTED"
	StateExpired   SessionState = "EXPIRED"
)

// SourceType classifies where a session's traffic came from.
type SourceType string

const (
	SourceDirect      SourceType = "DIRECT"
	SourceLandingPage SourceType = "LANDING_PAGE"
	SourceFunnel      SourceType = "FUNNEL"
	SourceEmail       SourceType = "EMAIL"
)

// SourceAttributes is the normalized traffic-source metadata stamped on a
// session exactly once at creation. Nil pointer fields mean "not provided",
// which is distinct from an explicitly blank value.
type SourceAttributes struct {
	SourceType SourceType `json:"source_type"`
	Campaign   *string    `json:"campaign"`
	Medium     *string    `json:"medium"`
	Channel    *string    `json:"channel"`
	Source     *string    `json:"source"`
}

// Value implements driver.Valuer for database storage
func (a SourceAttributes) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for database retrieval
func (a *SourceAttributes) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Session represents one visitor's interaction window with a public page.
// The token is the primary lookup key; it is opaque to callers and passed
// explicitly on every operation.
type Session struct {
	Token              string           `json:"token" db:"token"`
	PageID             string           `json:"page_id" db:"page_id"`
	VisitorFingerprint *string          `json:"visitor_fingerprint,omitempty" db:"visitor_fingerprint"`
	SourceAttributes   SourceAttributes `json:"source_attributes" db:"source_attributes"`
	CartID             *string          `json:"cart_id,omitempty" db:"cart_id"`
	State              SessionState     `json:"state" db:"state"`
	OrderID            *string          `json:"order_id,omitempty" db:"order_id"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	LastActivityAt     time.Time        `json:"last_activity_at" db:"last_activity_at"`
	ConvertedAt        *time.Time       `json:"converted_at,omitempty" db:"converted_at"`
	Version            int64            `json:"version" db:"version"`
}

// CanTransition reports whether a session may move to the target state.
// Only ACTIVE sessions move anywhere; terminal states stay put.
func (s *Session) CanTransition(target SessionState) bool {
	if s.State == target {
		return false
	}
	return s.State == StateActive
}

// ExpiredAt reports whether the session is past the inactivity horizon at
// the given instant.
func (s *Session) ExpiredAt(now time.Time, horizon time.Duration) bool {
	if s.State == StateExpired {
		return true
	}
	return now.Sub(s.LastActivityAt) > horizon
}

// CartLinkage is the immutable association between a session and the cart it
// produced. A cart has at most one originating session and a session has at
// most one cart; the pair never changes once written.
type CartLinkage struct {
	CartID       string     `json:"cart_id" db:"cart_id"`
	SessionToken string     `json:"session_token" db:"session_token"`
	SourceType   SourceType `json:"source_type" db:"source_type"`
	LinkedAt     time.Time  `json:"linked_at" db:"linked_at"`
}

// FunnelSnapshot is a derived aggregate of session lifecycle stages for one
// page over a time window. It is always rebuildable from session, linkage,
// and order records and is never persisted as a source of truth.
type FunnelSnapshot struct {
	PageID          string    `json:"page_id"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	Viewed          int       `json:"viewed"`
	CartLinked      int       `json:"cart_linked"`
	CheckoutStarted int       `json:"checkout_started"`
	Converted       int       `json:"converted"`
	Anomalies       int       `json:"anomalies"`
}

// Total returns the number of sessions classified into a funnel bucket,
// anomalies included.
func (f *FunnelSnapshot) Total() int {
	return f.Viewed + f.CartLinked + f.CheckoutStarted + f.Converted + f.Anomalies
}
