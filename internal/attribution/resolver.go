// Package attribution normalizes raw traffic-source signals into the fixed
// attribution schema stamped on a session at creation.
package attribution

import (
	"net/url"
	"strings"

	"github.com/commercetrack/attribution/internal/models"
)

// Campaign query parameters recognized by the resolver.
const (
	paramSource   = "utm_source"
	paramMedium   = "utm_medium"
	paramCampaign = "utm_campaign"
	paramChannel  = "utm_channel"
	// paramFunnel marks a visit arriving through an existing funnel context.
	paramFunnel = "funnel_id"
)

// emailReferrerHosts are referrer host fragments that identify clicks from
// email-link redirects.
var emailReferrerHosts = []string{
	"mail.",
	"email.",
	"webmail.",
	"outlook.",
	"mg.",
}

// Resolve maps raw request query parameters and the referrer to normalized
// source attributes. Absent values stay nil so downstream consumers can tell
// "not provided" from "explicitly blank".
//
// SourceType precedence is fixed: explicit campaign parameters win over an
// email referrer, which wins over a funnel context, which wins over direct.
// Resolution runs exactly once per session; callers must never re-run it for
// an existing token.
func Resolve(rawQuery url.Values, referrer string) models.SourceAttributes {
	attrs := models.SourceAttributes{
		Campaign: queryValue(rawQuery, paramCampaign),
		Medium:   queryValue(rawQuery, paramMedium),
		Channel:  queryValue(rawQuery, paramChannel),
		Source:   queryValue(rawQuery, paramSource),
	}

	switch {
	case hasCampaignParams(rawQuery):
		attrs.SourceType = models.SourceLandingPage
	case isEmailReferrer(referrer):
		attrs.SourceType = models.SourceEmail
	case rawQuery.Has(paramFunnel):
		attrs.SourceType = models.SourceFunnel
	default:
		attrs.SourceType = models.SourceDirect
	}

	return attrs
}

// queryValue returns a pointer to the parameter value, or nil when the
// parameter was not sent at all. An empty-but-present value yields a pointer
// to "".
func queryValue(q url.Values, key string) *string {
	if !q.Has(key) {
		return nil
	}
	v := q.Get(key)
	return &v
}

func hasCampaignParams(q url.Values) bool {
	return q.Has(paramSource) || q.Has(paramMedium) || q.Has(paramCampaign) || q.Has(paramChannel)
}

func isEmailReferrer(referrer string) bool {
	if referrer == "" {
		return false
	}
	host := referrerHost(referrer)
	if host == "" {
		return false
	}
	for _, fragment := range emailReferrerHosts {
		if strings.HasPrefix(host, fragment) {
			return true
		}
	}
	return false
}

// referrerHost extracts the lowercase host from a referrer string, tolerating
// scheme-less values like "mail.example.com/click".
func referrerHost(referrer string) string {
	ref := strings.ToLower(strings.TrimSpace(referrer))
	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
