package attribution

import (
	"net/url"
	"testing"

	"github.com/commercetrack/attribution/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_SourceTypePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		referrer string
		want     models.SourceType
	}{
		{
			name:  "campaign params resolve landing page",
			query: url.Values{"utm_source": {"newsletter"}, "utm_campaign": {"fall_sale"}},
			want:  models.SourceLandingPage,
		},
		{
			name:     "campaign params win over email referrer",
			query:    url.Values{"utm_source": {"email"}, "utm_campaign": {"fall_sale"}},
			referrer: "mail.example.com/click",
			want:     models.SourceLandingPage,
		},
		{
			name:     "email referrer without params",
			query:    url.Values{},
			referrer: "mail.example.com/click",
			want:     models.SourceEmail,
		},
		{
			name:     "email referrer with scheme",
			query:    url.Values{},
			referrer: "https://webmail.provider.net/inbox",
			want:     models.SourceEmail,
		},
		{
			name:  "funnel context param",
			query: url.Values{"funnel_id": {"f-123"}},
			want:  models.SourceFunnel,
		},
		{
			name:     "email referrer wins over funnel context",
			query:    url.Values{"funnel_id": {"f-123"}},
			referrer: "mail.example.com/click",
			want:     models.SourceEmail,
		},
		{
			name:     "plain referrer is direct",
			query:    url.Values{},
			referrer: "https://news.ycombinator.com/",
			want:     models.SourceDirect,
		},
		{
			name:  "no signals is direct",
			query: url.Values{},
			want:  models.SourceDirect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.query, tt.referrer)
			assert.Equal(t, tt.want, got.SourceType)
		})
	}
}

func TestResolve_NilMeansAbsent(t *testing.T) {
	got := Resolve(url.Values{"utm_campaign": {"fall_sale"}}, "")

	require.NotNil(t, got.Campaign)
	assert.Equal(t, "fall_sale", *got.Campaign)
	assert.Nil(t, got.Medium, "absent param must be nil, not empty string")
	assert.Nil(t, got.Channel)
	assert.Nil(t, got.Source)
}

func TestResolve_ExplicitBlankIsNotAbsent(t *testing.T) {
	got := Resolve(url.Values{"utm_medium": {""}}, "")

	require.NotNil(t, got.Medium, "explicitly blank param must not collapse to nil")
	assert.Empty(t, *got.Medium)
}

func TestResolve_FallSaleScenario(t *testing.T) {
	// utm_source=email with a campaign still resolves LANDING_PAGE: explicit
	// campaign parameters take precedence over any referrer pattern.
	got := Resolve(url.Values{"utm_source": {"email"}, "utm_campaign": {"fall_sale"}}, "")

	assert.Equal(t, models.SourceLandingPage, got.SourceType)
	require.NotNil(t, got.Campaign)
	assert.Equal(t, "fall_sale", *got.Campaign)
}

func TestReferrerHost(t *testing.T) {
	assert.Equal(t, "mail.example.com", referrerHost("mail.example.com/click"))
	assert.Equal(t, "mail.example.com", referrerHost("https://mail.example.com/click?x=1"))
	assert.Equal(t, "", referrerHost(""))
}
