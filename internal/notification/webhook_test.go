package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookURL = "https://hooks.example.com/watchpost"

func newMockedWebhook(t *testing.T, rate float64, burst int) *WebhookProvider {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewWebhookProvider(testWebhookURL, 2*time.Second, rate, burst, WithHTTPClient(hc))
}

func TestWebhookProvider_PostsJSON(t *testing.T) {
	w := newMockedWebhook(t, 0, 1)

	var got webhookPayload
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	n := NewNotification(SeverityWarning, "布控告警", "张伟 出现在 配电房")
	n.RuleID = 7
	n.Icon = "user"
	require.NoError(t, w.Send(t.Context(), n))

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, SeverityWarning, got.Severity)
	assert.Equal(t, "布控告警", got.Title)
	assert.Equal(t, uint(7), got.RuleID)
	assert.Equal(t, "张伟 出现在 配电房", got.Text)
}

func TestWebhookProvider_PlainTextStripsMarkup(t *testing.T) {
	w := newMockedWebhook(t, 0, 1)

	var got webhookPayload
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	body := `<p><b>张伟</b> 出现在 <i>配电房</i></p>`
	require.NoError(t, w.Send(t.Context(), NewNotification(SeverityCritical, "布控告警", body)))

	assert.Equal(t, body, got.Body, "the original body is forwarded untouched")
	assert.Contains(t, got.Text, "张伟")
	assert.Contains(t, got.Text, "配电房")
	assert.NotContains(t, got.Text, "<")
}

func TestWebhookProvider_ErrorStatus(t *testing.T) {
	w := newMockedWebhook(t, 0, 1)
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"bad payload"}`))

	err := w.Send(t.Context(), NewNotification(SeverityInfo, "t", "b"))
	assert.ErrorContains(t, err, "status 400")
}

func TestWebhookProvider_RateLimitHonoursContext(t *testing.T) {
	w := newMockedWebhook(t, 0.001, 1)
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL,
		httpmock.NewStringResponder(http.StatusOK, ""))

	require.NoError(t, w.Send(t.Context(), NewNotification(SeverityInfo, "first", "")))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := w.Send(ctx, NewNotification(SeverityInfo, "second", ""))
	assert.ErrorContains(t, err, "rate limit")
	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "limited request never reaches the receiver")
}

func TestWebhookProvider_ValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		enabled bool
		wantErr bool
	}{
		{url: "", enabled: false, wantErr: true},
		{url: "https://hooks.example.com/x", enabled: true},
		{url: "http://10.0.0.5:8080/alerts", enabled: true},
		{url: "ftp://hooks.example.com", enabled: true, wantErr: true},
		{url: "https://", enabled: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			w := NewWebhookProvider(tt.url, time.Second, 1, 1)
			assert.Equal(t, tt.enabled, w.Enabled())
			if tt.wantErr {
				assert.Error(t, w.ValidateConfig())
			} else {
				assert.NoError(t, w.ValidateConfig())
			}
		})
	}
}
