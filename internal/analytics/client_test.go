package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/streampulse/harvester/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFetchDailyMergesDeviceBreakdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		dims := r.URL.Query().Get("dimensions")
		var page reportResponse
		switch dims {
		case "video,date":
			page.Items = []reportItem{
				{Video: "v1", Date: "2024-03-01", VideoView: 10, SecondsViewed: 120},
				{Video: "v1", Date: "2024-03-02", VideoView: 4, SecondsViewed: 30},
			}
		case "video,date,device_type":
			page.Items = []reportItem{
				{Video: "v1", Date: "2024-03-01", VideoView: 7, DeviceType: "desktop"},
				{Video: "v1", Date: "2024-03-01", VideoView: 2, DeviceType: "mobile"},
				{Video: "v1", Date: "2024-03-01", VideoView: 1, DeviceType: "connected_tv"},
			}
		default:
			t.Fatalf("unexpected dimensions %q", dims)
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	fetcher := NewClient(server.URL, StaticTokenProvider("test-token"))
	records, err := fetcher.FetchDaily(context.Background(), "acct", "v1", day("2024-03-01"), day("2024-03-02"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, day("2024-03-01"), records[0].Date)
	assert.Equal(t, int64(10), records[0].Views)
	assert.Equal(t, int64(7), records[0].ViewsDesktop)
	assert.Equal(t, int64(2), records[0].ViewsMobile)
	assert.Equal(t, int64(1), records[0].ViewsOther)
	assert.Equal(t, int64(4), records[1].Views)
	assert.Zero(t, records[1].ViewsDesktop)
}

func TestFetchReportPaginates(t *testing.T) {
	var offsets []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, offset)

		var page reportResponse
		count := pageLimit
		if offset >= pageLimit {
			count = 3
		}
		for i := 0; i < count; i++ {
			page.Items = append(page.Items, reportItem{Video: "v1", Date: "2024-01-01", VideoView: 1})
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	c := NewClient(server.URL, StaticTokenProvider("t")).(*client)
	items, _, err := c.fetchReport(context.Background(), "acct", map[string][]string{"dimensions": {"video,date"}})
	require.NoError(t, err)
	assert.Len(t, items, pageLimit+3)
	assert.Equal(t, []int{0, pageLimit}, offsets)
}

func TestFetchDailyRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	fetcher := NewClient(server.URL, StaticTokenProvider("t"))
	_, err := fetcher.FetchDaily(context.Background(), "acct", "v1", day("2024-01-01"), day("2024-01-02"))
	require.Error(t, err)

	assert.True(t, IsTransient(err))
	hint, ok := RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, 12*time.Second, hint)
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(&APIError{StatusCode: http.StatusInternalServerError}))
	assert.True(t, IsTransient(&APIError{StatusCode: http.StatusBadGateway}))
	assert.True(t, IsTransient(&APIError{StatusCode: http.StatusServiceUnavailable}))
	assert.True(t, IsTransient(&APIError{StatusCode: http.StatusGatewayTimeout}))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(&APIError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsTransient(&APIError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsTransient(&APIError{StatusCode: http.StatusBadRequest}))
}

func TestTokenProviderCachesUntilNearExpiry(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client-id", user)
		require.Equal(t, "client-secret", pass)
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "tok-" + strconv.Itoa(calls),
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	}))
	defer server.Close()

	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	provider := NewClientCredentialsProvider(server.URL, "client-id", "client-secret", clk)

	tok, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Well inside the expiry window the cached token is reused.
	clk.Advance(2 * time.Minute)
	tok, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, calls)

	// Within the refresh margin of expiry a new token is fetched.
	clk.Advance(3 * time.Minute)
	tok, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, 2, calls)
}
