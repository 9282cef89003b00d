package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// pageLimit is the per-request row cap; responses at the cap trigger
	// another page at the next offset.
	pageLimit = 200
)

// DailyRecord is one (video, date) row from the analytics API, daily summary
// and device breakdown combined.
type DailyRecord struct {
	VideoID           string
	Date              time.Time
	Views             int64
	Impressions       int64
	PlayRate          float64
	EngagementScore   float64
	Engagement1       float64
	Engagement25      float64
	Engagement50      float64
	Engagement75      float64
	Engagement100     float64
	PercentViewed     float64
	SecondsViewed     int64
	ViewsDesktop      int64
	ViewsMobile       int64
	ViewsTablet       int64
	ViewsOther        int64
	ReportGeneratedAt *time.Time
}

// LastView is one row of the account-wide last-viewed sweep.
type LastView struct {
	VideoID string
	Date    time.Time
	Views   int64
}

// Fetcher pulls per-day metric rows from the upstream analytics API.
type Fetcher interface {
	// FetchDaily returns every daily row for one video whose date falls in
	// [from, to] inclusive. Dates are UTC midnight.
	FetchDaily(ctx context.Context, accountID, videoID string, from, to time.Time) ([]DailyRecord, error)

	// FetchLastViewed returns the account-wide (video, date, views) slice for
	// the given inclusive range, across all videos of the account.
	FetchLastViewed(ctx context.Context, accountID string, from, to time.Time) ([]LastView, error)
}

type client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
}

// NewClient builds a Fetcher against the analytics API at baseURL.
func NewClient(baseURL string, tokens TokenProvider) Fetcher {
	return &client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type reportResponse struct {
	Items       []reportItem `json:"items"`
	ItemCount   int          `json:"item_count"`
	Summary     struct{}     `json:"summary"`
	GeneratedAt string       `json:"report_generated_at"`
}

type reportItem struct {
	Video           string  `json:"video"`
	Date            string  `json:"date"`
	VideoView       int64   `json:"video_view"`
	VideoImpression int64   `json:"video_impression"`
	PlayRate        float64 `json:"play_rate"`
	EngagementScore float64 `json:"engagement_score"`
	Engagement1     float64 `json:"video_engagement_1"`
	Engagement25    float64 `json:"video_engagement_25"`
	Engagement50    float64 `json:"video_engagement_50"`
	Engagement75    float64 `json:"video_engagement_75"`
	Engagement100   float64 `json:"video_engagement_100"`
	PercentViewed   float64 `json:"video_percent_viewed"`
	SecondsViewed   int64   `json:"video_seconds_viewed"`
	DeviceType      string  `json:"device_type"`
}

func (c *client) FetchDaily(ctx context.Context, accountID, videoID string, from, to time.Time) ([]DailyRecord, error) {
	items, generatedAt, err := c.fetchReport(ctx, accountID, url.Values{
		"dimensions": {"video,date"},
		"where":      {"video==" + videoID},
		"fields": {"video_view,video_impression,play_rate,engagement_score," +
			"video_engagement_1,video_engagement_25,video_engagement_50," +
			"video_engagement_75,video_engagement_100,video_percent_viewed,video_seconds_viewed"},
		"from": {from.Format(dateLayout)},
		"to":   {to.Format(dateLayout)},
		"sort": {"date"},
	})
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*DailyRecord, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		date, err := time.ParseInLocation(dateLayout, item.Date, time.UTC)
		if err != nil {
			return nil, &APIError{StatusCode: http.StatusOK, Body: fmt.Sprintf("bad date %q in report", item.Date)}
		}
		rec := &DailyRecord{
			VideoID:           videoID,
			Date:              date,
			Views:             item.VideoView,
			Impressions:       item.VideoImpression,
			PlayRate:          item.PlayRate,
			EngagementScore:   item.EngagementScore,
			Engagement1:       item.Engagement1,
			Engagement25:      item.Engagement25,
			Engagement50:      item.Engagement50,
			Engagement75:      item.Engagement75,
			Engagement100:     item.Engagement100,
			PercentViewed:     item.PercentViewed,
			SecondsViewed:     item.SecondsViewed,
			ReportGeneratedAt: generatedAt,
		}
		if _, exists := byDate[item.Date]; !exists {
			order = append(order, item.Date)
		}
		byDate[item.Date] = rec
	}

	if len(byDate) > 0 {
		if err := c.mergeDeviceBreakdown(ctx, accountID, videoID, from, to, byDate); err != nil {
			return nil, err
		}
	}

	records := make([]DailyRecord, 0, len(byDate))
	for _, key := range order {
		records = append(records, *byDate[key])
	}
	return records, nil
}

func (c *client) mergeDeviceBreakdown(ctx context.Context, accountID, videoID string, from, to time.Time, byDate map[string]*DailyRecord) error {
	items, _, err := c.fetchReport(ctx, accountID, url.Values{
		"dimensions": {"video,date,device_type"},
		"where":      {"video==" + videoID},
		"fields":     {"video_view"},
		"from":       {from.Format(dateLayout)},
		"to":         {to.Format(dateLayout)},
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		rec, ok := byDate[item.Date]
		if !ok {
			continue
		}
		switch item.DeviceType {
		case "desktop":
			rec.ViewsDesktop += item.VideoView
		case "mobile":
			rec.ViewsMobile += item.VideoView
		case "tablet":
			rec.ViewsTablet += item.VideoView
		default:
			rec.ViewsOther += item.VideoView
		}
	}
	return nil
}

func (c *client) FetchLastViewed(ctx context.Context, accountID string, from, to time.Time) ([]LastView, error) {
	items, _, err := c.fetchReport(ctx, accountID, url.Values{
		"dimensions": {"video,date"},
		"fields":     {"video_view"},
		"from":       {from.Format(dateLayout)},
		"to":         {to.Format(dateLayout)},
		"sort":       {"date"},
	})
	if err != nil {
		return nil, err
	}

	views := make([]LastView, 0, len(items))
	for _, item := range items {
		date, err := time.ParseInLocation(dateLayout, item.Date, time.UTC)
		if err != nil {
			return nil, &APIError{StatusCode: http.StatusOK, Body: fmt.Sprintf("bad date %q in report", item.Date)}
		}
		views = append(views, LastView{VideoID: item.Video, Date: date, Views: item.VideoView})
	}
	return views, nil
}

// fetchReport walks the report endpoint page by page until a short page.
func (c *client) fetchReport(ctx context.Context, accountID string, params url.Values) ([]reportItem, *time.Time, error) {
	var (
		items       []reportItem
		generatedAt *time.Time
		offset      int
	)
	for {
		page, err := c.fetchPage(ctx, accountID, params, offset)
		if err != nil {
			return nil, nil, err
		}
		if generatedAt == nil && page.GeneratedAt != "" {
			if ts, err := time.Parse(time.RFC3339, page.GeneratedAt); err == nil {
				utc := ts.UTC()
				generatedAt = &utc
			}
		}
		items = append(items, page.Items...)
		if len(page.Items) < pageLimit {
			return items, generatedAt, nil
		}
		offset += pageLimit
	}
}

func (c *client) fetchPage(ctx context.Context, accountID string, params url.Values, offset int) (*reportResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("accounts", accountID)
	query.Set("limit", strconv.Itoa(pageLimit))
	query.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp, string(body))
	}

	var page reportResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: "malformed report payload: " + err.Error()}
	}
	return &page, nil
}
