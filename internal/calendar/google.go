package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL = "https://www.googleapis.com/calendar/v3"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	defaultTimeout    = 10 * time.Second
)

// ErrTokenExpired signals a 401 from the calendar API; callers refresh the
// access token and retry once.
var ErrTokenExpired = errors.New("calendar: access token expired")

// Interval is one busy range reported by the provider.
type Interval struct {
	Start time.Time
	End   time.Time
}

// GoogleConfig configures the Google Calendar client. Base URLs exist so
// tests can point the client at a local server.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	TokenURL     string
	Timeout      time.Duration
}

// GoogleClient talks to the Google Calendar REST API directly: freeBusy
// lookups, event creation, and OAuth token refresh.
type GoogleClient struct {
	clientID     string
	clientSecret string
	apiBaseURL   string
	tokenURL     string
	http         *http.Client
}

// NewGoogleClient builds a client with sane defaults for anything unset.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GoogleClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		apiBaseURL:   apiBase,
		tokenURL:     tokenURL,
		http:         &http.Client{Timeout: timeout},
	}
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"busy"`
	} `json:"calendars"`
}

// FreeBusy returns the busy intervals of one calendar over [from, to).
// A 401 maps to ErrTokenExpired.
func (c *GoogleClient) FreeBusy(ctx context.Context, accessToken, calendarID string, from, to time.Time, timezone string) ([]Interval, error) {
	payload := map[string]any{
		"timeMin":  from.Format(time.RFC3339),
		"timeMax":  to.Format(time.RFC3339),
		"timeZone": timezone,
		"items":    []map[string]string{{"id": calendarID}},
	}

	data, err := c.doJSON(ctx, accessToken, c.apiBaseURL+"/freeBusy", payload)
	if err != nil {
		return nil, err
	}

	var parsed freeBusyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("calendar: decode freeBusy response: %w", err)
	}

	cal, ok := parsed.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	intervals := make([]Interval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: bad busy start %q: %w", b.Start, err)
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: bad busy end %q: %w", b.End, err)
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	return intervals, nil
}

// Event describes a calendar event to create.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	Duration    time.Duration
	Timezone    string
	Attendee    string
}

// CreateEvent inserts an event and returns the provider event ID.
func (c *GoogleClient) CreateEvent(ctx context.Context, accessToken, calendarID string, ev Event) (string, error) {
	if ev.Duration <= 0 {
		ev.Duration = 30 * time.Minute
	}
	payload := map[string]any{
		"summary":     ev.Summary,
		"description": ev.Description,
		"start":       map[string]string{"dateTime": ev.Start.Format(time.RFC3339), "timeZone": ev.Timezone},
		"end":         map[string]string{"dateTime": ev.Start.Add(ev.Duration).Format(time.RFC3339), "timeZone": ev.Timezone},
		"reminders":   map[string]any{"useDefault": true},
	}
	if ev.Attendee != "" {
		payload["attendees"] = []map[string]string{{"email": ev.Attendee}}
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.apiBaseURL, url.PathEscape(calendarID))
	data, err := c.doJSON(ctx, accessToken, endpoint, payload)
	if err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("calendar: decode event response: %w", err)
	}
	return out.ID, nil
}

// RefreshAccessToken exchanges a refresh token for a new access token.
func (c *GoogleClient) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("calendar: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("calendar: read refresh response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("calendar: refresh failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("calendar: decode refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("calendar: refresh response missing access_token")
	}
	return out.AccessToken, nil
}

func (c *GoogleClient) doJSON(ctx context.Context, accessToken, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("calendar: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("calendar: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("calendar: read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenExpired
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("calendar: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}
