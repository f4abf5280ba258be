package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// ActivityWatch defaults.
const (
	DefaultActivityWatchURL = "http://localhost:5600"
	DefaultRequestTimeout   = 2 * time.Second

	unknownWindow = "Unknown Window"
	unknownApp    = "Unknown App"
)

// ActivityWatch reads the focused window from a local ActivityWatch server's
// window watcher bucket.
type ActivityWatch struct {
	baseURL string
	client  *http.Client

	mu     sync.Mutex
	bucket string
}

// NewActivityWatch returns a client for the server at baseURL. Each request
// is bounded by timeout.
func NewActivityWatch(baseURL string, timeout time.Duration) *ActivityWatch {
	if baseURL == "" {
		baseURL = DefaultActivityWatchURL
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &ActivityWatch{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements FocusSource.
func (a *ActivityWatch) Name() string { return "activitywatch" }

type awEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Data      struct {
		App   *string `json:"app"`
		Title *string `json:"title"`
	} `json:"data"`
}

// ActiveWindow implements FocusSource. The window bucket id is looked up once
// and cached until a request fails.
func (a *ActivityWatch) ActiveWindow(ctx context.Context) (WindowInfo, error) {
	bucket, err := a.windowBucket(ctx)
	if err != nil {
		return WindowInfo{}, err
	}

	var events []awEvent
	path := "/api/0/buckets/" + url.PathEscape(bucket) + "/events?limit=1"
	if err := a.get(ctx, path, &events); err != nil {
		a.forgetBucket()
		return WindowInfo{}, err
	}
	if len(events) == 0 {
		return WindowInfo{}, ErrNoWindow
	}

	// Defaults apply only to missing keys; a present but empty title is not
	// a usable focus context.
	ev := events[0]
	info := WindowInfo{App: unknownApp, Title: unknownWindow, Timestamp: ev.Timestamp}
	if ev.Data.App != nil {
		info.App = *ev.Data.App
	}
	if ev.Data.Title != nil {
		info.Title = *ev.Data.Title
	}
	if info.Title == "" {
		return WindowInfo{}, ErrNoWindow
	}
	return info, nil
}

func (a *ActivityWatch) windowBucket(ctx context.Context) (string, error) {
	a.mu.Lock()
	cached := a.bucket
	a.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var buckets map[string]json.RawMessage
	if err := a.get(ctx, "/api/0/buckets/", &buckets); err != nil {
		return "", err
	}
	ids := make([]string, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.Contains(strings.ToLower(id), "window") {
			a.mu.Lock()
			a.bucket = id
			a.mu.Unlock()
			return id, nil
		}
	}
	return "", errors.New("activitywatch: no window bucket")
}

func (a *ActivityWatch) forgetBucket() {
	a.mu.Lock()
	a.bucket = ""
	a.mu.Unlock()
}

func (a *ActivityWatch) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("activitywatch: build request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("activitywatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("activitywatch: %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("activitywatch: decode %s: %w", path, err)
	}
	return nil
}
