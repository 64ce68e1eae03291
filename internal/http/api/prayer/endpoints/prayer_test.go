package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/athan/internal/alert"
	"github.com/Nixie-Tech-LLC/athan/internal/clock"
	"github.com/Nixie-Tech-LLC/athan/internal/db"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api"
	"github.com/Nixie-Tech-LLC/athan/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/refresh"
	"github.com/Nixie-Tech-LLC/athan/internal/scraper"
	"github.com/Nixie-Tech-LLC/athan/internal/storage"
)

type stubScraper struct {
	clock clock.Clock
	calls int
}

func (s *stubScraper) Scrape(context.Context) scraper.Result {
	s.calls++
	return scraper.Result{
		Record: model.NewRecord(model.DateOf(s.clock.Now()), model.FallbackTimes, model.DefaultLocation),
		Source: scraper.SourceFallback,
	}
}

type fakeAlerts struct {
	settings *model.NotificationSettings
	armed    *alert.ScheduledAlert
	stopErr  error
	stops    int
}

func (f *fakeAlerts) UpdateSettings(s *model.NotificationSettings) { f.settings = s }

func (f *fakeAlerts) Armed() (alert.ScheduledAlert, bool) {
	if f.armed == nil {
		return alert.ScheduledAlert{}, false
	}
	return *f.armed, true
}

func (f *fakeAlerts) State() alert.State {
	if f.armed == nil {
		return alert.StateIdle
	}
	return alert.StateArmed
}

func (f *fakeAlerts) StopAudio(context.Context) error {
	f.stops++
	return f.stopErr
}

type fakeAudio struct{ url string }

func (f *fakeAudio) SetAudioURL(url string) { f.url = url }

type testServer struct {
	router  *gin.Engine
	store   *db.MemoryStore
	scraper *stubScraper
	alerts  *fakeAlerts
	audio   *fakeAudio
	clock   *clock.Fake
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFake(time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC))
	ts := &testServer{
		store:   db.NewMemoryStore(),
		scraper: &stubScraper{clock: clk},
		alerts:  &fakeAlerts{},
		audio:   &fakeAudio{},
		clock:   clk,
	}

	opts := Options{
		Store:     ts.store,
		Refresher: refresh.New(ts.scraper, ts.store, refresh.WithClock(clk)),
		Alerts:    ts.alerts,
		Storage:   storage.NewLocalStorage(t.TempDir(), "uploads"),
		Audio:     ts.audio,
		Clock:     clk,
	}
	for _, m := range mutate {
		m(&opts)
	}
	ctl := NewPrayerController(opts)

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.ParseFiles(filepath.Join("..", "..", "..", "..", "..", "integrations", "templates", "athan.html"))))
	api.MountGroup(r, api.GroupConfig{Prefix: "/api"}, PrayerModule(ctl))
	api.MountGroup(r, api.GroupConfig{Prefix: "/integrations"}, IntegrationsModule(ctl))
	ts.router = r
	return ts
}

func (ts *testServer) do(method, path string, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestGetPrayerTimesScrapesWhenMissing(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/prayer-times", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[model.PrayerTimeRecord](t, w)
	assert.Equal(t, "2026-10-15", got.Date)
	assert.Equal(t, "5:45", got.Fajr)
	assert.Equal(t, "19:15", got.Isha)
	assert.NotEmpty(t, got.ID)
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, 1, ts.scraper.calls)

	_, err := ts.store.GetRecordByDate(context.Background(), "2026-10-15")
	assert.NoError(t, err, "scraped record is persisted")

	ts.do(http.MethodGet, "/api/prayer-times", "")
	assert.Equal(t, 1, ts.scraper.calls, "stored record is reused")
}

func TestGetPrayerTimesNotModified(t *testing.T) {
	ts := newTestServer(t)
	first := ts.do(http.MethodGet, "/api/prayer-times", "")
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w := ts.do(http.MethodGet, "/api/prayer-times", "", "If-None-Match", etag)

	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	w = ts.do(http.MethodGet, "/api/prayer-times", "", "If-None-Match", `"stale"`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetPrayerTimesPersistenceFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.store.FailWrites = errors.New("db down")

	w := ts.do(http.MethodGet, "/api/prayer-times", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to fetch prayer times"}`, w.Body.String())
}

func TestUpdatePrayerTimes(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/prayer-times", "")

	w := ts.do(http.MethodPost, "/api/prayer-times/update", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, ts.scraper.calls, "update always scrapes")
	assert.Equal(t, "2026-10-15", decode[model.PrayerTimeRecord](t, w).Date)
}

func TestUpdatePrayerTimesPersistenceFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.store.FailWrites = errors.New("db down")

	w := ts.do(http.MethodPost, "/api/prayer-times/update", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to update prayer times"}`, w.Body.String())
}

func TestUpdatePrayerTimesRateLimited(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.UpdateLimit = middleware.RateLimit(1, time.Minute) })

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/prayer-times/update", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodPost, "/api/prayer-times/update", "").Code)
	assert.Equal(t, 1, ts.scraper.calls)
}

func TestGetNextPrayer(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/prayer-times/next", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"date": "2026-10-15",
		"key": "asr",
		"name": "Asr",
		"time": "15:28",
		"formattedTime": "3:28 PM",
		"tomorrow": false,
		"minutesLeft": 148,
		"countdown": "in 2h 28m"
	}`, w.Body.String())
}

func TestGetNextPrayerRollsOverForDisplay(t *testing.T) {
	ts := newTestServer(t)
	ts.clock.Set(time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC))

	w := ts.do(http.MethodGet, "/api/prayer-times/next", "")

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "fajr", got["key"])
	assert.Equal(t, true, got["tomorrow"])
}

func TestGetNotificationSettingsDefaults(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/notification-settings", "")

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[model.NotificationSettings](t, w)
	assert.Equal(t, model.DefaultUserID, got.UserID)
	assert.True(t, got.FajrEnabled)
	assert.False(t, got.DhuhrEnabled)
	assert.True(t, got.AsrEnabled)
	assert.True(t, got.MaghribEnabled)
	assert.False(t, got.IshaEnabled)
	assert.True(t, got.AdhanAutoPlay)
	assert.Equal(t, "80", got.Volume)
}

func TestPatchNotificationSettings(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPatch, "/api/notification-settings", `{"dhuhrEnabled":true,"volume":"40"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[model.NotificationSettings](t, w)
	assert.True(t, got.DhuhrEnabled)
	assert.True(t, got.FajrEnabled)
	assert.Equal(t, "40", got.Volume)

	require.NotNil(t, ts.alerts.settings, "alert scheduler re-armed with new settings")
	assert.True(t, ts.alerts.settings.DhuhrEnabled)

	again := decode[model.NotificationSettings](t, ts.do(http.MethodGet, "/api/notification-settings", ""))
	assert.Equal(t, got, again)
}

// heldStore lets the first settings write land, then holds it until release
// is closed.
type heldStore struct {
	db.Store
	calls   atomic.Int32
	written chan struct{}
	release chan struct{}
}

func (h *heldStore) UpsertSettings(ctx context.Context, userID string, u model.SettingsUpdate) (model.NotificationSettings, error) {
	s, err := h.Store.UpsertSettings(ctx, userID, u)
	if h.calls.Add(1) == 1 {
		close(h.written)
		<-h.release
	}
	return s, err
}

func TestConcurrentSettingsPatchesReachSchedulerInWriteOrder(t *testing.T) {
	var held *heldStore
	ts := newTestServer(t, func(o *Options) {
		held = &heldStore{Store: o.Store, written: make(chan struct{}), release: make(chan struct{})}
		o.Store = held
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ts.do(http.MethodPatch, "/api/notification-settings", `{"asrEnabled":false}`)
	}()
	<-held.written

	go func() {
		defer wg.Done()
		ts.do(http.MethodPatch, "/api/notification-settings", `{"asrEnabled":true}`)
	}()
	assert.Never(t, func() bool { return held.calls.Load() > 1 }, 100*time.Millisecond, 5*time.Millisecond,
		"second write must wait for the first to reach the scheduler")

	close(held.release)
	wg.Wait()

	stored, err := ts.store.GetSettings(context.Background(), model.DefaultUserID)
	require.NoError(t, err)
	assert.True(t, stored.AsrEnabled)
	require.NotNil(t, ts.alerts.settings)
	assert.Equal(t, stored.AsrEnabled, ts.alerts.settings.AsrEnabled)
}

func TestPatchNotificationSettingsInvalid(t *testing.T) {
	cases := map[string]string{
		"volume out of range": `{"volume":"150"}`,
		"volume not numeric":  `{"volume":"loud"}`,
		"wrong type":          `{"fajrEnabled":"yes"}`,
		"malformed json":      `{"fajrEnabled":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t)

			w := ts.do(http.MethodPatch, "/api/notification-settings", body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "invalid data")
			assert.Nil(t, ts.alerts.settings)
		})
	}
}

func TestGetNextAlert(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/alerts/next", "")
	assert.JSONEq(t, `{"state":"idle","alert":null}`, w.Body.String())

	ts.alerts.armed = &alert.ScheduledAlert{
		Prayer:  model.Asr,
		Name:    "Asr",
		Time:    "15:28",
		Minutes: 928,
		At:      time.Date(2026, 10, 15, 15, 28, 0, 0, time.UTC),
	}
	w = ts.do(http.MethodGet, "/api/alerts/next", "")
	assert.JSONEq(t, `{
		"state": "armed",
		"alert": {"prayer":"asr","name":"Asr","time":"15:28","minutes":928,"at":"2026-10-15T15:28:00Z"}
	}`, w.Body.String())
}

func TestStopAdhan(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/adhan/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"stopped"}`, w.Body.String())
	assert.Equal(t, 1, ts.alerts.stops)

	ts.alerts.stopErr = errors.New("broker gone")
	w = ts.do(http.MethodPost, "/api/adhan/stop", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func upload(t *testing.T, ts *testServer, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/adhan/audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestUploadAdhanAudio(t *testing.T) {
	ts := newTestServer(t)

	w := upload(t, ts, "file", "Makkah Adhan.mp3", []byte("ID3"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	url := decode[map[string]string](t, w)["url"]
	assert.Regexp(t, `^/uploads/Makkah_Adhan_\d{8}_\d{6}\.mp3$`, url)
	assert.Equal(t, url, ts.audio.url)
}

func TestUploadAdhanAudioRejected(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, upload(t, ts, "file", "slides.pdf", []byte("%PDF")).Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, ts, "other", "adhan.mp3", []byte("ID3")).Code)
	assert.Empty(t, ts.audio.url)
}

func TestUploadAdhanAudioDisabled(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Storage = nil })

	w := upload(t, ts, "file", "adhan.mp3", []byte("ID3"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAthanIntegrationPage(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.store.UpsertSettings(context.Background(), model.DefaultUserID, model.SettingsUpdate{})
	require.NoError(t, err)

	w := ts.do(http.MethodGet, "/integrations/athan", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "BEIRUT")
	assert.Contains(t, body, "OCTOBER 15, 2026")
	assert.Contains(t, body, "FAJR")
	assert.Contains(t, body, "05:45")
	assert.Contains(t, body, "03:28")
	assert.Contains(t, body, "in 2h 28m")
}

func TestUnknownIntegration(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/integrations/weather", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestETagMatches(t *testing.T) {
	assert.True(t, etagMatches(`"abc"`, `"abc"`))
	assert.True(t, etagMatches(`"x", W/"abc"`, `"abc"`))
	assert.True(t, etagMatches(`*`, `"abc"`))
	assert.False(t, etagMatches(``, `"abc"`))
	assert.False(t, etagMatches(`"abd"`, `"abc"`))
}

func TestLiveFeedMountedOnlyWhenConfigured(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/alerts/live", "").Code)

	ts = newTestServer(t, func(o *Options) {
		o.Live = func(c *gin.Context) { c.String(http.StatusOK, "live") }
	})
	w := ts.do(http.MethodGet, "/api/alerts/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live", w.Body.String())
}
