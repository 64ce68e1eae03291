package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/alert"
	"github.com/Nixie-Tech-LLC/athan/internal/clock"
	"github.com/Nixie-Tech-LLC/athan/internal/db"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api/prayer/packets"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/redis"
	"github.com/Nixie-Tech-LLC/athan/internal/storage"
)

// Refresher scrapes and persists a record on demand.
type Refresher interface {
	RunOnce(ctx context.Context) (model.PrayerTimeRecord, error)
}

// Alerts is the part of the alert scheduler the API drives.
type Alerts interface {
	UpdateSettings(settings *model.NotificationSettings)
	Armed() (alert.ScheduledAlert, bool)
	State() alert.State
	StopAudio(ctx context.Context) error
}

// AudioSource accepts the URL of a newly uploaded adhan recording.
type AudioSource interface {
	SetAudioURL(url string)
}

const maxAudioBytes = 20 << 20

type Options struct {
	Store     db.Store
	Refresher Refresher
	Alerts    Alerts
	Cache     *redis.TodayCache // nil disables caching
	Storage   storage.Storage   // nil disables uploads
	Audio     AudioSource
	Clock     clock.Clock

	// UpdateLimit guards the force-update endpoint.
	UpdateLimit gin.HandlerFunc
	// Live serves the websocket alert feed; nil leaves it unmounted.
	Live gin.HandlerFunc
}

type PrayerController struct {
	opts Options

	// settingsMu keeps the stored settings and the ones the alert
	// scheduler is armed with in the same order.
	settingsMu sync.Mutex
}

func NewPrayerController(opts Options) *PrayerController {
	if opts.Clock == nil {
		opts.Clock = clock.New(nil)
	}
	return &PrayerController{opts: opts}
}

// PrayerModule mounts the /api endpoints.
func PrayerModule(ctl *PrayerController) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/prayer-times", ctl.getPrayerTimes)
		c.GET("/prayer-times/next", ctl.getNextPrayer)
		if ctl.opts.UpdateLimit != nil {
			c.POST("/prayer-times/update", ctl.updatePrayerTimes, ctl.opts.UpdateLimit)
		} else {
			c.POST("/prayer-times/update", ctl.updatePrayerTimes)
		}

		c.GET("/notification-settings", ctl.getSettings)
		c.PATCH("/notification-settings", ctl.updateSettings)

		c.GET("/alerts/next", ctl.getNextAlert)
		if ctl.opts.Live != nil {
			c.Raw(http.MethodGet, "/alerts/live", ctl.opts.Live)
		}
		c.POST("/adhan/stop", ctl.stopAdhan)
		c.POST("/adhan/audio", ctl.uploadAdhan)
	})
}

// today returns the current date's record, scraping and persisting one
// when none is stored yet.
func (p *PrayerController) today(ctx context.Context) (model.PrayerTimeRecord, error) {
	date := model.DateOf(p.opts.Clock.Now())

	record, err := p.opts.Store.GetRecordByDate(ctx, date)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return model.PrayerTimeRecord{}, err
	}

	log.Info().Str("date", date).Msg("no prayer times stored for today, scraping")
	return p.opts.Refresher.RunOnce(ctx)
}

// GET /api/prayer-times
func (p *PrayerController) getPrayerTimes(ctx *gin.Context) (any, *api.APIError) {
	date := model.DateOf(p.opts.Clock.Now())

	record, etag, cached := p.opts.Cache.Get(ctx.Request.Context(), date)
	if !cached {
		var err error
		record, err = p.today(ctx.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("date", date).Msg("failed to fetch prayer times")
			return nil, api.Internal("failed to fetch prayer times")
		}
		etag = p.opts.Cache.Set(ctx.Request.Context(), record)
	}

	ctx.Header("ETag", etag)
	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.AbortWithStatus(http.StatusNotModified)
		return nil, nil
	}
	return record, nil
}

// POST /api/prayer-times/update
func (p *PrayerController) updatePrayerTimes(ctx *gin.Context) (any, *api.APIError) {
	log.Info().Str("ip", ctx.ClientIP()).Msg("manual prayer time update requested")

	record, err := p.opts.Refresher.RunOnce(ctx.Request.Context())
	if err != nil {
		return nil, api.Internal("failed to update prayer times")
	}
	return record, nil
}

// GET /api/prayer-times/next
func (p *PrayerController) getNextPrayer(ctx *gin.Context) (any, *api.APIError) {
	record, err := p.today(ctx.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch prayer times for next prayer")
		return nil, api.Internal("failed to fetch prayer times")
	}

	upcoming, ok := model.UpcomingForDisplay(record, p.opts.Clock.Now())
	if !ok {
		return nil, api.NotFound("no upcoming prayer")
	}
	return packets.NextPrayerResponse{Date: record.Date, Upcoming: upcoming}, nil
}

// GET /api/notification-settings
func (p *PrayerController) getSettings(ctx *gin.Context) (any, *api.APIError) {
	settings, err := p.opts.Store.GetSettings(ctx.Request.Context(), model.DefaultUserID)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch notification settings")
		return nil, api.Internal("failed to fetch notification settings")
	}
	return settings, nil
}

// PATCH /api/notification-settings
func (p *PrayerController) updateSettings(ctx *gin.Context) (any, *api.APIError) {
	var request packets.UpdateNotificationSettingsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, api.BadRequest("invalid data: " + err.Error())
	}
	update := request.ToUpdate()
	if err := update.Validate(); err != nil {
		return nil, api.BadRequest("invalid data: " + err.Error())
	}

	p.settingsMu.Lock()
	defer p.settingsMu.Unlock()

	settings, err := p.opts.Store.UpsertSettings(ctx.Request.Context(), model.DefaultUserID, update)
	if err != nil {
		log.Error().Err(err).Msg("failed to update notification settings")
		return nil, api.Internal("failed to update notification settings")
	}

	if p.opts.Alerts != nil {
		p.opts.Alerts.UpdateSettings(&settings)
	}
	return settings, nil
}

// GET /api/alerts/next
func (p *PrayerController) getNextAlert(ctx *gin.Context) (any, *api.APIError) {
	if p.opts.Alerts == nil {
		return packets.NextAlertResponse{State: alert.StateIdle.String()}, nil
	}
	resp := packets.NextAlertResponse{State: p.opts.Alerts.State().String()}
	if armed, ok := p.opts.Alerts.Armed(); ok {
		resp.Alert = &armed
	}
	return resp, nil
}

// POST /api/adhan/stop
func (p *PrayerController) stopAdhan(ctx *gin.Context) (any, *api.APIError) {
	if p.opts.Alerts == nil {
		return packets.StatusResponse{Status: "stopped"}, nil
	}
	if err := p.opts.Alerts.StopAudio(ctx.Request.Context()); err != nil {
		log.Error().Err(err).Msg("failed to stop adhan")
		return nil, api.Internal("failed to stop adhan")
	}
	return packets.StatusResponse{Status: "stopped"}, nil
}

// POST /api/adhan/audio
func (p *PrayerController) uploadAdhan(ctx *gin.Context) (any, *api.APIError) {
	if p.opts.Storage == nil {
		return nil, &api.APIError{Code: http.StatusServiceUnavailable, Message: "audio uploads are disabled"}
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return nil, api.BadRequest("file is required")
	}
	if fileHeader.Size > maxAudioBytes {
		return nil, api.BadRequest("file is too large")
	}

	url, err := p.opts.Storage.SaveFile(fileHeader, fileHeader.Filename)
	if errors.Is(err, storage.ErrUnsupportedType) {
		return nil, api.BadRequest(err.Error())
	}
	if err != nil {
		log.Error().Err(err).Str("filename", fileHeader.Filename).Msg("failed to store adhan audio")
		return nil, api.Internal("failed to store adhan audio")
	}

	if p.opts.Audio != nil {
		p.opts.Audio.SetAudioURL(url)
	}
	redis.Set(ctx.Request.Context(), redis.AudioURLKey, url, 0)

	log.Info().Str("url", url).Msg("adhan audio updated")
	return packets.AdhanAudioResponse{URL: url}, nil
}

func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}
