package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/alert"
	"github.com/Nixie-Tech-LLC/athan/internal/clock"
	"github.com/Nixie-Tech-LLC/athan/internal/config"
	"github.com/Nixie-Tech-LLC/athan/internal/db"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api/prayer/endpoints"
	"github.com/Nixie-Tech-LLC/athan/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/notify"
	"github.com/Nixie-Tech-LLC/athan/internal/redis"
	"github.com/Nixie-Tech-LLC/athan/internal/refresh"
	"github.com/Nixie-Tech-LLC/athan/internal/scraper"
)

const shutdownTimeout = 10 * time.Second

// sinks are where fired alerts go
type sinks struct {
	pub      notify.Publisher
	notifier *notify.TopicNotifier
	audio    *notify.TopicAudio
	hub      *notify.Hub
	broker   *notify.Broker // nil without MQTT
}

func main() {
	cfg := loadEnvironment()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// initialize PostgreSQL, or the in-memory store without DATABASE_URL
	store, err := db.Open(cfg.DatabaseURL, cfg.MigrationsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	// initialize Redis
	var cache *redis.TodayCache
	if cfg.RedisAddress != "" {
		if err := redis.InitRedis(cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword); err != nil {
			log.Error().Err(err).Msg("redis unavailable, continuing without cache")
		} else {
			cache = redis.NewTodayCache(redis.Rdb, 0)
		}
	}

	clk := clock.New(cfg.TimeZone)

	sc := scraper.New(scraper.NewHTTPFetcher(cfg.ScrapeTimeout), scraper.Config{
		URL:      cfg.ScrapeURL,
		Location: cfg.Location,
		TimeZone: cfg.TimeZone,
	}).WithClock(clk.Now)

	out := initSinks(ctx, cfg)
	if out.broker != nil {
		defer out.broker.Close()
	}

	alerts := alert.NewScheduler(out.notifier, out.audio, clk)
	defer alerts.Stop()

	daily := refresh.New(sc, store,
		refresh.WithHour(cfg.RefreshHour),
		refresh.WithCache(cache),
		refresh.WithClock(clk),
	)
	// Fajr is usually before the daily refresh, so the new date's record is
	// also fetched right after midnight.
	rollover := refresh.New(sc, store,
		refresh.WithHour(0),
		refresh.WithCache(cache),
		refresh.WithClock(clk),
	)
	for _, r := range []*refresh.Scheduler{daily, rollover} {
		r.OnRefresh(func(record model.PrayerTimeRecord) {
			alerts.UpdateRecord(&record)
			publishRecord(out.pub, record)
		})
	}

	armAlerts(ctx, store, daily, alerts, clk)
	daily.Start(ctx)
	if cfg.RefreshHour != 0 {
		rollover.Start(ctx)
	}

	tmpl, err := LoadTemplates("integrations/templates")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load templates")
	}

	ctl := endpoints.NewPrayerController(endpoints.Options{
		Store:       store,
		Refresher:   daily,
		Alerts:      alerts,
		Cache:       cache,
		Storage:     InitStorage(cfg),
		Audio:       out.audio,
		Clock:       clk,
		UpdateLimit: middleware.RateLimit(cfg.UpdateRatePerMinute, time.Minute),
		Live:        out.hub.Handler(),
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	RegisterRoutes(r, cfg, ctl, tmpl)

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ServerAddress).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// initSinks publishes alerts to live websocket clients and, when a broker
// is configured and reachable, to MQTT subscribers.
func initSinks(ctx context.Context, cfg *config.Config) sinks {
	hub := notify.NewHub()
	out := sinks{hub: hub, pub: notify.Fanout(hub)}

	if cfg.MQTTBrokerURL == "" {
		log.Warn().Msg("MQTT_BROKER_URL not set, alerts only reach live clients")
	} else if broker, err := notify.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID); err != nil {
		log.Error().Err(err).Str("broker", cfg.MQTTBrokerURL).Msg("mqtt connect failed, alerts only reach live clients")
	} else {
		out.broker = broker
		out.pub = notify.Fanout(broker, hub)
	}

	// a previously uploaded recording wins over the configured default
	audioURL := cfg.AdhanAudioURL
	if url, ok := redis.Get(ctx, redis.AudioURLKey); ok {
		audioURL = url
	}
	out.audio = notify.NewTopicAudio(out.pub, audioURL)
	out.notifier = notify.NewTopicNotifier(out.pub)
	return out
}

// armAlerts loads today's record, scraping one if needed, and the stored
// settings, then arms the first alert.
func armAlerts(ctx context.Context, store db.Store, refresher *refresh.Scheduler, alerts *alert.Scheduler, clk clock.Clock) {
	date := model.DateOf(clk.Now())

	var record *model.PrayerTimeRecord
	stored, err := store.GetRecordByDate(ctx, date)
	switch {
	case err == nil:
		record = &stored
	case errors.Is(err, db.ErrNotFound):
		scraped, err := refresher.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Str("date", date).Msg("initial refresh failed")
		} else {
			record = &scraped
		}
	default:
		log.Error().Err(err).Str("date", date).Msg("failed to load prayer times")
	}

	var settings *model.NotificationSettings
	if s, err := store.GetSettings(ctx, model.DefaultUserID); err != nil {
		log.Error().Err(err).Msg("failed to load notification settings")
	} else {
		settings = &s
	}

	alerts.Run(record, settings)
	if a, ok := alerts.Armed(); ok {
		log.Info().Str("prayer", string(a.Prayer)).Time("at", a.At).Msg("first alert armed")
	} else {
		log.Info().Msg("no alert armed for today")
	}
}

// publishRecord tells live clients and screens that the day's times changed.
func publishRecord(pub notify.Publisher, record model.PrayerTimeRecord) {
	if !pub.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, notify.PrayerTimesTopic, record); err != nil {
		log.Warn().Err(err).Str("date", record.Date).Msg("failed to publish prayer times")
	}
}
