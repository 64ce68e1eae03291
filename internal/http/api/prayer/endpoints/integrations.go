package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/http/api"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// IntegrationsModule mounts the HTML pages screens load, under /integrations.
func IntegrationsModule(ctl *PrayerController) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.Raw(http.MethodGet, "/:name", ctl.serveIntegration)
	})
}

func (p *PrayerController) serveIntegration(ctx *gin.Context) {
	switch ctx.Param("name") {
	case "athan":
		p.serveAthan(ctx)
	default:
		ctx.String(http.StatusNotFound, "integration not found")
	}
}

func (p *PrayerController) serveAthan(ctx *gin.Context) {
	record, err := p.today(ctx.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load prayer times for athan page")
		ctx.String(http.StatusInternalServerError, "failed to get prayer times")
		return
	}

	var settings *model.NotificationSettings
	if s, err := p.opts.Store.GetSettings(ctx.Request.Context(), model.DefaultUserID); err == nil {
		settings = &s
	}

	ctx.HTML(http.StatusOK, "athan.html", model.NewAthanPageData(record, settings, p.opts.Clock.Now()))
}
