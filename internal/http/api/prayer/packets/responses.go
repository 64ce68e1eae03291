package packets

import (
	"github.com/Nixie-Tech-LLC/athan/internal/alert"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

type NextPrayerResponse struct {
	Date string `json:"date"`
	model.Upcoming
}

type NextAlertResponse struct {
	State string                `json:"state"`
	Alert *alert.ScheduledAlert `json:"alert"`
}

type AdhanAudioResponse struct {
	URL string `json:"url"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
