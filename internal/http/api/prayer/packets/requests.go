package packets

import "github.com/Nixie-Tech-LLC/athan/internal/model"

// UpdateNotificationSettingsRequest is a partial settings change; omitted
// fields keep their stored value.
type UpdateNotificationSettingsRequest struct {
	FajrEnabled    *bool   `json:"fajrEnabled"`
	DhuhrEnabled   *bool   `json:"dhuhrEnabled"`
	AsrEnabled     *bool   `json:"asrEnabled"`
	MaghribEnabled *bool   `json:"maghribEnabled"`
	IshaEnabled    *bool   `json:"ishaEnabled"`
	AdhanAutoPlay  *bool   `json:"adhanAutoPlay"`
	Volume         *string `json:"volume"`
}

func (r UpdateNotificationSettingsRequest) ToUpdate() model.SettingsUpdate {
	return model.SettingsUpdate{
		FajrEnabled:    r.FajrEnabled,
		DhuhrEnabled:   r.DhuhrEnabled,
		AsrEnabled:     r.AsrEnabled,
		MaghribEnabled: r.MaghribEnabled,
		IshaEnabled:    r.IshaEnabled,
		AdhanAutoPlay:  r.AdhanAutoPlay,
		Volume:         r.Volume,
	}
}
