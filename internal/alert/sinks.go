package alert

import (
	"context"
	"fmt"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// Permission mirrors the notification permission states of the host.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// DefaultIcon is attached to every prayer notification.
const DefaultIcon = "/icon-192x192.png"

type Notification struct {
	Prayer model.PrayerKey `json:"prayer"`
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	Icon   string          `json:"icon"`
	Tag    string          `json:"tag"`
}

// PrayerNotification builds the notification shown when key's time arrives.
func PrayerNotification(key model.PrayerKey) Notification {
	name := key.Name()
	return Notification{
		Prayer: key,
		Title:  fmt.Sprintf("Time for %s", name),
		Body:   fmt.Sprintf("It's time for %s prayer", name),
		Icon:   DefaultIcon,
		Tag:    "prayer-" + string(key),
	}
}

// Notifier delivers visual notifications. Notify is only called while
// Permission reports PermissionGranted.
type Notifier interface {
	Permission() Permission
	Notify(ctx context.Context, n Notification) error
}

// AudioPlayer plays the adhan.
type AudioPlayer interface {
	Play(ctx context.Context, prayerName string, volume int) error
	Stop(ctx context.Context) error
}
