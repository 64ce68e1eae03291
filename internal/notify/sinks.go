package notify

import (
	"context"
	"sync"

	"github.com/Nixie-Tech-LLC/athan/internal/alert"
)

// Publisher is the part of Broker and Hub the sinks need.
type Publisher interface {
	Connected() bool
	Publish(ctx context.Context, topic string, payload any) error
}

var (
	_ Publisher         = (*Broker)(nil)
	_ alert.Notifier    = (*TopicNotifier)(nil)
	_ alert.AudioPlayer = (*TopicAudio)(nil)
)

// TopicNotifier publishes notifications for subscribed screens to display.
type TopicNotifier struct {
	pub Publisher
}

func NewTopicNotifier(pub Publisher) *TopicNotifier {
	return &TopicNotifier{pub: pub}
}

// Permission is granted while someone is listening; nobody can be reached
// otherwise.
func (n *TopicNotifier) Permission() alert.Permission {
	if n.pub != nil && n.pub.Connected() {
		return alert.PermissionGranted
	}
	return alert.PermissionDenied
}

func (n *TopicNotifier) Notify(ctx context.Context, note alert.Notification) error {
	return n.pub.Publish(ctx, NotificationTopic, note)
}

// AudioCommand is the payload on AudioTopic.
type AudioCommand struct {
	Action   string `json:"action"`
	Prayer   string `json:"prayer,omitempty"`
	Volume   int    `json:"volume,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// TopicAudio asks subscribed speakers to play or stop the adhan.
type TopicAudio struct {
	pub Publisher

	mu       sync.RWMutex
	audioURL string
}

func NewTopicAudio(pub Publisher, audioURL string) *TopicAudio {
	return &TopicAudio{pub: pub, audioURL: audioURL}
}

// SetAudioURL points later Play commands at a different adhan recording.
func (a *TopicAudio) SetAudioURL(url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audioURL = url
}

func (a *TopicAudio) AudioURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.audioURL
}

func (a *TopicAudio) Play(ctx context.Context, prayerName string, volume int) error {
	return a.pub.Publish(ctx, AudioTopic, AudioCommand{
		Action:   "play",
		Prayer:   prayerName,
		Volume:   volume,
		AudioURL: a.AudioURL(),
	})
}

func (a *TopicAudio) Stop(ctx context.Context) error {
	return a.pub.Publish(ctx, AudioTopic, AudioCommand{Action: "stop"})
}
