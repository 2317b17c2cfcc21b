// CoverLink - Now Playing State
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"image"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Snapshot is a consistent copy of the now playing state.
type Snapshot struct {
	Title        string
	Artist       string
	Cover        *image.Gray
	Active       bool
	LastActivity time.Time
	Revision     uint64 // bumps on every change
}

// DisplayTitle returns "artist - title", the title alone, or "" when there is
// no title.
func (s Snapshot) DisplayTitle() string {
	if s.Title == "" {
		return ""
	}
	if s.Artist != "" {
		return s.Artist + " - " + s.Title
	}
	return s.Title
}

// PlaybackListener is told about track changes. Used by play history.
// A track starts on a new title; TrackArtist corrects the artist of the open
// track when shairport-sync sends it after the title.
type PlaybackListener interface {
	TrackStarted(artist, title string, at time.Time)
	TrackArtist(artist string)
	TrackEnded(at time.Time)
}

// NowPlaying tracks shairport-sync metadata received over MQTT.
type NowPlaying struct {
	topicBase string
	coverSize int
	now       func() time.Time
	errors    *ErrorHandler
	logger    *zap.Logger
	listener  PlaybackListener

	mutex        sync.RWMutex
	title        string
	artist       string
	cover        *image.Gray
	active       bool
	lastActivity time.Time
	revision     uint64

	// track boundaries reported to listener
	playing        bool
	playingTitle   string
	artistFresh    bool // artist received since the open track started
	awaitingArtist bool // open track started before its artist arrived
}

// NewNowPlaying creates an empty state store for topics under topicBase.
func NewNowPlaying(topicBase string, coverSize int, logger *zap.Logger) *NowPlaying {
	if logger == nil {
		logger = zap.NewNop()
	}
	np := &NowPlaying{
		topicBase: topicBase,
		coverSize: coverSize,
		now:       time.Now,
		errors:    NewErrorHandler("nowplaying", logger),
		logger:    logger,
	}
	np.lastActivity = np.now()
	return np
}

// SetClock replaces the time source; the activity timer restarts.
func (np *NowPlaying) SetClock(now func() time.Time) {
	np.mutex.Lock()
	defer np.mutex.Unlock()
	np.now = now
	np.lastActivity = now()
}

// SetListener registers a playback listener.
func (np *NowPlaying) SetListener(l PlaybackListener) {
	np.mutex.Lock()
	defer np.mutex.Unlock()
	np.listener = l
}

// Subscribe registers the handled subtopics on broker.
func (np *NowPlaying) Subscribe(broker Broker) error {
	for _, sub := range DisplaySubtopics {
		if err := broker.Subscribe(Topic(np.topicBase, sub), np.HandleMessage); err != nil {
			return WrapError("subscribe "+sub, err)
		}
	}
	return nil
}

// HandleMessage applies one MQTT message to the state.
func (np *NowPlaying) HandleMessage(msg Message) {
	subtopic, ok := Subtopic(np.topicBase, msg.Topic)
	if !ok {
		return
	}

	if subtopic == SubtopicCover {
		np.handleCover(msg.Payload)
		return
	}

	text := decodeText(msg.Payload)
	np.logger.Debug("metadata", zap.String("topic", msg.Topic), zap.String("payload", truncate(text, 50)))

	np.mutex.Lock()
	defer np.mutex.Unlock()

	switch subtopic {
	case SubtopicTitle:
		np.title = valueOrEmpty(text)
		np.titleChangedLocked()
	case SubtopicArtist:
		np.artist = valueOrEmpty(text)
		np.lastActivity = np.now()
		np.artistChangedLocked()
	case SubtopicActiveStart:
		np.active = true
	case SubtopicActiveEnd:
		np.active = false
		np.title = ""
		np.artist = ""
		np.endTrackLocked()
	case SubtopicPlayStart, SubtopicPlayResume:
		np.lastActivity = np.now()
	case SubtopicPlayEnd:
		// song ended; the session may still be active
		np.title = ""
		np.artist = ""
		np.endTrackLocked()
	default:
		return
	}
	np.revision++
}

func (np *NowPlaying) handleCover(payload []byte) {
	if len(payload) == 0 || string(payload) == EmptyPayload {
		np.mutex.Lock()
		np.cover = nil
		np.revision++
		np.mutex.Unlock()
		return
	}

	cover, err := np.decodeCover(payload)
	if err != nil {
		np.errors.HandleCoverError(Topic(np.topicBase, SubtopicCover), err)
		return
	}

	np.logger.Info("cover received", zap.Int("bytes", len(payload)), zap.Int("size", np.coverSize))
	np.mutex.Lock()
	np.cover = cover
	np.revision++
	np.mutex.Unlock()
}

// decodeCover accepts encoded images from shairport-sync directly and packed
// bitmaps from the cover translator.
func (np *NowPlaying) decodeCover(payload []byte) (*image.Gray, error) {
	if isEncodedImage(payload) {
		cover, err := ConvertCover(payload, np.coverSize)
		if err == nil || len(payload) != XBMSize(np.coverSize, np.coverSize) {
			return cover, err
		}
	}
	if len(payload) == XBMSize(np.coverSize, np.coverSize) {
		return UnpackXBM(payload, np.coverSize, np.coverSize)
	}
	return ConvertCover(payload, np.coverSize)
}

// titleChangedLocked starts a track on a new title. shairport-sync sends
// artist and title separately and in either order, so the artist of the new
// track is only known here when it arrived first. Caller holds the lock.
func (np *NowPlaying) titleChangedLocked() {
	if np.playing && np.title == np.playingTitle {
		return
	}
	at := np.now()
	if np.playing && np.listener != nil {
		np.listener.TrackEnded(at)
	}
	np.playing = false
	np.playingTitle = ""
	if np.title == "" {
		return
	}

	if np.listener != nil {
		np.listener.TrackStarted(np.artist, np.title, at)
	}
	np.playing = true
	np.playingTitle = np.title
	np.awaitingArtist = !np.artistFresh
	np.artistFresh = false
}

// artistChangedLocked attaches an artist that followed its title to the open
// track, or holds it for the next title. Caller holds the lock.
func (np *NowPlaying) artistChangedLocked() {
	if np.playing && np.awaitingArtist {
		np.awaitingArtist = false
		if np.listener != nil {
			np.listener.TrackArtist(np.artist)
		}
		return
	}
	np.artistFresh = true
}

func (np *NowPlaying) endTrackLocked() {
	if np.playing && np.listener != nil {
		np.listener.TrackEnded(np.now())
	}
	np.playing = false
	np.playingTitle = ""
	np.artistFresh = false
	np.awaitingArtist = false
}

// Snapshot returns a copy of the current state.
func (np *NowPlaying) Snapshot() Snapshot {
	np.mutex.RLock()
	defer np.mutex.RUnlock()
	return Snapshot{
		Title:        np.title,
		Artist:       np.artist,
		Cover:        np.cover,
		Active:       np.active,
		LastActivity: np.lastActivity,
		Revision:     np.revision,
	}
}

// DisplayTitle returns the formatted title, see Snapshot.DisplayTitle.
func (np *NowPlaying) DisplayTitle() string {
	return np.Snapshot().DisplayTitle()
}

// IsActive reports whether an AirPlay session is active.
func (np *NowPlaying) IsActive() bool {
	np.mutex.RLock()
	defer np.mutex.RUnlock()
	return np.active
}

// IsTimedOut reports whether there was no playback activity for longer than timeout.
func (np *NowPlaying) IsTimedOut(timeout time.Duration) bool {
	np.mutex.RLock()
	defer np.mutex.RUnlock()
	return np.now().Sub(np.lastActivity) > timeout
}

// ResetActivity restarts the inactivity timer.
func (np *NowPlaying) ResetActivity() {
	np.mutex.Lock()
	defer np.mutex.Unlock()
	np.lastActivity = np.now()
}

// decodeText decodes payload as UTF-8, dropping invalid bytes, and trims it.
func decodeText(payload []byte) string {
	if utf8.Valid(payload) {
		return strings.TrimSpace(string(payload))
	}
	var b strings.Builder
	for len(payload) > 0 {
		r, size := utf8.DecodeRune(payload)
		if r != utf8.RuneError || size > 1 {
			b.WriteRune(r)
		}
		payload = payload[size:]
	}
	return strings.TrimSpace(b.String())
}

func valueOrEmpty(text string) string {
	if text == EmptyPayload {
		return ""
	}
	return text
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
