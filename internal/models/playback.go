package models

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

type PlaybackType int

const (
	PlaybackDisabled      PlaybackType = 0
	PlaybackAudioOnly     PlaybackType = 1
	PlaybackAudioAndVideo PlaybackType = 2
)

func (t PlaybackType) Valid() bool {
	switch t {
	case PlaybackDisabled, PlaybackAudioOnly, PlaybackAudioAndVideo:
		return true
	}
	return false
}

func (t PlaybackType) String() string {
	switch t {
	case PlaybackDisabled:
		return "disabled"
	case PlaybackAudioOnly:
		return "audio"
	case PlaybackAudioAndVideo:
		return "audio+video"
	default:
		return fmt.Sprintf("PlaybackType(%d)", int(t))
	}
}

// ShouldPlayVideo reports whether a display target is needed for this type.
func (t PlaybackType) ShouldPlayVideo() bool {
	return t == PlaybackAudioAndVideo
}

const (
	SourceTypeYouTube    = "youtube"
	SourceTypeSoundCloud = "soundcloud"
)

// SourceDescriptor identifies what to play. Only PlaybackType may change
// after an action has been created for it.
type SourceDescriptor struct {
	SourceType   string        `json:"sourceType"`
	SourceID     string        `json:"sourceID"`
	Seek         time.Duration `json:"seek"`
	PlaybackType PlaybackType  `json:"playbackType"`
}

func (d SourceDescriptor) Validate() error {
	if d.SourceType == "" {
		return NewError(KindMissingParameter, `Missing parameter "sourceType"`)
	}
	if d.SourceID == "" {
		return NewError(KindMissingParameter, `Missing parameter "sourceID"`)
	}
	if d.Seek < 0 {
		return NewError(KindInvalidParameter, `Parameter "seek" must not be negative`)
	}
	if !d.PlaybackType.Valid() {
		return NewError(KindInvalidParameter, fmt.Sprintf(`Unknown playbackType %d`, int(d.PlaybackType)))
	}
	return nil
}

// SourceName returns the resolution service name for the source type,
// or "" when the type is not supported.
func (d SourceDescriptor) SourceName() string {
	switch d.SourceType {
	case SourceTypeYouTube:
		return "YouTube"
	case SourceTypeSoundCloud:
		return "SoundCloud"
	}
	return ""
}

// SourceURL returns the canonical page URL for the source, or "" when the
// type is not supported.
func (d SourceDescriptor) SourceURL() string {
	switch d.SourceType {
	case SourceTypeYouTube:
		return "https://youtube.com/watch?v=" + url.QueryEscape(d.SourceID)
	case SourceTypeSoundCloud:
		return "https://api.soundcloud.com/tracks/" + url.PathEscape(d.SourceID)
	}
	return ""
}

// Key identifies the descriptor independent of seek and playback type.
func (d SourceDescriptor) Key() string {
	return d.SourceType + ":" + d.SourceID
}

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// StreamCandidate is one playable URL reported by the resolver. Bitrate is
// in kbps and only meaningful for audio; Resolution is a label like "360p".
type StreamCandidate struct {
	Kind       MediaKind `json:"kind"`
	URL        string    `json:"url"`
	Bitrate    int       `json:"bitrate,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	VideoOnly  bool      `json:"videoOnly,omitempty"`
	Format     string    `json:"format,omitempty"`
}

type ContentType string

const (
	ContentTypeDASH        ContentType = "dash"
	ContentTypeHLS         ContentType = "hls"
	ContentTypeSmooth      ContentType = "smoothstreaming"
	ContentTypeProgressive ContentType = "progressive"
)

// InferContentType guesses the container protocol from the URL path.
func InferContentType(rawURL string) ContentType {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	p = strings.ToLower(p)
	switch {
	case path.Ext(p) == ".mpd":
		return ContentTypeDASH
	case path.Ext(p) == ".m3u8":
		return ContentTypeHLS
	case strings.Contains(p, ".ism"):
		return ContentTypeSmooth
	default:
		return ContentTypeProgressive
	}
}

type MediaSource struct {
	Candidate   StreamCandidate `json:"candidate"`
	ContentType ContentType     `json:"contentType"`
}

func NewMediaSource(c StreamCandidate) *MediaSource {
	return &MediaSource{Candidate: c, ContentType: InferContentType(c.URL)}
}

// MediaPlan is the combination of sources handed to the engine. A plan with
// both sources is played as one synchronized merged source.
type MediaPlan struct {
	Video *MediaSource `json:"video,omitempty"`
	Audio *MediaSource `json:"audio,omitempty"`
}

func (p *MediaPlan) Merged() bool {
	return p != nil && p.Video != nil && p.Audio != nil
}

func (p *MediaPlan) HasVideo() bool {
	return p != nil && p.Video != nil
}

// SessionMetadata is returned on successful playback. Both fields are set
// only when a video plan was rendered to a display target.
type SessionMetadata struct {
	DisplayHandle *int64   `json:"displayHandle,omitempty"`
	AspectRatio   *float64 `json:"aspectRatio,omitempty"`
}

type PlaybackOutcome string

const (
	OutcomeSuccess PlaybackOutcome = "success"
	OutcomeFailure PlaybackOutcome = "failure"
)

type PlaybackRecord struct {
	ID           int64           `json:"id"`
	ActionID     string          `json:"action_id"`
	SourceType   string          `json:"source_type"`
	SourceID     string          `json:"source_id"`
	PlaybackType PlaybackType    `json:"playback_type"`
	Outcome      PlaybackOutcome `json:"outcome"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
	Message      string          `json:"message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      time.Time       `json:"ended_at"`
}
