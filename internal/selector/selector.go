// Package selector picks the streams to play from a resolver's candidates.
package selector

import "uwave/internal/models"

// SelectAudio returns the audio candidate with the strictly greatest bitrate.
// The first candidate wins ties. It returns nil when there is no audio.
func SelectAudio(cands []models.StreamCandidate) *models.StreamCandidate {
	var best *models.StreamCandidate
	for i := range cands {
		c := &cands[i]
		if c.Kind != models.MediaKindAudio {
			continue
		}
		if best == nil || c.Bitrate > best.Bitrate {
			best = c
		}
	}
	return best
}

// SelectVideo returns the first muxed video candidate, or the first video
// candidate when every one is video-only. A candidate whose resolution label
// equals preferred overrides that default.
func SelectVideo(cands []models.StreamCandidate, preferred string) *models.StreamCandidate {
	var first, muxed *models.StreamCandidate
	for i := range cands {
		c := &cands[i]
		if c.Kind != models.MediaKindVideo {
			continue
		}
		if preferred != "" && c.Resolution == preferred {
			return c
		}
		if first == nil {
			first = c
		}
		if muxed == nil && !c.VideoOnly {
			muxed = c
		}
	}
	if muxed != nil {
		return muxed
	}
	return first
}

// BuildPlan assembles the media plan for the playback type. It returns nil
// when there is nothing playable.
func BuildPlan(cands []models.StreamCandidate, t models.PlaybackType, preferred string) *models.MediaPlan {
	audio := SelectAudio(cands)
	video := SelectVideo(cands, preferred)

	if t == models.PlaybackAudioOnly || video == nil || video.VideoOnly {
		if audio != nil {
			return &models.MediaPlan{Audio: models.NewMediaSource(*audio)}
		}
		if video != nil {
			return &models.MediaPlan{Video: models.NewMediaSource(*video)}
		}
		return nil
	}

	plan := &models.MediaPlan{Video: models.NewMediaSource(*video)}
	if t == models.PlaybackAudioAndVideo && audio != nil {
		plan.Audio = models.NewMediaSource(*audio)
	}
	return plan
}
