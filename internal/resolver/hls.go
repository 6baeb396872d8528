package resolver

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"

	"uwave/internal/mediautil"
	"uwave/internal/models"
)

// expandHLS fetches an HLS manifest and lists its renditions as candidates.
// A media playlist is returned as a single muxed video candidate.
func (r *HTTPResolver) expandHLS(ctx context.Context, manifestURL string) ([]models.StreamCandidate, error) {
	body, err := r.get(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, models.Errorf(models.KindExtractionError, "parsing manifest url: %w", err)
	}

	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, models.Errorf(models.KindExtractionError, "decoding HLS manifest: %w", err)
	}
	if listType == m3u8.MEDIA {
		return []models.StreamCandidate{{
			Kind:   models.MediaKindVideo,
			URL:    manifestURL,
			Format: "hls",
		}}, nil
	}

	master, ok := pl.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, models.NewError(models.KindExtractionError, "unexpected HLS playlist type")
	}
	return variantCandidates(base, master), nil
}

func variantCandidates(base *url.URL, master *m3u8.MasterPlaylist) []models.StreamCandidate {
	var cands []models.StreamCandidate
	seenAudio := make(map[string]bool)

	for _, v := range master.Variants {
		if v == nil || v.Iframe || v.URI == "" {
			continue
		}
		uri := resolveRef(base, v.URI)
		kbps := int(v.Bandwidth / 1000)

		if v.Resolution == "" && isAudioCodecs(v.Codecs) {
			if !seenAudio[uri] {
				seenAudio[uri] = true
				cands = append(cands, models.StreamCandidate{Kind: models.MediaKindAudio, URL: uri, Bitrate: kbps, Format: "hls"})
			}
			continue
		}

		label := ""
		if _, h, ok := mediautil.ParseDimensions(v.Resolution); ok {
			label = mediautil.HeightToResolution(h)
		}
		cands = append(cands, models.StreamCandidate{
			Kind:       models.MediaKindVideo,
			URL:        uri,
			Bitrate:    kbps,
			Resolution: label,
			VideoOnly:  v.Audio != "",
			Format:     "hls",
		})

		for _, alt := range v.Alternatives {
			if alt == nil || alt.Type != "AUDIO" || alt.URI == "" {
				continue
			}
			altURI := resolveRef(base, alt.URI)
			if seenAudio[altURI] {
				continue
			}
			seenAudio[altURI] = true
			cands = append(cands, models.StreamCandidate{Kind: models.MediaKindAudio, URL: altURI, Format: "hls"})
		}
	}
	return cands
}

func isAudioCodecs(codecs string) bool {
	if codecs == "" {
		return false
	}
	for _, c := range strings.Split(codecs, ",") {
		c = strings.TrimSpace(strings.ToLower(c))
		if !strings.HasPrefix(c, "mp4a") && !strings.HasPrefix(c, "opus") && !strings.HasPrefix(c, "ac-3") && !strings.HasPrefix(c, "ec-3") {
			return false
		}
	}
	return true
}

func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
