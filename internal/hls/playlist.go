package hls

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"trafficcam-capture/pkg/models"
)

const (
	tagHeader          = "#EXTM3U"
	tagDuration        = "#EXTINF:"
	tagProgramDateTime = "#EXT-X-PROGRAM-DATE-TIME:"
	tagStreamInf       = "#EXT-X-STREAM-INF"
)

var mediaExtensions = map[string]bool{
	".ts":  true,
	".aac": true,
	".m4s": true,
	".mp4": true,
}

var programDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
}

// HasHeader reports whether content starts like an M3U playlist. Leading whitespace
// and a UTF-8 byte order mark are ignored.
func HasHeader(content string) bool {
	content = strings.TrimLeft(content, " \t\r\n")
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.TrimLeft(content, " \t\r\n")
	return strings.HasPrefix(content, tagHeader)
}

// ParsePlaylist extracts the media segments of a playlist in a single forward pass.
//
// #EXTINF and #EXT-X-PROGRAM-DATE-TIME set pending values that the next segment line
// consumes; a directive that is overwritten before any segment line is discarded.
// Segment URLs are resolved against playlistURL and carry exactly one token: the
// segment's own if present, otherwise token.
func ParsePlaylist(content, playlistURL, token string) ([]models.Segment, error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad playlist url: %v", ErrManifestMalformed, err)
	}

	var (
		segments        []models.Segment
		pendingDuration float64
		pendingTime     *time.Time
	)

	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, tagDuration):
			pendingDuration = parseDuration(line[len(tagDuration):])
		case strings.HasPrefix(line, tagProgramDateTime):
			pendingTime = parseProgramDateTime(line[len(tagProgramDateTime):])
		case strings.HasPrefix(line, "#"):
			continue
		case isSegmentLine(line):
			seg, err := resolveSegment(base, line, token)
			if err != nil {
				slog.Warn("skipping unparseable segment line", "line", line, "error", err)
				continue
			}
			seg.Index = len(segments)
			seg.Duration = pendingDuration
			seg.ProgramDateTime = pendingTime
			segments = append(segments, seg)

			pendingDuration = 0
			pendingTime = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
	}
	return segments, nil
}

// FirstVariant returns the absolute URL of the first variant stream listed in a
// master playlist, or "" when there is none.
func FirstVariant(content, playlistURL string) string {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return ""
	}
	expectURI := false
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, tagStreamInf) {
			expectURI = true
			continue
		}
		if expectURI && line != "" && !strings.HasPrefix(line, "#") {
			ref, err := url.Parse(line)
			if err != nil {
				return ""
			}
			return base.ResolveReference(ref).String()
		}
	}
	return ""
}

func parseDuration(v string) float64 {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func parseProgramDateTime(v string) *time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range programDateTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func splitQuery(line string) (string, string) {
	if i := strings.IndexByte(line, '?'); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

func isSegmentLine(line string) bool {
	p, query := splitQuery(line)
	ext := strings.ToLower(path.Ext(p))
	if ext == ".m3u8" {
		return false
	}
	if mediaExtensions[ext] {
		return true
	}
	return strings.Contains(query, "token=")
}

func resolveSegment(base *url.URL, line, token string) (models.Segment, error) {
	p, query := splitQuery(line)
	ref, err := url.Parse(p)
	if err != nil {
		return models.Segment{}, err
	}
	abs := base.ResolveReference(ref)
	abs.RawQuery = NormalizeTokenQuery(query, token)
	abs.Fragment = ""

	return models.Segment{
		URL:      abs.String(),
		Filename: path.Base(ref.Path),
	}, nil
}

// NormalizeTokenQuery rewrites a raw query so it carries exactly one token parameter.
// Stray '?' separators are treated as '&'. The first non-empty token in raw wins;
// fallback is used when raw has none. Other parameters keep their order and encoding.
func NormalizeTokenQuery(raw, fallback string) string {
	raw = strings.ReplaceAll(raw, "?", "&")

	var (
		params []string
		token  string
	)
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if key == "token" {
			if token == "" && value != "" {
				token = value
			}
			continue
		}
		params = append(params, part)
	}

	if token == "" && fallback != "" {
		token = url.QueryEscape(fallback)
	}
	if token != "" {
		params = append(params, "token="+token)
	}
	return strings.Join(params, "&")
}
