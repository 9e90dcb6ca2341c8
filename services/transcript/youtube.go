package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

const (
	DefaultYouTubeBaseURL = "https://www.youtube.com"

	androidClientVersion = "20.10.38"
	androidUserAgent     = "com.google.android.youtube/" + androidClientVersion + " (Linux; U; Android 11) gzip"

	maxTimedTextSize = 4 << 20
)

// StatusError is a non-2xx answer from YouTube.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("youtube: http %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// YouTube lists caption tracks through the Innertube ANDROID player
// endpoint and downloads them as timedtext XML.
type YouTube struct {
	baseURL    string
	httpClient *http.Client
}

type YouTubeOption func(*YouTube)

func WithHTTPClient(client *http.Client) YouTubeOption {
	return func(y *YouTube) {
		if client != nil {
			y.httpClient = client
		}
	}
}

func NewYouTube(baseURL string, opts ...YouTubeOption) *YouTube {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultYouTubeBaseURL
	}
	y := &YouTube{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

type playerRequest struct {
	VideoID        string        `json:"videoId"`
	Context        playerContext `json:"context"`
	RacyCheckOk    bool          `json:"racyCheckOk"`
	ContentCheckOk bool          `json:"contentCheckOk"`
}

type playerContext struct {
	Client playerClient `json:"client"`
}

type playerClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
}

func (t captionTrack) displayName() string {
	if t.Name.SimpleText != "" {
		return t.Name.SimpleText
	}
	var sb strings.Builder
	for _, run := range t.Name.Runs {
		sb.WriteString(run.Text)
	}
	return sb.String()
}

// ListTracks returns the caption tracks of a video in the order YouTube
// reports them.
func (y *YouTube) ListTracks(ctx context.Context, videoID string) ([]models.Track, error) {
	body, err := json.Marshal(playerRequest{
		VideoID: videoID,
		Context: playerContext{Client: playerClient{
			ClientName:        "ANDROID",
			ClientVersion:     androidClientVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, fmt.Errorf("youtube: encode player request: %w", err)
	}

	endpoint := y.baseURL + "/youtubei/v1/player?prettyPrint=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("youtube: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUserAgent)
	req.Header.Set("X-Youtube-Client-Name", "3")
	req.Header.Set("X-Youtube-Client-Version", androidClientVersion)

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: player request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	var player playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&player); err != nil {
		return nil, fmt.Errorf("youtube: decode player response: %w", err)
	}

	if ps := player.PlayabilityStatus; ps != nil && ps.Status != "" && ps.Status != "OK" {
		reason := ps.Reason
		if reason == "" {
			reason = ps.Status
		}
		if isBotCheck(ps.Status, reason) {
			return nil, fmt.Errorf("Too many requests: %s (%s)", reason, videoID)
		}
		return nil, fmt.Errorf("Video unavailable: %s (%s)", reason, videoID)
	}
	if player.Captions == nil {
		return nil, fmt.Errorf("Subtitles are disabled for this video (%s)", videoID)
	}

	raw := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(raw) == 0 {
		return nil, fmt.Errorf("No transcripts were found for this video (%s)", videoID)
	}

	tracks := make([]models.Track, 0, len(raw))
	for _, t := range raw {
		name := t.displayName()
		if name == "" {
			name = LanguageName(t.LanguageCode)
		}
		tracks = append(tracks, models.Track{
			LanguageCode: t.LanguageCode,
			LanguageName: name,
			Handle:       t.BaseURL,
			Generated:    t.Kind == "asr",
		})
	}
	return tracks, nil
}

// FetchTrack downloads a track directly by language code.
func (y *YouTube) FetchTrack(ctx context.Context, videoID, languageCode string) ([]models.TranscriptLine, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", languageCode)
	lines, err := y.fetchTimedText(ctx, y.baseURL+"/api/timedtext?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("No transcript found for language %s (%s)", languageCode, videoID)
	}
	return lines, nil
}

// FetchTrackByHandle downloads a track from the locator returned by
// ListTracks.
func (y *YouTube) FetchTrackByHandle(ctx context.Context, track models.Track) ([]models.TranscriptLine, error) {
	if track.Handle == "" {
		return nil, fmt.Errorf("No transcript found: track %s has no handle", track.LanguageCode)
	}
	u, err := url.Parse(track.Handle)
	if err != nil {
		return nil, fmt.Errorf("youtube: parse track url: %w", err)
	}
	// The default format is the plain <transcript><text> document.
	q := u.Query()
	q.Del("fmt")
	u.RawQuery = q.Encode()

	lines, err := y.fetchTimedText(ctx, u.String())
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("No transcript found: track %s is empty", track.LanguageCode)
	}
	return lines, nil
}

func (y *YouTube) fetchTimedText(ctx context.Context, endpoint string) ([]models.TranscriptLine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("youtube: new request: %w", err)
	}
	req.Header.Set("User-Agent", androidUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: timedtext request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedTextSize))
	if err != nil {
		return nil, fmt.Errorf("youtube: read timedtext: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	return parseTimedText(body)
}

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func parseTimedText(body []byte) ([]models.TranscriptLine, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("youtube: parse timedtext: %w", err)
	}

	lines := make([]models.TranscriptLine, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		text := strings.Join(strings.Fields(html.UnescapeString(l.Text)), " ")
		if text == "" {
			continue
		}
		lines = append(lines, models.TranscriptLine{
			Start:    parseSeconds(l.Start),
			Duration: parseSeconds(l.Dur),
			Text:     text,
		})
	}
	return lines, nil
}

// isBotCheck reports the sign-in wall YouTube puts up for clients it
// throttles. Private videos share the LOGIN_REQUIRED status.
func isBotCheck(status, reason string) bool {
	if status != "LOGIN_REQUIRED" {
		return false
	}
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "not a bot") || strings.Contains(reason, "unusual traffic")
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// LanguageName returns the English name of a BCP 47 code, or the code
// itself when it is unknown.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
