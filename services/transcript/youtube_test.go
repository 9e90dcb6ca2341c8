package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
)

const sampleTimedText = `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0.5" dur="2.1">Hello &amp;amp; welcome</text>
<text start="2.6" dur="1.9">to the
show</text>
<text start="4.5" dur="0.5">   </text>
<text start="65.25" dur="3">it&amp;#39;s over</text>
</transcript>`

func newYouTubeServer(t *testing.T, player any, playerStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		var req playerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode player request: %v", err)
		}
		if req.Context.Client.ClientName != "ANDROID" {
			t.Errorf("unexpected client %q", req.Context.Client.ClientName)
		}
		if playerStatus != http.StatusOK {
			w.WriteHeader(playerStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(player)
	})
	mux.HandleFunc("GET /api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fmt") != "" {
			t.Errorf("expected fmt parameter to be dropped, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("lang") == "de" {
			return
		}
		_, _ = w.Write([]byte(sampleTimedText))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func playerWithTracks(baseURL string) map[string]any {
	return map[string]any{
		"playabilityStatus": map[string]any{"status": "OK"},
		"captions": map[string]any{
			"playerCaptionsTracklistRenderer": map[string]any{
				"captionTracks": []any{
					map[string]any{
						"baseUrl":      baseURL + "/api/timedtext?v=abc&lang=en&fmt=srv3",
						"languageCode": "en",
						"name":         map[string]any{"simpleText": "English"},
					},
					map[string]any{
						"baseUrl":      baseURL + "/api/timedtext?v=abc&lang=ru&kind=asr",
						"languageCode": "ru",
						"kind":         "asr",
						"name":         map[string]any{"runs": []any{map[string]any{"text": "Russian (auto-generated)"}}},
					},
					map[string]any{
						"baseUrl":      baseURL + "/api/timedtext?v=abc&lang=fr",
						"languageCode": "fr",
					},
				},
			},
		},
	}
}

func TestYouTubeListTracks(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(playerWithTracks(server.URL))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	tracks, err := NewYouTube(server.URL).ListTracks(context.Background(), "abc")
	if err != nil {
		t.Fatalf("ListTracks returned error: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(tracks))
	}
	if tracks[0].LanguageCode != "en" || tracks[0].LanguageName != "English" || tracks[0].Generated {
		t.Errorf("unexpected first track %+v", tracks[0])
	}
	if !tracks[1].Generated || tracks[1].LanguageName != "Russian (auto-generated)" {
		t.Errorf("unexpected second track %+v", tracks[1])
	}
	if tracks[2].LanguageName != "French" {
		t.Errorf("expected display name fallback, got %q", tracks[2].LanguageName)
	}
}

func TestYouTubeListTracksErrors(t *testing.T) {
	classifier := retry.NewClassifier()

	tests := []struct {
		name   string
		player any
		status int
		want   retry.Class
	}{
		{
			name:   "unplayable",
			player: map[string]any{"playabilityStatus": map[string]any{"status": "ERROR", "reason": "This video is private"}},
			status: http.StatusOK,
			want:   retry.ClassResourceUnavailable,
		},
		{
			name: "private",
			player: map[string]any{"playabilityStatus": map[string]any{
				"status": "LOGIN_REQUIRED", "reason": "This video is private",
			}},
			status: http.StatusOK,
			want:   retry.ClassResourceUnavailable,
		},
		{
			name: "bot check",
			player: map[string]any{"playabilityStatus": map[string]any{
				"status": "LOGIN_REQUIRED", "reason": "Sign in to confirm you're not a bot",
			}},
			status: http.StatusOK,
			want:   retry.ClassRateLimited,
		},
		{
			name:   "no captions",
			player: map[string]any{"playabilityStatus": map[string]any{"status": "OK"}},
			status: http.StatusOK,
			want:   retry.ClassResourceDisabled,
		},
		{
			name: "empty track list",
			player: map[string]any{
				"playabilityStatus": map[string]any{"status": "OK"},
				"captions": map[string]any{
					"playerCaptionsTracklistRenderer": map[string]any{"captionTracks": []any{}},
				},
			},
			status: http.StatusOK,
			want:   retry.ClassResourceNotFound,
		},
		{
			name:   "throttled",
			status: http.StatusTooManyRequests,
			want:   retry.ClassRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newYouTubeServer(t, tt.player, tt.status)
			_, err := NewYouTube(server.URL).ListTracks(context.Background(), "abc")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := classifier.Classify(err); got != tt.want {
				t.Errorf("error %q classified as %s, want %s", err, got, tt.want)
			}
		})
	}
}

func TestYouTubeFetchTrack(t *testing.T) {
	server := newYouTubeServer(t, nil, http.StatusOK)
	yt := NewYouTube(server.URL)

	lines, err := yt.FetchTrack(context.Background(), "abc", "en")
	if err != nil {
		t.Fatalf("FetchTrack returned error: %v", err)
	}
	want := []models.TranscriptLine{
		{Start: 500 * time.Millisecond, Duration: 2100 * time.Millisecond, Text: "Hello & welcome"},
		{Start: 2600 * time.Millisecond, Duration: 1900 * time.Millisecond, Text: "to the show"},
		{Start: 65250 * time.Millisecond, Duration: 3 * time.Second, Text: "it's over"},
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %+v", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], want[i])
		}
	}

	_, err = yt.FetchTrack(context.Background(), "abc", "de")
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "no transcript found") {
		t.Errorf("expected not found error for empty body, got %v", err)
	}
}

func TestYouTubeFetchTrackByHandle(t *testing.T) {
	server := newYouTubeServer(t, nil, http.StatusOK)
	yt := NewYouTube(server.URL)

	track := models.Track{LanguageCode: "en", Handle: server.URL + "/api/timedtext?v=abc&lang=en&fmt=srv3"}
	lines, err := yt.FetchTrackByHandle(context.Background(), track)
	if err != nil {
		t.Fatalf("FetchTrackByHandle returned error: %v", err)
	}
	if len(lines) != 3 {
		t.Errorf("expected 3 lines, got %d", len(lines))
	}
}

func TestParseTimedTextMalformed(t *testing.T) {
	_, err := parseTimedText([]byte(`<transcript><text start="1">unterminated`))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if class := retry.NewClassifier().Classify(err); class != retry.ClassTransientParse {
		t.Errorf("expected transient parse class, got %s (%v)", class, err)
	}
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"en":    "English",
		"ru":    "Russian",
		"xx-!!": "xx-!!",
	}
	for code, want := range tests {
		if got := LanguageName(code); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", code, got, want)
		}
	}
}

func ExampleResolveTrack() {
	tracks := []models.Track{
		{LanguageCode: "de"},
		{LanguageCode: "en", Generated: true},
		{LanguageCode: "en"},
	}
	track, fallback := ResolveTrack(tracks, []string{"en-US"}, []string{"ru"})
	fmt.Println(track.LanguageCode, track.Generated, fallback)
	// Output: en false false
}
