package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/Denni-Wild/Subs-bot-sub000/config"
	"github.com/Denni-Wild/Subs-bot-sub000/errors"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youTubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

type Validator struct {
	config *config.Config
}

func NewValidator(cfg *config.Config) *Validator {
	return &Validator{config: cfg}
}

// ValidateURL performs URL validation
func (v *Validator) ValidateURL(urlStr string) error {
	const op = "Validator.ValidateURL"

	if urlStr == "" {
		return errors.InvalidInput(op, nil, "URL is required")
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return errors.InvalidInput(op, err, "Invalid URL format")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.InvalidInput(op, nil, "URL must use HTTP or HTTPS")
	}

	if !youTubeHosts[strings.ToLower(parsedURL.Hostname())] {
		return errors.InvalidInput(op, nil, "Only YouTube URLs are supported")
	}

	return nil
}

// ExtractVideoID accepts a bare video ID or any common YouTube link form
// (watch, youtu.be, shorts, embed, live) and returns the ID.
func (v *Validator) ExtractVideoID(input string) (string, error) {
	const op = "Validator.ExtractVideoID"

	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.InvalidInput(op, nil, "A video link or ID is required")
	}
	if videoIDPattern.MatchString(input) {
		return input, nil
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	if err := v.ValidateURL(input); err != nil {
		return "", err
	}

	u, _ := url.Parse(input)
	var id string
	host := strings.ToLower(u.Hostname())
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case strings.HasSuffix(host, "youtu.be"):
		id = segments[0]
	case u.Query().Get("v") != "":
		id = u.Query().Get("v")
	case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
		id = segments[1]
	}

	if !videoIDPattern.MatchString(id) {
		return "", errors.InvalidInput(op, nil, "Could not find a video ID in the link")
	}
	return id, nil
}

// ValidateLanguage checks a BCP 47 language code. Empty is allowed.
func (v *Validator) ValidateLanguage(code string) error {
	const op = "Validator.ValidateLanguage"

	if code == "" {
		return nil
	}
	if _, err := language.Parse(code); err != nil {
		return errors.InvalidInput(op, err, fmt.Sprintf("Unknown language code %q", code))
	}
	return nil
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	AllowedMethods   []string
	RequireJSON      bool
	RequireMultipart bool
}

// ValidateRequest validates HTTP requests
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	if len(opts.AllowedMethods) > 0 {
		methodAllowed := false
		for _, method := range opts.AllowedMethods {
			if r.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return errors.InvalidInput(op, nil, fmt.Sprintf("Method %s not allowed", r.Method))
		}
	}

	contentType := r.Header.Get("Content-Type")
	if opts.RequireJSON && !strings.Contains(contentType, "application/json") {
		return errors.InvalidInput(op, nil, "Content-Type must be application/json")
	}
	if opts.RequireMultipart && !strings.HasPrefix(contentType, "multipart/form-data") {
		return errors.InvalidInput(op, nil, "Content-Type must be multipart/form-data")
	}

	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.InvalidInput(op, nil, "Request body too large")
	}

	return nil
}
