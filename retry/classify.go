package retry

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
)

// Class is the retry-relevant category of a failure.
type Class string

const (
	ClassRateLimited         Class = "RATE_LIMITED"
	ClassResourceDisabled    Class = "RESOURCE_DISABLED"
	ClassResourceNotFound    Class = "RESOURCE_NOT_FOUND"
	ClassResourceUnavailable Class = "RESOURCE_UNAVAILABLE"
	ClassTransientParse      Class = "TRANSIENT_PARSE_ERROR"
	ClassUnknown             Class = "UNKNOWN"
)

// Terminal reports whether failures of this class must not be retried.
func (c Class) Terminal() bool {
	switch c {
	case ClassResourceDisabled, ClassResourceNotFound, ClassResourceUnavailable:
		return true
	}
	return false
}

// Rule maps failure signals to a class. Patterns are matched
// case-insensitively against the error text; StatusCodes against errors
// that expose an HTTP status.
type Rule struct {
	Class       Class
	Patterns    []string
	StatusCodes []int
}

// DefaultRules covers the messages produced by caption, LLM and
// speech-to-text hosts. Order matters: the first matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{
			Class:       ClassRateLimited,
			Patterns:    []string{"too many requests", "rate limit", "rate-limit", "quota", "resource_exhausted"},
			StatusCodes: []int{429},
		},
		{
			Class:    ClassResourceDisabled,
			Patterns: []string{"subtitles are disabled", "transcripts disabled", "transcriptsdisabled", "captions disabled"},
		},
		{
			Class:       ClassResourceUnavailable,
			Patterns:    []string{"video unavailable", "videounavailable", "private video", "unplayable", "login_required"},
			StatusCodes: []int{410},
		},
		{
			Class:       ClassResourceNotFound,
			Patterns:    []string{"no transcripts were found", "no transcript found", "notranscriptfound", "could not retrieve a transcript"},
			StatusCodes: []int{404},
		},
		{
			Class:    ClassTransientParse,
			Patterns: []string{"no element found", "xml syntax error", "unexpected eof", "invalid character", "decode response", "parse"},
		},
	}
}

type statusCoder interface {
	HTTPStatus() int
}

// Classifier walks a rule table. Failures no rule matches are ClassUnknown.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	normalized := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		patterns := make([]string, 0, len(rule.Patterns))
		for _, p := range rule.Patterns {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				patterns = append(patterns, p)
			}
		}
		normalized = append(normalized, Rule{
			Class:       rule.Class,
			Patterns:    patterns,
			StatusCodes: append([]int(nil), rule.StatusCodes...),
		})
	}
	return &Classifier{rules: normalized}
}

// With returns a classifier that checks extra rules before the current ones.
func (c *Classifier) With(rules ...Rule) *Classifier {
	return NewClassifier(append(append([]Rule(nil), rules...), c.rules...)...)
}

func (c *Classifier) Classify(err error) Class {
	if err == nil {
		return ""
	}

	status := 0
	var sc statusCoder
	if stderrors.As(err, &sc) {
		status = sc.HTTPStatus()
	}
	text := strings.ToLower(err.Error())

	for _, rule := range c.rules {
		if status != 0 {
			for _, code := range rule.StatusCodes {
				if code == status {
					return rule.Class
				}
			}
		}
		for _, p := range rule.Patterns {
			if strings.Contains(text, p) {
				return rule.Class
			}
		}
	}
	return ClassUnknown
}

// isTimeout reports per-call timeouts, which are retried like unknown failures.
func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
