package stages

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"craefto/internal/services"
	"craefto/internal/stage"
	"craefto/internal/textutil"
)

// ErrValidation marks validate stage failures.
var ErrValidation = services.ErrValidation

const (
	maxTopicRunes = 200
	minKeywordLen = 4
)

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "from": {}, "into": {}, "that": {}, "their": {},
	"this": {}, "what": {}, "when": {}, "with": {}, "your": {}, "does": {},
}

// Topic is the validated form of a job topic.
type Topic struct {
	Text     string   `json:"text"`
	Display  string   `json:"display"`
	Slug     string   `json:"slug"`
	Keywords []string `json:"keywords"`
}

func validate(_ context.Context, env stage.Env) (any, error) {
	job := env.Job()
	text := normalizeTopic(job.Topic)
	if text == "" {
		return nil, services.Wrap(ErrValidation, "validate", "check topic", "Topic is required", nil)
	}
	if n := utf8.RuneCountInString(text); n > maxTopicRunes {
		return nil, services.Wrap(ErrValidation, "validate", "check topic",
			fmt.Sprintf("Topic is %d characters; the limit is %d", n, maxTopicRunes), nil)
	}
	if !job.Kind.Valid() {
		return nil, services.Wrap(ErrValidation, "validate", "check kind",
			fmt.Sprintf("Unsupported content kind %q (expected blog, social, or email)", job.Kind), nil)
	}
	topic := Topic{
		Text:     text,
		Display:  cases.Title(language.English, cases.NoLower).String(text),
		Slug:     textutil.Slug(text),
		Keywords: keywords(text),
	}
	env.Log().Debug("", "Topic accepted", topic)
	return topic, nil
}

// normalizeTopic applies NFC and collapses whitespace and control characters.
func normalizeTopic(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, norm.NFC.String(raw))
	return strings.Join(strings.Fields(cleaned), " ")
}

func keywords(text string) []string {
	lower := cases.Lower(language.English).String(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < minKeywordLen {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}

// topicFor returns the validated topic of the run, falling back to the raw
// job topic when validate produced no output.
func topicFor(env stage.Env) Topic {
	if out, ok := env.Output("validate"); ok {
		if topic, ok := out.(Topic); ok {
			return topic
		}
	}
	text := normalizeTopic(env.Job().Topic)
	return Topic{Text: text, Display: text, Slug: textutil.Slug(text), Keywords: keywords(text)}
}
