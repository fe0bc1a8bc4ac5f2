package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"craefto/internal/stage"
	"craefto/internal/textutil"
)

const paceSteps = 4

// pace spreads delay over a few progress updates, returning early with the
// context error when the run is abandoned.
func pace(ctx context.Context, env stage.Env, delay time.Duration) error {
	if delay <= 0 {
		env.SetProgress(100)
		return ctx.Err()
	}
	step := delay / paceSteps
	timer := time.NewTimer(step)
	defer timer.Stop()
	for i := 1; i <= paceSteps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		env.SetProgress(i * 100 / paceSteps)
		if i < paceSteps {
			timer.Reset(step)
		}
	}
	return nil
}

const (
	relatedScanLimit = 50
	relatedThreshold = 0.6
	relatedMax       = 3
)

// Research is the output of the research stage.
type Research struct {
	Keywords []string  `json:"keywords"`
	Angles   []string  `json:"angles"`
	Related  []Related `json:"related,omitempty"`
}

// Related is a saved package whose topic resembles the run's topic.
type Related struct {
	ID    string  `json:"id"`
	Topic string  `json:"topic"`
	Kind  string  `json:"kind"`
	Score float64 `json:"score"`
}

func research(delay time.Duration, library Library) stage.WorkFunc {
	return func(ctx context.Context, env stage.Env) (any, error) {
		topic := topicFor(env)
		if err := pace(ctx, env, delay); err != nil {
			return nil, err
		}
		out := Research{
			Keywords: topic.Keywords,
			Angles: []string{
				fmt.Sprintf("Why %s matters now", topic.Text),
				fmt.Sprintf("Common mistakes with %s", topic.Text),
				fmt.Sprintf("A practical playbook for %s", topic.Text),
			},
			Related: relatedContent(ctx, env, library, topic),
		}
		env.Log().Info("", fmt.Sprintf("Collected %d keywords and %d angles", len(out.Keywords), len(out.Angles)), out)
		return out, nil
	}
}

// relatedContent ranks recently saved packages against topic. Lookup
// failures are reported as warnings and never fail the stage.
func relatedContent(ctx context.Context, env stage.Env, library Library, topic Topic) []Related {
	if library == nil {
		return nil
	}
	pkgs, err := library.RecentContent(ctx, "", relatedScanLimit)
	if err != nil {
		env.Log().Warning("", "Could not check saved content for similar topics: "+err.Error(), nil)
		return nil
	}
	candidates := make([]string, len(pkgs))
	for i, pkg := range pkgs {
		candidates[i] = pkg.Topic + " " + pkg.Title
	}
	matches := textutil.Rank(topic.Text, candidates, relatedThreshold)
	if len(matches) > relatedMax {
		matches = matches[:relatedMax]
	}
	related := make([]Related, 0, len(matches))
	for _, m := range matches {
		pkg := pkgs[m.Index]
		related = append(related, Related{ID: pkg.ID, Topic: pkg.Topic, Kind: pkg.Kind, Score: math.Round(m.Score*100) / 100})
	}
	if len(related) > 0 {
		env.Log().Warning("", fmt.Sprintf("Found %d saved package(s) with a similar topic; closest is %q", len(related), related[0].Topic), related)
	}
	return related
}

// Visual is the output of the visual stage.
type Visual struct {
	HeroImage json.RawMessage `json:"hero_image,omitempty"`
	Prompt    string          `json:"prompt"`
	AltText   string          `json:"alt_text"`
}

func visual(delay time.Duration) stage.WorkFunc {
	return func(ctx context.Context, env stage.Env) (any, error) {
		topic := topicFor(env)
		if err := pace(ctx, env, delay); err != nil {
			return nil, err
		}
		out := Visual{
			Prompt:  fmt.Sprintf("Clean editorial illustration about %s, brand colors, no text", topic.Text),
			AltText: fmt.Sprintf("Illustration for %s", topic.Display),
		}
		if content, ok := contentFor(env); ok {
			out.HeroImage = content.field("hero_image")
		}
		if len(out.HeroImage) == 0 {
			env.Log().Warning("", "Backend returned no hero image; keeping the prompt only", nil)
		}
		return out, nil
	}
}

// Social is the output of the social stage.
type Social struct {
	Snippets json.RawMessage `json:"snippets,omitempty"`
	Twitter  string          `json:"twitter"`
	LinkedIn string          `json:"linkedin"`
}

func social(delay time.Duration) stage.WorkFunc {
	return func(ctx context.Context, env stage.Env) (any, error) {
		topic := topicFor(env)
		if err := pace(ctx, env, delay); err != nil {
			return nil, err
		}
		title := topic.Display
		var snippets json.RawMessage
		if content, ok := contentFor(env); ok {
			title = content.Title
			snippets = content.field("social_snippets")
		}
		out := Social{
			Snippets: snippets,
			Twitter:  truncateRunes(fmt.Sprintf("%s %s", title, hashtags(topic.Keywords)), 280),
			LinkedIn: fmt.Sprintf("New on the blog: %s", title),
		}
		return out, nil
	}
}

// Email is the output of the email stage.
type Email struct {
	Version json.RawMessage `json:"version,omitempty"`
	Subject string          `json:"subject"`
	Preview string          `json:"preview"`
}

func email(delay time.Duration) stage.WorkFunc {
	return func(ctx context.Context, env stage.Env) (any, error) {
		topic := topicFor(env)
		if err := pace(ctx, env, delay); err != nil {
			return nil, err
		}
		out := Email{
			Subject: truncateRunes(topic.Display, 78),
			Preview: fmt.Sprintf("This week: %s", topic.Text),
		}
		if content, ok := contentFor(env); ok {
			out.Subject = truncateRunes(content.Title, 78)
			out.Version = content.field("email_version")
		}
		return out, nil
	}
}

func hashtags(words []string) string {
	tags := make([]string, 0, 3)
	for _, w := range words {
		if len(tags) == 3 {
			break
		}
		tags = append(tags, "#"+w)
	}
	return strings.Join(tags, " ")
}

func truncateRunes(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
