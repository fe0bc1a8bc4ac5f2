package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"craefto/internal/generation"
	"craefto/internal/services"
	"craefto/internal/stage"
)

// Content is the output of the content stage.
type Content struct {
	Kind      stage.Kind      `json:"kind"`
	Title     string          `json:"title"`
	RequestID string          `json:"request_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data"`
	WordCount int             `json:"word_count"`
	Attempts  int             `json:"attempts"`
}

func (c Content) field(name string) json.RawMessage {
	if len(c.Data) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c.Data, &fields); err != nil {
		return nil
	}
	raw := fields[name]
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func contentFor(env stage.Env) (Content, bool) {
	out, ok := env.Output("content")
	if !ok {
		return Content{}, false
	}
	content, ok := out.(Content)
	return content, ok
}

func generate(gen generation.Generator) stage.WorkFunc {
	return func(ctx context.Context, env stage.Env) (any, error) {
		if gen == nil {
			return nil, services.Wrap(services.ErrConfiguration, "content", "generate",
				"Generation backend is not configured", nil)
		}
		topic := topicFor(env)
		kind := env.Job().Kind
		env.SetProgress(10)
		env.Log().Info("", fmt.Sprintf("Requesting %s content for %q", kind, topic.Text), map[string]any{"kind": string(kind)})

		result, err := gen.Generate(ctx, topic.Text, kind)
		if err != nil {
			if errors.Is(err, generation.ErrTransport) || errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrConfiguration) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", generation.ErrTransport, err)
		}
		if !result.Success {
			reason := strings.TrimSpace(result.Error)
			if reason == "" {
				reason = "backend reported failure without detail"
			}
			return nil, fmt.Errorf("%w: %s", generation.ErrRejected, reason)
		}
		env.SetProgress(90)

		content := Content{
			Kind:      kind,
			RequestID: result.RequestID,
			Message:   result.Message,
			Data:      result.Data,
			Attempts:  result.Attempts,
		}
		content.Title = extractTitle(result.Data, topic, kind)
		content.WordCount = extractWordCount(result.Data)
		if result.Attempts > 1 {
			env.Log().Warning("", fmt.Sprintf("Backend needed %d attempts", result.Attempts), nil)
		}
		env.Log().Info("", fmt.Sprintf("Received %q (%d words)", content.Title, content.WordCount), map[string]any{
			"request_id": content.RequestID,
			"message":    content.Message,
		})
		return content, nil
	}
}

type generatedFields struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	BlogPost *struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"blog_post"`
	SEOMetadata *struct {
		WordCount int `json:"word_count"`
	} `json:"seo_metadata"`
	SubjectLines []string `json:"subject_lines"`
	Metadata     *struct {
		WordCount int `json:"word_count"`
	} `json:"metadata"`
}

func decodeFields(data json.RawMessage) generatedFields {
	var fields generatedFields
	if len(data) > 0 {
		_ = json.Unmarshal(data, &fields)
	}
	return fields
}

func extractTitle(data json.RawMessage, topic Topic, kind stage.Kind) string {
	fields := decodeFields(data)
	candidates := []string{fields.Title}
	if fields.BlogPost != nil {
		candidates = append([]string{fields.BlogPost.Title}, candidates...)
	}
	if len(fields.SubjectLines) > 0 {
		candidates = append(candidates, fields.SubjectLines[0])
	}
	for _, c := range candidates {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			return trimmed
		}
	}
	return fmt.Sprintf("%s: %s", kindLabel(kind), topic.Display)
}

func extractWordCount(data json.RawMessage) int {
	fields := decodeFields(data)
	if fields.SEOMetadata != nil && fields.SEOMetadata.WordCount > 0 {
		return fields.SEOMetadata.WordCount
	}
	if fields.Metadata != nil && fields.Metadata.WordCount > 0 {
		return fields.Metadata.WordCount
	}
	body := fields.Content
	if fields.BlogPost != nil && strings.TrimSpace(fields.BlogPost.Content) != "" {
		body = fields.BlogPost.Content
	}
	return len(strings.Fields(body))
}

func kindLabel(kind stage.Kind) string {
	switch kind {
	case stage.KindBlog:
		return "Blog"
	case stage.KindSocial:
		return "Social"
	case stage.KindEmail:
		return "Email"
	default:
		return string(kind)
	}
}
