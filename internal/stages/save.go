package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"craefto/internal/contentstore"
	"craefto/internal/services"
	"craefto/internal/stage"
)

// Saved is the output of the save stage.
type Saved struct {
	ID        string `json:"id,omitempty"`
	Persisted bool   `json:"persisted"`
	Bytes     int    `json:"bytes"`
}

type packageBody struct {
	Topic    Topic           `json:"topic"`
	Research *Research       `json:"research,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
	Visual   *Visual         `json:"visual,omitempty"`
	Social   *Social         `json:"social,omitempty"`
	Email    *Email          `json:"email,omitempty"`
}

func save(saver Saver) stage.WorkFunc {
	return func(ctx context.Context, env stage.Env) (any, error) {
		topic := topicFor(env)
		job := env.Job()
		body := packageBody{Topic: topic}
		if out, ok := env.Output("research"); ok {
			if r, ok := out.(Research); ok {
				body.Research = &r
			}
		}
		content, hasContent := contentFor(env)
		if hasContent {
			body.Content = content.Data
		}
		if out, ok := env.Output("visual"); ok {
			if v, ok := out.(Visual); ok {
				body.Visual = &v
			}
		}
		if out, ok := env.Output("social"); ok {
			if s, ok := out.(Social); ok {
				body.Social = &s
			}
		}
		if out, ok := env.Output("email"); ok {
			if e, ok := out.(Email); ok {
				body.Email = &e
			}
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "save", "encode package", "", err)
		}
		env.SetProgress(50)

		if saver == nil {
			env.Log().Warning("", "Content store not configured; package kept in run outputs only", nil)
			return Saved{Bytes: len(encoded)}, nil
		}
		pkg := contentstore.Package{
			RunID: env.RunID(),
			Topic: topic.Text,
			Kind:  string(job.Kind),
			Body:  encoded,
		}
		if hasContent {
			pkg.Title = content.Title
			pkg.RequestID = content.RequestID
			pkg.WordCount = content.WordCount
		}
		saved, err := saver.SaveContent(ctx, pkg)
		if err != nil {
			return nil, err
		}
		env.Log().Info("", fmt.Sprintf("Saved content package %s", saved.ID), map[string]any{
			"id":    saved.ID,
			"bytes": len(encoded),
		})
		return Saved{ID: saved.ID, Persisted: true, Bytes: len(encoded)}, nil
	}
}
