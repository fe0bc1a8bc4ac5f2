package stages

import (
	"context"
	"time"

	"craefto/internal/contentstore"
	"craefto/internal/generation"
	"craefto/internal/stage"
)

// Log source tags of the catalog stages.
const (
	SourceValidation = "Validation"
	SourceResearch   = "Research"
	SourceContent    = "Content"
	SourceVisual     = "Visual"
	SourceSocial     = "Social"
	SourceEmail      = "Email"
	SourceDatabase   = "Database"
)

// Saver persists the content package produced by a run.
type Saver interface {
	SaveContent(ctx context.Context, pkg contentstore.Package) (contentstore.Package, error)
}

// Library lists previously saved content packages.
type Library interface {
	RecentContent(ctx context.Context, kind string, limit int) ([]contentstore.Package, error)
}

// HealthChecker is implemented by dependencies that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps wires the catalog to its collaborators.
type Deps struct {
	Generator generation.Generator
	// Saver is optional; without it the save stage only records the package
	// in the run outputs.
	Saver Saver
	// Library is optional; when set, research flags saved packages with a
	// similar topic.
	Library Library
	// Delay paces each simulated stage. Zero runs them instantly.
	Delay time.Duration
}

// Definitions returns the ordered stage catalog:
// validate, research, content, [visual, social, email for blog], save.
func Definitions(deps Deps) []stage.Definition {
	blogOnly := stage.OnlyFor(stage.KindBlog)
	return []stage.Definition{
		{
			ID:          "validate",
			Title:       "Validate request",
			Description: "Check the topic and content kind",
			Source:      SourceValidation,
			Weight:      5,
			Work:        validate,
		},
		{
			ID:          "research",
			Title:       "Research trends",
			Description: "Collect keywords and angles for the topic",
			Source:      SourceResearch,
			Weight:      15,
			Work:        research(deps.Delay, deps.Library),
		},
		{
			ID:          "content",
			Title:       "Generate content",
			Description: "Request the content package from the generation backend",
			Source:      SourceContent,
			Weight:      40,
			Work:        generate(deps.Generator),
			Check:       checkGenerator(deps.Generator),
		},
		{
			ID:          "visual",
			Title:       "Create visuals",
			Description: "Prepare the hero image brief",
			Source:      SourceVisual,
			Weight:      15,
			Include:     blogOnly,
			Work:        visual(deps.Delay),
		},
		{
			ID:          "social",
			Title:       "Draft social snippets",
			Description: "Derive social posts from the article",
			Source:      SourceSocial,
			Weight:      10,
			Include:     blogOnly,
			Work:        social(deps.Delay),
		},
		{
			ID:          "email",
			Title:       "Draft email version",
			Description: "Derive the newsletter edition from the article",
			Source:      SourceEmail,
			Weight:      10,
			Include:     blogOnly,
			Work:        email(deps.Delay),
		},
		{
			ID:          "save",
			Title:       "Save content",
			Description: "Persist the content package",
			Source:      SourceDatabase,
			Weight:      5,
			Work:        save(deps.Saver),
			Check:       checkSaver(deps.Saver),
		},
	}
}

// NewRegistry builds the stage registry for deps.
func NewRegistry(deps Deps) (*stage.Registry, error) {
	return stage.NewRegistry(Definitions(deps)...)
}

func checkGenerator(gen generation.Generator) func(context.Context) stage.Health {
	return func(ctx context.Context) stage.Health {
		if gen == nil {
			return stage.Unhealthy("content", "generation backend not configured")
		}
		checker, ok := gen.(HealthChecker)
		if !ok {
			return stage.Healthy("content")
		}
		if err := checker.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("content", err.Error())
		}
		return stage.Healthy("content")
	}
}

func checkSaver(saver Saver) func(context.Context) stage.Health {
	return func(ctx context.Context) stage.Health {
		if saver == nil {
			return stage.Healthy("save")
		}
		if pinger, ok := saver.(interface{ Ping(context.Context) error }); ok {
			if err := pinger.Ping(ctx); err != nil {
				return stage.Unhealthy("save", err.Error())
			}
		}
		return stage.Healthy("save")
	}
}
