package skillfolio

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gigboard/dispatch/errors"
)

// Generator computes a skillfolio document for a user. The marketplace
// injects its own implementation; LocalGenerator is the built-in default.
type Generator interface {
	Generate(ctx context.Context, userID int64) (*Artifact, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, userID int64) (*Artifact, error)

func (f GeneratorFunc) Generate(ctx context.Context, userID int64) (*Artifact, error) {
	return f(ctx, userID)
}

// LocalGenerator produces a skeleton document with the standard section
// layout. It stands in until a profile-backed generator is wired in.
type LocalGenerator struct{}

type document struct {
	UserID      int64     `json:"userId"`
	Version     int       `json:"version"`
	Sections    []string  `json:"sections"`
	GeneratedAt time.Time `json:"generatedAt"`
}

func (LocalGenerator) Generate(ctx context.Context, userID int64) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	doc, err := json.Marshal(document{
		UserID:      userID,
		Version:     1,
		Sections:    []string{"summary", "skills", "history", "endorsements"},
		GeneratedAt: now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build skillfolio document")
	}

	return &Artifact{UserID: userID, Document: doc, GeneratedAt: now}, nil
}
