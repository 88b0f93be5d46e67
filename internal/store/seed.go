package store

import (
	"context"
	"embed"
	"fmt"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/chessnerd/internal/domain"
)

//go:embed lessons.yaml schema.sql
var assets embed.FS

// Schema returns the Postgres DDL used by the migrate command.
func Schema() string {
	b, err := assets.ReadFile("schema.sql")
	if err != nil {
		panic(fmt.Sprintf("embedded schema missing: %v", err))
	}
	return string(b)
}

// SeedLessons parses the embedded lesson catalog.
func SeedLessons() ([]*domain.Lesson, error) {
	raw, err := assets.ReadFile("lessons.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded lessons: %w", err)
	}
	var doc struct {
		Lessons []*domain.Lesson `yaml:"lessons"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse lessons: %w", err)
	}
	for i, l := range doc.Lessons {
		if l.ID == "" || l.Title == "" {
			return nil, fmt.Errorf("lesson %d: id and title are required", i)
		}
	}
	return doc.Lessons, nil
}

// Seed writes the embedded lessons through any repository.
func Seed(ctx context.Context, repo Repository) (int, error) {
	lessons, err := SeedLessons()
	if err != nil {
		return 0, err
	}
	for _, l := range lessons {
		if err := repo.UpsertLesson(ctx, l); err != nil {
			return 0, fmt.Errorf("seed lesson %s: %w", l.ID, err)
		}
	}
	return len(lessons), nil
}
