// Package seed loads stations and lines from a yaml file at start-up.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"subway-cloud/internal/lines/application"
	stations "subway-cloud/internal/stations/domain"
)

// File is the seed document.
type File struct {
	Stations []Station `yaml:"stations"`
	Lines    []Line    `yaml:"lines"`
}

// Station is a seeded station with a fixed id.
type Station struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Line is a seeded line. Sections are applied in order and must form a chain.
type Line struct {
	Name     string    `yaml:"name"`
	Color    string    `yaml:"color"`
	Sections []Section `yaml:"sections"`
}

// Section is one seeded section.
type Section struct {
	Up       string `yaml:"up"`
	Down     string `yaml:"down"`
	Distance int64  `yaml:"distance"`
}

// LineWriter is the subset of the line service the seeder drives.
type LineWriter interface {
	ListLines(ctx context.Context) ([]application.LineView, error)
	CreateLine(ctx context.Context, req application.CreateLineRequest) (*application.LineView, error)
	AppendSection(ctx context.Context, lineID string, req application.AppendSectionRequest) error
	DeleteLine(ctx context.Context, lineID string) error
}

// Load parses a seed file.
func Load(path string) (File, error) {
	var file File
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("seed: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return file, nil
}

// Apply stores missing stations and creates lines whose name is not taken yet.
// Re-applying the same file is a no-op. A line whose sections fail to apply
// is deleted again, so a corrected file can be re-applied.
func Apply(ctx context.Context, file File, stationRepo stations.Repository, lineWriter LineWriter, logger *log.Logger) error {
	if stationRepo == nil || lineWriter == nil {
		return errors.New("seed: nil dependency")
	}
	for _, s := range file.Stations {
		existing, err := stationRepo.Get(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("seed: station %s: %w", s.ID, err)
		}
		if existing != nil {
			continue
		}
		if err := stationRepo.Save(ctx, &stations.Station{ID: s.ID, Name: s.Name}); err != nil {
			return fmt.Errorf("seed: station %s: %w", s.ID, err)
		}
		logf(logger, "seed: station %s (%s)", s.ID, s.Name)
	}

	current, err := lineWriter.ListLines(ctx)
	if err != nil {
		return fmt.Errorf("seed: list lines: %w", err)
	}
	taken := make(map[string]struct{}, len(current))
	for _, line := range current {
		taken[line.Name] = struct{}{}
	}

	for _, l := range file.Lines {
		if _, ok := taken[l.Name]; ok {
			continue
		}
		if len(l.Sections) == 0 {
			return fmt.Errorf("seed: line %s has no sections", l.Name)
		}
		first := l.Sections[0]
		view, err := lineWriter.CreateLine(ctx, application.CreateLineRequest{
			Name:          l.Name,
			Color:         l.Color,
			UpStationID:   first.Up,
			DownStationID: first.Down,
			Distance:      first.Distance,
		})
		if err != nil {
			return fmt.Errorf("seed: line %s: %w", l.Name, err)
		}
		for _, section := range l.Sections[1:] {
			if err := lineWriter.AppendSection(ctx, view.ID, application.AppendSectionRequest{
				UpStationID:   section.Up,
				DownStationID: section.Down,
				Distance:      section.Distance,
			}); err != nil {
				err = fmt.Errorf("seed: line %s section %s-%s: %w", l.Name, section.Up, section.Down, err)
				if delErr := lineWriter.DeleteLine(ctx, view.ID); delErr != nil {
					return errors.Join(err, fmt.Errorf("seed: remove partial line %s: %w", l.Name, delErr))
				}
				return err
			}
		}
		taken[l.Name] = struct{}{}
		logf(logger, "seed: line %s with %d sections", l.Name, len(l.Sections))
	}
	return nil
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
