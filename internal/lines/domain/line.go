package lines

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength bounds line names and colors.
const MaxNameLength = 20

// Line is the aggregate root binding identity, name and color to one chain.
type Line struct {
	id        string
	name      string
	color     string
	chain     *Chain
	createdAt time.Time
	updatedAt time.Time

	isNew bool
}

// NewLine creates a line whose chain holds exactly the first section.
func NewLine(id, name, color string, first SectionSpec, now time.Time) (*Line, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty line id", ErrValidation)
	}
	name, color, err := normalizeLabels(name, color)
	if err != nil {
		return nil, err
	}
	chain, err := NewChain(id)
	if err != nil {
		return nil, err
	}
	section, err := NewSection(first.ID, id, first.UpStationID, first.DownStationID, first.Distance)
	if err != nil {
		return nil, err
	}
	if err := chain.Append(section); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Line{
		id:        id,
		name:      name,
		color:     color,
		chain:     chain,
		createdAt: now,
		updatedAt: now,
		isNew:     true,
	}, nil
}

// RestoreLine rebuilds a persisted line.
func RestoreLine(id, name, color string, sections []Section, createdAt, updatedAt time.Time) (*Line, error) {
	chain, err := RestoreChain(id, sections)
	if err != nil {
		return nil, err
	}
	if chain.Len() == 0 {
		return nil, fmt.Errorf("restore line %s: %w", id, ErrEmptyChain)
	}
	return &Line{
		id:        id,
		name:      name,
		color:     color,
		chain:     chain,
		createdAt: createdAt.UTC(),
		updatedAt: updatedAt.UTC(),
	}, nil
}

// ID returns the line identity.
func (l *Line) ID() string { return l.id }

// Name returns the line name.
func (l *Line) Name() string { return l.name }

// Color returns the line color.
func (l *Line) Color() string { return l.color }

// Chain returns the owned chain.
func (l *Line) Chain() *Chain { return l.chain }

// Distance returns the total distance over all sections.
func (l *Line) Distance() int64 { return l.chain.Distance() }

// CreatedAt returns the creation time.
func (l *Line) CreatedAt() time.Time { return l.createdAt }

// UpdatedAt returns the last modification time.
func (l *Line) UpdatedAt() time.Time { return l.updatedAt }

// Rename updates name and color. The chain is untouched.
func (l *Line) Rename(name, color string, now time.Time) error {
	name, color, err := normalizeLabels(name, color)
	if err != nil {
		return err
	}
	l.name = name
	l.color = color
	l.updatedAt = now.UTC()
	return nil
}

// AppendSection builds a section from spec and appends it to the chain.
func (l *Line) AppendSection(spec SectionSpec, now time.Time) (Section, error) {
	section, err := NewSection(spec.ID, l.id, spec.UpStationID, spec.DownStationID, spec.Distance)
	if err != nil {
		return Section{}, err
	}
	if err := l.chain.Append(section); err != nil {
		return Section{}, err
	}
	l.updatedAt = now.UTC()
	return section, nil
}

// RemoveSection removes the terminus section ending at stationID.
func (l *Line) RemoveSection(stationID string, now time.Time) (Section, error) {
	removed, err := l.chain.Remove(stationID)
	if err != nil {
		return Section{}, err
	}
	l.updatedAt = now.UTC()
	return removed, nil
}

// StationIDs returns the derived ordered station ids.
func (l *Line) StationIDs() ([]string, error) { return l.chain.StationIDs() }

// IsNew reports whether the line was created and not yet persisted.
func (l *Line) IsNew() bool { return l.isNew }

// MarkPersisted marks the line as persisted.
func (l *Line) MarkPersisted() {
	if l != nil {
		l.isNew = false
	}
}

// Clone returns a detached copy marked as persisted.
func (l *Line) Clone() *Line {
	if l == nil {
		return nil
	}
	copy := *l
	copy.chain = l.chain.clone()
	copy.isNew = false
	return &copy
}

func normalizeLabels(name, color string) (string, string, error) {
	name = strings.TrimSpace(name)
	color = strings.TrimSpace(color)
	if name == "" {
		return "", "", fmt.Errorf("%w: empty line name", ErrValidation)
	}
	if color == "" {
		return "", "", fmt.Errorf("%w: empty line color", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", "", fmt.Errorf("%w: line name longer than %d", ErrValidation, MaxNameLength)
	}
	if utf8.RuneCountInString(color) > MaxNameLength {
		return "", "", fmt.Errorf("%w: line color longer than %d", ErrValidation, MaxNameLength)
	}
	return name, color, nil
}
