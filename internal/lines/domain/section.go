package lines

import "fmt"

// Section is a directed, distance-weighted edge between two stations of one line.
// Sections are values; a removed section is simply no longer held by its chain.
type Section struct {
	id            string
	lineID        string
	upStationID   string
	downStationID string
	distance      int64
}

// SectionSpec describes a section to be created on a line.
type SectionSpec struct {
	ID            string
	UpStationID   string
	DownStationID string
	Distance      int64
}

// NewSection validates and builds a section.
func NewSection(id, lineID, upStationID, downStationID string, distance int64) (Section, error) {
	if id == "" {
		return Section{}, fmt.Errorf("%w: empty section id", ErrValidation)
	}
	if lineID == "" {
		return Section{}, fmt.Errorf("%w: empty line id", ErrValidation)
	}
	if upStationID == "" {
		return Section{}, fmt.Errorf("%w: empty up station id", ErrValidation)
	}
	if downStationID == "" {
		return Section{}, fmt.Errorf("%w: empty down station id", ErrValidation)
	}
	if upStationID == downStationID {
		return Section{}, fmt.Errorf("%w: up and down station are the same", ErrValidation)
	}
	if distance <= 0 {
		return Section{}, fmt.Errorf("%w: distance must be positive, got %d", ErrValidation, distance)
	}
	return Section{
		id:            id,
		lineID:        lineID,
		upStationID:   upStationID,
		downStationID: downStationID,
		distance:      distance,
	}, nil
}

// ID returns the section identity.
func (s Section) ID() string { return s.id }

// LineID returns the owning line id.
func (s Section) LineID() string { return s.lineID }

// UpStationID returns the up station id.
func (s Section) UpStationID() string { return s.upStationID }

// DownStationID returns the down station id.
func (s Section) DownStationID() string { return s.downStationID }

// Distance returns the section distance.
func (s Section) Distance() int64 { return s.distance }

// Matches reports whether the section connects up to down in that direction.
func (s Section) Matches(upStationID, downStationID string) bool {
	return s.upStationID == upStationID && s.downStationID == downStationID
}
