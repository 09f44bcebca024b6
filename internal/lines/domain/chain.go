package lines

import (
	"fmt"
	"iter"
	"slices"
)

// Chain is the ordered section sequence of one line.
// Sections are appended and removed at the tail only.
type Chain struct {
	lineID   string
	sections []Section
}

// NewChain builds an empty chain for a line.
func NewChain(lineID string) (*Chain, error) {
	if lineID == "" {
		return nil, fmt.Errorf("%w: empty line id", ErrValidation)
	}
	return &Chain{lineID: lineID}, nil
}

// RestoreChain rebuilds a chain from stored sections in storage order.
// Each section is re-applied through Append so a corrupted store is rejected.
func RestoreChain(lineID string, sections []Section) (*Chain, error) {
	chain, err := NewChain(lineID)
	if err != nil {
		return nil, err
	}
	for _, section := range sections {
		if err := chain.Append(section); err != nil {
			return nil, fmt.Errorf("restore chain %s: %w", lineID, err)
		}
	}
	return chain, nil
}

// LineID returns the owning line id.
func (c *Chain) LineID() string { return c.lineID }

// Len returns the number of sections.
func (c *Chain) Len() int { return len(c.sections) }

// Sections returns a copy of the sections in chain order.
func (c *Chain) Sections() []Section { return slices.Clone(c.sections) }

// Tail returns the last section.
func (c *Chain) Tail() (Section, bool) {
	if len(c.sections) == 0 {
		return Section{}, false
	}
	return c.sections[len(c.sections)-1], true
}

// Contains reports whether a section from up to down is already registered.
func (c *Chain) Contains(upStationID, downStationID string) bool {
	return slices.ContainsFunc(c.sections, func(s Section) bool {
		return s.Matches(upStationID, downStationID)
	})
}

// Distance returns the total distance of the chain.
func (c *Chain) Distance() int64 {
	var total int64
	for _, s := range c.sections {
		total += s.distance
	}
	return total
}

// Append adds a section at the tail.
// The first section of an empty chain is accepted as is. A section whose
// down station is already on the line is rejected as a duplicate so every
// station appears once in the derived sequence.
func (c *Chain) Append(section Section) error {
	if section.lineID != c.lineID {
		return fmt.Errorf("%w: section %s belongs to line %s, not %s", ErrValidation, section.id, section.lineID, c.lineID)
	}
	if c.Contains(section.upStationID, section.downStationID) {
		return fmt.Errorf("%w: %s -> %s", ErrDuplicateSection, section.upStationID, section.downStationID)
	}
	if tail, ok := c.Tail(); ok && tail.downStationID != section.upStationID {
		return fmt.Errorf("%w: up station %s, terminus %s", ErrDisconnectedSection, section.upStationID, tail.downStationID)
	}
	if c.hasStation(section.downStationID) {
		return fmt.Errorf("%w: station %s already on line %s", ErrDuplicateSection, section.downStationID, c.lineID)
	}
	c.sections = append(c.sections, section)
	return nil
}

// Remove detaches the tail section whose down station is stationID.
func (c *Chain) Remove(stationID string) (Section, error) {
	if len(c.sections) == 0 {
		return Section{}, ErrEmptyChain
	}
	if len(c.sections) == 1 {
		return Section{}, ErrSingleSection
	}
	tail := c.sections[len(c.sections)-1]
	if tail.downStationID != stationID {
		return Section{}, fmt.Errorf("%w: station %s, terminus %s", ErrInvalidRemovalTarget, stationID, tail.downStationID)
	}
	// Copy so sequences handed out earlier keep their snapshot.
	c.sections = slices.Clone(c.sections[:len(c.sections)-1])
	return tail, nil
}

// StationSequence returns the ordered station ids: the up station of every
// section followed by the down station of the last one. The sequence is
// lazy and can be ranged over any number of times; it reflects the chain as
// it was when StationSequence was called.
func (c *Chain) StationSequence() (iter.Seq[string], error) {
	if len(c.sections) == 0 {
		return nil, ErrEmptyChain
	}
	snapshot := c.sections
	return func(yield func(string) bool) {
		for _, s := range snapshot {
			if !yield(s.upStationID) {
				return
			}
		}
		yield(snapshot[len(snapshot)-1].downStationID)
	}, nil
}

// StationIDs collects StationSequence into a slice.
func (c *Chain) StationIDs() ([]string, error) {
	seq, err := c.StationSequence()
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func (c *Chain) hasStation(stationID string) bool {
	for _, s := range c.sections {
		if s.upStationID == stationID || s.downStationID == stationID {
			return true
		}
	}
	return false
}

func (c *Chain) clone() *Chain {
	if c == nil {
		return nil
	}
	return &Chain{lineID: c.lineID, sections: slices.Clone(c.sections)}
}
