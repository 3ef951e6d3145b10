package registry

import (
	"fmt"
	"os"
)

// RepairReport describes what a repair run did.
type RepairReport struct {
	Recreated bool
	Dropped   []string
	Kept      int
}

// Repair restores the registry file to a loadable state. An unparsable
// file is snapshotted and replaced with a fresh empty document; a parsable
// file has invalid records dropped and migrations applied. The repaired
// document is written back.
func (s *Store) Repair() (*RepairReport, error) {
	report := &RepairReport{}

	data, err := os.ReadFile(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read registry %s: %w", s.Path, err)
	}

	var doc *Document
	switch {
	case os.IsNotExist(err):
		doc = NewDocument()
		report.Recreated = true
	default:
		doc, err = Decode(data)
		if err != nil {
			// Keep the broken file around via the pre-save snapshot,
			// then start over.
			doc = NewDocument()
			report.Recreated = true
		} else {
			report.Dropped = Heal(doc)
		}
	}

	report.Kept = len(doc.Apps)
	if err := s.Save(doc); err != nil {
		return nil, fmt.Errorf("write repaired registry: %w", err)
	}
	return report, nil
}
