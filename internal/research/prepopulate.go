package research

import (
	"context"
	"fmt"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/notes"
)

// maxAnchorSlot is the deepest slot customers can anchor directly: the
// subject, both parents and all four grandparents.
const maxAnchorSlot = 7

// anchorLogLine is the first search-log entry of every customer anchor.
const anchorLogLine = "Customer-provided anchor"

// PrepopulateAnchors writes the customer-provided anchors into slots 1
// through 7: the subject from the structured input, the subject's parents
// from the father and mother name fields, and any slot 2..7 described in the
// free-text notes. Notes win over bare parent names because they carry
// dates and places.
//
// The call is idempotent: existing customer rows are overwritten in place
// and keep their identity, so it is safe to run before every research pass.
func PrepopulateAnchors(ctx context.Context, repo Repository, job *ResearchJob) error {
	subject := job.Subject

	subjectRow := newAnchorRow(job.ID, 1)
	subjectRow.Name = normalize.FormatName(subject.GivenName, subject.Surname)
	subjectRow.BirthDate = subject.BirthDate
	subjectRow.BirthPlace = subject.BirthPlace
	subjectRow.DeathDate = subject.DeathDate
	subjectRow.DeathPlace = subject.DeathPlace
	subjectRow.FatherName = subject.FatherName
	subjectRow.MotherName = subject.MotherName

	if _, err := repo.AddAncestor(ctx, subjectRow); err != nil {
		return fmt.Errorf("anchor subject: %w", err)
	}

	anchored := notes.Parse(subject.Notes)

	// Bare parent names anchor slots 2 and 3 unless the notes already
	// describe them in more detail.
	if _, ok := anchored[FatherSlot(1)]; !ok && subject.FatherName != "" {
		name := normalize.ParseName(subject.FatherName)
		anchored[FatherSlot(1)] = notes.Anchor{GivenName: name.Given, Surname: name.Surname}
	}

	if _, ok := anchored[MotherSlot(1)]; !ok && subject.MotherName != "" {
		name := normalize.ParseName(subject.MotherName)
		anchored[MotherSlot(1)] = notes.Anchor{GivenName: name.Given, Surname: name.Surname}
	}

	for slot := 2; slot <= maxAnchorSlot; slot++ {
		anchor, ok := anchored[slot]
		if !ok {
			continue
		}

		row := newAnchorRow(job.ID, slot)
		row.Name = normalize.FormatName(anchor.GivenName, anchor.Surname)
		row.BirthDate = anchor.BirthDate
		row.BirthPlace = anchor.BirthPlace
		row.DeathDate = anchor.DeathDate

		if _, err := repo.AddAncestor(ctx, row); err != nil {
			return fmt.Errorf("anchor slot %d: %w", slot, err)
		}
	}

	return nil
}

func newAnchorRow(jobID string, slot int) *Ancestor {
	return &Ancestor{
		JobID:           jobID,
		AscNumber:       slot,
		Generation:      GenerationOf(slot),
		Gender:          GenderFor(slot),
		ConfidenceLevel: LevelCustomerData,
		ConfidenceScore: 100,
		SearchLog:       []string{anchorLogLine},
	}
}
