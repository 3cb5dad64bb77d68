// Package export renders finalized ascendancy trees as GEDCOM 5.5.1
// LINEAGE-LINKED text.
//
// The ascendancy numbering makes the family structure implicit: the
// occupant of slot A was born to the couple in slots 2A and 2A+1, so
// individual cross-references reuse the slot number (@I{A}@) and one
// family record (@F{A}@) is emitted per slot whose parents were
// researched. No renderer state survives a call; the output depends only
// on the rows passed in (plus the header timestamp).
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/research"
)

// Result reports what a render produced.
type Result struct {
	Individuals int
	Families    int
}

// GEDCOM renders a job's ancestor rows as lineage-linked text. Rows are
// accepted in any order; output is ordered by ascendancy number so repeated
// exports of the same tree are identical apart from the header date.
func GEDCOM(job *research.ResearchJob, ancestors []*research.Ancestor) ([]byte, Result) {
	sorted := make([]*research.Ancestor, len(ancestors))
	copy(sorted, ancestors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AscNumber < sorted[j].AscNumber
	})

	slots := make(map[int]*research.Ancestor, len(sorted))
	for _, ancestor := range sorted {
		slots[ancestor.AscNumber] = ancestor
	}

	buf := &bytes.Buffer{}
	result := Result{}

	writeHeader(buf, job)

	for _, ancestor := range sorted {
		writeIndividual(buf, ancestor, slots)
		result.Individuals++
	}

	// One family per slot with at least one researched parent.
	for _, ancestor := range sorted {
		if writeFamily(buf, ancestor, slots) {
			result.Families++
		}
	}

	buf.WriteString("0 TRLR\n")

	return buf.Bytes(), result
}

func writeHeader(buf *bytes.Buffer, job *research.ResearchJob) {
	buf.WriteString("0 HEAD\n")
	buf.WriteString("1 SOUR Rootline\n")
	buf.WriteString("2 NAME Rootline Research Engine\n")
	buf.WriteString("1 GEDC\n")
	buf.WriteString("2 VERS 5.5.1\n")
	buf.WriteString("2 FORM LINEAGE-LINKED\n")
	buf.WriteString("1 CHAR UTF-8\n")
	fmt.Fprintf(buf, "1 DATE %s\n", strings.ToUpper(time.Now().Format("2 Jan 2006")))
	buf.WriteString("1 SUBM @U1@\n")
	buf.WriteString("0 @U1@ SUBM\n")

	subject := normalize.FormatName(job.Subject.GivenName, job.Subject.Surname)
	if subject == "" {
		subject = "Rootline"
	}

	fmt.Fprintf(buf, "1 NAME %s\n", subject)
}

// writeIndividual writes one INDI record for an ancestor slot.
func writeIndividual(buf *bytes.Buffer, ancestor *research.Ancestor, slots map[int]*research.Ancestor) {
	fmt.Fprintf(buf, "0 @I%d@ INDI\n", ancestor.AscNumber)

	name := normalize.ParseName(ancestor.Name)
	fmt.Fprintf(buf, "1 NAME %s /%s/\n", name.Given, name.Surname)

	switch ancestor.Gender {
	case research.GenderMale:
		buf.WriteString("1 SEX M\n")
	case research.GenderFemale:
		buf.WriteString("1 SEX F\n")
	case research.GenderUnknown:
		// GEDCOM omits SEX rather than carrying an unknown marker
	}

	writeEvent(buf, "BIRT", ancestor.BirthDate, ancestor.BirthPlace)
	writeEvent(buf, "DEAT", ancestor.DeathDate, ancestor.DeathPlace)

	// Child-to-family link: present whenever either parent was researched.
	father := research.FatherSlot(ancestor.AscNumber)
	mother := research.MotherSlot(ancestor.AscNumber)

	if slots[father] != nil || slots[mother] != nil {
		fmt.Fprintf(buf, "1 FAMC @F%d@\n", ancestor.AscNumber)
	}

	// Spouse-to-family link: every slot above the subject parents exactly
	// one child slot, its own number halved. The child must be present or
	// the family record it names is never emitted.
	if ancestor.AscNumber > 1 && slots[ancestor.AscNumber/2] != nil {
		fmt.Fprintf(buf, "1 FAMS @F%d@\n", ancestor.AscNumber/2)
	}

	fmt.Fprintf(buf, "1 NOTE Confidence: %s (score %d)\n",
		ancestor.ConfidenceLevel, ancestor.ConfidenceScore)

	if ancestor.VerificationNotes != "" {
		writeNote(buf, ancestor.VerificationNotes)
	}
}

// writeFamily writes the FAM record for the couple that parented a slot.
// Returns false when neither parent was researched.
func writeFamily(buf *bytes.Buffer, child *research.Ancestor, slots map[int]*research.Ancestor) bool {
	father := slots[research.FatherSlot(child.AscNumber)]
	mother := slots[research.MotherSlot(child.AscNumber)]

	if father == nil && mother == nil {
		return false
	}

	fmt.Fprintf(buf, "0 @F%d@ FAM\n", child.AscNumber)

	if father != nil {
		fmt.Fprintf(buf, "1 HUSB @I%d@\n", father.AscNumber)
	}

	if mother != nil {
		fmt.Fprintf(buf, "1 WIFE @I%d@\n", mother.AscNumber)
	}

	fmt.Fprintf(buf, "1 CHIL @I%d@\n", child.AscNumber)

	if year, place, ok := marriageEvidence(father, mother); ok {
		buf.WriteString("1 MARR\n")

		if year > 0 {
			fmt.Fprintf(buf, "2 DATE %d\n", year)
		}

		if place != "" {
			fmt.Fprintf(buf, "2 PLAC %s\n", place)
		}
	}

	return true
}

// marriageEvidence finds the couple's marriage record on either parent.
// The couple-marriage pass stores the same record on both spouses, so the
// first hit wins.
func marriageEvidence(parents ...*research.Ancestor) (int, string, bool) {
	for _, parent := range parents {
		if parent == nil {
			continue
		}

		for _, record := range parent.Evidence {
			if record.Kind != research.EvidenceMarriage {
				continue
			}

			place := record.Place
			if place == "" {
				place = record.District
			}

			return record.Year, place, true
		}
	}

	return 0, "", false
}

// writeEvent writes a BIRT or DEAT structure when a date or place exists.
func writeEvent(buf *bytes.Buffer, tag, date, place string) {
	if date == "" && place == "" {
		return
	}

	fmt.Fprintf(buf, "1 %s\n", tag)

	if date != "" {
		fmt.Fprintf(buf, "2 DATE %s\n", date)
	}

	if place != "" {
		fmt.Fprintf(buf, "2 PLAC %s\n", place)
	}
}

// writeNote writes a multi-line NOTE with CONT continuation lines.
func writeNote(buf *bytes.Buffer, text string) {
	lines := strings.Split(text, "\n")

	fmt.Fprintf(buf, "1 NOTE %s\n", lines[0])

	for _, line := range lines[1:] {
		fmt.Fprintf(buf, "2 CONT %s\n", line)
	}
}
