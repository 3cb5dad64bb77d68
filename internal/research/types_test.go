package research

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTotalSlots verifies the slot count of a full binary ascendancy tree.
func TestTotalSlots(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, 3, TotalSlots(1))
	assert.Equal(t, 7, TotalSlots(2))
	assert.Equal(t, 31, TotalSlots(4))
	assert.Equal(t, 255, TotalSlots(MaxGenerations))
}

// TestGenerationOf verifies generation = floor(log2 A) across generation
// boundaries.
func TestGenerationOf(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		ascNumber int
		want      int
	}{
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{7, 2},
		{8, 3},
		{15, 3},
		{128, 7},
		{255, 7},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, GenerationOf(tt.ascNumber), "ascNumber %d", tt.ascNumber)
	}

	// Out-of-range input clamps to the subject's generation.
	assert.Equal(t, 0, GenerationOf(0))
	assert.Equal(t, 0, GenerationOf(-3))
}

// TestGenderFor verifies that slot parity fixes gender everywhere above the
// subject: even slots are fathers, odd slots mothers.
func TestGenderFor(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, GenderUnknown, GenderFor(1))

	for slot := 2; slot <= 255; slot++ {
		want := GenderMale
		if slot%2 == 1 {
			want = GenderFemale
		}

		require.Equal(t, want, GenderFor(slot), "slot %d", slot)
	}
}

// TestParentSlots verifies the father/mother slot arithmetic.
func TestParentSlots(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, 2, FatherSlot(1))
	assert.Equal(t, 3, MotherSlot(1))
	assert.Equal(t, 12, FatherSlot(6))
	assert.Equal(t, 13, MotherSlot(6))

	// A child's parents always sit one generation deeper.
	for slot := 1; slot <= 127; slot++ {
		require.Equal(t, GenerationOf(slot)+1, GenerationOf(FatherSlot(slot)))
		require.Equal(t, GenerationOf(slot)+1, GenerationOf(MotherSlot(slot)))
	}
}

// TestInSubtree verifies positional subtree membership, the rule behind
// re-research subtree deletion.
func TestInSubtree(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		slot, root int
		want       bool
	}{
		{5, 5, true},
		{10, 5, true},
		{11, 5, true},
		{20, 5, true},
		{23, 5, true},
		{4, 5, false},
		{12, 5, false},
		{9, 5, false},
		{2, 1, true},
		{255, 1, true},
		{3, 2, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InSubtree(tt.slot, tt.root), "InSubtree(%d, %d)", tt.slot, tt.root)
	}
}

// TestConfidenceLevelRank verifies downgrade-protection ordering, customer
// data strongest.
func TestConfidenceLevelRank(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ordered := []ConfidenceLevel{
		LevelNotFound, LevelFlagged, LevelPossible, LevelProbable, LevelVerified, LevelCustomerData,
	}

	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank(),
			"%s should outrank %s", ordered[i], ordered[i-1])
	}

	assert.Equal(t, 0, ConfidenceLevel("bogus").Rank())
}

// TestLevelForScore verifies the categorical thresholds at their exact
// boundaries.
func TestLevelForScore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		score int
		want  ConfidenceLevel
	}{
		{100, LevelVerified},
		{90, LevelVerified},
		{89, LevelProbable},
		{75, LevelProbable},
		{74, LevelPossible},
		{50, LevelPossible},
		{49, LevelFlagged},
		{25, LevelFlagged},
		{24, LevelNotFound},
		{0, LevelNotFound},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %d", tt.score)
	}
}

// TestValidateJobTransition covers the job lifecycle, including the
// re-research exception that reopens a terminal job.
func TestValidateJobTransition(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name          string
		from, to      JobStatus
		viaReResearch bool
		wantErr       bool
	}{
		{name: "pending to running", from: JobPending, to: JobRunning},
		{name: "running to completed", from: JobRunning, to: JobCompleted},
		{name: "running to failed", from: JobRunning, to: JobFailed},
		{name: "same status is a no-op", from: JobRunning, to: JobRunning},
		{name: "pending cannot complete directly", from: JobPending, to: JobCompleted, wantErr: true},
		{name: "completed cannot silently rerun", from: JobCompleted, to: JobRunning, wantErr: true},
		{name: "completed reopens via re-research", from: JobCompleted, to: JobRunning, viaReResearch: true},
		{name: "failed reopens via re-research", from: JobFailed, to: JobRunning, viaReResearch: true},
		{name: "completed cannot fail", from: JobCompleted, to: JobFailed, wantErr: true},
		{name: "unknown status rejected", from: JobStatus("paused"), to: JobRunning, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobTransition(tt.from, tt.to, tt.viaReResearch)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidJobTransition))

				return
			}

			require.NoError(t, err)
		})
	}
}

// TestJobRequestValidate verifies request validation bounds.
func TestJobRequestValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := JobRequest{
		Generations: 4,
		Subject:     SubjectInput{GivenName: "Thomas", Surname: "Hartley"},
	}
	require.NoError(t, valid.Validate())

	tooShallow := valid
	tooShallow.Generations = 0
	assert.ErrorIs(t, tooShallow.Validate(), ErrInvalidGenerations)

	tooDeep := valid
	tooDeep.Generations = MaxGenerations + 1
	assert.ErrorIs(t, tooDeep.Validate(), ErrInvalidGenerations)

	noSurname := valid
	noSurname.Subject.Surname = ""
	assert.ErrorIs(t, noSurname.Validate(), ErrMissingSubjectName)
}

// TestJobStatusIsTerminal verifies the terminal set.
func TestJobStatusIsTerminal(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.False(t, JobPending.IsTerminal())
	assert.False(t, JobRunning.IsTerminal())
	assert.True(t, JobCompleted.IsTerminal())
	assert.True(t, JobFailed.IsTerminal())
}
