package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rootline-io/rootline/internal/research"
)

func newSeededMemoryStore(t *testing.T, jobID string) *MemoryStore {
	t.Helper()

	store := NewMemoryStore()

	_, err := store.CreateResearchJob(t.Context(), research.JobRequest{
		JobID:       jobID,
		Generations: 4,
		Subject: research.SubjectInput{
			GivenName:  "Margaret",
			Surname:    "Whitfield",
			BirthDate:  "14 Mar 1952",
			BirthPlace: "Leeds, Yorkshire",
		},
	})
	if err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}

	return store
}

func TestMemoryStoreJobLifecycle(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	store := newSeededMemoryStore(t, "mem-job-1")

	job, err := store.GetResearchJob(ctx, "mem-job-1")
	if err != nil {
		t.Fatalf("GetResearchJob() error = %v", err)
	}

	if job.Status != research.JobPending {
		t.Errorf("status = %q, want %q", job.Status, research.JobPending)
	}

	if job.Subject.Surname != "Whitfield" {
		t.Errorf("subject surname = %q, want Whitfield", job.Subject.Surname)
	}

	// Duplicate ids are rejected
	_, err = store.CreateResearchJob(ctx, research.JobRequest{
		JobID:       "mem-job-1",
		Generations: 3,
		Subject:     research.SubjectInput{GivenName: "A", Surname: "B"},
	})
	if !errors.Is(err, research.ErrDuplicateJob) {
		t.Errorf("duplicate CreateResearchJob() error = %v, want ErrDuplicateJob", err)
	}

	// Invalid requests never reach the map
	_, err = store.CreateResearchJob(ctx, research.JobRequest{
		JobID:       "mem-job-invalid",
		Generations: 9,
		Subject:     research.SubjectInput{GivenName: "A", Surname: "B"},
	})
	if err == nil {
		t.Error("CreateResearchJob(9 generations) expected error, got nil")
	}

	if _, err := store.GetResearchJob(ctx, "mem-job-invalid"); !errors.Is(err, research.ErrJobNotFound) {
		t.Errorf("GetResearchJob(rejected job) error = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStoreJobTransitions(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	store := newSeededMemoryStore(t, "mem-transitions-1")

	status := func(s research.JobStatus) *research.JobStatus { return &s }

	steps := []struct {
		name          string
		to            research.JobStatus
		viaReResearch bool
		wantErr       bool
	}{
		{name: "pending to completed is rejected", to: research.JobCompleted, wantErr: true},
		{name: "pending to running", to: research.JobRunning},
		{name: "running to failed", to: research.JobFailed},
		{name: "failed to running needs re-research", to: research.JobRunning, wantErr: true},
		{name: "failed to running via re-research", to: research.JobRunning, viaReResearch: true},
		{name: "running to completed", to: research.JobCompleted},
		{name: "completed to completed is a no-op", to: research.JobCompleted},
	}

	for _, step := range steps {
		err := store.UpdateResearchJob(ctx, "mem-transitions-1", research.JobUpdate{
			Status:        status(step.to),
			ViaReResearch: step.viaReResearch,
		})

		if step.wantErr {
			if !errors.Is(err, research.ErrInvalidJobTransition) {
				t.Errorf("%s: error = %v, want ErrInvalidJobTransition", step.name, err)
			}
		} else if err != nil {
			t.Errorf("%s: unexpected error: %v", step.name, err)
		}
	}

	errMsg := "record provider unavailable"
	err := store.UpdateResearchJob(ctx, "mem-transitions-1", research.JobUpdate{
		ErrorMessage: &errMsg,
		Summary:      map[research.ConfidenceLevel]int{research.LevelVerified: 5},
	})
	if err != nil {
		t.Fatalf("UpdateResearchJob(fields only) error = %v", err)
	}

	job, err := store.GetResearchJob(ctx, "mem-transitions-1")
	if err != nil {
		t.Fatalf("GetResearchJob() error = %v", err)
	}

	if job.ErrorMessage != errMsg {
		t.Errorf("error message = %q, want %q", job.ErrorMessage, errMsg)
	}

	if job.Summary[research.LevelVerified] != 5 {
		t.Errorf("summary = %v", job.Summary)
	}
}

func TestMemoryStoreCustomerDataGuard(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	store := newSeededMemoryStore(t, "mem-guard-1")

	_, err := store.AddAncestor(ctx, &research.Ancestor{
		JobID:           "mem-guard-1",
		AscNumber:       1,
		Name:            "Margaret Whitfield",
		Gender:          research.GenderFemale,
		ConfidenceLevel: research.LevelCustomerData,
		ConfidenceScore: 100,
	})
	if err != nil {
		t.Fatalf("AddAncestor(customer data) error = %v", err)
	}

	_, err = store.AddAncestor(ctx, &research.Ancestor{
		JobID:           "mem-guard-1",
		AscNumber:       1,
		Name:            "Someone Else",
		ConfidenceLevel: research.LevelVerified,
	})
	if !errors.Is(err, research.ErrCustomerDataProtected) {
		t.Errorf("AddAncestor(overwrite) error = %v, want ErrCustomerDataProtected", err)
	}

	score := 95
	err = store.UpdateAncestorByAscNumber(ctx, "mem-guard-1", 1, research.AncestorUpdate{ConfidenceScore: &score})
	if !errors.Is(err, research.ErrCustomerDataProtected) {
		t.Errorf("UpdateAncestorByAscNumber(score) error = %v, want ErrCustomerDataProtected", err)
	}

	notes := "portal lead attached"
	err = store.UpdateAncestorByAscNumber(ctx, "mem-guard-1", 1, research.AncestorUpdate{VerificationNotes: &notes})
	if err != nil {
		t.Errorf("UpdateAncestorByAscNumber(notes) error = %v", err)
	}
}

func TestMemoryStoreDeleteDescendants(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	store := newSeededMemoryStore(t, "mem-delete-1")

	for slot := 1; slot <= 15; slot++ {
		_, err := store.AddAncestor(ctx, &research.Ancestor{
			JobID:           "mem-delete-1",
			AscNumber:       slot,
			Generation:      research.GenerationOf(slot),
			Name:            fmt.Sprintf("Person %d", slot),
			Gender:          research.GenderFor(slot),
			ConfidenceLevel: research.LevelProbable,
		})
		if err != nil {
			t.Fatalf("failed to seed slot %d: %v", slot, err)
		}
	}

	deleted, err := store.DeleteDescendantAncestors(ctx, "mem-delete-1", 3)
	if err != nil {
		t.Fatalf("DeleteDescendantAncestors() error = %v", err)
	}

	// Subtree of 3 is 3, 6, 7, 12, 13, 14, 15
	if len(deleted) != 7 {
		t.Errorf("deleted %d rows, want 7", len(deleted))
	}

	remaining, err := store.GetAncestors(ctx, "mem-delete-1")
	if err != nil {
		t.Fatalf("GetAncestors() error = %v", err)
	}

	want := map[int]bool{1: true, 2: true, 4: true, 5: true, 8: true, 9: true, 10: true, 11: true}

	for _, ancestor := range remaining {
		if !want[ancestor.AscNumber] {
			t.Errorf("slot %d should have been deleted", ancestor.AscNumber)
		}

		delete(want, ancestor.AscNumber)
	}

	if len(want) != 0 {
		t.Errorf("missing surviving slots: %v", want)
	}

	// The root of the deleted subtree is gone too
	if _, err := store.GetAncestorByAscNumber(ctx, "mem-delete-1", 3); !errors.Is(err, research.ErrAncestorNotFound) {
		t.Errorf("GetAncestorByAscNumber(3) error = %v, want ErrAncestorNotFound", err)
	}

	deleted, err = store.DeleteDescendantAncestors(ctx, "mem-delete-1", 3)
	if err != nil {
		t.Fatalf("DeleteDescendantAncestors(again) error = %v", err)
	}

	if len(deleted) != 0 {
		t.Errorf("second delete removed %d rows, want 0", len(deleted))
	}
}

func TestMemoryStoreCopyIsolation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	store := newSeededMemoryStore(t, "mem-isolation-1")

	_, err := store.AddAncestor(ctx, &research.Ancestor{
		JobID:           "mem-isolation-1",
		AscNumber:       2,
		Name:            "Arthur Whitfield",
		Gender:          research.GenderMale,
		ConfidenceLevel: research.LevelVerified,
		Evidence: []research.EvidenceRecord{
			{Kind: research.EvidenceBirth, Source: "GRO Birth Index", Weight: 25},
		},
	})
	if err != nil {
		t.Fatalf("AddAncestor() error = %v", err)
	}

	// Mutating a returned copy must not leak into the store
	fetched, err := store.GetAncestorByAscNumber(ctx, "mem-isolation-1", 2)
	if err != nil {
		t.Fatalf("GetAncestorByAscNumber() error = %v", err)
	}

	fetched.Name = "Mutated"
	fetched.Evidence[0].Weight = 0

	again, err := store.GetAncestorByAscNumber(ctx, "mem-isolation-1", 2)
	if err != nil {
		t.Fatalf("GetAncestorByAscNumber() error = %v", err)
	}

	if again.Name != "Arthur Whitfield" {
		t.Errorf("stored name mutated through returned copy: %q", again.Name)
	}

	if again.Evidence[0].Weight != 25 {
		t.Errorf("stored evidence mutated through returned copy: %+v", again.Evidence[0])
	}

	job, err := store.GetResearchJob(ctx, "mem-isolation-1")
	if err != nil {
		t.Fatalf("GetResearchJob() error = %v", err)
	}

	job.Subject.Surname = "Mutated"

	jobAgain, err := store.GetResearchJob(ctx, "mem-isolation-1")
	if err != nil {
		t.Fatalf("GetResearchJob() error = %v", err)
	}

	if jobAgain.Subject.Surname != "Whitfield" {
		t.Errorf("stored job mutated through returned copy: %q", jobAgain.Subject.Surname)
	}
}

func TestMemoryStoreCandidatesAndSettings(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()
	store := newSeededMemoryStore(t, "mem-misc-1")

	for _, rank := range []int{2, 1} {
		err := store.AddSearchCandidate(ctx, &research.SearchCandidate{
			JobID:     "mem-misc-1",
			AscNumber: 2,
			Rank:      rank,
			Surname:   "Whitfield",
			BirthYear: 1923,
			Score:     90 - rank,
		})
		if err != nil {
			t.Fatalf("AddSearchCandidate(rank %d) error = %v", rank, err)
		}
	}

	candidates, err := store.GetSearchCandidates(ctx, "mem-misc-1", 2)
	if err != nil {
		t.Fatalf("GetSearchCandidates() error = %v", err)
	}

	if len(candidates) != 2 || candidates[0].Rank != 1 || candidates[1].Rank != 2 {
		t.Errorf("candidates not rank ordered: %+v", candidates)
	}

	if err := store.DeleteSearchCandidates(ctx, "mem-misc-1"); err != nil {
		t.Fatalf("DeleteSearchCandidates() error = %v", err)
	}

	candidates, err = store.GetSearchCandidates(ctx, "mem-misc-1", 2)
	if err != nil {
		t.Fatalf("GetSearchCandidates() after delete error = %v", err)
	}

	if len(candidates) != 0 {
		t.Errorf("candidates after delete = %d, want 0", len(candidates))
	}

	if err := store.AddRejectedTreeID(ctx, "mem-misc-1", "tree-9"); err != nil {
		t.Fatalf("AddRejectedTreeID() error = %v", err)
	}

	rejected, err := store.GetRejectedTreeIDs(ctx, "mem-misc-1")
	if err != nil {
		t.Fatalf("GetRejectedTreeIDs() error = %v", err)
	}

	if !rejected["tree-9"] {
		t.Errorf("rejected = %v, want tree-9 present", rejected)
	}

	if _, err := store.GetSetting(ctx, "absent"); !errors.Is(err, research.ErrSettingNotFound) {
		t.Errorf("GetSetting(absent) error = %v, want ErrSettingNotFound", err)
	}

	if err := store.SetSetting(ctx, "search.rate_limit", "10"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}

	value, err := store.GetSetting(ctx, "search.rate_limit")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}

	if value != "10" {
		t.Errorf("GetSetting() = %q, want 10", value)
	}
}
