// Package api provides the HTTP API server for the Rootline service.
package api

import (
	"time"

	"github.com/rootline-io/rootline/internal/research"
)

type (
	// JobResponse represents one research job in API responses.
	// Returned by POST /api/v1/jobs, GET /api/v1/jobs and GET /api/v1/jobs/{id}.
	JobResponse struct {
		ID              string         `json:"id"`
		Subject         SubjectPayload `json:"subject"`
		Generations     int            `json:"generations"`
		Status          string         `json:"status"`
		ProgressMessage string         `json:"progressMessage,omitempty"`
		ProgressCurrent int            `json:"progressCurrent"`
		ProgressTotal   int            `json:"progressTotal"`
		ErrorMessage    string         `json:"errorMessage,omitempty"`
		Summary         map[string]int `json:"summary,omitempty"`
		CreatedAt       time.Time      `json:"createdAt"`
		UpdatedAt       time.Time      `json:"updatedAt"`
	}

	// JobListResponse represents the response for GET /api/v1/jobs.
	JobListResponse struct {
		Jobs  []JobResponse `json:"jobs"`
		Total int           `json:"total"`
	}

	// SubjectPayload carries the customer-provided subject description.
	// Used both in the create request and echoed back in job responses.
	SubjectPayload struct {
		GivenName  string `json:"givenName"`
		Surname    string `json:"surname"`
		BirthDate  string `json:"birthDate,omitempty"`
		BirthPlace string `json:"birthPlace,omitempty"`
		DeathDate  string `json:"deathDate,omitempty"`
		DeathPlace string `json:"deathPlace,omitempty"`
		FatherName string `json:"fatherName,omitempty"`
		MotherName string `json:"motherName,omitempty"`
		Notes      string `json:"notes,omitempty"`
	}

	// CreateJobRequest represents the payload of POST /api/v1/jobs.
	// JobID is optional; a fresh UUID is assigned when omitted.
	CreateJobRequest struct {
		JobID       string         `json:"jobId,omitempty"`
		Generations int            `json:"generations"`
		Subject     SubjectPayload `json:"subject"`
	}

	// ProgressResponse represents the lightweight polling view returned
	// by GET /api/v1/jobs/{id}/progress. Ancestors carry identification
	// state only; evidence chains live on the full ancestors endpoint.
	ProgressResponse struct {
		Status          string            `json:"status"`
		ProgressMessage string            `json:"progressMessage,omitempty"`
		ProgressCurrent int               `json:"progressCurrent"`
		ProgressTotal   int               `json:"progressTotal"`
		Generations     int               `json:"generations"`
		Ancestors       []AncestorSummary `json:"ancestors"`
	}

	// AncestorSummary is the slim per-slot view used for progress polling.
	AncestorSummary struct {
		ID               string `json:"id"`
		AscNumber        int    `json:"ascNumber"`
		Generation       int    `json:"generation"`
		Name             string `json:"name"`
		Gender           string `json:"gender"`
		BirthDate        string `json:"birthDate,omitempty"`
		BirthPlace       string `json:"birthPlace,omitempty"`
		DeathDate        string `json:"deathDate,omitempty"`
		DeathPlace       string `json:"deathPlace,omitempty"`
		ExternalPersonID string `json:"externalPersonId,omitempty"`
		ConfidenceScore  int    `json:"confidenceScore"`
		ConfidenceLevel  string `json:"confidenceLevel"`
	}

	// AncestorListResponse represents the response for
	// GET /api/v1/jobs/{id}/ancestors.
	AncestorListResponse struct {
		JobID     string           `json:"jobId"`
		Ancestors []AncestorDetail `json:"ancestors"`
		Total     int              `json:"total"`
	}

	// AncestorDetail is the full per-slot view including the evidence
	// chain, search log and verification notes.
	AncestorDetail struct {
		AncestorSummary

		Evidence          []EvidenceDetail `json:"evidence"`
		SearchLog         []string         `json:"searchLog,omitempty"`
		Sources           []string         `json:"sources,omitempty"`
		VerificationNotes string           `json:"verificationNotes,omitempty"`
		FatherName        string           `json:"fatherName,omitempty"`
		MotherName        string           `json:"motherName,omitempty"`
		CreatedAt         time.Time        `json:"createdAt"`
		UpdatedAt         time.Time        `json:"updatedAt"`
	}

	// EvidenceDetail is one record in an ancestor's evidence chain.
	EvidenceDetail struct {
		Kind        string   `json:"kind"`
		Source      string   `json:"source"`
		Independent bool     `json:"independent"`
		Year        int      `json:"year,omitempty"`
		Quarter     string   `json:"quarter,omitempty"`
		District    string   `json:"district,omitempty"`
		Volume      string   `json:"volume,omitempty"`
		Page        string   `json:"page,omitempty"`
		Place       string   `json:"place,omitempty"`
		Details     string   `json:"details,omitempty"`
		Supports    []string `json:"supports,omitempty"`
		Weight      int      `json:"weight"`
	}

	// SettingsResponse represents the response for GET /api/v1/settings.
	// Values are masked; this endpoint exists to confirm what is set,
	// never to read secrets back out.
	SettingsResponse struct {
		Settings []SettingEntry `json:"settings"`
	}

	// SettingEntry is one masked credential entry.
	SettingEntry struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		Set   bool   `json:"set"`
	}

	// UpdateSettingRequest represents the payload of PUT /api/v1/settings/{key}.
	UpdateSettingRequest struct {
		Value string `json:"value"`
	}
)

// mapJobResponse converts a domain job to its API representation.
func mapJobResponse(job *research.ResearchJob) JobResponse {
	return JobResponse{
		ID:              job.ID,
		Subject:         mapSubjectPayload(job.Subject),
		Generations:     job.Generations,
		Status:          string(job.Status),
		ProgressMessage: job.ProgressMessage,
		ProgressCurrent: job.ProgressCurrent,
		ProgressTotal:   job.ProgressTotal,
		ErrorMessage:    job.ErrorMessage,
		Summary:         mapSummary(job.Summary),
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

func mapSubjectPayload(subject research.SubjectInput) SubjectPayload {
	return SubjectPayload{
		GivenName:  subject.GivenName,
		Surname:    subject.Surname,
		BirthDate:  subject.BirthDate,
		BirthPlace: subject.BirthPlace,
		DeathDate:  subject.DeathDate,
		DeathPlace: subject.DeathPlace,
		FatherName: subject.FatherName,
		MotherName: subject.MotherName,
		Notes:      subject.Notes,
	}
}

func mapSubjectInput(payload SubjectPayload) research.SubjectInput {
	return research.SubjectInput{
		GivenName:  payload.GivenName,
		Surname:    payload.Surname,
		BirthDate:  payload.BirthDate,
		BirthPlace: payload.BirthPlace,
		DeathDate:  payload.DeathDate,
		DeathPlace: payload.DeathPlace,
		FatherName: payload.FatherName,
		MotherName: payload.MotherName,
		Notes:      payload.Notes,
	}
}

// mapSummary flattens the typed confidence-level counts to plain strings.
// Returns nil for empty summaries so the field is omitted on non-terminal jobs.
func mapSummary(summary map[research.ConfidenceLevel]int) map[string]int {
	if len(summary) == 0 {
		return nil
	}

	out := make(map[string]int, len(summary))
	for level, count := range summary {
		out[string(level)] = count
	}

	return out
}

// mapAncestorSummary converts a domain ancestor to the slim polling view.
func mapAncestorSummary(ancestor *research.Ancestor) AncestorSummary {
	return AncestorSummary{
		ID:               ancestor.ID,
		AscNumber:        ancestor.AscNumber,
		Generation:       ancestor.Generation,
		Name:             ancestor.Name,
		Gender:           string(ancestor.Gender),
		BirthDate:        ancestor.BirthDate,
		BirthPlace:       ancestor.BirthPlace,
		DeathDate:        ancestor.DeathDate,
		DeathPlace:       ancestor.DeathPlace,
		ExternalPersonID: ancestor.TreePersonID,
		ConfidenceScore:  ancestor.ConfidenceScore,
		ConfidenceLevel:  string(ancestor.ConfidenceLevel),
	}
}

// mapAncestorDetail converts a domain ancestor to the full evidence view.
func mapAncestorDetail(ancestor *research.Ancestor) AncestorDetail {
	evidence := make([]EvidenceDetail, 0, len(ancestor.Evidence))
	for _, record := range ancestor.Evidence {
		evidence = append(evidence, mapEvidenceDetail(record))
	}

	return AncestorDetail{
		AncestorSummary:   mapAncestorSummary(ancestor),
		Evidence:          evidence,
		SearchLog:         ancestor.SearchLog,
		Sources:           ancestor.Sources,
		VerificationNotes: ancestor.VerificationNotes,
		FatherName:        ancestor.FatherName,
		MotherName:        ancestor.MotherName,
		CreatedAt:         ancestor.CreatedAt,
		UpdatedAt:         ancestor.UpdatedAt,
	}
}

func mapEvidenceDetail(record research.EvidenceRecord) EvidenceDetail {
	supports := make([]string, 0, len(record.Supports))
	for _, aspect := range record.Supports {
		supports = append(supports, string(aspect))
	}

	return EvidenceDetail{
		Kind:        string(record.Kind),
		Source:      record.Source,
		Independent: record.Independent,
		Year:        record.Year,
		Quarter:     record.Quarter,
		District:    record.District,
		Volume:      record.Volume,
		Page:        record.Page,
		Place:       record.Place,
		Details:     record.Details,
		Supports:    supports,
		Weight:      record.Weight,
	}
}
