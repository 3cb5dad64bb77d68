package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rootline-io/rootline/internal/config"
	"github.com/rootline-io/rootline/internal/research"
)

// Sentinel errors for research persistence operations.
var (
	// ErrResearchStoreFailed is returned when a research storage operation fails.
	ErrResearchStoreFailed = errors.New("research storage failed")

	// Compile-time check that the store satisfies the engine's persistence
	// contract.
	_ research.Repository = (*ResearchStore)(nil)
)

type (
	// ResearchStore implements research.Repository with a PostgreSQL
	// backend. Jobs, ancestors, search candidates, rejected tree ids and
	// engine settings all live here.
	//
	// Concurrency: the engine serializes writes per slot but jobs run
	// concurrently, so every status change and ancestor upsert goes
	// through a transaction with a row lock on the current state.
	ResearchStore struct {
		conn   *Connection
		logger *slog.Logger
	}

	// jobStatusRow holds the locked status of an existing job.
	jobStatusRow struct {
		exists bool
		status research.JobStatus
	}

	// ancestorGuard holds the locked identity of an existing ancestor
	// slot, fetched before any write that could replace it.
	ancestorGuard struct {
		exists bool
		id     string
		level  research.ConfidenceLevel
	}

	// subjectDTO is the JSONB shape of the customer-provided subject.
	subjectDTO struct {
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

	// evidenceDTO is the JSONB shape of one evidence record.
	evidenceDTO struct {
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
)

// NewResearchStore creates a PostgreSQL-backed research repository on an
// established connection. Returns ErrNoDatabaseConnection if conn is nil.
func NewResearchStore(conn *Connection) (*ResearchStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	})).With(slog.String("component", "storage"))

	return &ResearchStore{
		conn:   conn,
		logger: logger,
	}, nil
}

// HealthCheck verifies the database connection is healthy and ready to serve
// requests. Used by readiness probes and the health endpoints.
func (s *ResearchStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// CreateResearchJob validates and persists a new research job in pending
// state. Returns research.ErrDuplicateJob when the job id already exists.
func (s *ResearchStore) CreateResearchJob(
	ctx context.Context,
	req research.JobRequest,
) (*research.ResearchJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	subjectJSON, err := json.Marshal(subjectToDTO(req.Subject))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize subject: %w", ErrResearchStoreFailed, err)
	}

	query := `
		INSERT INTO research_jobs (id, subject, generations, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	var createdAt, updatedAt time.Time

	err = s.conn.QueryRowContext(ctx, query, jobID, subjectJSON, req.Generations, string(research.JobPending)).
		Scan(&createdAt, &updatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, research.ErrDuplicateJob
		}

		return nil, fmt.Errorf("%w: failed to create research job: %w", ErrResearchStoreFailed, err)
	}

	s.logger.Info("research job created",
		slog.String("job_id", jobID),
		slog.Int("generations", req.Generations),
	)

	return &research.ResearchJob{
		ID:          jobID,
		Subject:     req.Subject,
		Generations: req.Generations,
		Status:      research.JobPending,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// GetResearchJob retrieves a job by id. Returns research.ErrJobNotFound when
// no job exists.
func (s *ResearchStore) GetResearchJob(ctx context.Context, jobID string) (*research.ResearchJob, error) {
	query := `
		SELECT id, subject, generations, status, progress_message, progress_current,
		       progress_total, error_message, summary, created_at, updated_at
		FROM research_jobs
		WHERE id = $1
	`

	job, err := scanResearchJob(s.conn.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, research.ErrJobNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to get research job: %w", ErrResearchStoreFailed, err)
	}

	return job, nil
}

// ListResearchJobs returns all jobs, newest first.
func (s *ResearchStore) ListResearchJobs(ctx context.Context) ([]*research.ResearchJob, error) {
	query := `
		SELECT id, subject, generations, status, progress_message, progress_current,
		       progress_total, error_message, summary, created_at, updated_at
		FROM research_jobs
		ORDER BY created_at DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list research jobs: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	jobs := []*research.ResearchJob{}

	for rows.Next() {
		job, err := scanResearchJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan research job: %w", ErrResearchStoreFailed, err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating research jobs: %w", ErrResearchStoreFailed, err)
	}

	return jobs, nil
}

// UpdateResearchJob applies a partial update to a job. Status changes are
// validated against the job lifecycle under a row lock, so two concurrent
// writers cannot both move the same job.
func (s *ResearchStore) UpdateResearchJob(ctx context.Context, jobID string, update research.JobUpdate) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	current, err := fetchJobStatus(ctx, tx, jobID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResearchStoreFailed, err)
	}

	if !current.exists {
		return research.ErrJobNotFound
	}

	if update.Status != nil {
		if err := research.ValidateJobTransition(current.status, *update.Status, update.ViaReResearch); err != nil {
			return err
		}
	}

	var summaryJSON []byte

	if update.Summary != nil {
		summaryJSON, err = json.Marshal(update.Summary)
		if err != nil {
			return fmt.Errorf("%w: failed to serialize summary: %w", ErrResearchStoreFailed, err)
		}
	}

	query := `
		UPDATE research_jobs
		SET status = COALESCE($2, status),
		    error_message = COALESCE($3, error_message),
		    summary = COALESCE($4, summary),
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err = tx.ExecContext(ctx, query,
		jobID,
		nullString((*string)(update.Status)),
		nullString(update.ErrorMessage),
		summaryJSON,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update research job: %w", ErrResearchStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit job update: %w", ErrResearchStoreFailed, err)
	}

	return nil
}

// UpdateJobProgress records the per-slot progress of a running job. Polled
// by the API, so this stays a single cheap statement.
func (s *ResearchStore) UpdateJobProgress(ctx context.Context, jobID, message string, current, total int) error {
	query := `
		UPDATE research_jobs
		SET progress_message = $2, progress_current = $3, progress_total = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.conn.ExecContext(ctx, query, jobID, message, current, total)
	if err != nil {
		return fmt.Errorf("%w: failed to update job progress: %w", ErrResearchStoreFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %w", ErrResearchStoreFailed, err)
	}

	if rowsAffected == 0 {
		return research.ErrJobNotFound
	}

	return nil
}

// AddAncestor upserts an ancestor keyed on (job_id, asc_number). An existing
// customer-data occupant is never replaced by engine output; the upsert
// returns research.ErrCustomerDataProtected instead.
func (s *ResearchStore) AddAncestor(ctx context.Context, ancestor *research.Ancestor) (*research.Ancestor, error) {
	if ancestor == nil {
		return nil, fmt.Errorf("%w: ancestor cannot be nil", ErrResearchStoreFailed)
	}

	stored := *ancestor
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	guard, err := fetchAncestorGuard(ctx, tx, stored.JobID, stored.AscNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResearchStoreFailed, err)
	}

	if guard.exists && guard.level == research.LevelCustomerData &&
		stored.ConfidenceLevel != research.LevelCustomerData {
		return nil, research.ErrCustomerDataProtected
	}

	evidenceJSON, err := evidenceToJSON(stored.Evidence)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize evidence: %w", ErrResearchStoreFailed, err)
	}

	searchLogJSON, err := stringsToJSON(stored.SearchLog)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize search log: %w", ErrResearchStoreFailed, err)
	}

	sourcesJSON, err := stringsToJSON(stored.Sources)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize sources: %w", ErrResearchStoreFailed, err)
	}

	// On conflict the row keeps its original id and created_at; everything
	// else is replaced by the new identification.
	query := `
		INSERT INTO ancestors (
			id, job_id, asc_number, generation, name, gender,
			birth_date, birth_place, death_date, death_place,
			confidence_level, confidence_score, evidence, search_log, sources,
			verification_notes, tree_person_id, father_name, mother_name, mother_maiden_surname
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (job_id, asc_number) DO UPDATE SET
			name = EXCLUDED.name,
			gender = EXCLUDED.gender,
			birth_date = EXCLUDED.birth_date,
			birth_place = EXCLUDED.birth_place,
			death_date = EXCLUDED.death_date,
			death_place = EXCLUDED.death_place,
			confidence_level = EXCLUDED.confidence_level,
			confidence_score = EXCLUDED.confidence_score,
			evidence = EXCLUDED.evidence,
			search_log = EXCLUDED.search_log,
			sources = EXCLUDED.sources,
			verification_notes = EXCLUDED.verification_notes,
			tree_person_id = EXCLUDED.tree_person_id,
			father_name = EXCLUDED.father_name,
			mother_name = EXCLUDED.mother_name,
			mother_maiden_surname = EXCLUDED.mother_maiden_surname,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, query,
		stored.ID,
		stored.JobID,
		stored.AscNumber,
		stored.Generation,
		stored.Name,
		string(stored.Gender),
		stored.BirthDate,
		stored.BirthPlace,
		stored.DeathDate,
		stored.DeathPlace,
		string(stored.ConfidenceLevel),
		stored.ConfidenceScore,
		evidenceJSON,
		searchLogJSON,
		sourcesJSON,
		stored.VerificationNotes,
		stored.TreePersonID,
		stored.FatherName,
		stored.MotherName,
		stored.MotherMaidenSurname,
	).Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert ancestor: %w", ErrResearchStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit ancestor upsert: %w", ErrResearchStoreFailed, err)
	}

	s.logger.Debug("ancestor stored",
		slog.String("job_id", stored.JobID),
		slog.Int("asc_number", stored.AscNumber),
		slog.String("confidence_level", string(stored.ConfidenceLevel)),
	)

	return &stored, nil
}

// GetAncestorByAscNumber retrieves the occupant of one slot. Returns
// research.ErrAncestorNotFound when the slot is empty.
func (s *ResearchStore) GetAncestorByAscNumber(
	ctx context.Context,
	jobID string,
	ascNumber int,
) (*research.Ancestor, error) {
	query := selectAncestorQuery + ` WHERE job_id = $1 AND asc_number = $2`

	ancestor, err := scanAncestor(s.conn.QueryRowContext(ctx, query, jobID, ascNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, research.ErrAncestorNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to get ancestor: %w", ErrResearchStoreFailed, err)
	}

	return ancestor, nil
}

// GetAncestorByID retrieves an ancestor by its row id.
func (s *ResearchStore) GetAncestorByID(ctx context.Context, id string) (*research.Ancestor, error) {
	query := selectAncestorQuery + ` WHERE id = $1`

	ancestor, err := scanAncestor(s.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, research.ErrAncestorNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to get ancestor: %w", ErrResearchStoreFailed, err)
	}

	return ancestor, nil
}

// GetAncestors returns all ancestors of a job ordered by ascendancy number.
func (s *ResearchStore) GetAncestors(ctx context.Context, jobID string) ([]*research.Ancestor, error) {
	query := selectAncestorQuery + ` WHERE job_id = $1 ORDER BY asc_number ASC`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query ancestors: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	ancestors := []*research.Ancestor{}

	for rows.Next() {
		ancestor, err := scanAncestor(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan ancestor: %w", ErrResearchStoreFailed, err)
		}

		ancestors = append(ancestors, ancestor)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating ancestors: %w", ErrResearchStoreFailed, err)
	}

	return ancestors, nil
}

// UpdateAncestorByAscNumber applies a partial update to one slot. On a
// customer-data occupant only enrichment fields may change; attempts to
// touch the name, level or score return research.ErrCustomerDataProtected.
func (s *ResearchStore) UpdateAncestorByAscNumber(
	ctx context.Context,
	jobID string,
	ascNumber int,
	update research.AncestorUpdate,
) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	guard, err := fetchAncestorGuard(ctx, tx, jobID, ascNumber)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResearchStoreFailed, err)
	}

	if !guard.exists {
		return research.ErrAncestorNotFound
	}

	if guard.level == research.LevelCustomerData {
		if update.Name != nil || update.ConfidenceLevel != nil || update.ConfidenceScore != nil {
			return research.ErrCustomerDataProtected
		}
	}

	evidenceJSON, err := optionalEvidenceJSON(update.Evidence)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize evidence: %w", ErrResearchStoreFailed, err)
	}

	searchLogJSON, err := optionalStringsJSON(update.SearchLog)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize search log: %w", ErrResearchStoreFailed, err)
	}

	sourcesJSON, err := optionalStringsJSON(update.Sources)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize sources: %w", ErrResearchStoreFailed, err)
	}

	query := `
		UPDATE ancestors
		SET name = COALESCE($3, name),
		    birth_date = COALESCE($4, birth_date),
		    birth_place = COALESCE($5, birth_place),
		    death_date = COALESCE($6, death_date),
		    death_place = COALESCE($7, death_place),
		    confidence_level = COALESCE($8, confidence_level),
		    confidence_score = COALESCE($9, confidence_score),
		    evidence = COALESCE($10, evidence),
		    search_log = COALESCE($11, search_log),
		    sources = COALESCE($12, sources),
		    verification_notes = COALESCE($13, verification_notes),
		    tree_person_id = COALESCE($14, tree_person_id),
		    father_name = COALESCE($15, father_name),
		    mother_name = COALESCE($16, mother_name),
		    mother_maiden_surname = COALESCE($17, mother_maiden_surname),
		    updated_at = NOW()
		WHERE job_id = $1 AND asc_number = $2
	`

	_, err = tx.ExecContext(ctx, query,
		jobID,
		ascNumber,
		nullString(update.Name),
		nullString(update.BirthDate),
		nullString(update.BirthPlace),
		nullString(update.DeathDate),
		nullString(update.DeathPlace),
		nullString((*string)(update.ConfidenceLevel)),
		nullInt(update.ConfidenceScore),
		evidenceJSON,
		searchLogJSON,
		sourcesJSON,
		nullString(update.VerificationNotes),
		nullString(update.TreePersonID),
		nullString(update.FatherName),
		nullString(update.MotherName),
		nullString(update.MotherMaidenSurname),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update ancestor: %w", ErrResearchStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit ancestor update: %w", ErrResearchStoreFailed, err)
	}

	return nil
}

// DeleteDescendantAncestors removes the subtree rooted at ascNumber,
// including the root slot itself, and returns the deleted row ids. The
// subtree of A is every slot A*2^k + r with k >= 0 and 0 <= r < 2^k.
func (s *ResearchStore) DeleteDescendantAncestors(
	ctx context.Context,
	jobID string,
	ascNumber int,
) ([]string, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, asc_number FROM ancestors WHERE job_id = $1 FOR UPDATE`, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query ancestor slots: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	deleted := []string{}

	for rows.Next() {
		var (
			id   string
			slot int
		)

		if err := rows.Scan(&id, &slot); err != nil {
			return nil, fmt.Errorf("%w: failed to scan ancestor slot: %w", ErrResearchStoreFailed, err)
		}

		if research.InSubtree(slot, ascNumber) {
			deleted = append(deleted, id)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating ancestor slots: %w", ErrResearchStoreFailed, err)
	}

	if len(deleted) > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM ancestors WHERE job_id = $1 AND id = ANY($2)`, jobID, pq.Array(deleted))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to delete ancestors: %w", ErrResearchStoreFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit ancestor delete: %w", ErrResearchStoreFailed, err)
	}

	s.logger.Info("ancestor subtree deleted",
		slog.String("job_id", jobID),
		slog.Int("asc_number", ascNumber),
		slog.Int("deleted", len(deleted)),
	)

	return deleted, nil
}

// AddSearchCandidate persists one step-one birth-index candidate. Keyed on
// (job_id, asc_number, rank) so a re-run replaces the previous ranking.
func (s *ResearchStore) AddSearchCandidate(ctx context.Context, candidate *research.SearchCandidate) error {
	if candidate == nil {
		return fmt.Errorf("%w: search candidate cannot be nil", ErrResearchStoreFailed)
	}

	id := candidate.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO search_candidates (
			id, job_id, asc_number, rank, surname, forenames, birth_year,
			quarter, district, volume, page, mother_maiden_surname, score
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (job_id, asc_number, rank) DO UPDATE SET
			surname = EXCLUDED.surname,
			forenames = EXCLUDED.forenames,
			birth_year = EXCLUDED.birth_year,
			quarter = EXCLUDED.quarter,
			district = EXCLUDED.district,
			volume = EXCLUDED.volume,
			page = EXCLUDED.page,
			mother_maiden_surname = EXCLUDED.mother_maiden_surname,
			score = EXCLUDED.score
	`

	_, err := s.conn.ExecContext(ctx, query,
		id,
		candidate.JobID,
		candidate.AscNumber,
		candidate.Rank,
		candidate.Surname,
		candidate.Forenames,
		candidate.BirthYear,
		candidate.Quarter,
		candidate.District,
		candidate.Volume,
		candidate.Page,
		candidate.MotherMaidenSurname,
		candidate.Score,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to store search candidate: %w", ErrResearchStoreFailed, err)
	}

	return nil
}

// GetSearchCandidates returns the persisted candidates for one slot ordered
// by rank.
func (s *ResearchStore) GetSearchCandidates(
	ctx context.Context,
	jobID string,
	ascNumber int,
) ([]*research.SearchCandidate, error) {
	query := `
		SELECT id, job_id, asc_number, rank, surname, forenames, birth_year,
		       quarter, district, volume, page, mother_maiden_surname, score
		FROM search_candidates
		WHERE job_id = $1 AND asc_number = $2
		ORDER BY rank ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, jobID, ascNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query search candidates: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	candidates := []*research.SearchCandidate{}

	for rows.Next() {
		var candidate research.SearchCandidate

		err := rows.Scan(
			&candidate.ID,
			&candidate.JobID,
			&candidate.AscNumber,
			&candidate.Rank,
			&candidate.Surname,
			&candidate.Forenames,
			&candidate.BirthYear,
			&candidate.Quarter,
			&candidate.District,
			&candidate.Volume,
			&candidate.Page,
			&candidate.MotherMaidenSurname,
			&candidate.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan search candidate: %w", ErrResearchStoreFailed, err)
		}

		candidates = append(candidates, &candidate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating search candidates: %w", ErrResearchStoreFailed, err)
	}

	return candidates, nil
}

// DeleteSearchCandidates removes all persisted candidates for a job.
func (s *ResearchStore) DeleteSearchCandidates(ctx context.Context, jobID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM search_candidates WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete search candidates: %w", ErrResearchStoreFailed, err)
	}

	return nil
}

// GetRejectedTreeIDs returns the set of externally-rejected tree person ids
// for a job. The engine loads this once at construction and treats it as
// read-only for the run.
func (s *ResearchStore) GetRejectedTreeIDs(ctx context.Context, jobID string) (map[string]bool, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT tree_person_id FROM rejected_tree_persons WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query rejected tree ids: %w", ErrResearchStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	rejected := make(map[string]bool)

	for rows.Next() {
		var treePersonID string

		if err := rows.Scan(&treePersonID); err != nil {
			return nil, fmt.Errorf("%w: failed to scan rejected tree id: %w", ErrResearchStoreFailed, err)
		}

		rejected[treePersonID] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating rejected tree ids: %w", ErrResearchStoreFailed, err)
	}

	return rejected, nil
}

// AddRejectedTreeID records a tree person id the next run of a job must not
// attach again. Recording the same id twice is a no-op.
func (s *ResearchStore) AddRejectedTreeID(ctx context.Context, jobID, treePersonID string) error {
	if treePersonID == "" {
		return nil
	}

	query := `
		INSERT INTO rejected_tree_persons (job_id, tree_person_id)
		VALUES ($1, $2)
		ON CONFLICT (job_id, tree_person_id) DO NOTHING
	`

	_, err := s.conn.ExecContext(ctx, query, jobID, treePersonID)
	if err != nil {
		return fmt.Errorf("%w: failed to record rejected tree id: %w", ErrResearchStoreFailed, err)
	}

	return nil
}

// GetSetting returns the value for a settings key. Returns
// research.ErrSettingNotFound when the key has no value.
func (s *ResearchStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string

	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM engine_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", research.ErrSettingNotFound
	}

	if err != nil {
		return "", fmt.Errorf("%w: failed to get setting: %w", ErrResearchStoreFailed, err)
	}

	return value, nil
}

// SetSetting stores or replaces a settings value.
func (s *ResearchStore) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO engine_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	_, err := s.conn.ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("%w: failed to set setting: %w", ErrResearchStoreFailed, err)
	}

	return nil
}

// selectAncestorQuery is the shared column list for ancestor reads; callers
// append their WHERE clause.
const selectAncestorQuery = `
	SELECT id, job_id, asc_number, generation, name, gender,
	       birth_date, birth_place, death_date, death_place,
	       confidence_level, confidence_score, evidence, search_log, sources,
	       verification_notes, tree_person_id, father_name, mother_name, mother_maiden_surname,
	       created_at, updated_at
	FROM ancestors`

// fetchJobStatus retrieves the current status of a job with a row lock.
// The lock holds until the surrounding transaction commits or rolls back,
// so the read-validate-write sequence in UpdateResearchJob cannot interleave
// with another writer on the same job.
func fetchJobStatus(ctx context.Context, tx *sql.Tx, jobID string) (jobStatusRow, error) {
	var status string

	query := `
		SELECT status
		FROM research_jobs
		WHERE id = $1
		FOR UPDATE
	`

	err := tx.QueryRowContext(ctx, query, jobID).Scan(&status)

	if errors.Is(err, sql.ErrNoRows) {
		return jobStatusRow{exists: false}, nil
	}

	if err != nil {
		return jobStatusRow{}, fmt.Errorf("failed to fetch job status: %w", err)
	}

	return jobStatusRow{exists: true, status: research.JobStatus(status)}, nil
}

// fetchAncestorGuard retrieves the identity of an existing slot occupant
// with a row lock. Returns exists=false when the slot is empty.
func fetchAncestorGuard(ctx context.Context, tx *sql.Tx, jobID string, ascNumber int) (ancestorGuard, error) {
	var (
		id    string
		level string
	)

	query := `
		SELECT id, confidence_level
		FROM ancestors
		WHERE job_id = $1 AND asc_number = $2
		FOR UPDATE
	`

	err := tx.QueryRowContext(ctx, query, jobID, ascNumber).Scan(&id, &level)

	if errors.Is(err, sql.ErrNoRows) {
		return ancestorGuard{exists: false}, nil
	}

	if err != nil {
		return ancestorGuard{}, fmt.Errorf("failed to fetch ancestor guard: %w", err)
	}

	return ancestorGuard{exists: true, id: id, level: research.ConfidenceLevel(level)}, nil
}

// scanResearchJob scans one research_jobs row.
func scanResearchJob(row rowScanner) (*research.ResearchJob, error) {
	var (
		job         research.ResearchJob
		status      string
		subjectJSON []byte
		summaryJSON []byte
	)

	err := row.Scan(
		&job.ID,
		&subjectJSON,
		&job.Generations,
		&status,
		&job.ProgressMessage,
		&job.ProgressCurrent,
		&job.ProgressTotal,
		&job.ErrorMessage,
		&summaryJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = research.JobStatus(status)

	var subject subjectDTO
	if err := json.Unmarshal(subjectJSON, &subject); err != nil {
		return nil, fmt.Errorf("failed to parse subject: %w", err)
	}

	job.Subject = subjectFromDTO(subject)

	if summaryJSON != nil {
		if err := json.Unmarshal(summaryJSON, &job.Summary); err != nil {
			return nil, fmt.Errorf("failed to parse summary: %w", err)
		}
	}

	return &job, nil
}

// scanAncestor scans one ancestors row including its JSONB chains.
func scanAncestor(row rowScanner) (*research.Ancestor, error) {
	var (
		ancestor      research.Ancestor
		gender        string
		level         string
		evidenceJSON  []byte
		searchLogJSON []byte
		sourcesJSON   []byte
	)

	err := row.Scan(
		&ancestor.ID,
		&ancestor.JobID,
		&ancestor.AscNumber,
		&ancestor.Generation,
		&ancestor.Name,
		&gender,
		&ancestor.BirthDate,
		&ancestor.BirthPlace,
		&ancestor.DeathDate,
		&ancestor.DeathPlace,
		&level,
		&ancestor.ConfidenceScore,
		&evidenceJSON,
		&searchLogJSON,
		&sourcesJSON,
		&ancestor.VerificationNotes,
		&ancestor.TreePersonID,
		&ancestor.FatherName,
		&ancestor.MotherName,
		&ancestor.MotherMaidenSurname,
		&ancestor.CreatedAt,
		&ancestor.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ancestor.Gender = research.Gender(gender)
	ancestor.ConfidenceLevel = research.ConfidenceLevel(level)

	ancestor.Evidence, err = evidenceFromJSON(evidenceJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse evidence: %w", err)
	}

	ancestor.SearchLog, err = stringsFromJSON(searchLogJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search log: %w", err)
	}

	ancestor.Sources, err = stringsFromJSON(sourcesJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sources: %w", err)
	}

	return &ancestor, nil
}

func subjectToDTO(s research.SubjectInput) subjectDTO {
	return subjectDTO{
		GivenName:  s.GivenName,
		Surname:    s.Surname,
		BirthDate:  s.BirthDate,
		BirthPlace: s.BirthPlace,
		DeathDate:  s.DeathDate,
		DeathPlace: s.DeathPlace,
		FatherName: s.FatherName,
		MotherName: s.MotherName,
		Notes:      s.Notes,
	}
}

func subjectFromDTO(d subjectDTO) research.SubjectInput {
	return research.SubjectInput{
		GivenName:  d.GivenName,
		Surname:    d.Surname,
		BirthDate:  d.BirthDate,
		BirthPlace: d.BirthPlace,
		DeathDate:  d.DeathDate,
		DeathPlace: d.DeathPlace,
		FatherName: d.FatherName,
		MotherName: d.MotherName,
		Notes:      d.Notes,
	}
}

// evidenceToJSON serializes an evidence chain for JSONB storage. A nil chain
// becomes an empty array, never SQL NULL.
func evidenceToJSON(records []research.EvidenceRecord) ([]byte, error) {
	dtos := make([]evidenceDTO, 0, len(records))

	for _, record := range records {
		supports := make([]string, 0, len(record.Supports))
		for _, aspect := range record.Supports {
			supports = append(supports, string(aspect))
		}

		dtos = append(dtos, evidenceDTO{
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
		})
	}

	return json.Marshal(dtos)
}

// evidenceFromJSON deserializes a stored evidence chain.
func evidenceFromJSON(data []byte) ([]research.EvidenceRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var dtos []evidenceDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, err
	}

	if len(dtos) == 0 {
		return nil, nil
	}

	records := make([]research.EvidenceRecord, 0, len(dtos))

	for _, dto := range dtos {
		supports := make([]research.Aspect, 0, len(dto.Supports))
		for _, aspect := range dto.Supports {
			supports = append(supports, research.Aspect(aspect))
		}

		records = append(records, research.EvidenceRecord{
			Kind:        research.EvidenceKind(dto.Kind),
			Source:      dto.Source,
			Independent: dto.Independent,
			Year:        dto.Year,
			Quarter:     dto.Quarter,
			District:    dto.District,
			Volume:      dto.Volume,
			Page:        dto.Page,
			Place:       dto.Place,
			Details:     dto.Details,
			Supports:    supports,
			Weight:      dto.Weight,
		})
	}

	return records, nil
}

// optionalEvidenceJSON returns nil for a nil chain so COALESCE keeps the
// stored value; a non-nil chain replaces it.
func optionalEvidenceJSON(records []research.EvidenceRecord) ([]byte, error) {
	if records == nil {
		return nil, nil
	}

	return evidenceToJSON(records)
}

// stringsToJSON serializes a string list for JSONB storage. A nil list
// becomes an empty array, never SQL NULL.
func stringsToJSON(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}

	return json.Marshal(values)
}

// stringsFromJSON deserializes a stored string list.
func stringsFromJSON(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return nil, nil
	}

	return values, nil
}

// optionalStringsJSON returns nil for a nil list so COALESCE keeps the
// stored value; a non-nil list replaces it.
func optionalStringsJSON(values []string) ([]byte, error) {
	if values == nil {
		return nil, nil
	}

	return json.Marshal(values)
}

// nullString converts an optional string into its SQL form.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

// nullInt converts an optional int into its SQL form.
func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation
// (error code 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

// IsConnectionError checks if an error indicates database connection
// failure. Uses PostgreSQL error codes (Class 08 = Connection Exception)
// and standard database/sql errors for robust detection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}
