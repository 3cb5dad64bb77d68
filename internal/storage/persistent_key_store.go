package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rootline-io/rootline/internal/config"
)

// Audit log operation names.
const (
	keyCreated = "created"
	keyUpdated = "updated"
	keyDeleted = "deleted"
)

const selectKeyColumns = `id, key_hash, client_id, name, permissions, created_at, expires_at, active`

var _ KeyStore = (*PersistentKeyStore)(nil)

// PersistentKeyStore is the PostgreSQL-backed KeyStore. Keys are stored as
// bcrypt hashes and deletions are soft, so the audit trail stays complete.
type PersistentKeyStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentKeyStore creates a PostgreSQL key store on an established
// connection.
func NewPersistentKeyStore(conn *Connection) (*PersistentKeyStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	})).With(slog.String("component", "storage"))

	return &PersistentKeyStore{conn: conn, logger: logger}, nil
}

// Close releases the connection pool. Safe to call more than once.
func (s *PersistentKeyStore) Close() error {
	if s.conn == nil {
		return nil
	}

	return s.conn.Close()
}

// FindByKey resolves a plaintext key to its record. Bcrypt salts every hash,
// so there is no hash column to look up by; the query returns all active
// rows and the comparison happens here. Acceptable while the key population
// stays small. The returned record carries a masked key, never the hash.
func (s *PersistentKeyStore) FindByKey(ctx context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+selectKeyColumns+` FROM api_keys WHERE active = TRUE`)
	if err != nil {
		return nil, false
	}

	defer func() {
		_ = rows.Close()
	}()

	var match *APIKey

	for rows.Next() {
		candidate, err := scanKeyRow(rows)
		if err != nil {
			continue
		}

		// The scanned Key field holds the stored hash.
		if CompareAPIKeyHash(candidate.Key, key) {
			candidate.Key = MaskKey(candidate.Key)
			match = candidate

			break
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("failed to find key",
			slog.String("key", MaskKey(key)),
			slog.String("error", err.Error()))

		return nil, false
	}

	return match, match != nil
}

// Add hashes and stores a new key. The plaintext is never persisted.
func (s *PersistentKeyStore) Add(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil {
		return ErrKeyNil
	}

	// Hashing the same input twice yields different bcrypt output, so
	// duplicate detection has to go through the comparing lookup.
	if _, found := s.FindByKey(ctx, apiKey.Key); found {
		return ErrKeyAlreadyExists
	}

	keyHash, err := HashAPIKey(apiKey.Key)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	permissions, err := marshalPermissions(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO api_keys (`+selectKeyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		apiKey.ID, keyHash, apiKey.ClientID, apiKey.Name,
		permissions, apiKey.CreatedAt, apiKey.ExpiresAt, apiKey.Active)
	if err != nil {
		return fmt.Errorf("failed to insert API key: %w", err)
	}

	s.audit(ctx, keyCreated, apiKey)

	return nil
}

// Update rewrites the mutable fields of a key: name, permissions, active
// flag and expiry. The hash itself never changes; rotation means a new key.
func (s *PersistentKeyStore) Update(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil {
		return ErrKeyNil
	}

	if apiKey.ID == "" {
		return ErrKeyNotFound
	}

	permissions, err := marshalPermissions(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys
		 SET name = $1, permissions = $2, active = $3, expires_at = $4
		 WHERE id = $5`,
		apiKey.Name, permissions, apiKey.Active, apiKey.ExpiresAt, apiKey.ID)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if err := requireRowHit(result); err != nil {
		return err
	}

	s.audit(ctx, keyUpdated, apiKey)

	return nil
}

// Delete soft-deletes a key by clearing its active flag. The row stays for
// the audit trail.
func (s *PersistentKeyStore) Delete(ctx context.Context, keyID string) error {
	if keyID == "" {
		return ErrKeyNotFound
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET active = FALSE WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	if err := requireRowHit(result); err != nil {
		return err
	}

	s.audit(ctx, keyDeleted, &APIKey{ID: keyID})

	return nil
}

// ListByClient returns the client's active keys, newest first, with masked
// key hashes.
func (s *PersistentKeyStore) ListByClient(ctx context.Context, clientID string) ([]*APIKey, error) {
	if clientID == "" {
		return nil, ErrClientIDEmpty
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+selectKeyColumns+`
		 FROM api_keys
		 WHERE client_id = $1 AND active = TRUE
		 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	keys := []*APIKey{}

	for rows.Next() {
		apiKey, err := scanKeyRow(rows)
		if err != nil {
			continue
		}

		apiKey.Key = MaskKey(apiKey.Key)
		keys = append(keys, apiKey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return keys, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanKeyRow scans one api_keys row. The Key field receives the stored
// hash; callers mask or compare it as appropriate.
func scanKeyRow(row rowScanner) (*APIKey, error) {
	var (
		apiKey      APIKey
		permissions []byte
	)

	err := row.Scan(
		&apiKey.ID,
		&apiKey.Key,
		&apiKey.ClientID,
		&apiKey.Name,
		&permissions,
		&apiKey.CreatedAt,
		&apiKey.ExpiresAt,
		&apiKey.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}

	if err := json.Unmarshal(permissions, &apiKey.Permissions); err != nil {
		return nil, fmt.Errorf("failed to parse permissions: %w", err)
	}

	return &apiKey, nil
}

// marshalPermissions renders a permissions slice for the JSONB column,
// normalizing nil to an empty list.
func marshalPermissions(permissions []string) ([]byte, error) {
	if permissions == nil {
		permissions = []string{}
	}

	return json.Marshal(permissions)
}

// requireRowHit maps a zero-row UPDATE to ErrKeyNotFound.
func requireRowHit(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// audit records a key operation. Audit failures are logged and never fail
// the operation itself.
func (s *PersistentKeyStore) audit(ctx context.Context, operation string, apiKey *APIKey) {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO api_key_audit_log (api_key_id, operation, masked_key, client_id)
		 VALUES ($1, $2, $3, $4)`,
		apiKey.ID, operation, MaskKey(apiKey.Key), apiKey.ClientID)
	if err != nil {
		s.logger.Error("failed to write an audit log entry for API key operation",
			slog.String("operation", operation),
			slog.String("error", err.Error()))
	}
}
