package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are quoted to avoid SQL injection via identifiers.
// - Update is a single conditional UPDATE on (id, version); no row locks are held
//   between read and write.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// DefaultSchema is the schema used when WithSchema is not given.
const DefaultSchema = "basecampy"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store.
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Schema returns the schema the store reads and writes.
func (s *PostgresStore) Schema() string { return s.schema }

const pgRecordColumns = `id, username, email, full_name, avatar_url, avatar_local_path,
		        password_hash, refresh_token_hash, email_verified,
		        email_verification_token_hash, email_verification_expires_at,
		        password_reset_token_hash, password_reset_expires_at,
		        version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec Record) (Record, error) {
	const op = "identity.PostgresStore.Create"

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := rec.validateForStore(op); err != nil {
		return Record{}, err
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.Version = 1

	evHash, evExp := pgPending(rec.EmailVerification)
	prHash, prExp := pgPending(rec.PasswordReset)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+pgRecordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID,
		rec.Username,
		rec.Email,
		rec.FullName,
		rec.Avatar.URL,
		rec.Avatar.LocalPath,
		rec.PasswordHash,
		pgNullString(rec.RefreshTokenHash),
		rec.EmailVerified,
		evHash, evExp,
		prHash, prExp,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Record{}, ConflictError{Op: op, Field: field}
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Record, error) {
	return s.getBy(ctx, "identity.PostgresStore.GetByID", "id", strings.TrimSpace(id))
}

func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (Record, error) {
	return s.getBy(ctx, "identity.PostgresStore.GetByUsername", "username", NormalizeUsername(username))
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	return s.getBy(ctx, "identity.PostgresStore.GetByEmail", "email", NormalizeEmail(email))
}

// getBy looks up one row by a unique column. column is never user input.
func (s *PostgresStore) getBy(ctx context.Context, op, column, value string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if value == "" {
		return Record{}, notFound(op)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRecordColumns+`
		   FROM `+s.table()+`
		  WHERE `+pgx.Identifier{column}.Sanitize()+` = $1`,
		value,
	)
	rec, err := pgScanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, notFound(op)
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec Record) (Record, error) {
	const op = "identity.PostgresStore.Update"

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := rec.validateForStore(op); err != nil {
		return Record{}, err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	evHash, evExp := pgPending(rec.EmailVerification)
	prHash, prExp := pgPending(rec.PasswordReset)

	// Username and email are matched, not written: they are immutable here.
	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET full_name = $4,
		        avatar_url = $5,
		        avatar_local_path = $6,
		        password_hash = $7,
		        refresh_token_hash = $8,
		        email_verified = $9,
		        email_verification_token_hash = $10,
		        email_verification_expires_at = $11,
		        password_reset_token_hash = $12,
		        password_reset_expires_at = $13,
		        updated_at = $14,
		        version = version + 1
		  WHERE id = $1
		    AND version = $2
		    AND username = $3
		    AND email = $15
		  RETURNING version, created_at`,
		rec.ID,
		rec.Version,
		rec.Username,
		rec.FullName,
		rec.Avatar.URL,
		rec.Avatar.LocalPath,
		rec.PasswordHash,
		pgNullString(rec.RefreshTokenHash),
		rec.EmailVerified,
		evHash, evExp,
		prHash, prExp,
		rec.UpdatedAt,
		rec.Email,
	)

	var (
		version   int64
		createdAt time.Time
	)
	if err := row.Scan(&version, &createdAt); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, s.classifyMissedUpdate(ctx, op, rec)
	}

	rec.Version = version
	rec.CreatedAt = createdAt
	return rec, nil
}

// classifyMissedUpdate explains why a conditional UPDATE matched no row.
func (s *PostgresStore) classifyMissedUpdate(ctx context.Context, op string, rec Record) error {
	var username, email string
	err := s.pool.QueryRow(ctx,
		`SELECT username, email FROM `+s.table()+` WHERE id = $1`,
		rec.ID,
	).Scan(&username, &email)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound(op)
	case err != nil:
		return err
	case username != rec.Username || email != rec.Email:
		return invalid(op, "username and email are immutable")
	default:
		return versionConflict(op)
	}
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "identities")
}

// ---- helpers ----

func pgScanRecord(row pgx.Row) (Record, error) {
	var (
		rec         Record
		refreshHash *string
		evHash      *string
		evExpiresAt *time.Time
		prHash      *string
		prExpiresAt *time.Time
	)
	err := row.Scan(
		&rec.ID,
		&rec.Username,
		&rec.Email,
		&rec.FullName,
		&rec.Avatar.URL,
		&rec.Avatar.LocalPath,
		&rec.PasswordHash,
		&refreshHash,
		&rec.EmailVerified,
		&evHash,
		&evExpiresAt,
		&prHash,
		&prExpiresAt,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}

	if refreshHash != nil {
		rec.RefreshTokenHash = *refreshHash
	}
	rec.EmailVerification = pgPendingFromRow(evHash, evExpiresAt)
	rec.PasswordReset = pgPendingFromRow(prHash, prExpiresAt)
	return rec, nil
}

func pgPending(p *PendingToken) (*string, *time.Time) {
	if p == nil || p.Hash == "" {
		return nil, nil
	}
	h := p.Hash
	exp := p.ExpiresAt
	return &h, &exp
}

func pgPendingFromRow(hash *string, expiresAt *time.Time) *PendingToken {
	if hash == nil || expiresAt == nil {
		return nil
	}
	return &PendingToken{Hash: *hash, ExpiresAt: expiresAt.UTC()}
}

func pgNullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_identities_username":
		return "username", true
	case "uq_identities_email":
		return "email", true
	case "identities_pkey":
		return "id", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		default:
			return "unique", true
		}
	}
}
