package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"jobmate/discovery-service/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const postingColumns = `id::text, source_url, source, external_id, title, company, location,
	description, salary_min, salary_max, salary_currency, employment_type, remote_mode,
	experience_level, skills, requirements, responsibilities, first_seen_at, last_seen_at, posted_at`

// PostgresStore implements every store capability on top of a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ─── Postings ────────────────────────────────────────────────────────────────

// FindByURL returns the posting holding url, or ErrNotFound.
func (s *PostgresStore) FindByURL(ctx context.Context, url string) (*model.Posting, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postingColumns+` FROM job_feed WHERE source_url = $1 AND source_url <> ''`, url)
	return scanPosting(row)
}

// FindFuzzy returns the most recently first-seen posting with the given key
// whose first_seen_at is not before since, or ErrNotFound.
func (s *PostgresStore) FindFuzzy(ctx context.Context, key model.FuzzyKey, since time.Time) (*model.Posting, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postingColumns+` FROM job_feed
		 WHERE norm_title = $1 AND norm_company = $2 AND norm_location = $3
		   AND first_seen_at >= $4
		 ORDER BY first_seen_at DESC, id
		 LIMIT 1`,
		key.Title, key.Company, key.Location, since)
	return scanPosting(row)
}

// GetPosting returns one posting by id.
func (s *PostgresStore) GetPosting(ctx context.Context, id string) (*model.Posting, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+postingColumns+` FROM job_feed WHERE id = $1::uuid`, id)
	return scanPosting(row)
}

// InsertPosting stores p as a new row and returns its id. Under a per-key
// advisory lock it re-checks the URL and fuzzy tiers, so two concurrent
// inserts of the same posting cannot both succeed; the loser gets
// ErrConflict.
func (s *PostgresStore) InsertPosting(ctx context.Context, p *model.Posting, window time.Duration) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	key := p.FuzzyKey()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return "", fmt.Errorf("advisory lock: %w", err)
	}

	var taken bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM job_feed
		   WHERE ($1 <> '' AND source_url = $1)
		      OR (norm_title = $2 AND norm_company = $3 AND norm_location = $4 AND first_seen_at >= $5)
		 )`,
		p.CanonicalURL, key.Title, key.Company, key.Location, p.FirstSeenAt.Add(-window),
	).Scan(&taken)
	if err != nil {
		return "", fmt.Errorf("conflict check: %w", err)
	}
	if taken {
		return "", ErrConflict
	}

	var id string
	err = tx.QueryRow(ctx,
		`INSERT INTO job_feed (
		   source_url, source, external_id, title, company, location, description,
		   norm_title, norm_company, norm_location,
		   salary_min, salary_max, salary_currency, employment_type, remote_mode, experience_level,
		   skills, requirements, responsibilities, first_seen_at, last_seen_at, posted_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		 RETURNING id::text`,
		p.CanonicalURL, string(p.Source), p.ExternalID, p.Title, p.Company, p.Location, p.Description,
		key.Title, key.Company, key.Location,
		nullableFloat(p.Salary.Min), nullableFloat(p.Salary.Max), p.Salary.Currency,
		string(p.EmploymentType), string(p.RemoteMode), string(p.ExperienceLevel),
		nonNil(p.Skills), nonNil(p.Requirements), nonNil(p.Responsibilities),
		p.FirstSeenAt, p.LastSeenAt, p.PostedAt,
	).Scan(&id)
	if err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("insert posting: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// UpdatePosting replaces the descriptive fields of the row p.ID and advances
// last_seen_at. Title, company and location are only replaced when the new
// fuzzy key does not collide with another posting first seen within window
// of p.FirstSeenAt, which must carry the stored value.
func (s *PostgresStore) UpdatePosting(ctx context.Context, p *model.Posting, window time.Duration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	key := p.FuzzyKey()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	var collides bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM job_feed
		   WHERE id <> $1::uuid
		     AND norm_title = $2 AND norm_company = $3 AND norm_location = $4
		     AND first_seen_at BETWEEN $5 AND $6
		 )`,
		p.ID, key.Title, key.Company, key.Location, p.FirstSeenAt.Add(-window), p.FirstSeenAt.Add(window),
	).Scan(&collides)
	if err != nil {
		return fmt.Errorf("collision check: %w", err)
	}

	const setFields = `description = $2, salary_min = $3, salary_max = $4, salary_currency = $5,
		employment_type = $6, remote_mode = $7, experience_level = $8,
		skills = $9, requirements = $10, responsibilities = $11,
		last_seen_at = GREATEST(last_seen_at, $12), posted_at = COALESCE($13, posted_at)`
	args := []any{
		p.ID, p.Description, nullableFloat(p.Salary.Min), nullableFloat(p.Salary.Max), p.Salary.Currency,
		string(p.EmploymentType), string(p.RemoteMode), string(p.ExperienceLevel),
		nonNil(p.Skills), nonNil(p.Requirements), nonNil(p.Responsibilities),
		p.LastSeenAt, p.PostedAt,
	}
	query := `UPDATE job_feed SET ` + setFields + ` WHERE id = $1::uuid`
	if !collides {
		query = `UPDATE job_feed SET ` + setFields + `,
			title = $14, company = $15, location = $16,
			norm_title = $17, norm_company = $18, norm_location = $19
			WHERE id = $1::uuid`
		args = append(args, p.Title, p.Company, p.Location, key.Title, key.Company, key.Location)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update posting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// TouchPosting advances last_seen_at of id to seenAt when it is later.
func (s *PostgresStore) TouchPosting(ctx context.Context, id string, seenAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_feed SET last_seen_at = GREATEST(last_seen_at, $2) WHERE id = $1::uuid`, id, seenAt)
	if err != nil {
		return fmt.Errorf("touch posting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCandidates returns up to limit postings, most recently seen first.
// A limit of zero or less returns every posting.
func (s *PostgresStore) ListCandidates(ctx context.Context, limit int) ([]model.Posting, error) {
	var capped *int
	if limit > 0 {
		capped = &limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postingColumns+` FROM job_feed ORDER BY last_seen_at DESC, id LIMIT $1`, capped)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return collectPostings(rows)
}

// CandidateVersion returns the current max last_seen_at and row count.
func (s *PostgresStore) CandidateVersion(ctx context.Context) (model.SetVersion, error) {
	var (
		v       model.SetVersion
		maxSeen *time.Time
	)
	if err := s.pool.QueryRow(ctx, `SELECT MAX(last_seen_at), COUNT(*) FROM job_feed`).Scan(&maxSeen, &v.Count); err != nil {
		return model.SetVersion{}, fmt.Errorf("candidate version: %w", err)
	}
	if maxSeen != nil {
		v.MaxLastSeen = maxSeen.UTC()
	}
	return v, nil
}

// ListStale returns up to limit postings last seen before cutoff with id
// greater than afterID, ordered by id.
func (s *PostgresStore) ListStale(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]model.Posting, error) {
	if afterID == "" {
		afterID = uuid.Nil.String()
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postingColumns+` FROM job_feed
		 WHERE last_seen_at < $1 AND id > $2::uuid
		 ORDER BY id
		 LIMIT $3`,
		cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	return collectPostings(rows)
}

// DeleteStalePosting deletes id only if it is still older than cutoff and
// no application references it. It reports whether a row was removed.
// Embeddings go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteStalePosting(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM job_feed jf
		 WHERE jf.id = $1::uuid AND jf.last_seen_at < $2
		   AND NOT EXISTS (SELECT 1 FROM applications a WHERE a.job_feed_id = jf.id)`,
		id, cutoff)
	if err != nil {
		// An application inserted after the guard was evaluated.
		if isPgCode(err, pgerrcode.ForeignKeyViolation) {
			return false, nil
		}
		return false, fmt.Errorf("delete posting: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ─── Applications ────────────────────────────────────────────────────────────

// HasApplication reports whether any application references postingID.
func (s *PostgresStore) HasApplication(ctx context.Context, postingID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM applications WHERE job_feed_id = $1::uuid)`, postingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has application: %w", err)
	}
	return exists, nil
}

const applicationColumns = `id::text, user_id, job_feed_id::text, current_status::text, created_at, updated_at`

// CreateApplication records that userID acted on postingID. Recording the
// same pair twice returns the existing row.
func (s *PostgresStore) CreateApplication(ctx context.Context, userID, postingID, status string) (*model.Application, error) {
	if _, err := uuid.Parse(postingID); err != nil {
		return nil, ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO applications (user_id, job_feed_id, current_status)
		 VALUES ($1, $2::uuid, $3::application_status)
		 ON CONFLICT (user_id, job_feed_id) DO UPDATE SET updated_at = NOW()
		 RETURNING `+applicationColumns,
		userID, postingID, status)
	a, err := scanApplication(row)
	if err != nil {
		if isPgCode(err, pgerrcode.ForeignKeyViolation) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("create application: %w", err)
	}
	return a, nil
}

// GetApplication returns one application owned by userID.
func (s *PostgresStore) GetApplication(ctx context.Context, userID, appID string) (*model.Application, error) {
	if _, err := uuid.Parse(appID); err != nil {
		return nil, ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1::uuid AND user_id = $2`, appID, userID)
	a, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// SetApplicationStatus moves an application owned by userID to status.
func (s *PostgresStore) SetApplicationStatus(ctx context.Context, userID, appID, status string) (*model.Application, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE applications SET current_status = $1::application_status, updated_at = NOW()
		 WHERE id = $2::uuid AND user_id = $3
		 RETURNING `+applicationColumns,
		status, appID, userID)
	a, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ─── Read models ─────────────────────────────────────────────────────────────

// GetProfile returns the scoring read model of userID.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var (
		p        model.UserProfile
		workMode string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, primary_title, secondary_titles, seniority, technical_skills, tool_skills,
		        soft_skills, industries, work_mode, experience_summary, red_flags
		 FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(
		&p.UserID, &p.PrimaryTitle, &p.SecondaryTitles, &p.Seniority, &p.TechnicalSkills, &p.ToolSkills,
		&p.SoftSkills, &p.Industries, &workMode, &p.ExperienceSummary, &p.RedFlags,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.WorkMode = model.RemoteMode(workMode)
	return &p, nil
}

// LoadActiveConfigs fetches all is_active = true search configs.
func (s *PostgresStore) LoadActiveConfigs(ctx context.Context) ([]model.SearchConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id, job_titles, locations, remote_policy, keywords, red_flags
		 FROM search_configs
		 WHERE is_active = true
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query search_configs: %w", err)
	}
	defer rows.Close()

	var configs []model.SearchConfig
	for rows.Next() {
		var c model.SearchConfig
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.JobTitles, &c.Locations,
			&c.RemotePolicy, &c.Keywords, &c.RedFlags,
		); err != nil {
			return nil, fmt.Errorf("scan search_config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// ─── Embeddings ──────────────────────────────────────────────────────────────

// LoadEmbeddings returns the cached vectors for the requested postings under
// modelName. want maps posting id to the content hash the caller expects;
// vectors computed from other content are ignored.
func (s *PostgresStore) LoadEmbeddings(ctx context.Context, modelName string, want map[string]string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(want))
	if len(want) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(want))
	for id := range want {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT posting_id::text, content_hash, embedding::text
		 FROM posting_embeddings
		 WHERE model = $1 AND posting_id = ANY($2::text[]::uuid[])`,
		modelName, ids)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, hash, raw string
		if err := rows.Scan(&id, &hash, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if want[id] != hash {
			continue
		}
		var vec pgvector.Vector
		if err := vec.Scan(raw); err != nil {
			return nil, fmt.Errorf("parse embedding %s: %w", id, err)
		}
		out[id] = vec.Slice()
	}
	return out, rows.Err()
}

// SaveEmbeddings upserts vectors keyed by (posting, model).
func (s *PostgresStore) SaveEmbeddings(ctx context.Context, items []model.PostingEmbedding) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range items {
		batch.Queue(
			`INSERT INTO posting_embeddings (posting_id, model, content_hash, embedding)
			 VALUES ($1::uuid, $2, $3, $4::text::vector)
			 ON CONFLICT (posting_id, model)
			 DO UPDATE SET content_hash = EXCLUDED.content_hash, embedding = EXCLUDED.embedding, created_at = NOW()`,
			e.PostingID, e.Model, e.ContentHash, pgvector.NewVector(e.Vector))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			// The posting was retired between scoring and caching.
			if isPgCode(err, pgerrcode.ForeignKeyViolation) {
				continue
			}
			return fmt.Errorf("save embedding: %w", err)
		}
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func scanPosting(row pgx.Row) (*model.Posting, error) {
	var (
		p                                 model.Posting
		source, employment, remote, level string
		salaryMin, salaryMax              *float64
	)
	err := row.Scan(
		&p.ID, &p.CanonicalURL, &source, &p.ExternalID, &p.Title, &p.Company, &p.Location,
		&p.Description, &salaryMin, &salaryMax, &p.Salary.Currency, &employment, &remote,
		&level, &p.Skills, &p.Requirements, &p.Responsibilities, &p.FirstSeenAt, &p.LastSeenAt, &p.PostedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan posting: %w", err)
	}
	p.Source = model.Source(source)
	p.EmploymentType = model.EmploymentType(employment)
	p.RemoteMode = model.RemoteMode(remote)
	p.ExperienceLevel = model.ExperienceLevel(level)
	if salaryMin != nil {
		p.Salary.Min = *salaryMin
	}
	if salaryMax != nil {
		p.Salary.Max = *salaryMax
	}
	p.FirstSeenAt = p.FirstSeenAt.UTC()
	p.LastSeenAt = p.LastSeenAt.UTC()
	return &p, nil
}

func collectPostings(rows pgx.Rows) ([]model.Posting, error) {
	defer rows.Close()
	var out []model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanApplication(row pgx.Row) (*model.Application, error) {
	var a model.Application
	if err := row.Scan(&a.ID, &a.UserID, &a.PostingID, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func nullableFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
