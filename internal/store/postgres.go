package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema. The partial unique index on active jobs is
// what enforces the one-active-job-per-document invariant across processes.
func (s *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS generation_jobs (
			id              UUID PRIMARY KEY,
			document_id     TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			status          TEXT NOT NULL,
			total_pages     INT NOT NULL DEFAULT 0,
			completed_pages INT NOT NULL DEFAULT 0,
			failed_pages    INT NOT NULL DEFAULT 0,
			failures        JSONB NOT NULL DEFAULT '[]',
			queued_at       TIMESTAMPTZ NOT NULL,
			started_at      TIMESTAMPTZ,
			completed_at    TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS generation_jobs_active_doc
			ON generation_jobs (document_id)
			WHERE status IN ('queued', 'processing')`,
		`CREATE INDEX IF NOT EXISTS generation_jobs_doc_queued
			ON generation_jobs (document_id, queued_at DESC)`,
		`CREATE TABLE IF NOT EXISTS page_images (
			document_id TEXT NOT NULL,
			page_number INT NOT NULL,
			width       INT NOT NULL,
			height      INT NOT NULL,
			tiers       JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (document_id, page_number)
		)`,
		`CREATE TABLE IF NOT EXISTS book_covers (
			document_id TEXT PRIMARY KEY,
			is_custom   BOOLEAN NOT NULL,
			path        TEXT NOT NULL,
			width       INT NOT NULL DEFAULT 0,
			height      INT NOT NULL DEFAULT 0,
			size_bytes  BIGINT NOT NULL DEFAULT 0,
			mime_type   TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Postgres) CreateJob(ctx context.Context, job *GenerationJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_jobs (id, document_id, user_id, status, queued_at)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.DocumentID, job.UserID, string(job.Status), job.QueuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation on the active-job partial index
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrJobAlreadyActive
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// encodeFailures marshals failure entries for a jsonb `||` concat. A nil
// slice encodes as the JSON scalar null, which jsonb concat would append as
// a literal null element, so empty input always encodes as an empty array.
func encodeFailures(failures []PageFailure) ([]byte, error) {
	if failures == nil {
		failures = []PageFailure{}
	}
	return json.Marshal(failures)
}

const jobColumns = `id, document_id, user_id, status, total_pages,
	completed_pages, failed_pages, failures, queued_at, started_at, completed_at`

func (s *Postgres) GetJob(ctx context.Context, jobID string) (*GenerationJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func (s *Postgres) LatestJobForDocument(ctx context.Context, documentID string) (*GenerationJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
		 WHERE document_id = $1
		 ORDER BY queued_at DESC LIMIT 1`, documentID)
	return scanJob(row)
}

func scanJob(row pgx.Row) (*GenerationJob, error) {
	var (
		job          GenerationJob
		status       string
		failuresJSON []byte
	)
	err := row.Scan(&job.ID, &job.DocumentID, &job.UserID, &status,
		&job.TotalPages, &job.CompletedPages, &job.FailedPages, &failuresJSON,
		&job.QueuedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = Status(status)
	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &job.Failures); err != nil {
			return nil, fmt.Errorf("failed to decode failure list: %w", err)
		}
	}
	return &job, nil
}

func (s *Postgres) MarkJobProcessing(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, started_at = now()
		WHERE id = $1`, jobID, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Postgres) SetJobTotalPages(ctx context.Context, jobID string, totalPages int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_jobs SET total_pages = $2 WHERE id = $1`,
		jobID, totalPages)
	if err != nil {
		return fmt.Errorf("failed to set total pages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Postgres) IncrementProgress(ctx context.Context, jobID string, completedDelta, failedDelta int, failures []PageFailure) error {
	// Counters are incremented in SQL so concurrent jobs on the same pool
	// never lose updates; the detail list stops growing at the cap.
	if len(failures) == 0 {
		tag, err := s.pool.Exec(ctx, `
			UPDATE generation_jobs
			SET completed_pages = completed_pages + $2,
			    failed_pages    = failed_pages + $3
			WHERE id = $1`,
			jobID, completedDelta, failedDelta)
		if err != nil {
			return fmt.Errorf("failed to increment progress: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrJobNotFound
		}
		return nil
	}

	failuresJSON, err := encodeFailures(failures)
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET completed_pages = completed_pages + $2,
		    failed_pages    = failed_pages + $3,
		    failures = CASE
		        WHEN jsonb_array_length(failures) < $5 THEN failures || $4::jsonb
		        ELSE failures
		    END
		WHERE id = $1`,
		jobID, completedDelta, failedDelta, failuresJSON, MaxFailureDetails)
	if err != nil {
		return fmt.Errorf("failed to increment progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Postgres) FinalizeJob(ctx context.Context, jobID string, status Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, completed_at = now()
		WHERE id = $1`, jobID, string(status))
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Postgres) FailJob(ctx context.Context, jobID string, failure PageFailure) error {
	failureJSON, err := encodeFailures([]PageFailure{failure})
	if err != nil {
		return fmt.Errorf("failed to encode failure: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, completed_at = now(), failures = failures || $3::jsonb
		WHERE id = $1`, jobID, string(StatusFailed), failureJSON)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Postgres) PruneJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM generation_jobs
		WHERE status IN ('completed', 'partial', 'failed') AND queued_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) UnfinishedJobs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM generation_jobs
		WHERE status IN ('queued', 'processing')
		ORDER BY queued_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read unfinished jobs: %w", err)
	}
	return ids, nil
}

func (s *Postgres) RequeueJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $2, total_pages = 0, completed_pages = 0, failed_pages = 0,
		    failures = '[]', started_at = NULL, completed_at = NULL
		WHERE id = $1`, jobID, string(StatusQueued))
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Postgres) UpsertPageImage(ctx context.Context, page *PageImage) error {
	tiersJSON, err := json.Marshal(page.Tiers)
	if err != nil {
		return fmt.Errorf("failed to encode tiers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO page_images (document_id, page_number, width, height, tiers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, page_number)
		DO UPDATE SET width = $3, height = $4, tiers = $5, created_at = $6`,
		page.DocumentID, page.PageNumber, page.Width, page.Height, tiersJSON, page.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert page image: %w", err)
	}
	return nil
}

func (s *Postgres) GetPage(ctx context.Context, documentID string, pageNumber int) (*PageImage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT document_id, page_number, width, height, tiers, created_at
		FROM page_images
		WHERE document_id = $1 AND page_number = $2`,
		documentID, pageNumber)
	return scanPage(row)
}

func (s *Postgres) ListPages(ctx context.Context, documentID string, offset, limit int) ([]*PageImage, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM page_images WHERE document_id = $1`, documentID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count pages: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT document_id, page_number, width, height, tiers, created_at
		FROM page_images
		WHERE document_id = $1
		ORDER BY page_number ASC
		OFFSET $2 LIMIT $3`,
		documentID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*PageImage
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, 0, err
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read pages: %w", err)
	}
	return pages, total, nil
}

func scanPage(row pgx.Row) (*PageImage, error) {
	var (
		page      PageImage
		tiersJSON []byte
	)
	err := row.Scan(&page.DocumentID, &page.PageNumber, &page.Width, &page.Height,
		&tiersJSON, &page.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPageNotFound
		}
		return nil, fmt.Errorf("failed to scan page: %w", err)
	}
	if err := json.Unmarshal(tiersJSON, &page.Tiers); err != nil {
		return nil, fmt.Errorf("failed to decode tiers: %w", err)
	}
	return &page, nil
}

func (s *Postgres) GetCover(ctx context.Context, documentID string) (*BookCover, error) {
	var cover BookCover
	err := s.pool.QueryRow(ctx, `
		SELECT document_id, is_custom, path, width, height, size_bytes, mime_type, updated_at
		FROM book_covers WHERE document_id = $1`, documentID).
		Scan(&cover.DocumentID, &cover.IsCustom, &cover.Path, &cover.Width,
			&cover.Height, &cover.Size, &cover.MimeType, &cover.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCoverNotFound
		}
		return nil, fmt.Errorf("failed to get cover: %w", err)
	}
	return &cover, nil
}

func (s *Postgres) UpsertCover(ctx context.Context, cover *BookCover) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO book_covers (document_id, is_custom, path, width, height, size_bytes, mime_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id)
		DO UPDATE SET is_custom = $2, path = $3, width = $4, height = $5,
		              size_bytes = $6, mime_type = $7, updated_at = $8`,
		cover.DocumentID, cover.IsCustom, cover.Path, cover.Width, cover.Height,
		cover.Size, cover.MimeType, cover.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cover: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteCover(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM book_covers WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete cover: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ Store = (*Postgres)(nil)
