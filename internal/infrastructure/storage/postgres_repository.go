// Package storage persists articles in Postgres.
//
// Expected schema:
//
//	CREATE TABLE articles (
//	    id               TEXT PRIMARY KEY,
//	    title            TEXT NOT NULL DEFAULT '',
//	    author           TEXT NOT NULL DEFAULT '',
//	    description      TEXT NOT NULL DEFAULT '',
//	    content          TEXT NOT NULL,
//	    url              TEXT,
//	    source_type      TEXT NOT NULL,
//	    published_at     TIMESTAMPTZ,
//	    audio_status     TEXT NOT NULL DEFAULT 'none',
//	    audio_ref        TEXT,
//	    audio_updated_at TIMESTAMPTZ,
//	    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/ports"
	apperrors "VoiceScribe/pkg/errors"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository implements ports.ArticleRepository on database/sql.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.ArticleRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const articleColumns = "id, title, author, description, content, url, source_type, published_at, audio_status, audio_ref, created_at, updated_at"

// Save inserts a new article and returns its generated identifier.
func (r *PostgresRepository) Save(ctx context.Context, article domain.Article) (string, error) {
	id := newID()

	query, args, err := psql.Insert("articles").
		Columns("id", "title", "author", "description", "content", "url", "source_type", "published_at", "audio_status").
		Values(id, article.Title, article.Author, article.Description, article.Content,
			nullString(article.URL), string(article.SourceType), article.PublishedAt, string(domain.AudioNone)).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return "", repoErr("insert article", err)
	}
	return id, nil
}

// Get returns one article by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (domain.Article, error) {
	query, args, err := psql.Select(articleColumns).
		From("articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build select: %w", err)
	}

	article, err := scanArticle(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Article{}, apperrors.ErrArticleNotFound
		}
		return domain.Article{}, repoErr("query article", err)
	}
	return article, nil
}

// List returns all articles, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]domain.Article, error) {
	query, args, err := psql.Select(articleColumns).
		From("articles").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repoErr("query articles", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return articles, nil
}

// Update applies an edit to a stored article.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd domain.ArticleUpdate) error {
	builder := psql.Update("articles").
		Set("content", upd.Content).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})
	if upd.Title != nil {
		builder = builder.Set("title", *upd.Title)
	}
	if upd.Author != nil {
		builder = builder.Set("author", *upd.Author)
	}
	if upd.Description != nil {
		builder = builder.Set("description", *upd.Description)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return repoErr("update article", err)
	}
	return requireRow(result)
}

// Delete removes an article.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query, args, err := psql.Delete("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return repoErr("delete article", err)
	}
	return requireRow(result)
}

// UpdateAudioStatus records a terminal or in-flight audio state. The audio
// reference is stored only for the ready state and cleared otherwise,
// keeping the ref-iff-ready invariant inside one statement.
func (r *PostgresRepository) UpdateAudioStatus(ctx context.Context, id string, status domain.AudioStatus, audioRef string) error {
	builder := psql.Update("articles").
		Set("audio_status", string(status)).
		Set("audio_updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})
	if status == domain.AudioReady {
		builder = builder.Set("audio_ref", audioRef)
	} else {
		builder = builder.Set("audio_ref", nil)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return repoErr("update audio status", err)
	}
	return requireRow(result)
}

// TryTransition flips audio_status to the target state only when the current
// state is one of the expected ones. It is a single conditional UPDATE, so
// two concurrent callers cannot both win.
func (r *PostgresRepository) TryTransition(ctx context.Context, id string, from []domain.AudioStatus, to domain.AudioStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	query, args, err := psql.Update("articles").
		Set("audio_status", string(to)).
		Set("audio_ref", nil).
		Set("audio_updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "audio_status": states}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, repoErr("transition audio status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// FailStalePending fails out articles stuck in pending beyond the deadline,
// recovering jobs lost to a crash.
func (r *PostgresRepository) FailStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	query, args, err := psql.Update("articles").
		Set("audio_status", string(domain.AudioFailed)).
		Set("audio_ref", nil).
		Set("audio_updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"audio_status": string(domain.AudioPending)}).
		Where(sq.Expr("audio_updated_at < NOW() - ?::interval", fmt.Sprintf("%d seconds", int(olderThan.Seconds())))).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build stale sweep: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, repoErr("sweep stale pending", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		article     domain.Article
		url         sql.NullString
		audioRef    sql.NullString
		publishedAt sql.NullTime
		status      string
		sourceType  string
	)
	err := row.Scan(
		&article.ID, &article.Title, &article.Author, &article.Description,
		&article.Content, &url, &sourceType, &publishedAt,
		&status, &audioRef, &article.CreatedAt, &article.UpdatedAt,
	)
	if err != nil {
		return domain.Article{}, err
	}

	article.URL = url.String
	article.AudioRef = audioRef.String
	article.AudioStatus = domain.AudioStatus(status)
	article.SourceType = domain.SourceType(sourceType)
	if publishedAt.Valid {
		t := publishedAt.Time
		article.PublishedAt = &t
	}
	return article, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrArticleNotFound
	}
	return nil
}

// repoErr classifies a database failure as repository unavailability.
func repoErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrRepositoryUnavailable, op, err)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func newID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
