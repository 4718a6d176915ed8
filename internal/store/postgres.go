package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
	"github.com/draftwell-ai/artifact-platform/pkg/metrics"
)

// createVersionRetries bounds retries on unique-violation races. The
// row lock taken by the CTE serializes writers, so a conflict should
// not happen in practice; the retry is the safety net the invariant
// demands rather than an expected path.
const createVersionRetries = 3

// Postgres implements ConversationStore, StreamRegistry, and
// ArtifactStore on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgres connects a pool and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string, log *logger.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, logger: log}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// CreateConversation inserts a conversation record.
func (p *Postgres) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO conversations (id, owner_id, title, visibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		conv.ID, conv.OwnerID, conv.Title, conv.Visibility, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// GetConversation fetches a conversation by ID.
func (p *Postgres) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := p.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, visibility, created_at, updated_at
		FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.Visibility, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// Append registers a new generation stream for the conversation.
func (p *Postgres) Append(ctx context.Context, conversationID, artifactID string) (*model.GenerationStream, error) {
	stream := &model.GenerationStream{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		ArtifactID:     artifactID,
		Status:         model.StreamActive,
		CreatedAt:      time.Now(),
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO generation_streams (id, conversation_id, artifact_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		stream.ID, stream.ConversationID, stream.ArtifactID, stream.Status, stream.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to insert stream: %w", err)
	}
	return stream, nil
}

// List returns stream IDs for the conversation, oldest first.
func (p *Postgres) List(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM generation_streams
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stream id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MostRecent returns the newest stream for the conversation.
func (p *Postgres) MostRecent(ctx context.Context, conversationID string) (*model.GenerationStream, error) {
	var stream model.GenerationStream
	err := p.pool.QueryRow(ctx, `
		SELECT id, conversation_id, artifact_id, status, created_at
		FROM generation_streams
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, conversationID,
	).Scan(&stream.ID, &stream.ConversationID, &stream.ArtifactID, &stream.Status, &stream.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get most recent stream: %w", err)
	}
	return &stream, nil
}

// SetStatus transitions a stream's status.
func (p *Postgres) SetStatus(ctx context.Context, streamID string, status model.StreamStatus) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE generation_streams SET status = $2 WHERE id = $1`, streamID, status)
	if err != nil {
		return fmt.Errorf("failed to update stream status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// CreateArtifact inserts a new artifact at version 0.
func (p *Postgres) CreateArtifact(ctx context.Context, artifact *model.Artifact) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO artifacts (id, owner_id, kind, title, current_version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6)`,
		artifact.ID, artifact.OwnerID, artifact.Kind, artifact.Title, model.ArtifactActive, artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// GetArtifact fetches an artifact by ID, including soft-deleted ones.
func (p *Postgres) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	var a model.Artifact
	err := p.pool.QueryRow(ctx, `
		SELECT id, owner_id, kind, title, current_version, status, created_at, updated_at, deleted_at
		FROM artifacts WHERE id = $1`, id,
	).Scan(&a.ID, &a.OwnerID, &a.Kind, &a.Title, &a.CurrentVersion, &a.Status, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}

// CreateVersion claims the next version number and inserts the version
// row in one statement. The UPDATE takes the artifact's row lock, so
// concurrent writers are serialized and each sees a fresh counter; the
// unique key on (artifact_id, version_number) backstops the invariant.
func (p *Postgres) CreateVersion(ctx context.Context, artifactID, content, authorID string) (int, error) {
	for attempt := 0; ; attempt++ {
		var version int
		err := p.pool.QueryRow(ctx, `
			WITH bumped AS (
				UPDATE artifacts
				SET current_version = current_version + 1, updated_at = now()
				WHERE id = $1
				RETURNING current_version
			)
			INSERT INTO artifact_versions (artifact_id, version_number, content, author_id, created_at)
			SELECT $1, current_version, $2, $3, now() FROM bumped
			RETURNING version_number`,
			artifactID, content, authorID,
		).Scan(&version)
		if err == nil {
			return version, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && attempt < createVersionRetries {
			metrics.VersionWriteRetriesTotal.Inc()
			p.logger.Warn("version number conflict, retrying",
				"artifact_id", artifactID, "attempt", attempt+1)
			continue
		}
		return 0, fmt.Errorf("failed to create version: %w", err)
	}
}

// GetVersion returns the requested version, or the latest when version <= 0.
func (p *Postgres) GetVersion(ctx context.Context, artifactID string, version int) (*model.ArtifactVersion, error) {
	var v model.ArtifactVersion
	var err error
	if version > 0 {
		err = p.pool.QueryRow(ctx, `
			SELECT artifact_id, version_number, content, author_id, COALESCE(summary, ''), created_at
			FROM artifact_versions
			WHERE artifact_id = $1 AND version_number = $2`, artifactID, version,
		).Scan(&v.ArtifactID, &v.Version, &v.Content, &v.AuthorID, &v.Summary, &v.CreatedAt)
	} else {
		err = p.pool.QueryRow(ctx, `
			SELECT artifact_id, version_number, content, author_id, COALESCE(summary, ''), created_at
			FROM artifact_versions
			WHERE artifact_id = $1
			ORDER BY version_number DESC
			LIMIT 1`, artifactID,
		).Scan(&v.ArtifactID, &v.Version, &v.Content, &v.AuthorID, &v.Summary, &v.CreatedAt)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &v, nil
}

// ListVersions returns all versions for the artifact, oldest first.
func (p *Postgres) ListVersions(ctx context.Context, artifactID string) ([]model.ArtifactVersion, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT artifact_id, version_number, content, author_id, COALESCE(summary, ''), created_at
		FROM artifact_versions
		WHERE artifact_id = $1
		ORDER BY version_number ASC`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []model.ArtifactVersion
	for rows.Next() {
		var v model.ArtifactVersion
		if err := rows.Scan(&v.ArtifactID, &v.Version, &v.Content, &v.AuthorID, &v.Summary, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// SoftDelete marks the artifact deleted.
func (p *Postgres) SoftDelete(ctx context.Context, artifactID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE artifacts
		SET status = $2, deleted_at = now(), updated_at = now()
		WHERE id = $1`, artifactID, model.ArtifactDeleted)
	if err != nil {
		return fmt.Errorf("failed to soft delete artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Restore clears the deleted marker.
func (p *Postgres) Restore(ctx context.Context, artifactID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE artifacts
		SET status = $2, deleted_at = NULL, updated_at = now()
		WHERE id = $1`, artifactID, model.ArtifactActive)
	if err != nil {
		return fmt.Errorf("failed to restore artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
