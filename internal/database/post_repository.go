package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// PostRepository stores raw scraped units keyed by (profile, platform post
// id). Classification is sticky: once a post has been judged by the
// extraction collaborator, re-scrapes refresh content fields only.
type PostRepository struct {
	db Execer
}

// NewPostRepository creates a post repository bound to db.
func NewPostRepository(db Execer) *PostRepository {
	return &PostRepository{db: db}
}

// UpsertOutcome distinguishes a first sighting from a refresh.
type UpsertOutcome string

const (
	OutcomeSaved   UpsertOutcome = "saved"
	OutcomeUpdated UpsertOutcome = "updated"
)

// Upsert inserts the post or refreshes an existing row. If the existing row
// already carries a non-"unclassified" classification, the classification,
// reason and review state are preserved verbatim; only caption, media
// references and the scrape timestamp are refreshed. Returns the post's
// database id and whether the row was new.
func (r *PostRepository) Upsert(ctx context.Context, profileID int64, post models.Post) (int64, UpsertOutcome, error) {
	if post.PlatformPostID == "" {
		return 0, "", &models.ValidationError{Field: "platform_post_id", Reason: "required"}
	}
	if post.Classification == "" {
		post.Classification = models.ClassificationUnclassified
	}
	if !post.Classification.Valid() {
		return 0, "", &models.ValidationError{Field: "classification", Reason: fmt.Sprintf("unknown classification %q", post.Classification)}
	}

	mediaJSON, err := json.Marshal(post.MediaURLs)
	if err != nil {
		return 0, "", fmt.Errorf("marshal media urls: %w", err)
	}

	var (
		id       int64
		existing models.Classification
	)
	err = r.db.QueryRowContext(ctx,
		"SELECT id, classification FROM posts WHERE profile_id = ? AND platform_post_id = ?",
		profileID, post.PlatformPostID,
	).Scan(&id, &existing)

	switch {
	case err == sql.ErrNoRows:
		now := nowText()
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO posts (profile_id, platform_post_id, post_url, caption, media_urls,
				classification, classification_reason, posted_at, scraped_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			profileID, post.PlatformPostID, nullString(post.PostURL), post.Caption, string(mediaJSON),
			post.Classification, nullString(post.ClassificationReason),
			timePtrText(post.PostedAt), now, now, now,
		)
		if err != nil {
			return 0, "", fmt.Errorf("insert post %s: %w", post.PlatformPostID, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, "", fmt.Errorf("post id for %s: %w", post.PlatformPostID, err)
		}
		return id, OutcomeSaved, nil

	case err != nil:
		return 0, "", fmt.Errorf("lookup post %s: %w", post.PlatformPostID, err)
	}

	if existing != models.ClassificationUnclassified {
		// Already judged; content refresh only.
		_, err = r.db.ExecContext(ctx, `
			UPDATE posts SET
				post_url = COALESCE(NULLIF(?, ''), post_url),
				caption = ?,
				media_urls = ?,
				scraped_at = ?,
				updated_at = ?
			WHERE id = ?`,
			post.PostURL, post.Caption, string(mediaJSON), nowText(), nowText(), id,
		)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE posts SET
				post_url = COALESCE(NULLIF(?, ''), post_url),
				caption = ?,
				media_urls = ?,
				classification = ?,
				classification_reason = COALESCE(NULLIF(?, ''), classification_reason),
				scraped_at = ?,
				updated_at = ?
			WHERE id = ?`,
			post.PostURL, post.Caption, string(mediaJSON),
			post.Classification, post.ClassificationReason, nowText(), nowText(), id,
		)
	}
	if err != nil {
		return 0, "", fmt.Errorf("refresh post %s: %w", post.PlatformPostID, err)
	}
	return id, OutcomeUpdated, nil
}

// SetClassification records the extraction collaborator's verdict for a
// post. Used when classification happens after the initial scrape save.
func (r *PostRepository) SetClassification(ctx context.Context, postID int64, c models.Classification, reason string) error {
	if !c.Valid() {
		return &models.ValidationError{Field: "classification", Reason: fmt.Sprintf("unknown classification %q", c)}
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE posts SET classification = ?, classification_reason = ?, updated_at = ? WHERE id = ?",
		c, nullString(reason), nowText(), postID,
	)
	if err != nil {
		return fmt.Errorf("classify post %d: %w", postID, err)
	}
	return nil
}

// ListByProfile returns a profile's posts in scrape order. With
// onlyClassified set, posts still awaiting a verdict are skipped.
func (r *PostRepository) ListByProfile(ctx context.Context, profileID int64, onlyClassified bool) ([]models.Post, error) {
	query := `
		SELECT id, profile_id, platform_post_id, post_url, caption, media_urls,
		       classification, classification_reason, posted_at, scraped_at, created_at, updated_at
		FROM posts WHERE profile_id = ?`
	if onlyClassified {
		query += " AND classification != 'unclassified'"
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("list posts for profile %d: %w", profileID, err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanPost(rows *sql.Rows) (models.Post, error) {
	var (
		p                    models.Post
		postURL, reason      sql.NullString
		mediaJSON, postedAt  sql.NullString
		scrapedAt            string
		createdAt, updatedAt string
	)
	err := rows.Scan(&p.ID, &p.ProfileID, &p.PlatformPostID, &postURL, &p.Caption, &mediaJSON,
		&p.Classification, &reason, &postedAt, &scrapedAt, &createdAt, &updatedAt)
	if err != nil {
		return models.Post{}, fmt.Errorf("scan post: %w", err)
	}

	p.PostURL = postURL.String
	p.ClassificationReason = reason.String
	if mediaJSON.Valid && mediaJSON.String != "" {
		if err := json.Unmarshal([]byte(mediaJSON.String), &p.MediaURLs); err != nil {
			return models.Post{}, fmt.Errorf("unmarshal media urls: %w", err)
		}
	}
	if postedAt.Valid {
		t := parseTimestamp(postedAt.String)
		p.PostedAt = &t
	}
	p.ScrapedAt = parseTimestamp(scrapedAt)
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)
	return p, nil
}

func timePtrText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timestampLayout)
}
