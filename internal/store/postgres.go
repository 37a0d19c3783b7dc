package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"pressline/internal/model"
)

// invalid_regular_expression, raised when the ARE engine rejects a pattern.
const sqlstateBadRegex = "2201B"

func patternErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == sqlstateBadRegex {
		return ErrBadPattern
	}
	return err
}

// PostgresStore is the document repository behind the service core. Absent
// rows surface as sql.ErrNoRows; zero-row deletes surface as false, never as
// an error, so racing deletes resolve at this layer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) InsertUser(ctx context.Context, user model.User) error {
	permissions, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, banned, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.Banned, permissions, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	var permissionsRaw []byte
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Banned,
		&permissionsRaw,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	_ = json.Unmarshal(permissionsRaw, &user.Permissions)
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, banned, permissions, created_at, updated_at
		FROM users WHERE id=$1
	`, userID)
	return s.scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, banned, permissions, created_at, updated_at
		FROM users WHERE email=$1
	`, email)
	return s.scanUser(row)
}

func (s *PostgresStore) SetUserBanned(ctx context.Context, userID string, banned bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET banned=$2, updated_at=NOW() WHERE id=$1
	`, userID, banned)
	if err != nil {
		return false, fmt.Errorf("set user banned: %w", err)
	}
	return oneOrMore(result)
}

func (s *PostgresStore) UpdateUserPermissions(ctx context.Context, userID string, permissions []string) (bool, error) {
	raw, err := json.Marshal(permissions)
	if err != nil {
		return false, fmt.Errorf("marshal permissions: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET permissions=$2, updated_at=NOW() WHERE id=$1
	`, userID, raw)
	if err != nil {
		return false, fmt.Errorf("update user permissions: %w", err)
	}
	return oneOrMore(result)
}

// --- refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// --- channels ---

func (s *PostgresStore) InsertChannel(ctx context.Context, channel model.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, owner_id, name, privacy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, channel.ID, channel.OwnerID, channel.Name, channel.Privacy, channel.CreatedAt, channel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID string) (model.Channel, error) {
	var channel model.Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, privacy, created_at, updated_at
		FROM channels WHERE id=$1
	`, channelID).Scan(
		&channel.ID,
		&channel.OwnerID,
		&channel.Name,
		&channel.Privacy,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		return model.Channel{}, err
	}
	return channel, nil
}

func (s *PostgresStore) UpdateChannel(ctx context.Context, channel model.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels SET name=$2, privacy=$3, updated_at=$4 WHERE id=$1
	`, channel.ID, channel.Name, channel.Privacy, channel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteChannel(ctx context.Context, pred DeletePredicate) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM channels WHERE id=$1 AND ($2='' OR owner_id=$2)
	`, pred.ID, pred.OwnerID)
	if err != nil {
		return false, fmt.Errorf("delete channel: %w", err)
	}
	return oneOrMore(result)
}

func (s *PostgresStore) ListChannels(ctx context.Context, filter ListFilter, page Pagination) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, privacy, created_at, updated_at
		FROM channels
		WHERE ($1 OR privacy='PUBLIC' OR owner_id=$2)
		  AND ($3='' OR name=$3)
		  AND ($4='' OR name ~ $4)
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6
	`, filter.All, filter.ViewerID, filter.Name, filter.Pattern, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", patternErr(err))
	}
	defer rows.Close()

	items := make([]model.Channel, 0)
	for rows.Next() {
		var item model.Channel
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &item.Privacy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return items, nil
}

// --- posts ---

func (s *PostgresStore) InsertPost(ctx context.Context, post model.Post) error {
	tagIDs, err := json.Marshal(post.TagIDs)
	if err != nil {
		return fmt.Errorf("marshal tag ids: %w", err)
	}
	scores, err := json.Marshal(post.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (id, owner_id, channel_id, title, body, privacy, tag_ids, scores, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, post.ID, post.OwnerID, post.ChannelID, post.Title, post.Body, post.Privacy, tagIDs, scores, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func scanPost(scan func(...any) error) (model.Post, error) {
	var post model.Post
	var tagIDsRaw, scoresRaw []byte
	err := scan(
		&post.ID,
		&post.OwnerID,
		&post.ChannelID,
		&post.Title,
		&post.Body,
		&post.Privacy,
		&tagIDsRaw,
		&scoresRaw,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return model.Post{}, err
	}
	_ = json.Unmarshal(tagIDsRaw, &post.TagIDs)
	_ = json.Unmarshal(scoresRaw, &post.Scores)
	if post.TagIDs == nil {
		post.TagIDs = []string{}
	}
	if post.Scores == nil {
		post.Scores = map[string]int{}
	}
	return post, nil
}

const postColumns = `id, owner_id, channel_id, title, body, privacy, tag_ids, scores, created_at, updated_at`

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, postID)
	return scanPost(row.Scan)
}

func (s *PostgresStore) UpdatePost(ctx context.Context, post model.Post) error {
	tagIDs, err := json.Marshal(post.TagIDs)
	if err != nil {
		return fmt.Errorf("marshal tag ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE posts SET title=$2, body=$3, privacy=$4, tag_ids=$5, updated_at=$6 WHERE id=$1
	`, post.ID, post.Title, post.Body, post.Privacy, tagIDs, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, pred DeletePredicate) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM posts WHERE id=$1 AND ($2='' OR owner_id=$2)
	`, pred.ID, pred.OwnerID)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return oneOrMore(result)
}

func (s *PostgresStore) ListChannelPosts(ctx context.Context, channelID string, filter ListFilter, page Pagination) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE channel_id=$1
		  AND ($2 OR privacy='PUBLIC' OR owner_id=$3)
		  AND ($4='' OR title=$4)
		  AND ($5='' OR title ~ $5)
		ORDER BY created_at DESC, id
		LIMIT $6 OFFSET $7
	`, channelID, filter.All, filter.ViewerID, filter.Name, filter.Pattern, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list channel posts: %w", patternErr(err))
	}
	defer rows.Close()
	return collectPosts(rows)
}

func (s *PostgresStore) SearchPosts(ctx context.Context, query string, filter ListFilter, page Pagination) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE ($1 OR privacy='PUBLIC' OR owner_id=$2)
		  AND (title ILIKE '%' || $3 || '%' OR body ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5
	`, filter.All, filter.ViewerID, query, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func collectPosts(rows *sql.Rows) ([]model.Post, error) {
	items := make([]model.Post, 0)
	for rows.Next() {
		item, err := scanPost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

// ListPostIDsByChannel enumerates the ids the cascade will orphan; it runs
// before the bulk post delete so comment cleanup has a concrete id set.
func (s *PostgresStore) ListPostIDsByChannel(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM posts WHERE channel_id=$1`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list post ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) DeletePostsByChannel(ctx context.Context, channelID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE channel_id=$1`, channelID)
	if err != nil {
		return 0, fmt.Errorf("delete channel posts: %w", err)
	}
	return result.RowsAffected()
}

// RatePost records the score only if the user has none yet. The presence
// check and the write are one statement, so concurrent attempts by the same
// user cannot both succeed.
func (s *PostgresStore) RatePost(ctx context.Context, postID, userID string, value int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET scores = jsonb_set(scores, ARRAY[$2], to_jsonb($3::int), true), updated_at=NOW()
		WHERE id=$1 AND NOT (scores ? $2)
	`, postID, userID, value)
	if err != nil {
		return false, fmt.Errorf("rate post: %w", err)
	}
	return oneOrMore(result)
}

func (s *PostgresStore) UnratePost(ctx context.Context, postID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET scores = scores - $2, updated_at=NOW()
		WHERE id=$1 AND scores ? $2
	`, postID, userID)
	if err != nil {
		return false, fmt.Errorf("unrate post: %w", err)
	}
	return oneOrMore(result)
}

// --- comments ---

func (s *PostgresStore) InsertComment(ctx context.Context, comment model.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, owner_id, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, comment.ID, comment.PostID, comment.OwnerID, comment.Body, comment.CreatedAt, comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (model.Comment, error) {
	var comment model.Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, owner_id, body, created_at, updated_at
		FROM comments WHERE id=$1
	`, commentID).Scan(
		&comment.ID,
		&comment.PostID,
		&comment.OwnerID,
		&comment.Body,
		&comment.CreatedAt,
		&comment.UpdatedAt,
	)
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, comment model.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments SET body=$2, updated_at=$3 WHERE id=$1
	`, comment.ID, comment.Body, comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, pred DeletePredicate) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comments WHERE id=$1 AND ($2='' OR owner_id=$2)
	`, pred.ID, pred.OwnerID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	return oneOrMore(result)
}

func (s *PostgresStore) ListPostComments(ctx context.Context, postID string, page Pagination) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, owner_id, body, created_at, updated_at
		FROM comments
		WHERE post_id=$1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, postID, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]model.Comment, 0)
	for rows.Next() {
		var item model.Comment
		if err := rows.Scan(&item.ID, &item.PostID, &item.OwnerID, &item.Body, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteCommentsByPostIDs(ctx context.Context, postIDs []string) (int64, error) {
	if len(postIDs) == 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ANY($1)`, postIDs)
	if err != nil {
		return 0, fmt.Errorf("delete comments by post ids: %w", err)
	}
	return result.RowsAffected()
}

// --- tags ---

func (s *PostgresStore) InsertTag(ctx context.Context, tag model.Tag) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tags (id, name) VALUES ($1, $2)`, tag.ID, tag.Name)
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTag(ctx context.Context, tagID string) (model.Tag, error) {
	var tag model.Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE id=$1`, tagID).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return model.Tag{}, err
	}
	return tag, nil
}

func (s *PostgresStore) GetTagByName(ctx context.Context, name string) (model.Tag, error) {
	var tag model.Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name=$1`, name).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return model.Tag{}, err
	}
	return tag, nil
}

func (s *PostgresStore) ListTags(ctx context.Context, filter ListFilter, page Pagination) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM tags
		WHERE ($1='' OR name=$1)
		  AND ($2='' OR name ~ $2)
		ORDER BY name, id
		LIMIT $3 OFFSET $4
	`, filter.Name, filter.Pattern, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", patternErr(err))
	}
	defer rows.Close()

	items := make([]model.Tag, 0)
	for rows.Next() {
		var item model.Tag
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

// TagsExist reports whether every id in the set names an existing tag.
func (s *PostgresStore) TagsExist(ctx context.Context, tagIDs []string) (bool, error) {
	if len(tagIDs) == 0 {
		return true, nil
	}
	unique := make(map[string]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		unique[id] = struct{}{}
	}
	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE id = ANY($1)`, ids).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check tags exist: %w", err)
	}
	return count == len(ids), nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, tagID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id=$1`, tagID)
	if err != nil {
		return false, fmt.Errorf("delete tag: %w", err)
	}
	return oneOrMore(result)
}

// RemoveTagFromPosts pulls the id out of every post's tag set so a deleted
// tag leaves no dangling references.
func (s *PostgresStore) RemoveTagFromPosts(ctx context.Context, tagID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET tag_ids = tag_ids - $1, updated_at=NOW() WHERE tag_ids ? $1
	`, tagID)
	if err != nil {
		return 0, fmt.Errorf("remove tag from posts: %w", err)
	}
	return result.RowsAffected()
}

func oneOrMore(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
