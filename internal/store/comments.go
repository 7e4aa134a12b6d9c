package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const commentColumns = `
	c.id, c.task_id, c.user_id, c.content, c.formatted_content,
	c.parent_id, c.thread_id, c.quoted_comment_id, c.mentions,
	c.is_edited, c.edited_at, c.created_at, c.updated_at,
	c.deleted_at, c.deleted_by, u.display_name
`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	var mentionsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.TaskID,
		&item.UserID,
		&item.Content,
		&item.FormattedContent,
		&item.ParentID,
		&item.ThreadID,
		&item.QuotedCommentID,
		&mentionsRaw,
		&item.IsEdited,
		&item.EditedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
		&item.DeletedBy,
		&item.AuthorName,
	)
	if err != nil {
		return Comment{}, err
	}
	_ = json.Unmarshal(mentionsRaw, &item.Mentions)
	return item, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	mentions := comment.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	encodedMentions, err := json.Marshal(mentions)
	if err != nil {
		return fmt.Errorf("marshal mentions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, user_id, content, formatted_content, parent_id, thread_id, quoted_comment_id, mentions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
	`, comment.ID, comment.TaskID, comment.UserID, comment.Content, comment.FormattedContent,
		comment.ParentID, comment.ThreadID, comment.QuotedCommentID, string(encodedMentions))
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetComment returns a live (non-deleted) comment under the given task.
// Soft-deleted comments are invisible here, so callers get sql.ErrNoRows
// for them the same as for ids that never existed.
func (s *PostgresStore) GetComment(ctx context.Context, taskID, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id=$1 AND c.task_id=$2 AND c.deleted_at IS NULL
	`, commentID, taskID)
	return scanComment(row)
}

// GetCommentAny fetches a comment regardless of deletion state. Soft-deleted
// rows stay structurally valid as reply anchors; this is the lookup for that.
func (s *PostgresStore) GetCommentAny(ctx context.Context, taskID, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id=$1 AND c.task_id=$2
	`, commentID, taskID)
	return scanComment(row)
}

// ListTaskComments returns every live comment on a task, oldest first, with
// author names joined. Tree assembly happens in memory on top of this single
// query.
func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.task_id=$1 AND c.deleted_at IS NULL
		ORDER BY c.created_at ASC, c.id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateCommentContent(ctx context.Context, commentID, content, formattedContent string, mentions []string) error {
	if mentions == nil {
		mentions = []string{}
	}
	encodedMentions, err := json.Marshal(mentions)
	if err != nil {
		return fmt.Errorf("marshal mentions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE comments
		SET content=$2, formatted_content=$3, mentions=$4::jsonb, is_edited=TRUE, edited_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, commentID, content, formattedContent, string(encodedMentions))
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// SoftDeleteComment marks a comment deleted without touching its replies or
// reactions. Reports whether a live row was actually marked.
func (s *PostgresStore) SoftDeleteComment(ctx context.Context, taskID, commentID, deletedBy string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET deleted_at=NOW(), deleted_by=$3, updated_at=NOW()
		WHERE id=$1 AND task_id=$2 AND deleted_at IS NULL
	`, commentID, taskID, deletedBy)
	if err != nil {
		return false, fmt.Errorf("soft delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete comment rows: %w", err)
	}
	return affected > 0, nil
}

// ReplaceReaction enforces the one-active-reaction-per-user rule: it removes
// whatever reaction the user had on the comment and inserts the new one, in a
// single transaction so concurrent calls can never leave zero or two rows.
func (s *PostgresStore) ReplaceReaction(ctx context.Context, reaction Reaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace reaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM comment_reactions
		WHERE comment_id=$1 AND user_id=$2
	`, reaction.CommentID, reaction.UserID); err != nil {
		return fmt.Errorf("delete prior reaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comment_reactions (id, comment_id, user_id, emoji)
		VALUES ($1, $2, $3, $4)
	`, reaction.ID, reaction.CommentID, reaction.UserID, reaction.Emoji); err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace reaction: %w", err)
	}
	return nil
}

// DeleteReaction removes the row matching (comment, user, emoji). Deleting a
// reaction that is not there is a no-op, not an error.
func (s *PostgresStore) DeleteReaction(ctx context.Context, commentID, userID, emoji string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM comment_reactions
		WHERE comment_id=$1 AND user_id=$2 AND emoji=$3
	`, commentID, userID, emoji)
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCommentReactions(ctx context.Context, commentID string) ([]Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.comment_id, r.user_id, r.emoji, r.created_at, u.display_name
		FROM comment_reactions r
		JOIN users u ON u.id = r.user_id
		WHERE r.comment_id=$1
		ORDER BY r.created_at ASC, r.id ASC
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("list comment reactions: %w", err)
	}
	defer rows.Close()
	return collectReactions(rows)
}

// ListTaskReactions returns reactions for every live comment on a task, for
// the thread read path.
func (s *PostgresStore) ListTaskReactions(ctx context.Context, taskID string) ([]Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.comment_id, r.user_id, r.emoji, r.created_at, u.display_name
		FROM comment_reactions r
		JOIN users u ON u.id = r.user_id
		JOIN comments c ON c.id = r.comment_id
		WHERE c.task_id=$1 AND c.deleted_at IS NULL
		ORDER BY r.created_at ASC, r.id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task reactions: %w", err)
	}
	defer rows.Close()
	return collectReactions(rows)
}

func collectReactions(rows *sql.Rows) ([]Reaction, error) {
	items := make([]Reaction, 0)
	for rows.Next() {
		var item Reaction
		if err := rows.Scan(&item.ID, &item.CommentID, &item.UserID, &item.Emoji, &item.CreatedAt, &item.UserName); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_attachments (id, comment_id, file_name, file_url, file_size, mime_type, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attachment.ID, attachment.CommentID, attachment.FileName, attachment.FileURL,
		attachment.FileSize, attachment.MimeType, attachment.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, commentID, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.comment_id, a.file_name, a.file_url, a.file_size, a.mime_type, a.uploaded_by, a.created_at, u.display_name
		FROM comment_attachments a
		JOIN users u ON u.id = a.uploaded_by
		WHERE a.id=$1 AND a.comment_id=$2
	`, attachmentID, commentID).Scan(
		&item.ID, &item.CommentID, &item.FileName, &item.FileURL,
		&item.FileSize, &item.MimeType, &item.UploadedBy, &item.CreatedAt, &item.UploaderName,
	)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, commentID, attachmentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comment_attachments WHERE id=$1 AND comment_id=$2
	`, attachmentID, commentID)
	if err != nil {
		return false, fmt.Errorf("delete attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete attachment rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListCommentAttachments(ctx context.Context, commentID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.comment_id, a.file_name, a.file_url, a.file_size, a.mime_type, a.uploaded_by, a.created_at, u.display_name
		FROM comment_attachments a
		JOIN users u ON u.id = a.uploaded_by
		WHERE a.comment_id=$1
		ORDER BY a.created_at ASC, a.id ASC
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("list comment attachments: %w", err)
	}
	defer rows.Close()
	return collectAttachments(rows)
}

func (s *PostgresStore) ListTaskAttachments(ctx context.Context, taskID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.comment_id, a.file_name, a.file_url, a.file_size, a.mime_type, a.uploaded_by, a.created_at, u.display_name
		FROM comment_attachments a
		JOIN users u ON u.id = a.uploaded_by
		JOIN comments c ON c.id = a.comment_id
		WHERE c.task_id=$1 AND c.deleted_at IS NULL
		ORDER BY a.created_at ASC, a.id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task attachments: %w", err)
	}
	defer rows.Close()
	return collectAttachments(rows)
}

func collectAttachments(rows *sql.Rows) ([]Attachment, error) {
	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.CommentID, &item.FileName, &item.FileURL,
			&item.FileSize, &item.MimeType, &item.UploadedBy, &item.CreatedAt, &item.UploaderName); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}
