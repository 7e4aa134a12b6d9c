package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/comments"
	"taskboard/internal/markdown"
	"taskboard/internal/store"
	"taskboard/internal/util"
)

type CreateCommentInput struct {
	Content         string   `json:"content"`
	ParentID        *string  `json:"parentId"`
	QuotedCommentID *string  `json:"quotedCommentId"`
	Mentions        []string `json:"mentions"`
}

type UpdateCommentInput struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions"`
}

type ReactionInput struct {
	Emoji string `json:"emoji"`
}

type CreateTaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Assignees   []string `json:"assignees"`
}

type UpdateTaskInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type AttachmentInput struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// ListTaskComments assembles the whole thread forest for a task: three flat
// queries, then in-memory grouping. Soft-deleted comments are filtered at
// the query level, so they disappear from the listing along with their
// subtrees while reply rows stay intact underneath.
func (s *Service) ListTaskComments(ctx context.Context, actor Session, taskID string) (map[string]any, error) {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	rows, err := s.store.ListTaskComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	reactions, err := s.store.ListTaskReactions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListTaskAttachments(ctx, taskID)
	if err != nil {
		return nil, err
	}

	forest := comments.BuildForest(comments.TreeInput{
		Comments:    rows,
		Reactions:   reactions,
		Attachments: attachments,
	})
	items := make([]map[string]any, 0, len(forest))
	for _, node := range forest {
		items = append(items, s.nodePayload(ctx, node))
	}
	return map[string]any{
		"taskId":   taskID,
		"comments": items,
	}, nil
}

// CreateComment validates the parent chain, computes the thread anchor, and
// renders the content once at write time.
func (s *Service) CreateComment(ctx context.Context, actor Session, taskID string, input CreateCommentInput) (map[string]any, error) {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, badRequest("content is required", nil)
	}

	var parentID, threadID *string
	if input.ParentID != nil {
		parent, err := s.store.GetComment(ctx, taskID, *input.ParentID)
		if err != nil {
			return nil, notFound("parent comment not found")
		}
		parentID = &parent.ID
		anchor := comments.ThreadAnchor(parent)
		threadID = &anchor
	}

	var quotedID *string
	if input.QuotedCommentID != nil {
		quoted, err := s.store.GetComment(ctx, taskID, *input.QuotedCommentID)
		if err != nil {
			return nil, notFound("quoted comment not found")
		}
		quotedID = &quoted.ID
	}

	mentions := input.Mentions
	if mentions == nil {
		mentions = markdown.Mentions(content)
	}

	comment := store.Comment{
		ID:               util.NewID("cmt"),
		TaskID:           taskID,
		UserID:           actor.UserID,
		Content:          content,
		FormattedContent: markdown.Format(content),
		ParentID:         parentID,
		ThreadID:         threadID,
		QuotedCommentID:  quotedID,
		Mentions:         mentions,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	return s.commentPayload(ctx, taskID, comment.ID)
}

// UpdateComment re-renders the formatted content and marks the edit. Edits
// are author-only: no project role overrides this, unlike task edits.
func (s *Service) UpdateComment(ctx context.Context, actor Session, taskID, commentID string, input UpdateCommentInput) (map[string]any, error) {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return nil, err
	}
	if comment.UserID != actor.UserID {
		return nil, forbidden("only the author can edit a comment")
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, badRequest("content is required", nil)
	}
	mentions := input.Mentions
	if mentions == nil {
		mentions = markdown.Mentions(content)
	}
	if err := s.store.UpdateCommentContent(ctx, commentID, content, markdown.Format(content), mentions); err != nil {
		return nil, err
	}
	return s.commentPayload(ctx, taskID, commentID)
}

// DeleteComment soft-deletes: replies and reactions are untouched, and the
// row keeps anchoring any surviving reply chain.
func (s *Service) DeleteComment(ctx context.Context, actor Session, taskID, commentID string) error {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return err
	}
	comment, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != actor.UserID {
		return forbidden("only the author can delete a comment")
	}
	if _, err := s.store.SoftDeleteComment(ctx, taskID, commentID, actor.UserID); err != nil {
		return err
	}
	return nil
}

// AddReaction replaces whatever reaction the actor had on the comment with
// the new emoji, then returns the comment's full reaction state so the UI
// gets an authoritative refresh.
func (s *Service) AddReaction(ctx context.Context, actor Session, taskID, commentID string, input ReactionInput) (map[string]any, error) {
	emoji := strings.TrimSpace(input.Emoji)
	if !comments.IsSupportedEmoji(emoji) {
		return nil, badRequest("unsupported emoji", map[string]any{"supported": comments.SupportedEmojis()})
	}
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceReaction(ctx, store.Reaction{
		ID:        util.NewID("rct"),
		CommentID: comment.ID,
		UserID:    actor.UserID,
		Emoji:     emoji,
	}); err != nil {
		return nil, err
	}
	return s.commentPayload(ctx, taskID, commentID)
}

// RemoveReaction deletes the (comment, user, emoji) row if present. Removing
// a reaction that does not exist is a no-op that still returns current state.
func (s *Service) RemoveReaction(ctx context.Context, actor Session, taskID, commentID, emoji string) (map[string]any, error) {
	if !comments.IsSupportedEmoji(emoji) {
		return nil, badRequest("unsupported emoji", map[string]any{"supported": comments.SupportedEmojis()})
	}
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteReaction(ctx, comment.ID, actor.UserID, emoji); err != nil {
		return nil, err
	}
	return s.commentPayload(ctx, taskID, commentID)
}

// AddAttachment records metadata for a file that lives in external object
// storage. With MinIO configured the response carries a presigned upload
// URL; otherwise the caller supplies the URL itself.
func (s *Service) AddAttachment(ctx context.Context, actor Session, taskID, commentID string, input AttachmentInput) (map[string]any, error) {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return nil, err
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, badRequest("fileName is required", nil)
	}
	if input.FileSize < 0 {
		return nil, badRequest("fileSize must not be negative", nil)
	}
	mimeType := strings.TrimSpace(input.MimeType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	fileURL := strings.TrimSpace(input.FileURL)
	uploadURL := ""
	if s.objects != nil {
		key := s.objects.NewObjectKey(comment.ID, fileName)
		uploadURL, err = s.objects.UploadURL(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("issue upload url: %w", err)
		}
		fileURL = key
	} else if fileURL == "" {
		return nil, badRequest("fileUrl is required", nil)
	}

	attachment := store.Attachment{
		ID:         util.NewID("att"),
		CommentID:  comment.ID,
		FileName:   fileName,
		FileURL:    fileURL,
		FileSize:   input.FileSize,
		MimeType:   mimeType,
		UploadedBy: actor.UserID,
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		return nil, err
	}

	payload, err := s.commentPayload(ctx, taskID, commentID)
	if err != nil {
		return nil, err
	}
	payload["attachmentId"] = attachment.ID
	if uploadURL != "" {
		payload["uploadUrl"] = uploadURL
	}
	return payload, nil
}

// RemoveAttachment detaches metadata and, when MinIO holds the binary,
// deletes the object too. Allowed to the uploader or the comment author.
func (s *Service) RemoveAttachment(ctx context.Context, actor Session, taskID, commentID, attachmentID string) error {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return err
	}
	comment, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return err
	}
	attachment, err := s.store.GetAttachment(ctx, commentID, attachmentID)
	if err != nil {
		return err
	}
	if attachment.UploadedBy != actor.UserID && comment.UserID != actor.UserID {
		return forbidden("only the uploader or the comment author can remove an attachment")
	}
	removed, err := s.store.DeleteAttachment(ctx, commentID, attachmentID)
	if err != nil {
		return err
	}
	if removed && s.objects != nil {
		_ = s.objects.Remove(ctx, attachment.FileURL)
	}
	return nil
}

// commentPayload reloads one comment with its reactions and attachments, for
// the single-record responses of create/update/reaction operations.
func (s *Service) commentPayload(ctx context.Context, taskID, commentID string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return nil, err
	}
	reactions, err := s.store.ListCommentReactions(ctx, commentID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListCommentAttachments(ctx, commentID)
	if err != nil {
		return nil, err
	}
	node := &comments.Node{
		Comment:     comment,
		Reactions:   reactions,
		Attachments: attachments,
		Replies:     []*comments.Node{},
	}
	if comment.QuotedCommentID != nil {
		// Quotes are snapshots: still shown even if the quoted comment was
		// deleted after being quoted.
		if quoted, err := s.store.GetCommentAny(ctx, taskID, *comment.QuotedCommentID); err == nil {
			node.Quoted = &quoted
		}
	}
	return s.nodePayload(ctx, node), nil
}

func (s *Service) nodePayload(ctx context.Context, node *comments.Node) map[string]any {
	comment := node.Comment
	reactions := make([]map[string]any, 0, len(node.Reactions))
	for _, reaction := range node.Reactions {
		reactions = append(reactions, map[string]any{
			"id":        reaction.ID,
			"emoji":     reaction.Emoji,
			"userId":    reaction.UserID,
			"userName":  reaction.UserName,
			"createdAt": reaction.CreatedAt.Format(time.RFC3339),
		})
	}
	attachments := make([]map[string]any, 0, len(node.Attachments))
	for _, attachment := range node.Attachments {
		attachments = append(attachments, s.attachmentPayload(ctx, attachment))
	}
	replies := make([]map[string]any, 0, len(node.Replies))
	for _, reply := range node.Replies {
		replies = append(replies, s.nodePayload(ctx, reply))
	}

	payload := map[string]any{
		"id":               comment.ID,
		"taskId":           comment.TaskID,
		"userId":           comment.UserID,
		"authorName":       comment.AuthorName,
		"content":          comment.Content,
		"formattedContent": comment.FormattedContent,
		"parentId":         comment.ParentID,
		"threadId":         comment.ThreadID,
		"mentions":         emptyIfNil(comment.Mentions),
		"isEdited":         comment.IsEdited,
		"editedAt":         timePtrPayload(comment.EditedAt),
		"createdAt":        comment.CreatedAt.Format(time.RFC3339),
		"updatedAt":        comment.UpdatedAt.Format(time.RFC3339),
		"reactions":        reactions,
		"attachments":      attachments,
		"replies":          replies,
	}
	if node.Quoted != nil {
		payload["quotedComment"] = map[string]any{
			"id":               node.Quoted.ID,
			"userId":           node.Quoted.UserID,
			"authorName":       node.Quoted.AuthorName,
			"formattedContent": node.Quoted.FormattedContent,
			"createdAt":        node.Quoted.CreatedAt.Format(time.RFC3339),
		}
	} else {
		payload["quotedComment"] = nil
	}
	return payload
}

func (s *Service) attachmentPayload(ctx context.Context, attachment store.Attachment) map[string]any {
	url := attachment.FileURL
	if s.objects != nil {
		if presigned, err := s.objects.DownloadURL(ctx, attachment.FileURL, attachment.FileName); err == nil {
			url = presigned
		}
	}
	return map[string]any{
		"id":           attachment.ID,
		"commentId":    attachment.CommentID,
		"fileName":     attachment.FileName,
		"fileUrl":      url,
		"fileSize":     attachment.FileSize,
		"mimeType":     attachment.MimeType,
		"uploadedBy":   attachment.UploadedBy,
		"uploaderName": attachment.UploaderName,
		"createdAt":    attachment.CreatedAt.Format(time.RFC3339),
	}
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func timePtrPayload(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format(time.RFC3339)
}
