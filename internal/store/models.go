package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Project struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Task struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Status      string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Joined fields for API responses
	Assignees []string
}

// Comment is one row of the flat comment table. Tree shape is carried by
// ParentID (direct parent) and ThreadID (root ancestor of the reply chain):
// a root comment has both nil, a reply always points at its thread anchor.
type Comment struct {
	ID               string
	TaskID           string
	UserID           string
	Content          string
	FormattedContent string
	ParentID         *string
	ThreadID         *string
	QuotedCommentID  *string
	Mentions         []string
	IsEdited         bool
	EditedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
	DeletedBy        *string
	// Joined fields for API responses
	AuthorName string
}

// Reaction rows are unique per (CommentID, UserID): a user has at most one
// active reaction on a comment, and adding a new one replaces the old.
type Reaction struct {
	ID        string
	CommentID string
	UserID    string
	Emoji     string
	CreatedAt time.Time
	// Joined fields for API responses
	UserName string
}

// Attachment is metadata only; the binary lives in external object storage
// addressed by FileURL.
type Attachment struct {
	ID         string
	CommentID  string
	FileName   string
	FileURL    string
	FileSize   int64
	MimeType   string
	UploadedBy string
	CreatedAt  time.Time
	// Joined fields for API responses
	UploaderName string
}
