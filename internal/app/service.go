package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/authpw"
	"taskboard/internal/config"
	"taskboard/internal/objectstore"
	"taskboard/internal/store"
	"taskboard/internal/util"
)

// Session is the verified actor identity carried through every operation.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

var allowedTaskStatuses = map[string]struct{}{
	"TODO":        {},
	"IN_PROGRESS": {},
	"IN_REVIEW":   {},
	"DONE":        {},
}

// dataStore is everything the service needs from Postgres.
type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjectsForUser(context.Context, string) ([]store.Project, error)
	AddProjectMember(context.Context, string, string, string) error
	IsProjectMember(context.Context, string, string) (bool, error)

	InsertTask(context.Context, store.Task) error
	GetTask(context.Context, string) (store.Task, error)
	ListProjectTasks(context.Context, string) ([]store.Task, error)
	UpdateTask(context.Context, string, string, string, string) (bool, error)
	ReplaceTaskAssignees(context.Context, string, []string) error
	ListTaskAssignees(context.Context, string) ([]string, error)
	TaskExists(context.Context, string) (bool, error)
	ActorMayAccessTask(context.Context, string, string) (bool, error)

	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string, string) (store.Comment, error)
	GetCommentAny(context.Context, string, string) (store.Comment, error)
	ListTaskComments(context.Context, string) ([]store.Comment, error)
	UpdateCommentContent(context.Context, string, string, string, []string) error
	SoftDeleteComment(context.Context, string, string, string) (bool, error)
	ReplaceReaction(context.Context, store.Reaction) error
	DeleteReaction(context.Context, string, string, string) error
	ListCommentReactions(context.Context, string) ([]store.Reaction, error)
	ListTaskReactions(context.Context, string) ([]store.Reaction, error)
	InsertAttachment(context.Context, store.Attachment) error
	GetAttachment(context.Context, string, string) (store.Attachment, error)
	DeleteAttachment(context.Context, string, string) (bool, error)
	ListCommentAttachments(context.Context, string) ([]store.Attachment, error)
	ListTaskAttachments(context.Context, string) ([]store.Attachment, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens; Redis in production, Postgres when
// Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// objectStore issues presigned URLs for attachment binaries. Nil disables
// presigning; attachments then carry caller-provided URLs verbatim.
type objectStore interface {
	NewObjectKey(commentID, fileName string) string
	UploadURL(ctx context.Context, key string) (string, error)
	DownloadURL(ctx context.Context, key, fileName string) (string, error)
	Remove(ctx context.Context, key string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	creds    *authpw.Service
	objects  objectStore
}

func New(cfg config.Config, dataStore *store.PostgresStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		creds:    authpw.NewService(dataStore),
	}
}

// NewWithSessionStore swaps refresh-token storage to Redis.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore) *Service {
	svc := New(cfg, dataStore)
	svc.sessions = sessions
	return svc
}

// WithObjectStore enables presigned attachment URLs.
func (s *Service) WithObjectStore(objects *objectstore.Service) *Service {
	if objects != nil {
		s.objects = objects
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Auth & sessions ---

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.creds.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, badRequest(err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.creds.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Rotate: the old refresh token dies with its first use.
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- Projects ---

func (s *Service) CreateProject(ctx context.Context, actor Session, name, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, badRequest("name is required", nil)
	}
	project := store.Project{
		ID:          util.NewID("prj"),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   actor.UserID,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, err
	}
	stored, err := s.store.GetProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	return projectPayload(stored), nil
}

func (s *Service) ListProjects(ctx context.Context, actor Session) (map[string]any, error) {
	projects, err := s.store.ListProjectsForUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		items = append(items, projectPayload(project))
	}
	return map[string]any{"projects": items}, nil
}

func (s *Service) GetProject(ctx context.Context, actor Session, projectID string) (map[string]any, error) {
	member, err := s.store.IsProjectMember(ctx, projectID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, forbidden("not a member of this project")
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return projectPayload(project), nil
}

func (s *Service) AddProjectMember(ctx context.Context, actor Session, projectID, userID, role string) (map[string]any, error) {
	member, err := s.store.IsProjectMember(ctx, projectID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, forbidden("not a member of this project")
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if role == "" {
		role = "member"
	}
	if err := s.store.AddProjectMember(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// --- Tasks ---

func (s *Service) CreateTask(ctx context.Context, actor Session, projectID string, input CreateTaskInput) (map[string]any, error) {
	member, err := s.store.IsProjectMember(ctx, projectID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, forbidden("not a member of this project")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, badRequest("title is required", nil)
	}
	status := strings.ToUpper(strings.TrimSpace(input.Status))
	if status == "" {
		status = "TODO"
	}
	if _, ok := allowedTaskStatuses[status]; !ok {
		return nil, badRequest("invalid task status", nil)
	}

	task := store.Task{
		ID:          util.NewID("tsk"),
		ProjectID:   projectID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
		CreatedBy:   actor.UserID,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	if len(input.Assignees) > 0 {
		if err := s.store.ReplaceTaskAssignees(ctx, task.ID, input.Assignees); err != nil {
			return nil, err
		}
	}
	stored, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return taskPayload(stored), nil
}

func (s *Service) ListProjectTasks(ctx context.Context, actor Session, projectID string) (map[string]any, error) {
	member, err := s.store.IsProjectMember(ctx, projectID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, forbidden("not a member of this project")
	}
	tasks, err := s.store.ListProjectTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskPayload(task))
	}
	return map[string]any{"tasks": items}, nil
}

func (s *Service) GetTask(ctx context.Context, actor Session, taskID string) (map[string]any, error) {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskPayload(task), nil
}

// UpdateTask allows any project member to edit; task edits are not
// author-only, unlike comment edits.
func (s *Service) UpdateTask(ctx context.Context, actor Session, taskID string, input UpdateTaskInput) (map[string]any, error) {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	title := task.Title
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, badRequest("title is required", nil)
		}
	}
	description := task.Description
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}
	status := task.Status
	if input.Status != nil {
		status = strings.ToUpper(strings.TrimSpace(*input.Status))
		if _, ok := allowedTaskStatuses[status]; !ok {
			return nil, badRequest("invalid task status", nil)
		}
	}
	if _, err := s.store.UpdateTask(ctx, taskID, title, description, status); err != nil {
		return nil, err
	}
	stored, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskPayload(stored), nil
}

// ReplaceTaskAssignees swaps the whole assignee set atomically.
func (s *Service) ReplaceTaskAssignees(ctx context.Context, actor Session, taskID string, userIDs []string) (map[string]any, error) {
	if err := s.requireTaskAccess(ctx, taskID, actor); err != nil {
		return nil, err
	}
	for _, userID := range userIDs {
		if _, err := s.store.GetUserByID(ctx, userID); err != nil {
			return nil, notFound("assignee not found")
		}
	}
	if err := s.store.ReplaceTaskAssignees(ctx, taskID, userIDs); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskPayload(task), nil
}

// requireTaskAccess is the gate in front of every comment and task-detail
// operation: the task must exist and the actor must belong to its project.
func (s *Service) requireTaskAccess(ctx context.Context, taskID string, actor Session) error {
	exists, err := s.store.TaskExists(ctx, taskID)
	if err != nil {
		return err
	}
	if !exists {
		return notFound("task not found")
	}
	allowed, err := s.store.ActorMayAccessTask(ctx, taskID, actor.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		return forbidden("not a member of this project")
	}
	return nil
}

func projectPayload(project store.Project) map[string]any {
	return map[string]any{
		"id":          project.ID,
		"name":        project.Name,
		"description": project.Description,
		"createdBy":   project.CreatedBy,
		"createdAt":   project.CreatedAt.Format(time.RFC3339),
		"updatedAt":   project.UpdatedAt.Format(time.RFC3339),
	}
}

func taskPayload(task store.Task) map[string]any {
	assignees := task.Assignees
	if assignees == nil {
		assignees = []string{}
	}
	return map[string]any{
		"id":          task.ID,
		"projectId":   task.ProjectID,
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"createdBy":   task.CreatedBy,
		"assignees":   assignees,
		"createdAt":   task.CreatedAt.Format(time.RFC3339),
		"updatedAt":   task.UpdatedAt.Format(time.RFC3339),
	}
}
