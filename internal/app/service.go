package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"taskhub/api/internal/auth"
	"taskhub/api/internal/authpw"
	"taskhub/api/internal/blob"
	"taskhub/api/internal/config"
	"taskhub/api/internal/export"
	"taskhub/api/internal/rbac"
	"taskhub/api/internal/search"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Login        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) role() rbac.Role {
	return rbac.Normalize(s.Role)
}

func (s Session) isAdmin() bool {
	return rbac.IsAdmin(s.role())
}

type ProjectInput struct {
	Name        string  `json:"name"`
	Subtitle    string  `json:"subtitle"`
	Description string  `json:"description"`
	MemberIDs   []int64 `json:"memberIds"`
}

type TaskInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	PriorityID  int64  `json:"priorityId"`
	AssigneeID  *int64 `json:"assigneeId"`
	Done        bool   `json:"done"`
}

type MessageInput struct {
	Content string `json:"content"`
}

type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type FileMetaInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UserInput struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type dataStore interface {
	GetUserByID(context.Context, int64) (store.User, error)
	GetUserByLogin(context.Context, string) (store.User, error)
	ListUsersPaginated(context.Context, int) ([]store.User, store.PageInfo, error)
	ListAllUsers(context.Context) ([]store.User, error)
	CountUsers(context.Context) (int, error)
	LoginTaken(context.Context, string, int64) (bool, error)
	CreateUser(context.Context, store.User) (int64, error)
	UpdateUser(context.Context, store.User) error
	UpdateUserPassword(context.Context, int64, string) error
	DeleteUser(context.Context, int64) error
	ListRoles(context.Context) ([]store.Role, error)
	GetRoleByName(context.Context, string) (store.Role, error)

	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	GetProject(context.Context, int64) (store.Project, error)
	ListProjectsPaginated(context.Context, int64, bool, int) ([]store.Project, store.PageInfo, error)
	CreateProject(context.Context, store.Project, []int64) (int64, error)
	UpdateProject(context.Context, store.Project, []int64) error
	DeleteProject(context.Context, int64) error
	IsMember(context.Context, int64, int64) (bool, error)
	ListProjectMembers(context.Context, int64) ([]store.User, error)
	ListMemberProjectIDs(context.Context, int64) ([]int64, error)
	ListProjectTaskIDs(context.Context, int64) ([]int64, error)
	ListProjectMessageIDs(context.Context, int64) ([]int64, error)

	GetTask(context.Context, int64) (store.Task, error)
	ListTasksPaginated(context.Context, int64, int) ([]store.Task, store.PageInfo, error)
	CreateTask(context.Context, store.Task) (int64, error)
	UpdateTask(context.Context, store.Task) error
	FinishTask(context.Context, int64) (bool, error)
	DeleteTask(context.Context, int64) error
	ListPriorities(context.Context) ([]store.Priority, error)

	GetMessage(context.Context, int64) (store.Message, error)
	ListMessagesPaginated(context.Context, int64, int) ([]store.Message, store.PageInfo, error)
	CreateMessage(context.Context, store.Message) (int64, error)
	UpdateMessage(context.Context, int64, string) error
	DeleteMessage(context.Context, int64) error

	GetNote(context.Context, int64) (store.Note, error)
	ListNotesPaginated(context.Context, int64, int64, bool, int) ([]store.Note, store.PageInfo, error)
	CreateNote(context.Context, store.Note) (int64, error)
	UpdateNote(context.Context, store.Note) error
	DeleteNote(context.Context, int64) error

	GetFile(context.Context, int64) (store.File, error)
	ListFilesPaginated(context.Context, int64, int) ([]store.File, store.PageInfo, error)
	CreateFile(context.Context, store.File) (int64, error)
	UpdateFile(context.Context, int64, string, string) error
	DeleteFile(context.Context, int64) error

	ListTaskDetails(context.Context, int64) ([]store.TaskDetail, error)
	ListMessageDetails(context.Context, int64, int) ([]store.MessageDetail, error)

	Ping(ctx context.Context) error
}

// sessionStore keeps refresh sessions. Redis-backed in production, with a
// Postgres adapter as fallback.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, store.User, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

// flashStore queues one-shot notices shown after a redirect.
type flashStore interface {
	PushFlash(context.Context, int64, string) error
	PopFlashes(context.Context, int64) ([]string, error)
}

// blobStore abstracts attachment blob storage for testability.
type blobStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectName string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	flashes  flashStore
	blobs    blobStore
	search   *search.Service
	export   *export.Service
	authpw   *authpw.Service
	mailer   mailer
}

type mailer interface {
	IsConfigured() bool
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type Options struct {
	Sessions sessionStore
	Flashes  flashStore
	Blobs    blobStore
	Search   *search.Service
	Mailer   mailer
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts Options) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: opts.Sessions,
		flashes:  opts.Flashes,
		blobs:    opts.Blobs,
		search:   opts.Search,
		authpw:   authpw.NewService(dataStore),
		mailer:   opts.Mailer,
	}
	if s.sessions == nil {
		s.sessions = NewPGSessions(dataStore)
	}
	if s.flashes == nil {
		s.flashes = NewMemoryFlashes()
	}
	s.export = export.NewService(&reportStore{store: s.store})
	return s
}

// Bootstrap seeds the initial admin account when the users table is empty.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	role, err := s.store.GetRoleByName(ctx, string(rbac.RoleAdmin))
	if err != nil {
		return fmt.Errorf("lookup admin role: %w", err)
	}

	hash, err := authpw.HashPassword(s.cfg.AdminPassword)
	if err != nil {
		return err
	}

	if _, err := s.store.CreateUser(ctx, store.User{
		Login:        s.cfg.AdminLogin,
		Email:        s.cfg.AdminEmail,
		PasswordHash: hash,
		RoleID:       role.ID,
	}); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("bootstrap: seeded admin account %q", s.cfg.AdminLogin)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Sessions

func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (Session, error) {
	user, err := s.authpw.Register(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, login, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Login: user.Login,
		Role:  user.RoleName,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Login:        user.Login,
		Role:         user.RoleName,
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
		Login:     user.Login,
		Role:      user.RoleName,
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

// RequestPasswordReset issues a reset token and mails the link when SMTP is
// configured. The returned token is surfaced in the response only in that
// unconfigured dev case.
func (s *Service) RequestPasswordReset(ctx context.Context, login, baseURL string) (string, error) {
	token, user, err := s.authpw.RequestPasswordReset(ctx, login)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}

	if s.mailer != nil && s.mailer.IsConfigured() {
		resetURL := strings.TrimRight(baseURL, "/") + "/reset-password?token=" + token
		if err := s.mailer.SendPasswordResetEmail(user.Email, user.Login, resetURL); err != nil {
			log.Printf("email: send password reset to %s: %v", user.Email, err)
		}
		return "", nil
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	return s.authpw.ResetPassword(ctx, req)
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// PopFlashes drains pending notices for the session user.
func (s *Service) PopFlashes(ctx context.Context, session Session) []string {
	notices, err := s.flashes.PopFlashes(ctx, session.UserID)
	if err != nil {
		log.Printf("flash: pop for user %d: %v", session.UserID, err)
		return nil
	}
	return notices
}

func (s *Service) pushFlash(ctx context.Context, userID int64, notice string) {
	if err := s.flashes.PushFlash(ctx, userID, notice); err != nil {
		log.Printf("flash: push for user %d: %v", userID, err)
	}
}

// memberOf reports project membership; admins are treated as members of
// everything at the authorization layer, not here.
func (s *Service) memberOf(ctx context.Context, userID, projectID int64) (bool, error) {
	return s.store.IsMember(ctx, userID, projectID)
}

func (s *Service) authorize(ctx context.Context, session Session, action rbac.Action, t Target) error {
	member := false
	if t.ProjectID != 0 {
		var err error
		member, err = s.memberOf(ctx, session.UserID, t.ProjectID)
		if err != nil {
			return err
		}
	}
	if !Allowed(session.role(), session.UserID, action, t, member) {
		return ErrDenied
	}
	return nil
}

// Projects

func (s *Service) ListProjects(ctx context.Context, session Session, page int) (map[string]any, error) {
	projects, info, err := s.store.ListProjectsPaginated(ctx, session.UserID, session.isAdmin(), page)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectPayload(p))
	}
	return map[string]any{"items": items, "page": pagePayload(info)}, nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID int64) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindProject, ProjectID: projectID}); err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	memberItems := make([]map[string]any, 0, len(members))
	for _, m := range members {
		memberItems = append(memberItems, map[string]any{"id": m.ID, "login": m.Login})
	}
	payload := projectPayload(project)
	payload["members"] = memberItems
	return payload, nil
}

func validateProjectInput(input ProjectInput) map[string]string {
	details := map[string]string{}
	if len(strings.TrimSpace(input.Name)) < 3 {
		details["name"] = "name must be at least 3 characters"
	}
	return details
}

func (s *Service) CreateProject(ctx context.Context, session Session, input ProjectInput) (map[string]any, error) {
	if !session.isAdmin() {
		return nil, ErrDenied
	}
	if details := validateProjectInput(input); len(details) > 0 {
		return nil, validationError(details)
	}

	project := store.Project{
		Name:        strings.TrimSpace(input.Name),
		Subtitle:    strings.TrimSpace(input.Subtitle),
		Description: input.Description,
	}
	id, err := s.store.CreateProject(ctx, project, input.MemberIDs)
	if err != nil {
		return nil, err
	}
	project.ID = id

	s.indexProject(project)
	s.pushFlash(ctx, session.UserID, "Project created.")
	return projectPayload(project), nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID int64, input ProjectInput) (map[string]any, error) {
	if !session.isAdmin() {
		return nil, ErrDenied
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if details := validateProjectInput(input); len(details) > 0 {
		return nil, validationError(details)
	}

	project := store.Project{
		ID:          projectID,
		Name:        strings.TrimSpace(input.Name),
		Subtitle:    strings.TrimSpace(input.Subtitle),
		Description: input.Description,
	}
	if err := s.store.UpdateProject(ctx, project, input.MemberIDs); err != nil {
		return nil, err
	}

	s.indexProject(project)
	s.pushFlash(ctx, session.UserID, "Project updated.")
	return projectPayload(project), nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID int64) error {
	if !session.isAdmin() {
		return ErrDenied
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}

	// Collect child IDs before the cascade wipes them, so the search index
	// can be purged too.
	taskIDs, _ := s.store.ListProjectTaskIDs(ctx, projectID)
	messageIDs, _ := s.store.ListProjectMessageIDs(ctx, projectID)

	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}

	if s.search != nil {
		s.search.DeleteProject(projectID)
		for _, id := range taskIDs {
			s.search.DeleteTask(id)
		}
		for _, id := range messageIDs {
			s.search.DeleteMessage(id)
		}
	}
	s.pushFlash(ctx, session.UserID, "Project deleted.")
	return nil
}

func (s *Service) indexProject(p store.Project) {
	if s.search == nil {
		return
	}
	s.search.IndexProject(search.ProjectRecord{
		ID:          p.ID,
		Name:        p.Name,
		Subtitle:    p.Subtitle,
		Description: p.Description,
	})
}

// Tasks

func (s *Service) ListTasks(ctx context.Context, session Session, projectID int64, page int) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindTask, ProjectID: projectID}); err != nil {
		return nil, err
	}
	tasks, info, err := s.store.ListTasksPaginated(ctx, projectID, page)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, taskPayload(t))
	}
	return map[string]any{"items": items, "page": pagePayload(info)}, nil
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID int64) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionView, taskTarget(task)); err != nil {
		return nil, err
	}
	return taskPayload(task), nil
}

func (s *Service) validateTaskInput(ctx context.Context, projectID int64, input TaskInput) (store.Task, map[string]string, error) {
	details := map[string]string{}
	if len(strings.TrimSpace(input.Name)) < 3 {
		details["name"] = "name must be at least 3 characters"
	}
	date, err := time.Parse("2006-01-02", input.Date)
	if err != nil {
		details["date"] = "date must be formatted YYYY-MM-DD"
	}
	if input.PriorityID == 0 {
		details["priorityId"] = "priority is required"
	}
	if input.AssigneeID != nil {
		member, err := s.memberOf(ctx, *input.AssigneeID, projectID)
		if err != nil {
			return store.Task{}, nil, err
		}
		if !member {
			details["assigneeId"] = "assignee must be a project member"
		}
	}
	if len(details) > 0 {
		return store.Task{}, details, nil
	}
	return store.Task{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Done:        input.Done,
		Date:        date,
		PriorityID:  input.PriorityID,
		ProjectID:   projectID,
		AssigneeID:  input.AssigneeID,
	}, nil, nil
}

func (s *Service) CreateTask(ctx context.Context, session Session, projectID int64, input TaskInput) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionCreate, Target{Kind: KindTask, ProjectID: projectID}); err != nil {
		return nil, err
	}
	task, details, err := s.validateTaskInput(ctx, projectID, input)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		return nil, validationError(details)
	}

	task.AuthorID = session.UserID
	id, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	task.ID = id

	s.indexTask(task)
	s.pushFlash(ctx, session.UserID, "Task added.")
	return taskPayload(task), nil
}

func (s *Service) UpdateTask(ctx context.Context, session Session, taskID int64, input TaskInput) (map[string]any, error) {
	existing, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionEdit, taskTarget(existing)); err != nil {
		return nil, err
	}
	task, details, err := s.validateTaskInput(ctx, existing.ProjectID, input)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		return nil, validationError(details)
	}

	task.ID = taskID
	task.AuthorID = existing.AuthorID
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	s.indexTask(task)
	s.pushFlash(ctx, session.UserID, "Task updated.")
	return taskPayload(task), nil
}

// FinishTask marks a task done. Repeating the call is harmless: the store
// flips the flag at most once and the notice is only shown for the flip.
func (s *Service) FinishTask(ctx context.Context, session Session, taskID int64) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionEdit, taskTarget(task)); err != nil {
		return nil, err
	}

	flipped, err := s.store.FinishTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.Done = true

	if flipped {
		s.indexTask(task)
		s.pushFlash(ctx, session.UserID, "Task finished.")
	}
	return taskPayload(task), nil
}

func (s *Service) DeleteTask(ctx context.Context, session Session, taskID int64) (int64, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, session, rbac.ActionDelete, taskTarget(task)); err != nil {
		return 0, err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return 0, err
	}

	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	s.pushFlash(ctx, session.UserID, "Task deleted.")
	return task.ProjectID, nil
}

func (s *Service) ListPriorities(ctx context.Context) ([]map[string]any, error) {
	priorities, err := s.store.ListPriorities(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(priorities))
	for _, p := range priorities {
		items = append(items, map[string]any{"id": p.ID, "name": p.Name})
	}
	return items, nil
}

func taskTarget(t store.Task) Target {
	target := Target{Kind: KindTask, OwnerID: t.AuthorID, ProjectID: t.ProjectID}
	if t.AssigneeID != nil {
		target.AssigneeID = *t.AssigneeID
	}
	return target
}

func (s *Service) indexTask(t store.Task) {
	if s.search == nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		ProjectID:   t.ProjectID,
		Done:        t.Done,
	})
}

// Messages

func (s *Service) ListMessages(ctx context.Context, session Session, projectID int64, page int) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindMessage, ProjectID: projectID}); err != nil {
		return nil, err
	}
	messages, info, err := s.store.ListMessagesPaginated(ctx, projectID, page)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, messagePayload(m))
	}
	return map[string]any{"items": items, "page": pagePayload(info)}, nil
}

func (s *Service) CreateMessage(ctx context.Context, session Session, projectID int64, input MessageInput) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionCreate, Target{Kind: KindMessage, ProjectID: projectID}); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(input.Content)) < 2 {
		return nil, validationError(map[string]string{"content": "content must be at least 2 characters"})
	}

	message := store.Message{
		Content:   input.Content,
		Date:      time.Now(),
		ProjectID: projectID,
		UserID:    session.UserID,
	}
	id, err := s.store.CreateMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	message.ID = id

	s.indexMessage(message)
	s.pushFlash(ctx, session.UserID, "Message posted.")
	return messagePayload(message), nil
}

func (s *Service) UpdateMessage(ctx context.Context, session Session, messageID int64, input MessageInput) (map[string]any, error) {
	existing, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionEdit, Target{Kind: KindMessage, OwnerID: existing.UserID, ProjectID: existing.ProjectID}); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(input.Content)) < 2 {
		return nil, validationError(map[string]string{"content": "content must be at least 2 characters"})
	}

	if err := s.store.UpdateMessage(ctx, messageID, input.Content); err != nil {
		return nil, err
	}
	existing.Content = input.Content

	s.indexMessage(existing)
	s.pushFlash(ctx, session.UserID, "Message updated.")
	return messagePayload(existing), nil
}

func (s *Service) DeleteMessage(ctx context.Context, session Session, messageID int64) (int64, error) {
	existing, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, session, rbac.ActionDelete, Target{Kind: KindMessage, OwnerID: existing.UserID, ProjectID: existing.ProjectID}); err != nil {
		return 0, err
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return 0, err
	}

	if s.search != nil {
		s.search.DeleteMessage(messageID)
	}
	s.pushFlash(ctx, session.UserID, "Message deleted.")
	return existing.ProjectID, nil
}

func (s *Service) indexMessage(m store.Message) {
	if s.search == nil {
		return
	}
	s.search.IndexMessage(search.MessageRecord{
		ID:        m.ID,
		Content:   m.Content,
		ProjectID: m.ProjectID,
	})
}

// Notes

func (s *Service) ListNotes(ctx context.Context, session Session, projectID int64, page int) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionCreate, Target{Kind: KindNote, ProjectID: projectID}); err != nil {
		return nil, err
	}
	notes, info, err := s.store.ListNotesPaginated(ctx, projectID, session.UserID, session.isAdmin(), page)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		items = append(items, notePayload(n))
	}
	return map[string]any{"items": items, "page": pagePayload(info)}, nil
}

func (s *Service) GetNote(ctx context.Context, session Session, noteID int64) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindNote, OwnerID: note.UserID, ProjectID: note.ProjectID}); err != nil {
		return nil, err
	}
	return notePayload(note), nil
}

func (s *Service) CreateNote(ctx context.Context, session Session, projectID int64, input NoteInput) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionCreate, Target{Kind: KindNote, ProjectID: projectID}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, validationError(map[string]string{"title": "title is required"})
	}

	note := store.Note{
		Title:     strings.TrimSpace(input.Title),
		Content:   input.Content,
		ProjectID: projectID,
		UserID:    session.UserID,
	}
	id, err := s.store.CreateNote(ctx, note)
	if err != nil {
		return nil, err
	}
	note.ID = id

	s.pushFlash(ctx, session.UserID, "Note added.")
	return notePayload(note), nil
}

func (s *Service) UpdateNote(ctx context.Context, session Session, noteID int64, input NoteInput) (map[string]any, error) {
	existing, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionEdit, Target{Kind: KindNote, OwnerID: existing.UserID, ProjectID: existing.ProjectID}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, validationError(map[string]string{"title": "title is required"})
	}

	existing.Title = strings.TrimSpace(input.Title)
	existing.Content = input.Content
	if err := s.store.UpdateNote(ctx, existing); err != nil {
		return nil, err
	}

	s.pushFlash(ctx, session.UserID, "Note updated.")
	return notePayload(existing), nil
}

func (s *Service) DeleteNote(ctx context.Context, session Session, noteID int64) (int64, error) {
	existing, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, session, rbac.ActionDelete, Target{Kind: KindNote, OwnerID: existing.UserID, ProjectID: existing.ProjectID}); err != nil {
		return 0, err
	}
	if err := s.store.DeleteNote(ctx, noteID); err != nil {
		return 0, err
	}

	s.pushFlash(ctx, session.UserID, "Note deleted.")
	return existing.ProjectID, nil
}

// Files

func (s *Service) ListFiles(ctx context.Context, session Session, projectID int64, page int) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindFile, ProjectID: projectID}); err != nil {
		return nil, err
	}
	files, info, err := s.store.ListFilesPaginated(ctx, projectID, page)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(files))
	for _, f := range files {
		items = append(items, filePayload(f))
	}
	return map[string]any{"items": items, "page": pagePayload(info)}, nil
}

func (s *Service) GetFileMeta(ctx context.Context, session Session, fileID int64) (map[string]any, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindFile, OwnerID: file.UserID, ProjectID: file.ProjectID}); err != nil {
		return nil, err
	}
	return filePayload(file), nil
}

// UploadFile stores the blob first, then the metadata row. A failed blob
// write leaves no metadata behind; a failed insert orphans at most one
// unreferenced object.
func (s *Service) UploadFile(ctx context.Context, session Session, projectID int64, meta FileMetaInput, filename string, r io.Reader, size int64, contentType string) (map[string]any, error) {
	if err := s.authorize(ctx, session, rbac.ActionCreate, Target{Kind: KindFile, ProjectID: projectID}); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = filename
	}
	if strings.TrimSpace(name) == "" {
		return nil, validationError(map[string]string{"name": "name is required"})
	}
	if err := blob.ValidateUpload(size, contentType); err != nil {
		if errors.Is(err, blob.ErrTooLarge) {
			return nil, validationError(map[string]string{"file": "file exceeds the 4096k upload limit"})
		}
		if errors.Is(err, blob.ErrUnsupportedType) {
			return nil, validationError(map[string]string{"file": "file type is not allowed"})
		}
		return nil, err
	}
	if s.blobs == nil {
		return nil, domainError(503, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}

	storedName := blob.StoredName(filename)
	if err := s.blobs.Put(ctx, storedName, r, size, contentType); err != nil {
		return nil, err
	}

	file := store.File{
		Name:        name,
		Description: meta.Description,
		StoredName:  storedName,
		ProjectID:   projectID,
		UserID:      session.UserID,
	}
	id, err := s.store.CreateFile(ctx, file)
	if err != nil {
		return nil, err
	}
	file.ID = id

	s.pushFlash(ctx, session.UserID, "File uploaded.")
	return filePayload(file), nil
}

func (s *Service) DownloadFile(ctx context.Context, session Session, fileID int64) (store.File, io.ReadCloser, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return store.File{}, nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindFile, OwnerID: file.UserID, ProjectID: file.ProjectID}); err != nil {
		return store.File{}, nil, err
	}
	if s.blobs == nil {
		return store.File{}, nil, domainError(503, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	reader, err := s.blobs.Get(ctx, file.StoredName)
	if err != nil {
		return store.File{}, nil, err
	}
	return file, reader, nil
}

// UpdateFileMeta edits name and description. The stored blob never changes.
func (s *Service) UpdateFileMeta(ctx context.Context, session Session, fileID int64, input FileMetaInput) (map[string]any, error) {
	existing, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, rbac.ActionEdit, Target{Kind: KindFile, OwnerID: existing.UserID, ProjectID: existing.ProjectID}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, validationError(map[string]string{"name": "name is required"})
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = input.Description
	if err := s.store.UpdateFile(ctx, fileID, existing.Name, existing.Description); err != nil {
		return nil, err
	}

	s.pushFlash(ctx, session.UserID, "File updated.")
	return filePayload(existing), nil
}

func (s *Service) DeleteFile(ctx context.Context, session Session, fileID int64) (int64, error) {
	existing, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, session, rbac.ActionDelete, Target{Kind: KindFile, OwnerID: existing.UserID, ProjectID: existing.ProjectID}); err != nil {
		return 0, err
	}
	if err := s.store.DeleteFile(ctx, fileID); err != nil {
		return 0, err
	}
	if s.blobs != nil {
		if err := s.blobs.Remove(ctx, existing.StoredName); err != nil {
			log.Printf("blob: remove %s: %v", existing.StoredName, err)
		}
	}

	s.pushFlash(ctx, session.UserID, "File deleted.")
	return existing.ProjectID, nil
}

// Search

func (s *Service) Search(ctx context.Context, session Session, text string, filterType string, projectID int64, limit, offset int) (search.Response, error) {
	query := search.Query{
		Text:            text,
		FilterType:      search.ResultType(filterType),
		FilterProjectID: projectID,
		Limit:           limit,
		Offset:          offset,
	}
	if !session.isAdmin() {
		ids, err := s.store.ListMemberProjectIDs(ctx, session.UserID)
		if err != nil {
			return search.Response{}, err
		}
		query.ProjectIDs = ids
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(query), nil
}

// Report

func (s *Service) ExportReport(ctx context.Context, session Session, projectID int64) (*export.Result, error) {
	if err := s.authorize(ctx, session, rbac.ActionView, Target{Kind: KindProject, ProjectID: projectID}); err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{ProjectID: projectID})
}

// reportStore adapts the data store to the export service.
type reportStore struct {
	store dataStore
}

func (r *reportStore) GetProjectInfo(ctx context.Context, projectID int64) (export.ProjectInfo, error) {
	p, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	return export.ProjectInfo{ID: p.ID, Name: p.Name, Subtitle: p.Subtitle, Description: p.Description}, nil
}

func (r *reportStore) ListMemberNames(ctx context.Context, projectID int64) ([]string, error) {
	members, err := r.store.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Login)
	}
	return names, nil
}

func (r *reportStore) ListReportTasks(ctx context.Context, projectID int64) ([]export.ReportTask, error) {
	details, err := r.store.ListTaskDetails(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks := make([]export.ReportTask, 0, len(details))
	for _, d := range details {
		tasks = append(tasks, export.ReportTask{
			Name:     d.Name,
			Assignee: d.Assignee,
			Priority: d.Priority,
			Date:     d.Date,
			Done:     d.Done,
		})
	}
	return tasks, nil
}

func (r *reportStore) ListRecentMessages(ctx context.Context, projectID int64, limit int) ([]export.ReportMessage, error) {
	details, err := r.store.ListMessageDetails(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]export.ReportMessage, 0, len(details))
	for _, d := range details {
		messages = append(messages, export.ReportMessage{
			Author:  d.Author,
			Content: d.Content,
			Date:    d.Date,
		})
	}
	return messages, nil
}

// Payload helpers

func pagePayload(info store.PageInfo) map[string]any {
	return map[string]any{
		"page":       info.Page,
		"pageSize":   info.PageSize,
		"totalItems": info.TotalItems,
		"totalPages": info.TotalPages,
	}
}

func projectPayload(p store.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"subtitle":    p.Subtitle,
		"description": p.Description,
	}
}

func taskPayload(t store.Task) map[string]any {
	payload := map[string]any{
		"id":          t.ID,
		"name":        t.Name,
		"description": t.Description,
		"done":        t.Done,
		"date":        t.Date.Format("2006-01-02"),
		"priorityId":  t.PriorityID,
		"projectId":   t.ProjectID,
		"authorId":    t.AuthorID,
		"assigneeId":  nil,
	}
	if t.AssigneeID != nil {
		payload["assigneeId"] = *t.AssigneeID
	}
	return payload
}

func messagePayload(m store.Message) map[string]any {
	return map[string]any{
		"id":        m.ID,
		"content":   m.Content,
		"date":      m.Date.Format(time.RFC3339),
		"projectId": m.ProjectID,
		"userId":    m.UserID,
	}
}

func notePayload(n store.Note) map[string]any {
	return map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"content":   n.Content,
		"projectId": n.ProjectID,
		"userId":    n.UserID,
	}
}

func filePayload(f store.File) map[string]any {
	return map[string]any{
		"id":          f.ID,
		"name":        f.Name,
		"description": f.Description,
		"projectId":   f.ProjectID,
		"userId":      f.UserID,
	}
}
