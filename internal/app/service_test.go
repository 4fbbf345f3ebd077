package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskhub/api/internal/authpw"
	"taskhub/api/internal/blob"
	"taskhub/api/internal/config"
	"taskhub/api/internal/export"
	"taskhub/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn           func(context.Context, int64) (store.User, error)
	getUserByLoginFn        func(context.Context, string) (store.User, error)
	loginTakenFn            func(context.Context, string, int64) (bool, error)
	createUserFn            func(context.Context, store.User) (int64, error)
	deleteUserFn            func(context.Context, int64) error
	countUsersFn            func(context.Context) (int, error)
	getRoleByNameFn         func(context.Context, string) (store.Role, error)
	getProjectFn            func(context.Context, int64) (store.Project, error)
	createProjectFn         func(context.Context, store.Project, []int64) (int64, error)
	deleteProjectFn         func(context.Context, int64) error
	isMemberFn              func(context.Context, int64, int64) (bool, error)
	listMemberProjectIDsFn  func(context.Context, int64) ([]int64, error)
	getTaskFn               func(context.Context, int64) (store.Task, error)
	createTaskFn            func(context.Context, store.Task) (int64, error)
	updateTaskFn            func(context.Context, store.Task) error
	finishTaskFn            func(context.Context, int64) (bool, error)
	getNoteFn               func(context.Context, int64) (store.Note, error)
	listNotesPaginatedFn    func(context.Context, int64, int64, bool, int) ([]store.Note, store.PageInfo, error)
	getMessageFn            func(context.Context, int64) (store.Message, error)
	createFileFn            func(context.Context, store.File) (int64, error)
	isAccessTokenRevokedFn  func(context.Context, string) (bool, error)
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByLogin(ctx context.Context, login string) (store.User, error) {
	if f.getUserByLoginFn != nil {
		return f.getUserByLoginFn(ctx, login)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) ListUsersPaginated(context.Context, int) ([]store.User, store.PageInfo, error) {
	return nil, store.PageInfo{}, nil
}
func (f *fakeStore) ListAllUsers(context.Context) ([]store.User, error) { return nil, nil }
func (f *fakeStore) CountUsers(ctx context.Context) (int, error) {
	if f.countUsersFn != nil {
		return f.countUsersFn(ctx)
	}
	return 1, nil
}
func (f *fakeStore) LoginTaken(ctx context.Context, login string, excludeID int64) (bool, error) {
	if f.loginTakenFn != nil {
		return f.loginTakenFn(ctx, login, excludeID)
	}
	return false, nil
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) (int64, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return 1, nil
}
func (f *fakeStore) UpdateUser(context.Context, store.User) error           { return nil }
func (f *fakeStore) UpdateUserPassword(context.Context, int64, string) error { return nil }
func (f *fakeStore) DeleteUser(ctx context.Context, userID int64) error {
	if f.deleteUserFn != nil {
		return f.deleteUserFn(ctx, userID)
	}
	return nil
}
func (f *fakeStore) ListRoles(context.Context) ([]store.Role, error) { return nil, nil }
func (f *fakeStore) GetRoleByName(ctx context.Context, name string) (store.Role, error) {
	if f.getRoleByNameFn != nil {
		return f.getRoleByNameFn(ctx, name)
	}
	if name == "ROLE_ADMIN" {
		return store.Role{ID: 1, Name: "ROLE_ADMIN"}, nil
	}
	return store.Role{ID: 2, Name: "ROLE_USER"}, nil
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) GetProject(ctx context.Context, projectID int64) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	return store.Project{}, sql.ErrNoRows
}
func (f *fakeStore) ListProjectsPaginated(context.Context, int64, bool, int) ([]store.Project, store.PageInfo, error) {
	return nil, store.PageInfo{}, nil
}
func (f *fakeStore) CreateProject(ctx context.Context, p store.Project, memberIDs []int64) (int64, error) {
	if f.createProjectFn != nil {
		return f.createProjectFn(ctx, p, memberIDs)
	}
	return 1, nil
}
func (f *fakeStore) UpdateProject(context.Context, store.Project, []int64) error { return nil }
func (f *fakeStore) DeleteProject(ctx context.Context, projectID int64) error {
	if f.deleteProjectFn != nil {
		return f.deleteProjectFn(ctx, projectID)
	}
	return nil
}
func (f *fakeStore) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	if f.isMemberFn != nil {
		return f.isMemberFn(ctx, userID, projectID)
	}
	return false, nil
}
func (f *fakeStore) ListProjectMembers(context.Context, int64) ([]store.User, error) {
	return nil, nil
}
func (f *fakeStore) ListMemberProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	if f.listMemberProjectIDsFn != nil {
		return f.listMemberProjectIDsFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) ListProjectTaskIDs(context.Context, int64) ([]int64, error)    { return nil, nil }
func (f *fakeStore) ListProjectMessageIDs(context.Context, int64) ([]int64, error) { return nil, nil }
func (f *fakeStore) GetTask(ctx context.Context, taskID int64) (store.Task, error) {
	if f.getTaskFn != nil {
		return f.getTaskFn(ctx, taskID)
	}
	return store.Task{}, sql.ErrNoRows
}
func (f *fakeStore) ListTasksPaginated(context.Context, int64, int) ([]store.Task, store.PageInfo, error) {
	return nil, store.PageInfo{}, nil
}
func (f *fakeStore) CreateTask(ctx context.Context, t store.Task) (int64, error) {
	if f.createTaskFn != nil {
		return f.createTaskFn(ctx, t)
	}
	return 1, nil
}
func (f *fakeStore) UpdateTask(ctx context.Context, t store.Task) error {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, t)
	}
	return nil
}
func (f *fakeStore) FinishTask(ctx context.Context, taskID int64) (bool, error) {
	if f.finishTaskFn != nil {
		return f.finishTaskFn(ctx, taskID)
	}
	return true, nil
}
func (f *fakeStore) DeleteTask(context.Context, int64) error { return nil }
func (f *fakeStore) ListPriorities(context.Context) ([]store.Priority, error) {
	return []store.Priority{{ID: 1, Name: "low"}, {ID: 2, Name: "medium"}, {ID: 3, Name: "high"}}, nil
}
func (f *fakeStore) GetMessage(ctx context.Context, messageID int64) (store.Message, error) {
	if f.getMessageFn != nil {
		return f.getMessageFn(ctx, messageID)
	}
	return store.Message{}, sql.ErrNoRows
}
func (f *fakeStore) ListMessagesPaginated(context.Context, int64, int) ([]store.Message, store.PageInfo, error) {
	return nil, store.PageInfo{}, nil
}
func (f *fakeStore) CreateMessage(context.Context, store.Message) (int64, error) { return 1, nil }
func (f *fakeStore) UpdateMessage(context.Context, int64, string) error          { return nil }
func (f *fakeStore) DeleteMessage(context.Context, int64) error                  { return nil }
func (f *fakeStore) GetNote(ctx context.Context, noteID int64) (store.Note, error) {
	if f.getNoteFn != nil {
		return f.getNoteFn(ctx, noteID)
	}
	return store.Note{}, sql.ErrNoRows
}
func (f *fakeStore) ListNotesPaginated(ctx context.Context, projectID, userID int64, admin bool, page int) ([]store.Note, store.PageInfo, error) {
	if f.listNotesPaginatedFn != nil {
		return f.listNotesPaginatedFn(ctx, projectID, userID, admin, page)
	}
	return nil, store.PageInfo{}, nil
}
func (f *fakeStore) CreateNote(context.Context, store.Note) (int64, error) { return 1, nil }
func (f *fakeStore) UpdateNote(context.Context, store.Note) error          { return nil }
func (f *fakeStore) DeleteNote(context.Context, int64) error               { return nil }
func (f *fakeStore) GetFile(context.Context, int64) (store.File, error) {
	return store.File{}, sql.ErrNoRows
}
func (f *fakeStore) ListFilesPaginated(context.Context, int64, int) ([]store.File, store.PageInfo, error) {
	return nil, store.PageInfo{}, nil
}
func (f *fakeStore) CreateFile(ctx context.Context, file store.File) (int64, error) {
	if f.createFileFn != nil {
		return f.createFileFn(ctx, file)
	}
	return 1, nil
}
func (f *fakeStore) UpdateFile(context.Context, int64, string, string) error { return nil }
func (f *fakeStore) DeleteFile(context.Context, int64) error                 { return nil }
func (f *fakeStore) ListTaskDetails(context.Context, int64) ([]store.TaskDetail, error) {
	return nil, nil
}
func (f *fakeStore) ListMessageDetails(context.Context, int64, int) ([]store.MessageDetail, error) {
	return nil, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

// authpw extras, so the same fake can back the password service.
func (f *fakeStore) CreatePasswordReset(context.Context, int64, string, time.Time) error {
	return nil
}
func (f *fakeStore) GetPasswordReset(context.Context, string) (int64, error) {
	return 0, sql.ErrNoRows
}
func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }

type fakeSessions struct {
	saved   map[string]store.User
	revoked []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{saved: make(map[string]store.User)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.saved[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	user, ok := f.saved[tokenHash]
	if !ok {
		return store.User{}, errors.New("token not found or expired")
	}
	return user, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.revoked = append(f.revoked, tokenHash)
	delete(f.saved, tokenHash)
	return nil
}

type fakeBlobs struct {
	putCalls int
}

func (f *fakeBlobs) Put(_ context.Context, _ string, _ io.Reader, size int64, contentType string) error {
	if err := blob.ValidateUpload(size, contentType); err != nil {
		return err
	}
	f.putCalls++
	return nil
}

func (f *fakeBlobs) Get(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("blob")), nil
}

func (f *fakeBlobs) Remove(context.Context, string) error { return nil }

func testConfig() config.Config {
	return config.Config{
		TokenSecret:   "test-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		AdminLogin:    "admin",
		AdminEmail:    "admin@localhost",
		AdminPassword: "admin-password",
	}
}

func newTestService(fs *fakeStore) (*Service, *fakeSessions) {
	sessions := newFakeSessions()
	svc := &Service{
		cfg:      testConfig(),
		store:    fs,
		sessions: sessions,
		flashes:  NewMemoryFlashes(),
		authpw:   authpw.NewService(fs),
	}
	svc.export = export.NewService(&reportStore{store: fs})
	return svc, sessions
}

var (
	adminSession  = Session{UserID: 1, Login: "admin", Role: "ROLE_ADMIN"}
	memberSession = Session{UserID: 7, Login: "maria", Role: "ROLE_USER"}
)

func memberOfProject(projectID int64, userIDs ...int64) func(context.Context, int64, int64) (bool, error) {
	members := map[int64]bool{}
	for _, id := range userIDs {
		members[id] = true
	}
	return func(_ context.Context, userID, pid int64) (bool, error) {
		return pid == projectID && members[userID], nil
	}
}

func TestLoginIssuesWorkingSession(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	user := store.User{ID: 7, Login: "maria", Email: "maria@example.com", PasswordHash: string(hash), RoleName: "ROLE_USER"}
	fs := &fakeStore{
		getUserByLoginFn: func(_ context.Context, login string) (store.User, error) {
			if login == "maria" {
				return user, nil
			}
			return store.User{}, sql.ErrNoRows
		},
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			if id == 7 {
				return user, nil
			}
			return store.User{}, sql.ErrNoRows
		},
	}
	svc, sessions := newTestService(fs)

	session, err := svc.Login(context.Background(), "maria", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if len(sessions.saved) != 1 {
		t.Fatalf("expected 1 saved refresh session, got %d", len(sessions.saved))
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if parsed.UserID != 7 || parsed.Login != "maria" {
		t.Fatalf("unexpected session %+v", parsed)
	}

	if _, err := svc.Login(context.Background(), "maria", "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	user := store.User{ID: 7, Login: "maria", RoleName: "ROLE_USER"}
	fs := &fakeStore{}
	svc, sessions := newTestService(fs)

	first, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession() error = %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if len(sessions.revoked) != 1 {
		t.Fatalf("expected old refresh session revoked, revoked=%d", len(sessions.revoked))
	}

	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("expected error reusing a rotated refresh token")
	}
}

func TestCreateProjectDeniedForMembers(t *testing.T) {
	created := 0
	fs := &fakeStore{
		createProjectFn: func(context.Context, store.Project, []int64) (int64, error) {
			created++
			return 1, nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.CreateProject(context.Background(), memberSession, ProjectInput{Name: "Launch"})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if created != 0 {
		t.Fatal("denied create must not touch the store")
	}
}

func TestCreateProjectValidation(t *testing.T) {
	fs := &fakeStore{}
	svc, _ := newTestService(fs)

	_, err := svc.CreateProject(context.Background(), adminSession, ProjectInput{Name: "ab"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 422 {
		t.Fatalf("status = %d, want 422", domainErr.Status)
	}
	details, ok := domainErr.Details.(map[string]string)
	if !ok || details["name"] == "" {
		t.Fatalf("expected name detail, got %+v", domainErr.Details)
	}
}

func TestCreateProjectAsAdmin(t *testing.T) {
	var gotMembers []int64
	fs := &fakeStore{
		createProjectFn: func(_ context.Context, p store.Project, memberIDs []int64) (int64, error) {
			gotMembers = memberIDs
			return 42, nil
		},
	}
	svc, _ := newTestService(fs)

	payload, err := svc.CreateProject(context.Background(), adminSession, ProjectInput{
		Name:      "Launch",
		MemberIDs: []int64{7, 8},
	})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if payload["id"] != int64(42) {
		t.Fatalf("id = %v, want 42", payload["id"])
	}
	if len(gotMembers) != 2 {
		t.Fatalf("members = %v", gotMembers)
	}

	notices := svc.PopFlashes(context.Background(), adminSession)
	if len(notices) != 1 || notices[0] != "Project created." {
		t.Fatalf("notices = %v", notices)
	}
}

func TestCreateTaskAssigneeMustBeMember(t *testing.T) {
	outsider := int64(9)
	fs := &fakeStore{
		isMemberFn: memberOfProject(3, memberSession.UserID),
	}
	svc, _ := newTestService(fs)

	_, err := svc.CreateTask(context.Background(), memberSession, 3, TaskInput{
		Name:       "Ship it",
		Date:       "2026-09-15",
		PriorityID: 2,
		AssigneeID: &outsider,
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	details := domainErr.Details.(map[string]string)
	if details["assigneeId"] == "" {
		t.Fatalf("expected assigneeId detail, got %+v", details)
	}
}

func TestCreateTaskBadDate(t *testing.T) {
	fs := &fakeStore{isMemberFn: memberOfProject(3, memberSession.UserID)}
	svc, _ := newTestService(fs)

	_, err := svc.CreateTask(context.Background(), memberSession, 3, TaskInput{
		Name:       "Ship it",
		Date:       "15.09.2026",
		PriorityID: 2,
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	details := domainErr.Details.(map[string]string)
	if details["date"] == "" {
		t.Fatalf("expected date detail, got %+v", details)
	}
}

func TestUpdateTaskKeepsAuthor(t *testing.T) {
	assignee := memberSession.UserID
	existing := store.Task{
		ID: 11, Name: "Ship it", Date: time.Now(), PriorityID: 2,
		ProjectID: 3, AuthorID: 5, AssigneeID: &assignee,
	}
	var updated store.Task
	fs := &fakeStore{
		getTaskFn: func(context.Context, int64) (store.Task, error) { return existing, nil },
		isMemberFn: memberOfProject(3, memberSession.UserID, 5),
		updateTaskFn: func(_ context.Context, t store.Task) error {
			updated = t
			return nil
		},
	}
	svc, _ := newTestService(fs)

	_, err := svc.UpdateTask(context.Background(), memberSession, 11, TaskInput{
		Name:       "Ship it now",
		Date:       "2026-09-20",
		PriorityID: 3,
	})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if updated.AuthorID != 5 {
		t.Fatalf("author changed on update: got %d, want 5", updated.AuthorID)
	}
}

func TestFinishTaskIdempotent(t *testing.T) {
	task := store.Task{ID: 11, Name: "Ship it", ProjectID: 3, AuthorID: memberSession.UserID, Date: time.Now(), PriorityID: 1}
	flipped := true
	fs := &fakeStore{
		getTaskFn:    func(context.Context, int64) (store.Task, error) { return task, nil },
		isMemberFn:   memberOfProject(3, memberSession.UserID),
		finishTaskFn: func(context.Context, int64) (bool, error) { return flipped, nil },
	}
	svc, _ := newTestService(fs)

	payload, err := svc.FinishTask(context.Background(), memberSession, 11)
	if err != nil {
		t.Fatalf("FinishTask() error = %v", err)
	}
	if payload["done"] != true {
		t.Fatal("expected done=true")
	}
	if notices := svc.PopFlashes(context.Background(), memberSession); len(notices) != 1 {
		t.Fatalf("expected one notice on first finish, got %v", notices)
	}

	flipped = false
	if _, err := svc.FinishTask(context.Background(), memberSession, 11); err != nil {
		t.Fatalf("second FinishTask() error = %v", err)
	}
	if notices := svc.PopFlashes(context.Background(), memberSession); len(notices) != 0 {
		t.Fatalf("repeat finish should be silent, got %v", notices)
	}
}

func TestNoteHiddenFromOtherMembers(t *testing.T) {
	fs := &fakeStore{
		getNoteFn: func(context.Context, int64) (store.Note, error) {
			return store.Note{ID: 4, Title: "Private", ProjectID: 3, UserID: 8}, nil
		},
		isMemberFn: memberOfProject(3, memberSession.UserID, 8),
	}
	svc, _ := newTestService(fs)

	if _, err := svc.GetNote(context.Background(), memberSession, 4); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for foreign note, got %v", err)
	}

	if _, err := svc.GetNote(context.Background(), adminSession, 4); err != nil {
		t.Fatalf("admin should see any note, got %v", err)
	}
}

func TestAssigneeDeletesTask(t *testing.T) {
	author := int64(5)
	fs := &fakeStore{
		getTaskFn: func(_ context.Context, id int64) (store.Task, error) {
			assignee := memberSession.UserID
			return store.Task{ID: id, Name: "Ship it", ProjectID: 3, AuthorID: author, AssigneeID: &assignee}, nil
		},
		isMemberFn: memberOfProject(3, memberSession.UserID, author, 9),
	}
	svc, _ := newTestService(fs)

	projectID, err := svc.DeleteTask(context.Background(), memberSession, 6)
	if err != nil {
		t.Fatalf("assignee should delete the task, got %v", err)
	}
	if projectID != 3 {
		t.Fatalf("expected project 3, got %d", projectID)
	}

	bystander := Session{UserID: 9, Login: "nina", Role: "ROLE_USER"}
	if _, err := svc.DeleteTask(context.Background(), bystander, 6); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for a member who is neither author nor assignee, got %v", err)
	}
}

func TestNoteListScopedByRole(t *testing.T) {
	mine := store.Note{ID: 1, Title: "Mine", ProjectID: 3, UserID: memberSession.UserID}
	theirs := store.Note{ID: 2, Title: "Theirs", ProjectID: 3, UserID: 8}
	fs := &fakeStore{
		listNotesPaginatedFn: func(_ context.Context, _ int64, userID int64, admin bool, _ int) ([]store.Note, store.PageInfo, error) {
			if admin {
				return []store.Note{mine, theirs}, store.PageInfo{Page: 1, PageSize: 5, TotalItems: 2, TotalPages: 1}, nil
			}
			return []store.Note{mine}, store.PageInfo{Page: 1, PageSize: 5, TotalItems: 1, TotalPages: 1}, nil
		},
		isMemberFn: memberOfProject(3, memberSession.UserID, 8),
	}
	svc, _ := newTestService(fs)

	payload, err := svc.ListNotes(context.Background(), memberSession, 3, 1)
	if err != nil {
		t.Fatalf("member list notes: %v", err)
	}
	if items := payload["items"].([]map[string]any); len(items) != 1 {
		t.Fatalf("member should only see own notes, got %d", len(items))
	}

	payload, err = svc.ListNotes(context.Background(), adminSession, 3, 1)
	if err != nil {
		t.Fatalf("admin list notes: %v", err)
	}
	if items := payload["items"].([]map[string]any); len(items) != 2 {
		t.Fatalf("admin should see every member's notes, got %d", len(items))
	}
}

func TestDeleteUserGuards(t *testing.T) {
	deleted := 0
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			return store.User{ID: id, Login: "someone"}, nil
		},
		deleteUserFn: func(context.Context, int64) error {
			deleted++
			return nil
		},
	}
	svc, _ := newTestService(fs)

	if err := svc.DeleteUser(context.Background(), memberSession, 8); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for non-admin, got %v", err)
	}

	err := svc.DeleteUser(context.Background(), adminSession, adminSession.UserID)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 for self delete, got %v", err)
	}
	if deleted != 0 {
		t.Fatal("guarded deletes must not reach the store")
	}

	if err := svc.DeleteUser(context.Background(), adminSession, 8); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
}

func TestUploadFileValidation(t *testing.T) {
	blobs := &fakeBlobs{}
	fs := &fakeStore{isMemberFn: memberOfProject(3, memberSession.UserID)}
	svc, _ := newTestService(fs)
	svc.blobs = blobs

	_, err := svc.UploadFile(context.Background(), memberSession, 3, FileMetaInput{Name: "big"},
		"big.pdf", strings.NewReader(""), blob.MaxUploadBytes+1, "application/pdf")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 for oversize upload, got %v", err)
	}

	_, err = svc.UploadFile(context.Background(), memberSession, 3, FileMetaInput{Name: "app"},
		"app.exe", strings.NewReader(""), 100, "application/octet-stream")
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 for unsupported type, got %v", err)
	}
	if blobs.putCalls != 0 {
		t.Fatal("rejected uploads must not reach blob storage")
	}

	payload, err := svc.UploadFile(context.Background(), memberSession, 3, FileMetaInput{Name: "spec"},
		"spec.pdf", strings.NewReader("pdf bytes"), 9, "application/pdf")
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if blobs.putCalls != 1 {
		t.Fatalf("putCalls = %d, want 1", blobs.putCalls)
	}
	if payload["name"] != "spec" {
		t.Fatalf("name = %v", payload["name"])
	}
}

func TestSearchScopesMembers(t *testing.T) {
	asked := false
	fs := &fakeStore{
		listMemberProjectIDsFn: func(_ context.Context, userID int64) ([]int64, error) {
			asked = true
			if userID != memberSession.UserID {
				t.Fatalf("scoped to user %d, want %d", userID, memberSession.UserID)
			}
			return []int64{3, 5}, nil
		},
	}
	svc, _ := newTestService(fs)

	if _, err := svc.Search(context.Background(), memberSession, "launch", "", 0, 20, 0); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !asked {
		t.Fatal("member search must be scoped to their project memberships")
	}

	asked = false
	if _, err := svc.Search(context.Background(), adminSession, "launch", "", 0, 20, 0); err != nil {
		t.Fatalf("admin Search() error = %v", err)
	}
	if asked {
		t.Fatal("admin search must not be scoped")
	}
}

// TestProjectLifecycleScenario walks the whole flow: an admin creates a
// project, a member authors a task for a teammate, an outsider bounces off,
// the assignee finishes the task, and deleting the author takes the task
// with it.
func TestProjectLifecycleScenario(t *testing.T) {
	u1 := Session{UserID: 7, Login: "maria", Role: "ROLE_USER"}
	u2 := Session{UserID: 8, Login: "piotr", Role: "ROLE_USER"}
	u3 := Session{UserID: 9, Login: "olga", Role: "ROLE_USER"}

	members := map[int64]bool{}
	tasks := map[int64]store.Task{}
	nextTask := int64(0)

	fs := &fakeStore{}
	fs.createProjectFn = func(_ context.Context, p store.Project, memberIDs []int64) (int64, error) {
		for _, id := range memberIDs {
			members[id] = true
		}
		return 10, nil
	}
	fs.isMemberFn = func(_ context.Context, userID, projectID int64) (bool, error) {
		return projectID == 10 && members[userID], nil
	}
	fs.createTaskFn = func(_ context.Context, task store.Task) (int64, error) {
		nextTask++
		task.ID = nextTask
		tasks[task.ID] = task
		return task.ID, nil
	}
	fs.getTaskFn = func(_ context.Context, taskID int64) (store.Task, error) {
		task, ok := tasks[taskID]
		if !ok {
			return store.Task{}, sql.ErrNoRows
		}
		return task, nil
	}
	fs.finishTaskFn = func(_ context.Context, taskID int64) (bool, error) {
		task := tasks[taskID]
		if task.Done {
			return false, nil
		}
		task.Done = true
		tasks[taskID] = task
		return true, nil
	}
	fs.getUserByIDFn = func(_ context.Context, id int64) (store.User, error) {
		return store.User{ID: id}, nil
	}
	fs.deleteUserFn = func(_ context.Context, userID int64) error {
		for id, task := range tasks {
			if task.AuthorID == userID {
				delete(tasks, id)
				continue
			}
			if task.AssigneeID != nil && *task.AssigneeID == userID {
				task.AssigneeID = nil
				tasks[id] = task
			}
		}
		delete(members, userID)
		return nil
	}
	svc, _ := newTestService(fs)

	if _, err := svc.CreateProject(context.Background(), adminSession, ProjectInput{
		Name:      "Alpha",
		MemberIDs: []int64{u1.UserID, u2.UserID},
	}); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	assignee := u2.UserID
	payload, err := svc.CreateTask(context.Background(), u1, 10, TaskInput{
		Name:       "T1 kickoff",
		Date:       "2026-09-10",
		PriorityID: 2,
		AssigneeID: &assignee,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	taskID := payload["id"].(int64)
	if tasks[taskID].AuthorID != u1.UserID {
		t.Fatalf("author = %d, want %d", tasks[taskID].AuthorID, u1.UserID)
	}

	if _, err := svc.ListTasks(context.Background(), u3, 10, 1); !errors.Is(err, ErrDenied) {
		t.Fatalf("outsider task list: got %v, want ErrDenied", err)
	}

	if _, err := svc.FinishTask(context.Background(), u2, taskID); err != nil {
		t.Fatalf("assignee FinishTask() error = %v", err)
	}
	if !tasks[taskID].Done {
		t.Fatal("task not done after finish")
	}

	if err := svc.DeleteUser(context.Background(), adminSession, u1.UserID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, ok := tasks[taskID]; ok {
		t.Fatal("deleting the author must delete the authored task")
	}
}

func TestBootstrapSeedsAdminOnce(t *testing.T) {
	count := 0
	var created store.User
	fs := &fakeStore{
		countUsersFn: func(context.Context) (int, error) { return count, nil },
		createUserFn: func(_ context.Context, u store.User) (int64, error) {
			created = u
			return 1, nil
		},
	}
	svc, _ := newTestService(fs)

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if created.Login != "admin" || created.RoleID != 1 {
		t.Fatalf("seeded user = %+v", created)
	}
	if bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("admin-password")) != nil {
		t.Fatal("seeded password hash does not match the configured password")
	}

	count = 1
	created = store.User{}
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
	if created.Login != "" {
		t.Fatal("bootstrap must be a no-op once users exist")
	}
}
