package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskhub/api/internal/store"
)

func newTestServer(t *testing.T, fs *fakeStore) (*httptest.Server, *Service) {
	t.Helper()
	svc, _ := newTestService(fs)
	ts := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func tokenFor(t *testing.T, svc *Service, user store.User) string {
	t.Helper()
	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession() error = %v", err)
	}
	return session.Token
}

func doJSON(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func userLookup(users ...store.User) func(context.Context, int64) (store.User, error) {
	byID := map[int64]store.User{}
	for _, u := range users {
		byID[u.ID] = u
	}
	return func(_ context.Context, id int64) (store.User, error) {
		if u, ok := byID[id]; ok {
			return u, nil
		}
		return store.User{}, sql.ErrNoRows
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &fakeStore{})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts, _ := newTestServer(t, &fakeStore{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/projects", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["code"] != "UNAUTHORIZED" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestDeniedMutationRedirects(t *testing.T) {
	created := 0
	member := store.User{ID: 7, Login: "maria", RoleName: "ROLE_USER"}
	fs := &fakeStore{
		getUserByIDFn: userLookup(member),
		createProjectFn: func(context.Context, store.Project, []int64) (int64, error) {
			created++
			return 1, nil
		},
	}
	ts, svc := newTestServer(t, fs)
	token := tokenFor(t, svc, member)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/projects", token, `{"name":"Launch plan"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/projects" {
		t.Fatalf("Location = %q, want /projects", loc)
	}
	if created != 0 {
		t.Fatal("denied request must not create anything")
	}
}

func TestCreateProjectOverHTTP(t *testing.T) {
	admin := store.User{ID: 1, Login: "admin", RoleName: "ROLE_ADMIN"}
	fs := &fakeStore{
		getUserByIDFn: userLookup(admin),
		createProjectFn: func(context.Context, store.Project, []int64) (int64, error) {
			return 42, nil
		},
	}
	ts, svc := newTestServer(t, fs)
	token := tokenFor(t, svc, admin)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/projects", token, `{"name":"Launch plan","memberIds":[7]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["id"] != float64(42) {
		t.Fatalf("id = %v, want 42", body["id"])
	}
}

func TestValidationErrorsReturn422(t *testing.T) {
	admin := store.User{ID: 1, Login: "admin", RoleName: "ROLE_ADMIN"}
	fs := &fakeStore{getUserByIDFn: userLookup(admin)}
	ts, svc := newTestServer(t, fs)
	token := tokenFor(t, svc, admin)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/projects", token, `{"name":"ab"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", body["code"])
	}
	details, _ := body["details"].(map[string]any)
	if details["name"] == nil {
		t.Fatalf("expected name detail, got %v", body["details"])
	}
}

func TestMissingEntityRedirectsWithNotice(t *testing.T) {
	member := store.User{ID: 7, Login: "maria", RoleName: "ROLE_USER"}
	fs := &fakeStore{getUserByIDFn: userLookup(member)}
	ts, svc := newTestServer(t, fs)
	token := tokenFor(t, svc, member)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/tasks/999", token, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/projects" {
		t.Fatalf("Location = %q, want /projects", loc)
	}

	notices := svc.PopFlashes(context.Background(), Session{UserID: member.ID})
	if len(notices) != 1 || notices[0] != "Record not found." {
		t.Fatalf("notices = %v", notices)
	}
}

func TestProjectListIncludesNotices(t *testing.T) {
	admin := store.User{ID: 1, Login: "admin", RoleName: "ROLE_ADMIN"}
	fs := &fakeStore{getUserByIDFn: userLookup(admin)}
	ts, svc := newTestServer(t, fs)
	token := tokenFor(t, svc, admin)
	svc.pushFlash(context.Background(), admin.ID, "Project created.")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/projects", token, "")
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	notices, _ := body["notices"].([]any)
	if len(notices) != 1 || notices[0] != "Project created." {
		t.Fatalf("notices = %v", body["notices"])
	}

	// Flashes are one-shot: a second fetch comes back empty.
	resp2 := doJSON(t, http.MethodGet, ts.URL+"/api/projects", token, "")
	defer resp2.Body.Close()
	var body2 map[string]any
	_ = json.NewDecoder(resp2.Body).Decode(&body2)
	if notices2, _ := body2["notices"].([]any); len(notices2) != 0 {
		t.Fatalf("notices after drain = %v", body2["notices"])
	}
}

func TestRegisterThenSessionRoundTrip(t *testing.T) {
	users := map[int64]store.User{}
	fs := &fakeStore{}
	fs.createUserFn = func(_ context.Context, u store.User) (int64, error) {
		u.ID = 7
		users[7] = u
		return 7, nil
	}
	fs.getUserByIDFn = func(_ context.Context, id int64) (store.User, error) {
		if u, ok := users[id]; ok {
			return u, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	ts, _ := newTestServer(t, fs)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", `{"login":"maria","email":"maria@example.com","password":"password123"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["role"] != "ROLE_USER" {
		t.Fatalf("role = %v, want ROLE_USER", body["role"])
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("expected access token")
	}

	resp2 := doJSON(t, http.MethodGet, ts.URL+"/api/session", token, "")
	defer resp2.Body.Close()
	var session map[string]any
	_ = json.NewDecoder(resp2.Body).Decode(&session)
	if session["authenticated"] != true || session["login"] != "maria" {
		t.Fatalf("session = %v", session)
	}
}
