package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liamcoop/formsync/accounts"
	"github.com/liamcoop/formsync/airtable"
	"github.com/liamcoop/formsync/config"
	"github.com/liamcoop/formsync/forms"
	"github.com/liamcoop/formsync/metrics"
	"github.com/liamcoop/formsync/responses"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	testSessionSecret = "0123456789abcdef0123456789abcdef"
	testWebhookSecret = "whsec-test"
	testFrontendURL   = "http://app.test"
)

type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(ctx context.Context) error {
	return p.err
}

// fakeAirtable serves the subset of the Airtable API the server calls
type fakeAirtable struct {
	*httptest.Server

	mu          sync.Mutex
	records     []map[string]any
	failRecords bool
}

func newFakeAirtable(t *testing.T) *fakeAirtable {
	fa := &fakeAirtable{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v0/meta/whoami", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "usrNew", "email": "new@example.com"})
	})
	mux.HandleFunc("GET /v0/meta/bases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"bases": []map[string]any{{"id": "appBase", "name": "CRM", "permissionLevel": "create"}},
		})
	})
	mux.HandleFunc("GET /v0/meta/bases/appBase/tables", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"tables": []map[string]any{{
				"id":   "tblLeads",
				"name": "Leads",
				"fields": []map[string]any{
					{"id": "fldName", "name": "Full Name", "type": "singleLineText"},
					{"id": "fldRole", "name": "Role", "type": "singleSelect", "options": map[string]any{
						"choices": []map[string]any{{"name": "Engineer"}, {"name": "Designer"}},
					}},
					{"id": "fldScore", "name": "Score", "type": "number"},
				},
			}},
		})
	})
	mux.HandleFunc("POST /v0/appBase/tblLeads", func(w http.ResponseWriter, r *http.Request) {
		fa.mu.Lock()
		defer fa.mu.Unlock()

		if fa.failRecords {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": map[string]any{"type": "INVALID_VALUE_FOR_COLUMN", "message": "bad value"},
			})
			return
		}

		var body struct {
			Fields map[string]any `json:"fields"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		fa.records = append(fa.records, body.Fields)
		writeJSON(w, http.StatusOK, map[string]any{"id": "rec" + strconv.Itoa(len(fa.records)), "fields": body.Fields})
	})
	mux.HandleFunc("POST /oauth2/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at-new",
			"refresh_token": "rt-new",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})

	fa.Server = httptest.NewServer(mux)
	t.Cleanup(fa.Close)
	return fa
}

func (fa *fakeAirtable) createdRecords() []map[string]any {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return append([]map[string]any(nil), fa.records...)
}

type testEnv struct {
	server   *Server
	airtable *fakeAirtable
	users    *accounts.InMemoryUserStore
	sessions *accounts.Sessions
	logins   *accounts.PendingLogins
	store    *responses.InMemoryResponseStore
}

func newTestEnv(t *testing.T, pinger Pinger) *testEnv {
	t.Helper()

	fa := newFakeAirtable(t)
	cfg := &config.Config{
		Environment:   "development",
		FrontendURL:   testFrontendURL,
		WebhookSecret: testWebhookSecret,
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	users := accounts.NewInMemoryUserStore()
	oauth := airtable.NewOAuth(airtable.OAuthConfig{
		ClientID:    "client",
		RedirectURL: "http://api.test/callback",
		AuthURL:     fa.URL,
	})
	client := airtable.NewClient(airtable.WithBaseURL(fa.URL), airtable.WithMetrics(m), airtable.WithRetry(0, 0, 0))
	tokens := accounts.NewTokenManager(users, oauth, m)

	sessions, err := accounts.NewSessions(testSessionSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create sessions: %v", err)
	}

	formManager := forms.NewManager(forms.NewInMemoryFormStore(), forms.DefaultCacheConfig())
	store := responses.NewInMemoryResponseStore()
	logins := accounts.NewPendingLogins(time.Minute)

	server := NewServer(cfg, Deps{
		DB:        pinger,
		Forms:     formManager,
		Responses: responses.NewService(formManager, store, tokens, client, m),
		Users:     users,
		Tokens:    tokens,
		Sessions:  sessions,
		Logins:    logins,
		OAuth:     oauth,
		Airtable:  client,
		Gatherer:  registry,
	})

	return &testEnv{
		server:   server,
		airtable: fa,
		users:    users,
		sessions: sessions,
		logins:   logins,
		store:    store,
	}
}

// signIn creates a user with a valid token and returns its session cookie
func (env *testEnv) signIn(t *testing.T, airtableUserID string) (*accounts.User, *http.Cookie) {
	t.Helper()

	user, err := env.users.Upsert(&accounts.User{
		AirtableUserID: airtableUserID,
		Email:          airtableUserID + "@example.com",
		AccessToken:    "at-" + airtableUserID,
		RefreshToken:   "rt-" + airtableUserID,
		TokenExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	raw, _, err := env.sessions.Issue(user.ID)
	if err != nil {
		t.Fatalf("Failed to issue session: %v", err)
	}
	return user, &http.Cookie{Name: accounts.SessionCookie, Value: raw}
}

func (env *testEnv) do(t *testing.T, method, target string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) createForm(t *testing.T, cookie *http.Cookie) *forms.Form {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/api/v1/forms/", leadForm(), cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating form, got %d: %s", rec.Code, rec.Body.String())
	}

	var form forms.Form
	decodeBody(t, rec, &form)
	return &form
}

func leadForm() map[string]any {
	return map[string]any{
		"title":           "Lead <b>intake</b>",
		"airtableBaseId":  "appBase",
		"airtableTableId": "tblLeads",
		"questions": []map[string]any{
			{"questionKey": "full_name", "airtableFieldId": "fldName", "label": "Full Name", "type": "singleLineText", "required": true},
			{"questionKey": "role", "airtableFieldId": "fldRole", "label": "Role", "type": "singleSelect", "required": true, "options": []string{"Engineer", "Designer"}},
			{
				"questionKey":     "stack",
				"airtableFieldId": "fldStack",
				"label":           "Stack",
				"type":            "multilineText",
				"required":        true,
				"conditionalRules": map[string]any{
					"logic":      "AND",
					"conditions": []map[string]any{{"questionKey": "role", "operator": "equals", "value": "engineer"}},
				},
			},
		},
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestHealth(t *testing.T) {
	testCases := []struct {
		name     string
		pingErr  error
		expected int
	}{
		{name: "database reachable", expected: http.StatusOK},
		{name: "database down", pingErr: errors.New("connection refused"), expected: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, fakePinger{err: tc.pingErr})

			rec := env.do(t, http.MethodGet, "/api/v1/health", nil, nil)
			if rec.Code != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, rec.Code)
			}
		})
	}
}

func TestRequireSession(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	user, cookie := env.signIn(t, "usrOwner")

	testCases := []struct {
		name     string
		cookie   *http.Cookie
		expected int
	}{
		{name: "no cookie", expected: http.StatusUnauthorized},
		{name: "garbage cookie", cookie: &http.Cookie{Name: accounts.SessionCookie, Value: "not-a-token"}, expected: http.StatusUnauthorized},
		{name: "valid session", cookie: cookie, expected: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/auth/me", nil, tc.cookie)
			if rec.Code != tc.expected {
				t.Fatalf("Expected %d, got %d: %s", tc.expected, rec.Code, rec.Body.String())
			}
			if tc.expected != http.StatusOK {
				return
			}

			var me map[string]any
			decodeBody(t, rec, &me)
			if me["id"] != user.ID {
				t.Errorf("Expected user %s, got %v", user.ID, me["id"])
			}
			if _, leaked := me["accessToken"]; leaked {
				t.Error("Access token must not be serialized")
			}
		})
	}
}

func TestFormLifecycle(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")
	_, stranger := env.signIn(t, "usrStranger")

	form := env.createForm(t, owner)
	if form.Title != "Lead intake" {
		t.Errorf("Expected markup stripped from title, got %q", form.Title)
	}

	// Listing returns summaries
	rec := env.do(t, http.MethodGet, "/api/v1/forms/", nil, owner)
	var list FormsListResponse
	decodeBody(t, rec, &list)
	if len(list.Forms) != 1 || list.Forms[0].QuestionCount != 3 {
		t.Fatalf("Expected one form with 3 questions, got %+v", list.Forms)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/forms/", nil, stranger)
	decodeBody(t, rec, &list)
	if len(list.Forms) != 0 {
		t.Errorf("Expected stranger to see no forms, got %d", len(list.Forms))
	}

	// Forms are public to read
	rec = env.do(t, http.MethodGet, "/api/v1/forms/"+form.ID+"/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected public read to succeed, got %d", rec.Code)
	}

	// Only the owner may change a form
	patch := map[string]any{"title": "Renamed"}
	rec = env.do(t, http.MethodPut, "/api/v1/forms/"+form.ID+"/", patch, stranger)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for stranger update, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/forms/"+form.ID+"/", patch, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for owner update, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated forms.Form
	decodeBody(t, rec, &updated)
	if updated.Title != "Renamed" || len(updated.Questions) != 3 {
		t.Errorf("Unexpected update result: %q with %d questions", updated.Title, len(updated.Questions))
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/forms/"+form.ID+"/", nil, stranger)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for stranger delete, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/forms/"+form.ID+"/", nil, owner)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 for owner delete, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/forms/"+form.ID+"/", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateForm_Rejected(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")

	unsupported := leadForm()
	unsupported["questions"] = []map[string]any{
		{"questionKey": "age", "airtableFieldId": "fldAge", "label": "Age", "type": "number"},
		{"questionKey": "ok", "airtableFieldId": "fldOk", "label": "Ok", "type": "checkbox"},
	}

	wrongShape := leadForm()
	wrongShape["questions"] = "not a list"

	danglingRule := leadForm()
	danglingRule["questions"] = []map[string]any{
		{
			"questionKey": "stack", "airtableFieldId": "fldStack", "label": "Stack", "type": "multilineText",
			"conditionalRules": map[string]any{
				"logic":      "AND",
				"conditions": []map[string]any{{"questionKey": "missing", "operator": "equals", "value": "x"}},
			},
		},
	}

	testCases := []struct {
		name         string
		body         map[string]any
		invalidTypes []string
	}{
		{name: "unsupported types", body: unsupported, invalidTypes: []string{"number", "checkbox"}},
		{name: "schema violation", body: wrongShape},
		{name: "condition on unknown question", body: danglingRule},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/forms/", tc.body, owner)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if tc.invalidTypes == nil {
				return
			}

			var resp InvalidTypesResponse
			decodeBody(t, rec, &resp)
			if strings.Join(resp.InvalidTypes, ",") != strings.Join(tc.invalidTypes, ",") {
				t.Errorf("Expected invalid types %v, got %v", tc.invalidTypes, resp.InvalidTypes)
			}
		})
	}
}

func TestVisibility(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")
	form := env.createForm(t, owner)

	testCases := []struct {
		name      string
		answers   map[string]any
		showStack bool
	}{
		{name: "no answers", answers: map[string]any{}, showStack: false},
		{name: "engineer in another case", answers: map[string]any{"role": "ENGINEER"}, showStack: true},
		{name: "designer", answers: map[string]any{"role": "Designer"}, showStack: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/forms/"+form.ID+"/visibility", VisibilityRequest{Answers: tc.answers}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			var resp VisibilityResponse
			decodeBody(t, rec, &resp)
			if !resp.Visibility["full_name"] || !resp.Visibility["role"] {
				t.Errorf("Unconditional questions must always show: %v", resp.Visibility)
			}
			if resp.Visibility["stack"] != tc.showStack {
				t.Errorf("Expected stack visible=%v, got %v", tc.showStack, resp.Visibility["stack"])
			}
		})
	}
}

func TestSubmitResponse(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")
	form := env.createForm(t, owner)

	testCases := []struct {
		name     string
		body     map[string]any
		expected int
	}{
		{name: "missing answers", body: map[string]any{"formId": form.ID}, expected: http.StatusBadRequest},
		{name: "unknown form", body: map[string]any{"formId": "nope", "answers": map[string]any{}}, expected: http.StatusNotFound},
		{name: "required visible question missing", body: map[string]any{
			"formId":  form.ID,
			"answers": map[string]any{"full_name": "Ada", "role": "Engineer"},
		}, expected: http.StatusBadRequest},
		{name: "hidden question skipped", body: map[string]any{
			"formId":  form.ID,
			"answers": map[string]any{"full_name": "Grace", "role": "Designer", "stack": "ignored"},
		}, expected: http.StatusCreated},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/responses/", tc.body, nil)
			if rec.Code != tc.expected {
				t.Fatalf("Expected %d, got %d: %s", tc.expected, rec.Code, rec.Body.String())
			}
		})
	}

	records := env.airtable.createdRecords()
	if len(records) != 1 {
		t.Fatalf("Expected one Airtable record, got %d", len(records))
	}
	if _, ok := records[0]["fldStack"]; ok {
		t.Error("Hidden answer must not be forwarded to Airtable")
	}
	if records[0]["fldName"] != "Grace" {
		t.Errorf("Expected fldName=Grace, got %v", records[0]["fldName"])
	}

	t.Run("validation errors name the question", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/responses/", map[string]any{
			"formId":  form.ID,
			"answers": map[string]any{"role": "Engineer"},
		}, nil)

		var resp ValidationFailedResponse
		decodeBody(t, rec, &resp)
		if _, ok := resp.Errors["full_name"]; !ok {
			t.Errorf("Expected error for full_name, got %v", resp.Errors)
		}
		if _, ok := resp.Errors["stack"]; !ok {
			t.Errorf("Expected error for stack, got %v", resp.Errors)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/responses/", map[string]any{
			"formId":  form.ID,
			"answers": map[string]any{"full_name": strings.Repeat("a", maxSubmissionBody), "role": "Designer"},
		}, nil)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("Expected 413, got %d: %s", rec.Code, rec.Body.String())
		}
		if n := len(env.airtable.createdRecords()); n != 1 {
			t.Errorf("Oversized submission reached Airtable, %d records", n)
		}
	})

	t.Run("airtable rejection", func(t *testing.T) {
		env.airtable.mu.Lock()
		env.airtable.failRecords = true
		env.airtable.mu.Unlock()

		rec := env.do(t, http.MethodPost, "/api/v1/responses/", map[string]any{
			"formId":  form.ID,
			"answers": map[string]any{"full_name": "Linus", "role": "Designer"},
		}, nil)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("Expected 502, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestResponsesAccess(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")
	_, stranger := env.signIn(t, "usrStranger")
	form := env.createForm(t, owner)

	rec := env.do(t, http.MethodPost, "/api/v1/responses/", map[string]any{
		"formId":  form.ID,
		"answers": map[string]any{"full_name": "Ada", "role": "Engineer", "stack": "Go"},
	}, nil)
	var submitted SubmitResponseResponse
	decodeBody(t, rec, &submitted)

	testCases := []struct {
		name     string
		path     string
		cookie   *http.Cookie
		expected int
	}{
		{name: "list as owner", path: "/api/v1/responses/form/" + form.ID, cookie: owner, expected: http.StatusOK},
		{name: "list as stranger", path: "/api/v1/responses/form/" + form.ID, cookie: stranger, expected: http.StatusForbidden},
		{name: "list anonymously", path: "/api/v1/responses/form/" + form.ID, expected: http.StatusUnauthorized},
		{name: "get as owner", path: "/api/v1/responses/" + submitted.ResponseID, cookie: owner, expected: http.StatusOK},
		{name: "get as stranger", path: "/api/v1/responses/" + submitted.ResponseID, cookie: stranger, expected: http.StatusForbidden},
		{name: "get unknown", path: "/api/v1/responses/nope", cookie: owner, expected: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tc.path, nil, tc.cookie)
			if rec.Code != tc.expected {
				t.Errorf("Expected %d, got %d: %s", tc.expected, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAirtableProxy(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")

	rec := env.do(t, http.MethodGet, "/api/v1/airtable/bases", nil, owner)
	var bases BasesResponse
	decodeBody(t, rec, &bases)
	if len(bases.Bases) != 1 || bases.Bases[0].ID != "appBase" {
		t.Errorf("Unexpected bases: %+v", bases.Bases)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/airtable/bases/appBase/tables/tblLeads/fields", nil, owner)
	var fields FieldsResponse
	decodeBody(t, rec, &fields)
	if len(fields.Fields) != 2 {
		t.Fatalf("Expected unsupported field filtered out, got %+v", fields.Fields)
	}
	if fields.Fields[0].QuestionKey != "full_name" {
		t.Errorf("Expected derived key full_name, got %q", fields.Fields[0].QuestionKey)
	}
	if strings.Join(fields.Fields[1].Options, ",") != "Engineer,Designer" {
		t.Errorf("Expected select choices, got %v", fields.Fields[1].Options)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/airtable/bases/appBase/tables/tblMissing/fields", nil, owner)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown table, got %d", rec.Code)
	}
}

func TestAirtableProxy_RefreshesExpiredToken(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	user, cookie := env.signIn(t, "usrOwner")

	user.TokenExpiresAt = time.Now().Add(time.Minute)
	if err := env.users.Update(user); err != nil {
		t.Fatalf("Failed to update user: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/airtable/bases", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := env.users.Get(user.ID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if stored.AccessToken != "at-new" {
		t.Errorf("Expected refreshed token to be stored, got %q", stored.AccessToken)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, fakePinger{})

	rec := env.do(t, http.MethodGet, "/api/v1/auth/airtable/login", nil, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", rec.Code)
	}

	consent, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Invalid redirect: %v", err)
	}
	state := consent.Query().Get("state")
	if state == "" || consent.Query().Get("code_challenge_method") != "S256" {
		t.Fatalf("Expected state and PKCE challenge in %s", consent)
	}

	testCases := []struct {
		name     string
		query    string
		location string
	}{
		{name: "missing params", query: "", location: testFrontendURL + "/login?error=missing_params"},
		{name: "unknown state", query: "?code=abc&state=forged", location: testFrontendURL + "/login?error=invalid_state"},
		{name: "success", query: "?code=abc&state=" + state, location: testFrontendURL + "/dashboard"},
		{name: "state is single use", query: "?code=abc&state=" + state, location: testFrontendURL + "/login?error=invalid_state"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/auth/airtable/callback"+tc.query, nil, nil)
			if got := rec.Header().Get("Location"); got != tc.location {
				t.Errorf("Expected redirect to %s, got %s", tc.location, got)
			}
		})
	}

	user, err := env.users.Get(mustUserID(t, env, "usrNew"))
	if err != nil {
		t.Fatalf("Expected signed-in user to be stored: %v", err)
	}
	if user.AccessToken != "at-new" || user.Email != "new@example.com" {
		t.Errorf("Unexpected stored user: %+v", user)
	}
}

func mustUserID(t *testing.T, env *testEnv, airtableUserID string) string {
	t.Helper()
	users, err := env.users.ListExpiringBefore(time.Now().Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("Failed to list users: %v", err)
	}
	for _, u := range users {
		if u.AirtableUserID == airtableUserID {
			return u.ID
		}
	}
	t.Fatalf("No user for %s", airtableUserID)
	return ""
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, fakePinger{})

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != accounts.SessionCookie || cookies[0].MaxAge >= 0 {
		t.Errorf("Expected session cookie to be cleared, got %+v", cookies)
	}
}

func TestAirtableWebhook(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")
	form := env.createForm(t, owner)

	rec := env.do(t, http.MethodPost, "/api/v1/responses/", map[string]any{
		"formId":  form.ID,
		"answers": map[string]any{"full_name": "Ada", "role": "Engineer", "stack": "Go"},
	}, nil)
	var submitted SubmitResponseResponse
	decodeBody(t, rec, &submitted)

	payload := []byte(`{"base":{"id":"appBase"},"webhook":{"id":"achHook"},"timestamp":"2026-01-01T00:00:00Z",
		"changedTablesById":{"tblLeads":{"changedRecordsById":{"` + submitted.AirtableRecordID + `":
		{"current":{"cellValuesByFieldId":{"fldName":"Ada Lovelace"}}}}}}}`)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	send := func(timestamp, mac string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/airtable", bytes.NewReader(payload))
		req.Header.Set(airtable.TimestampHeader, timestamp)
		req.Header.Set(airtable.SignatureHeader, mac)
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		return rec
	}

	testCases := []struct {
		name      string
		timestamp string
		mac       string
		expected  int
	}{
		{name: "unsigned", expected: http.StatusUnauthorized},
		{name: "wrong secret", timestamp: now, mac: airtable.Sign("other", now, payload), expected: http.StatusUnauthorized},
		{name: "signed", timestamp: now, mac: airtable.Sign(testWebhookSecret, now, payload), expected: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := send(tc.timestamp, tc.mac)
			if rec.Code != tc.expected {
				t.Fatalf("Expected %d, got %d: %s", tc.expected, rec.Code, rec.Body.String())
			}
		})
	}

	stored, err := env.store.Get(submitted.ResponseID)
	if err != nil {
		t.Fatalf("Failed to get response: %v", err)
	}
	if stored.Answers["full_name"] != "Ada Lovelace" {
		t.Errorf("Expected answer updated from Airtable, got %v", stored.Answers["full_name"])
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, fakePinger{})

	testCases := []struct {
		name        string
		origin      string
		expected    int
		allowOrigin string
	}{
		{name: "frontend", origin: testFrontendURL, expected: http.StatusNoContent, allowOrigin: testFrontendURL},
		{name: "local dev", origin: "http://localhost:3000", expected: http.StatusNoContent, allowOrigin: "http://localhost:3000"},
		{name: "unknown origin", origin: "http://evil.test", expected: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/forms/", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			env.server.ServeHTTP(rec, req)

			if rec.Code != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.allowOrigin {
				t.Errorf("Expected allow origin %q, got %q", tc.allowOrigin, got)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	_, owner := env.signIn(t, "usrOwner")
	form := env.createForm(t, owner)

	env.do(t, http.MethodPost, "/api/v1/responses/", map[string]any{
		"formId":  form.ID,
		"answers": map[string]any{"role": "Designer"},
	}, nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `formsync_submissions_total{result="invalid"} 1`) {
		t.Errorf("Expected invalid submission to be counted:\n%s", rec.Body.String())
	}
}
