package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-wastesnap/pkg/admin"
	"github.com/teslashibe/go-wastesnap/pkg/export"
	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

const bossToken = "tok-boss"

type fakeAuth struct{}

func newFakeAuth() *fakeAuth { return &fakeAuth{} }

func (fakeAuth) Login(ctx context.Context, email, password string) (*admin.Session, error) {
	switch {
	case email == "boss@example.in" && password == "secret":
		return &admin.Session{Token: bossToken, UserID: "u-boss", Email: email, ExpiresAt: time.Now().Add(time.Hour)}, nil
	case email == "clerk@example.in" && password == "secret":
		return nil, admin.ErrNotAdmin
	}
	return nil, admin.ErrInvalidCredentials
}

func (fakeAuth) Verify(ctx context.Context, token string) (*admin.Session, error) {
	switch token {
	case "":
		return nil, admin.ErrNoToken
	case bossToken:
		return &admin.Session{Token: token, UserID: "u-boss", Email: "boss@example.in"}, nil
	}
	return nil, admin.ErrInvalidToken
}

func (fakeAuth) Logout(ctx context.Context, token string) error { return nil }

type fakeSheets struct {
	connected bool
	lastState string
	code      string
	exported  int
}

func (f *fakeSheets) Connected() bool { return f.connected }

func (f *fakeSheets) AuthURL(state string) string {
	f.lastState = state
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (f *fakeSheets) Exchange(ctx context.Context, code string) error {
	f.code = code
	f.connected = true
	return nil
}

func (f *fakeSheets) Export(ctx context.Context, title string, subs []submission.Submission) (string, error) {
	if !f.connected {
		return "", export.ErrSheetsNotConnected
	}
	f.exported = len(subs)
	return "https://docs.example.com/spreadsheets/d/abc", nil
}

func seed(f *fixture) {
	f.backend.rows = []submission.Submission{
		{ID: "1", Name: "Charu", Email: "charu@example.in", Age: 52, PhotoURL: f.backend.PublicURL(submission.DefaultBucket, "1.webp"), CreatedAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
		{ID: "2", Name: "Arjun", Email: "arjun@example.in", Age: 29, CreatedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
		{ID: "3", Name: "Bina", Email: "bina@example.in", Age: 40, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	f.backend.objects[submission.DefaultBucket+"/1.webp"] = []byte("RIFF")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		email  string
		pass   string
		status int
		title  string
	}{
		{"admin", "boss@example.in", "secret", http.StatusOK, ""},
		{"not admin", "clerk@example.in", "secret", http.StatusForbidden, "Access Denied"},
		{"bad password", "boss@example.in", "nope", http.StatusUnauthorized, "Login Failed"},
		{"missing fields", "", "", http.StatusBadRequest, "Login Failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.do(t, "POST", "/api/admin/login", loginRequest{Email: tt.email, Password: tt.pass}, "")
			if r.status != tt.status {
				t.Fatalf("status = %d, want %d (%s)", r.status, tt.status, r.body)
			}
			body := r.json(t)
			if tt.title != "" && body["title"] != tt.title {
				t.Errorf("title = %v, want %s", body["title"], tt.title)
			}
			if tt.status == http.StatusOK {
				sess := body["session"].(map[string]any)
				if sess["access_token"] != bossToken {
					t.Errorf("token = %v", sess["access_token"])
				}
			}
		})
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/admin/submissions", "/api/admin/export.csv", "/api/admin/export.xlsx", "/api/admin/sheets/auth"} {
		if r := f.do(t, "GET", path, nil, ""); r.status != http.StatusUnauthorized {
			t.Errorf("%s without token = %d", path, r.status)
		}
		if r := f.do(t, "GET", path, nil, "forged"); r.status != http.StatusUnauthorized {
			t.Errorf("%s with bad token = %d", path, r.status)
		}
	}
}

func TestListSubmissions(t *testing.T) {
	f := newFixture(t)
	seed(f)

	r := f.do(t, "GET", "/api/admin/submissions", nil, bossToken)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d %s", r.status, r.body)
	}
	body := r.json(t)
	subs := body["submissions"].([]any)
	if len(subs) != 3 || subs[0].(map[string]any)["name"] != "Arjun" {
		t.Errorf("default order = %v", subs)
	}

	r = f.do(t, "GET", "/api/admin/submissions?sort=name&dir=asc", nil, bossToken)
	subs = r.json(t)["submissions"].([]any)
	var names []string
	for _, s := range subs {
		names = append(names, s.(map[string]any)["name"].(string))
	}
	if strings.Join(names, ",") != "Arjun,Bina,Charu" {
		t.Errorf("by name = %v", names)
	}

	r = f.do(t, "GET", "/api/admin/submissions?q=BINA", nil, bossToken)
	body = r.json(t)
	if body["shown"].(float64) != 1 || body["total"].(float64) != 3 {
		t.Errorf("search = %v", body)
	}

	if r := f.do(t, "GET", "/api/admin/submissions?sort=phone", nil, bossToken); r.status != http.StatusBadRequest {
		t.Errorf("bad sort = %d", r.status)
	}
}

func TestDeleteSubmission(t *testing.T) {
	f := newFixture(t)
	seed(f)

	r := f.do(t, "DELETE", "/api/admin/submissions/1", nil, bossToken)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d %s", r.status, r.body)
	}
	if r.json(t)["message"] != "Submission removed." {
		t.Errorf("body = %s", r.body)
	}
	if f.backend.objectCount() != 0 {
		t.Error("photo not removed")
	}
	if r := f.do(t, "DELETE", "/api/admin/submissions/1", nil, bossToken); r.status != http.StatusNotFound {
		t.Errorf("second delete = %d", r.status)
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	seed(f)

	r := f.do(t, "GET", "/api/admin/export.csv", nil, bossToken)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	cd := r.header.Get("Content-Disposition")
	if !strings.Contains(cd, "waste-submissions-") || !strings.Contains(cd, ".csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(r.header.Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", r.header.Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(string(r.body)), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "Name,Address") {
		t.Errorf("csv = %q", r.body)
	}
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)
	seed(f)

	r := f.do(t, "GET", "/api/admin/export.xlsx", nil, bossToken)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	if !strings.Contains(r.header.Get("Content-Disposition"), ".xlsx") {
		t.Errorf("Content-Disposition = %q", r.header.Get("Content-Disposition"))
	}
	if len(r.body) < 4 || string(r.body[:2]) != "PK" {
		t.Error("body is not a zip container")
	}
}

func TestSheetsDisabled(t *testing.T) {
	f := newFixture(t)
	if r := f.do(t, "GET", "/api/admin/sheets/auth", nil, bossToken); r.status != http.StatusNotImplemented {
		t.Errorf("status = %d", r.status)
	}
}

func TestSheetsFlow(t *testing.T) {
	sheets := &fakeSheets{}
	f := newFixture(t, func(o *Options) { o.Sheets = sheets })
	seed(f)

	if r := f.do(t, "POST", "/api/admin/export/sheets", nil, bossToken); r.status != http.StatusConflict {
		t.Errorf("export before connect = %d", r.status)
	}

	r := f.do(t, "GET", "/api/admin/sheets/auth", nil, bossToken)
	if r.status != http.StatusOK {
		t.Fatalf("auth = %d", r.status)
	}
	state := sheets.lastState
	if state == "" || !strings.Contains(r.json(t)["url"].(string), url.QueryEscape(state)) {
		t.Fatalf("auth url = %s", r.body)
	}

	if r := f.do(t, "GET", "/api/admin/sheets/callback?state=bogus&code=c1", nil, ""); r.status != http.StatusBadRequest {
		t.Errorf("bogus state = %d", r.status)
	}

	r = f.do(t, "GET", "/api/admin/sheets/callback?state="+url.QueryEscape(state)+"&code=c1", nil, "")
	if r.status != http.StatusFound {
		t.Fatalf("callback = %d %s", r.status, r.body)
	}
	if sheets.code != "c1" || !sheets.connected {
		t.Error("code not exchanged")
	}

	if r := f.do(t, "GET", "/api/admin/sheets/callback?state="+url.QueryEscape(state)+"&code=c2", nil, ""); r.status != http.StatusBadRequest {
		t.Errorf("reused state = %d", r.status)
	}

	r = f.do(t, "POST", "/api/admin/export/sheets", nil, bossToken)
	if r.status != http.StatusOK {
		t.Fatalf("export = %d %s", r.status, r.body)
	}
	if r.json(t)["rows"].(float64) != 3 || sheets.exported != 3 {
		t.Errorf("rows = %s", r.body)
	}
}

func TestToAPIErrorDefaults(t *testing.T) {
	if got := toAPIError(errors.New("boom")).Status; got != http.StatusInternalServerError {
		t.Errorf("unknown error status = %d", got)
	}
	if got := toAPIError(context.DeadlineExceeded).Status; got != http.StatusGatewayTimeout {
		t.Errorf("deadline status = %d", got)
	}
}
