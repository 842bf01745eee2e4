package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-wastesnap/pkg/backend"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/intake"
	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

// fakeBackend is an in-memory submission.Backend.
type fakeBackend struct {
	mu        sync.Mutex
	objects   map[string][]byte
	rows      []submission.Submission
	uploadErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}}
}

func (f *fakeBackend) Upload(ctx context.Context, bucket, path, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.objects[bucket+"/"+path] = data
	return nil
}

func (f *fakeBackend) PublicURL(bucket, path string) string {
	return "https://proj.example.co/storage/v1/object/public/" + bucket + "/" + path
}

func (f *fakeBackend) Remove(ctx context.Context, bucket string, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		delete(f.objects, bucket+"/"+p)
	}
	return nil
}

func (f *fakeBackend) Insert(ctx context.Context, table string, row any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := json.Marshal(row)
	var sub submission.Submission
	json.Unmarshal(data, &sub)
	sub.ID = "sub-" + string(rune('a'+len(f.rows)))
	sub.CreatedAt = time.Date(2026, 5, 4, 10, len(f.rows), 0, 0, time.UTC)
	f.rows = append(f.rows, sub)
	if out == nil {
		return nil
	}
	data, _ = json.Marshal([]submission.Submission{sub})
	return json.Unmarshal(data, out)
}

func (f *fakeBackend) Select(ctx context.Context, table string, q backend.Query, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []submission.Submission
	for _, r := range f.rows {
		if id, ok := q.Eq["id"]; ok && r.ID != id {
			continue
		}
		rows = append(rows, r)
	}
	data, _ := json.Marshal(rows)
	return json.Unmarshal(data, out)
}

func (f *fakeBackend) Delete(ctx context.Context, table, column, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.ID == value {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fixture struct {
	server  *Server
	device  *capture.MockDevice
	encoder *capture.MockEncoder
	drafts  *intake.MemoryStore
	backend *fakeBackend
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		device:  capture.NewMockDevice(1920, 1080),
		encoder: capture.NewMockEncoder(map[float64]int{capture.QualityHigh: 120 * 1024}),
		drafts:  intake.NewMemoryStore(time.Hour),
		backend: newFakeBackend(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{
		Device:      f.device,
		Encoder:     f.encoder,
		Drafts:      f.drafts,
		Submissions: submission.NewService(f.backend, f.drafts, submission.WithLogger(logger)),
		Admin:       newFakeAuth(),
		AdminBackend: func(string) submission.Backend {
			return f.backend
		},
		ShootRate:  rate.Inf,
		ShootBurst: 1,
		Logger:     logger,
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.server = NewServer(opts)
	t.Cleanup(func() { f.server.sessions.closeAll() })
	return f
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(r.body, &m); err != nil {
		t.Fatalf("decode %q: %v", r.body, err)
	}
	return m
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

func validForm() intake.FormData {
	return intake.FormData{
		Name:    "Asha Patel",
		Address: "12 Market Road, Pune",
		Gender:  "Female",
		Age:     34,
		Phone:   "+91 98765-43210",
		Email:   "asha@example.in",
	}
}

// intake posts the form and returns the new session ID.
func (f *fixture) intake(t *testing.T) string {
	t.Helper()
	r := f.do(t, "POST", "/api/intake", validForm(), "")
	if r.status != http.StatusCreated {
		t.Fatalf("intake status = %d body %s", r.status, r.body)
	}
	return r.json(t)["session"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, "GET", "/health", nil, "")
	if r.status != http.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	if got := r.json(t)["status"]; got != "ok" {
		t.Errorf("status field = %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, "GET", "/metrics", nil, "")
	if r.status != http.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	if !strings.Contains(string(r.body), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}

func TestIntakeValidation(t *testing.T) {
	f := newFixture(t)
	form := validForm()
	form.Name = "A"
	form.Email = "not-an-email"

	r := f.do(t, "POST", "/api/intake", form, "")
	if r.status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %s", r.status, r.body)
	}
	body := r.json(t)
	if body["title"] != "Validation Error" {
		t.Errorf("title = %v", body["title"])
	}
	fields := body["fields"].(map[string]any)
	for _, k := range []string{"name", "email"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("missing field error for %s", k)
		}
	}
	if f.drafts.Len() != 0 {
		t.Error("invalid form stored as draft")
	}
}

func TestCaptureFlow(t *testing.T) {
	f := newFixture(t)
	id := f.intake(t)
	base := "/api/capture/" + id

	r := f.do(t, "POST", base+"/start", nil, "")
	if r.status != http.StatusOK {
		t.Fatalf("start status = %d body %s", r.status, r.body)
	}
	if got := r.json(t)["phase"]; got != "STREAMING" {
		t.Fatalf("phase after start = %v", got)
	}

	r = f.do(t, "POST", base+"/shoot", nil, "")
	if r.status != http.StatusOK {
		t.Fatalf("shoot status = %d body %s", r.status, r.body)
	}
	body := r.json(t)
	if body["phase"] != "CAPTURED" {
		t.Errorf("phase after shoot = %v", body["phase"])
	}
	photo := body["photo"].(map[string]any)
	if photo["tier"] != "HIGH" || photo["width"].(float64) != 800 || photo["height"].(float64) != 450 {
		t.Errorf("photo = %v", photo)
	}
	if f.device.OpenStreams() != 0 {
		t.Errorf("open streams after capture = %d", f.device.OpenStreams())
	}

	r = f.do(t, "GET", base+"/photo", nil, "")
	if r.status != http.StatusOK {
		t.Fatalf("photo status = %d", r.status)
	}
	if ct := r.header.Get("Content-Type"); ct != "image/webp" {
		t.Errorf("Content-Type = %q", ct)
	}
	if len(r.body) != 120*1024 || string(r.body[:4]) != "RIFF" {
		t.Errorf("photo body len %d", len(r.body))
	}

	r = f.do(t, "POST", base+"/confirm", nil, "")
	if r.status != http.StatusCreated {
		t.Fatalf("confirm status = %d body %s", r.status, r.body)
	}
	sub := r.json(t)["submission"].(map[string]any)
	if sub["name"] != "Asha Patel" || !strings.HasSuffix(sub["photo_url"].(string), ".webp") {
		t.Errorf("submission = %v", sub)
	}
	if f.backend.objectCount() != 1 {
		t.Errorf("objects = %d, want 1", f.backend.objectCount())
	}
	if _, err := f.drafts.Get(id); !errors.Is(err, intake.ErrMissingFormData) {
		t.Errorf("draft still present: %v", err)
	}
	if r := f.do(t, "GET", base, nil, ""); r.status != http.StatusNotFound {
		t.Errorf("session after confirm status = %d", r.status)
	}
}

func TestStartWithoutDraft(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, "POST", "/api/capture/unknown/start", nil, "")
	if r.status != http.StatusConflict {
		t.Fatalf("status = %d", r.status)
	}
	body := r.json(t)
	if body["error"] != "Please fill in the form first." || body["redirect"] != "/" {
		t.Errorf("body = %v", body)
	}
	if f.device.AcquireCount() != 0 {
		t.Error("camera acquired without a draft")
	}
}

func TestStartCameraDenied(t *testing.T) {
	f := newFixture(t)
	f.device.SetErr(errors.New("NotAllowedError"))
	id := f.intake(t)

	r := f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")
	if r.status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", r.status)
	}
	if got := r.json(t)["error"]; got != "Unable to access camera. Please allow camera permissions." {
		t.Errorf("error = %v", got)
	}

	r = f.do(t, "GET", "/api/capture/"+id, nil, "")
	if got := r.json(t)["phase"]; got != "IDLE" {
		t.Errorf("phase = %v, want IDLE", got)
	}
}

func TestSingleActiveSession(t *testing.T) {
	f := newFixture(t)
	a, b := f.intake(t), f.intake(t)

	if r := f.do(t, "POST", "/api/capture/"+a+"/start", nil, ""); r.status != http.StatusOK {
		t.Fatalf("start a = %d", r.status)
	}
	if r := f.do(t, "POST", "/api/capture/"+b+"/start", nil, ""); r.status != http.StatusOK {
		t.Fatalf("start b = %d", r.status)
	}

	if r := f.do(t, "GET", "/api/capture/"+a, nil, ""); r.status != http.StatusNotFound {
		t.Errorf("previous session still registered: %d", r.status)
	}
	if got := f.device.OpenStreams(); got != 1 {
		t.Errorf("open streams = %d, want 1", got)
	}
	if got := f.server.sessions.activeID(); got != b {
		t.Errorf("active = %q, want %q", got, b)
	}
}

func TestSessionIDSurvivesLaterRequests(t *testing.T) {
	f := newFixture(t)
	a, b := f.intake(t), f.intake(t)

	if r := f.do(t, "POST", "/api/capture/"+a+"/start", nil, ""); r.status != http.StatusOK {
		t.Fatalf("start a = %d", r.status)
	}
	other := strings.Repeat("z", len(a))
	for i := 0; i < 5; i++ {
		f.do(t, "GET", "/api/capture/"+other+"/photo", nil, "")
	}

	if got := f.server.sessions.activeID(); got != a {
		t.Fatalf("active = %q, want %q", got, a)
	}
	sess, ok := f.server.sessions.get(a)
	if !ok {
		t.Fatalf("session %q not registered", a)
	}
	if sess.ID() != a {
		t.Errorf("session id = %q, want %q", sess.ID(), a)
	}
	r := f.do(t, "GET", "/api/capture/"+a, nil, "")
	if r.status != http.StatusOK || r.json(t)["session"] != a {
		t.Errorf("lookup a = %d %s", r.status, r.body)
	}

	f.do(t, "POST", "/api/capture/"+b+"/start", nil, "")
	if got := f.device.OpenStreams(); got != 1 {
		t.Errorf("open streams = %d, want 1", got)
	}
	if got := f.server.sessions.len(); got != 1 {
		t.Errorf("registered sessions = %d, want 1", got)
	}
}

func TestStartTwiceKeepsStream(t *testing.T) {
	f := newFixture(t)
	id := f.intake(t)
	f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")
	f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")
	if got := f.device.AcquireCount(); got != 1 {
		t.Errorf("acquisitions = %d, want 1", got)
	}
}

func TestShootCompressionFailure(t *testing.T) {
	f := newFixture(t)
	f.encoder.Errs[capture.QualityHigh] = errors.New("encoder exploded")
	id := f.intake(t)
	f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")

	r := f.do(t, "POST", "/api/capture/"+id+"/shoot", nil, "")
	if r.status != http.StatusInternalServerError {
		t.Fatalf("status = %d", r.status)
	}
	if got := r.json(t)["error"]; got != "Image compression failed." {
		t.Errorf("error = %v", got)
	}

	r = f.do(t, "GET", "/api/capture/"+id, nil, "")
	body := r.json(t)
	if body["phase"] != "STREAMING" {
		t.Errorf("phase after failure = %v", body["phase"])
	}
	if _, ok := body["photo"]; ok {
		t.Error("failed capture left a photo")
	}
}

func TestShootCompressionFailureAndCameraLost(t *testing.T) {
	f := newFixture(t)
	f.encoder.Errs[capture.QualityHigh] = errors.New("encoder exploded")
	id := f.intake(t)
	f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")
	f.device.SetErr(errors.New("NotReadableError"))

	r := f.do(t, "POST", "/api/capture/"+id+"/shoot", nil, "")
	if r.status != http.StatusInternalServerError {
		t.Fatalf("status = %d body %s", r.status, r.body)
	}
	if got := r.json(t)["error"]; got != "Image compression failed." {
		t.Errorf("error = %v", got)
	}
}

func TestShootBeforeStart(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, "POST", "/api/capture/nope/shoot", nil, "")
	if r.status != http.StatusNotFound {
		t.Errorf("status = %d", r.status)
	}
}

func TestRetake(t *testing.T) {
	f := newFixture(t)
	id := f.intake(t)
	base := "/api/capture/" + id
	f.do(t, "POST", base+"/start", nil, "")
	f.do(t, "POST", base+"/shoot", nil, "")

	r := f.do(t, "POST", base+"/retake", nil, "")
	if r.status != http.StatusOK {
		t.Fatalf("retake status = %d", r.status)
	}
	body := r.json(t)
	if body["phase"] != "STREAMING" {
		t.Errorf("phase = %v", body["phase"])
	}
	if _, ok := body["photo"]; ok {
		t.Error("photo kept after retake")
	}
	if r := f.do(t, "GET", base+"/photo", nil, ""); r.status != http.StatusNotFound {
		t.Errorf("photo after retake status = %d", r.status)
	}
	if got := f.device.MaxOpenStreams(); got != 1 {
		t.Errorf("max open streams = %d", got)
	}
}

func TestConfirmWithoutPhoto(t *testing.T) {
	f := newFixture(t)
	id := f.intake(t)
	f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")

	r := f.do(t, "POST", "/api/capture/"+id+"/confirm", nil, "")
	if r.status != http.StatusConflict {
		t.Errorf("status = %d body %s", r.status, r.body)
	}
}

func TestConfirmUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.uploadErr = errors.New("bucket full")
	id := f.intake(t)
	base := "/api/capture/" + id
	f.do(t, "POST", base+"/start", nil, "")
	f.do(t, "POST", base+"/shoot", nil, "")

	r := f.do(t, "POST", base+"/confirm", nil, "")
	if r.status != http.StatusBadGateway {
		t.Fatalf("status = %d", r.status)
	}
	if got := r.json(t)["title"]; got != "Submission Failed" {
		t.Errorf("title = %v", got)
	}
	if r := f.do(t, "GET", base, nil, ""); r.json(t)["phase"] != "CAPTURED" {
		t.Error("photo lost after failed confirm")
	}
}

func TestShootRateLimited(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.ShootRate = rate.Every(time.Hour)
		o.ShootBurst = 1
	})
	id := f.intake(t)
	base := "/api/capture/" + id
	f.do(t, "POST", base+"/start", nil, "")

	if r := f.do(t, "POST", base+"/shoot", nil, ""); r.status != http.StatusOK {
		t.Fatalf("first shoot = %d", r.status)
	}
	f.do(t, "POST", base+"/retake", nil, "")
	if r := f.do(t, "POST", base+"/shoot", nil, ""); r.status != http.StatusTooManyRequests {
		t.Errorf("second shoot = %d, want 429", r.status)
	}
}

func TestDiscard(t *testing.T) {
	f := newFixture(t)
	id := f.intake(t)
	f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")

	if r := f.do(t, "DELETE", "/api/capture/"+id, nil, ""); r.status != http.StatusNoContent {
		t.Fatalf("status = %d", r.status)
	}
	if f.device.OpenStreams() != 0 {
		t.Error("stream still open after discard")
	}
	if r := f.do(t, "DELETE", "/api/capture/"+id, nil, ""); r.status != http.StatusNotFound {
		t.Errorf("second discard = %d", r.status)
	}
}

func TestReapIdleSessions(t *testing.T) {
	f := newFixture(t)
	id := f.intake(t)
	f.do(t, "POST", "/api/capture/"+id+"/start", nil, "")

	if n := f.server.sessions.reap(time.Now(), time.Hour); n != 0 {
		t.Fatalf("reaped fresh session: %d", n)
	}
	if n := f.server.sessions.reap(time.Now().Add(2*time.Hour), time.Hour); n != 1 {
		t.Fatalf("reaped = %d, want 1", n)
	}
	if f.device.OpenStreams() != 0 {
		t.Error("reaped session kept its stream")
	}
	if f.server.sessions.activeID() != "" {
		t.Error("reaped session still active")
	}
}

func TestCameraConfig(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, "GET", "/api/camera/config", nil, "")
	if r.status != http.StatusOK || r.json(t)["width"].(float64) != 1280 {
		t.Fatalf("config = %d %s", r.status, r.body)
	}

	update := map[string]any{"preset": "1080p"}
	if r := f.do(t, "PUT", "/api/camera/config", update, ""); r.status != http.StatusUnauthorized {
		t.Errorf("unauthenticated update = %d", r.status)
	}
	r = f.do(t, "PUT", "/api/camera/config", update, bossToken)
	if r.status != http.StatusOK {
		t.Fatalf("update = %d %s", r.status, r.body)
	}
	if got := r.json(t)["width"].(float64); got != 1920 {
		t.Errorf("width = %v", got)
	}
	if got := f.server.camera.Request().IdealWidth; got != 1920 {
		t.Errorf("request width = %d", got)
	}

	r = f.do(t, "GET", "/api/camera/presets", nil, "")
	presets := r.json(t)["presets"].([]any)
	if len(presets) != 4 {
		t.Errorf("presets = %v", presets)
	}
}
