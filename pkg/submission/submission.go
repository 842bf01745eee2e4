// Package submission hands a captured photo and its form draft to the
// backend, and serves the stored submissions to administrators.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-wastesnap/pkg/backend"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/codec"
	"github.com/teslashibe/go-wastesnap/pkg/intake"
)

// Storage locations.
const (
	DefaultBucket = "submission-photos"
	DefaultTable  = "submissions"
)

// Sentinel errors.
var (
	ErrNoPhoto      = errors.New("submission: no photo captured")
	ErrBadPhoto     = errors.New("submission: photo is not the declared type")
	ErrUploadFailed = errors.New("submission: photo upload failed")
	ErrSaveFailed   = errors.New("submission: saving record failed")
	ErrNotFound     = errors.New("submission: not found")
)

// Submission is one stored survey record.
type Submission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Gender    string    `json:"gender"`
	Age       int       `json:"age"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	PhotoURL  string    `json:"photo_url"`
	CreatedAt time.Time `json:"created_at"`
}

// newRow is the insert payload; id and created_at are set by the database.
type newRow struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Gender   string `json:"gender"`
	Age      int    `json:"age"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url"`
}

// Backend is the subset of *backend.Client the service needs.
type Backend interface {
	Upload(ctx context.Context, bucket, path, contentType string, data []byte) error
	PublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket string, paths ...string) error
	Insert(ctx context.Context, table string, row any, out any) error
	Select(ctx context.Context, table string, q backend.Query, out any) error
	Delete(ctx context.Context, table, column, value string) error
}

// Service stores and manages submissions.
type Service struct {
	backend Backend
	drafts  intake.Store
	bucket  string
	table   string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBucket sets the photo bucket.
func WithBucket(bucket string) Option {
	return func(s *Service) { s.bucket = bucket }
}

// WithTable sets the record table.
func WithTable(table string) Option {
	return func(s *Service) { s.table = table }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service.
func NewService(b Backend, drafts intake.Store, opts ...Option) *Service {
	s := &Service{
		backend: b,
		drafts:  drafts,
		bucket:  DefaultBucket,
		table:   DefaultTable,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "submission")
	return s
}

// WithBackend returns a copy using b, typically a user-authorized client.
func (s *Service) WithBackend(b Backend) *Service {
	cp := *s
	cp.backend = b
	return &cp
}

// ObjectName returns "<unix-ms>-<random>.webp".
func ObjectName(t time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d-%s.webp", t.UnixMilli(), id[:12])
}

// PhotoPath extracts the object path from a public photo URL, or "".
func PhotoPath(photoURL, bucket string) string {
	marker := "/" + bucket + "/"
	i := strings.LastIndex(photoURL, marker)
	if i < 0 {
		return ""
	}
	return photoURL[i+len(marker):]
}

// Confirm uploads the photo, stores the record with the session's draft and
// clears the draft. A missing draft returns intake.ErrMissingFormData.
func (s *Service) Confirm(ctx context.Context, sessionID string, photo *capture.Result) (*Submission, error) {
	form, err := s.drafts.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if photo == nil || photo.Size() == 0 {
		return nil, ErrNoPhoto
	}
	if got := codec.DetectMIME(photo.Bytes()); got != photo.MIMEType() {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrBadPhoto, got, photo.MIMEType())
	}

	name := ObjectName(s.now())
	if err := s.backend.Upload(ctx, s.bucket, name, photo.MIMEType(), photo.Bytes()); err != nil {
		recordSubmission("upload_failed")
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	url := s.backend.PublicURL(s.bucket, name)

	row := newRow{
		Name:     form.Name,
		Address:  form.Address,
		Gender:   form.Gender,
		Age:      form.Age,
		Phone:    form.Phone,
		Email:    form.Email,
		PhotoURL: url,
	}
	var inserted []Submission
	if err := s.backend.Insert(ctx, s.table, row, &inserted); err != nil {
		recordSubmission("save_failed")
		if rmErr := s.backend.Remove(context.WithoutCancel(ctx), s.bucket, name); rmErr != nil {
			s.logger.Warn("orphaned photo", "path", name, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	if err := s.drafts.Delete(sessionID); err != nil {
		s.logger.Warn("draft not cleared", "session", sessionID, "error", err)
	}
	recordSubmission("ok")
	metricPhotoBytes.Observe(float64(photo.Size()))

	sub := Submission{
		Name:      row.Name,
		Address:   row.Address,
		Gender:    row.Gender,
		Age:       row.Age,
		Phone:     row.Phone,
		Email:     row.Email,
		PhotoURL:  url,
		CreatedAt: s.now(),
	}
	if len(inserted) > 0 {
		sub = inserted[0]
	}
	s.logger.Info("submission saved",
		"id", sub.ID,
		"photo", name,
		"bytes", photo.Size(),
		"tier", photo.Tier())
	return &sub, nil
}

// List returns all submissions, newest first.
func (s *Service) List(ctx context.Context) ([]Submission, error) {
	var subs []Submission
	q := backend.Query{Order: "created_at", Desc: true}
	if err := s.backend.Select(ctx, s.table, q, &subs); err != nil {
		return nil, fmt.Errorf("submission: list: %w", err)
	}
	return subs, nil
}

// Get returns one submission by ID.
func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	var subs []Submission
	q := backend.Query{Eq: map[string]string{"id": id}, Limit: 1}
	if err := s.backend.Select(ctx, s.table, q, &subs); err != nil {
		return nil, fmt.Errorf("submission: get: %w", err)
	}
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	return &subs[0], nil
}

// Delete removes the photo and then the record. A failed photo removal is
// logged and does not stop the record deletion.
func (s *Service) Delete(ctx context.Context, id string) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if path := PhotoPath(sub.PhotoURL, s.bucket); path != "" {
		if err := s.backend.Remove(ctx, s.bucket, path); err != nil {
			s.logger.Warn("photo removal failed", "id", id, "path", path, "error", err)
		}
	}
	if err := s.backend.Delete(ctx, s.table, "id", id); err != nil {
		return fmt.Errorf("submission: delete: %w", err)
	}
	s.logger.Info("submission deleted", "id", id)
	return nil
}
