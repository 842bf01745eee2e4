package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

// ErrSheetsNotConnected is returned by Export before OAuth consent.
var ErrSheetsNotConnected = errors.New("export: Google account not connected")

// SheetsConfig configures the Google Sheets exporter.
type SheetsConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
}

// Sheets exports submissions to a new spreadsheet in the connected account.
type Sheets struct {
	config    *oauth2.Config
	tokenPath string
	logger    *slog.Logger

	// clientOptions replace the token source when set.
	clientOptions []option.ClientOption

	mu    sync.RWMutex
	token *oauth2.Token
}

// NewSheets creates an exporter and loads a saved token if one exists.
func NewSheets(cfg SheetsConfig, logger *slog.Logger) (*Sheets, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("export: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sheets{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{sheets.DriveFileScope},
			Endpoint:     google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		logger:    logger.With("component", "sheets"),
	}
	if err := s.loadToken(); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("ignoring saved token", "path", s.tokenPath, "error", err)
	}
	return s, nil
}

// Connected reports whether a token is available.
func (s *Sheets) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil || s.clientOptions != nil
}

// AuthURL returns the consent page URL. state is echoed to the callback.
func (s *Sheets) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the callback code for a token and saves it.
func (s *Sheets) Exchange(ctx context.Context, code string) error {
	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("export: exchange code: %w", err)
	}
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	if err := s.saveToken(); err != nil {
		s.logger.Warn("token not saved", "path", s.tokenPath, "error", err)
	}
	return nil
}

// Disconnect forgets the token and removes the saved copy.
func (s *Sheets) Disconnect() error {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	if s.tokenPath == "" {
		return nil
	}
	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("export: remove token: %w", err)
	}
	return nil
}

// Export creates a spreadsheet titled title and returns its URL.
func (s *Sheets) Export(ctx context.Context, title string, subs []submission.Submission) (string, error) {
	srv, err := s.service(ctx)
	if err != nil {
		return "", err
	}

	created, err := srv.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("export: create spreadsheet: %w", err)
	}

	values := make([][]interface{}, 0, len(subs)+1)
	values = append(values, toInterfaces(Headers))
	for _, sub := range subs {
		values = append(values, toInterfaces(Row(sub)))
	}
	_, err = srv.Spreadsheets.Values.Update(created.SpreadsheetId, "A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return created.SpreadsheetUrl, fmt.Errorf("export: write rows: %w", err)
	}

	s.logger.Info("spreadsheet exported", "id", created.SpreadsheetId, "rows", len(subs))
	return created.SpreadsheetUrl, nil
}

func (s *Sheets) service(ctx context.Context) (*sheets.Service, error) {
	s.mu.RLock()
	tok, opts := s.token, s.clientOptions
	s.mu.RUnlock()

	if opts != nil {
		return sheets.NewService(ctx, opts...)
	}
	if tok == nil {
		return nil, ErrSheetsNotConnected
	}
	return sheets.NewService(ctx, option.WithTokenSource(s.config.TokenSource(ctx, tok)))
}

func (s *Sheets) loadToken() error {
	if s.tokenPath == "" {
		return os.ErrNotExist
	}
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = &tok
	s.mu.Unlock()
	return nil
}

func (s *Sheets) saveToken() error {
	if s.tokenPath == "" {
		return nil
	}
	s.mu.RLock()
	data, err := json.Marshal(s.token)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.tokenPath, data, 0o600)
}

func toInterfaces(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
