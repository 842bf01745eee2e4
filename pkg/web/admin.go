package web

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-wastesnap/pkg/admin"
	"github.com/teslashibe/go-wastesnap/pkg/export"
	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

const (
	localsAdmin = "admin"
	localsToken = "token"
)

var errSheetsDisabled = newAPIError(fiber.StatusNotImplemented, "Not Configured", "Google Sheets export is not configured.")

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func bearer(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireAdmin verifies the bearer token and stores the admin session.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if s.opts.Admin == nil {
		return newAPIError(fiber.StatusServiceUnavailable, "Not Configured", "Admin access is not configured.")
	}
	token := bearer(c)
	sess, err := s.opts.Admin.Verify(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(localsAdmin, sess)
	c.Locals(localsToken, token)
	return c.Next()
}

// submissions returns the service acting as the signed-in administrator.
func (s *Server) submissions(c *fiber.Ctx) *submission.Service {
	token, _ := c.Locals(localsToken).(string)
	if s.opts.AdminBackend == nil || token == "" {
		return s.opts.Submissions
	}
	return s.opts.Submissions.WithBackend(s.opts.AdminBackend(token))
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	if s.opts.Admin == nil {
		return newAPIError(fiber.StatusServiceUnavailable, "Not Configured", "Admin access is not configured.")
	}
	var req loginRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return newAPIError(fiber.StatusBadRequest, "Login Failed", "Email and password are required.")
	}
	sess, err := s.opts.Admin.Login(c.UserContext(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Logged in successfully.",
		"session": sess,
	})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if s.opts.Admin != nil {
		if err := s.opts.Admin.Logout(c.UserContext(), bearer(c)); err != nil {
			s.logger.Warn("logout failed", "error", err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// listed fetches every submission and applies the q, sort and dir parameters.
func (s *Server) listed(c *fiber.Ctx) ([]submission.Submission, int, submission.Query, error) {
	q, err := submission.ParseQuery(c.Query("q"), c.Query("sort"), c.Query("dir"))
	if err != nil {
		return nil, 0, q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	all, err := s.submissions(c).List(c.UserContext())
	if err != nil {
		return nil, 0, q, err
	}
	return q.Apply(all), len(all), q, nil
}

func (s *Server) handleListSubmissions(c *fiber.Ctx) error {
	subs, total, q, err := s.listed(c)
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return c.JSON(fiber.Map{
		"submissions": subs,
		"total":       total,
		"shown":       len(subs),
		"sort":        q.Field,
		"dir":         q.Dir,
	})
}

func (s *Server) handleDeleteSubmission(c *fiber.Ctx) error {
	if err := s.submissions(c).Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	if sess, ok := c.Locals(localsAdmin).(*admin.Session); ok {
		s.logger.Info("submission removed", "id", c.Params("id"), "by", sess.Email)
	}
	return c.JSON(fiber.Map{"message": "Submission removed."})
}

func (s *Server) handleExportCSV(c *fiber.Ctx) error {
	subs, _, _, err := s.listed(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.CSV(&buf, subs); err != nil {
		return err
	}
	c.Attachment(export.FileName("csv", time.Now()))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

func (s *Server) handleExportXLSX(c *fiber.Ctx) error {
	subs, _, _, err := s.listed(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.XLSX(&buf, subs); err != nil {
		return err
	}
	c.Attachment(export.FileName("xlsx", time.Now()))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Send(buf.Bytes())
}

// handleSheetsAuth returns the Google consent URL.
func (s *Server) handleSheetsAuth(c *fiber.Ctx) error {
	if s.opts.Sheets == nil {
		return errSheetsDisabled
	}
	return c.JSON(fiber.Map{
		"url":       s.opts.Sheets.AuthURL(s.states.issue()),
		"connected": s.opts.Sheets.Connected(),
	})
}

// handleSheetsCallback completes the OAuth flow. Google redirects the
// browser here, so it is authorized by the state parameter alone.
func (s *Server) handleSheetsCallback(c *fiber.Ctx) error {
	if s.opts.Sheets == nil {
		return errSheetsDisabled
	}
	if msg := c.Query("error"); msg != "" {
		return newAPIError(fiber.StatusBadRequest, "Not Connected", "Google authorization failed: "+msg)
	}
	if !s.states.consume(c.Query("state")) {
		return newAPIError(fiber.StatusBadRequest, "Not Connected", "Authorization request expired. Please try again.")
	}
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing code")
	}
	if err := s.opts.Sheets.Exchange(c.UserContext(), code); err != nil {
		s.logger.Warn("sheets exchange failed", "error", err)
		return newAPIError(fiber.StatusBadGateway, "Not Connected", "Google authorization failed.")
	}
	s.logger.Info("google sheets connected")
	return c.Redirect("/admin?sheets=connected", fiber.StatusFound)
}

func (s *Server) handleExportSheets(c *fiber.Ctx) error {
	if s.opts.Sheets == nil {
		return errSheetsDisabled
	}
	subs, _, _, err := s.listed(c)
	if err != nil {
		return err
	}
	title := "Waste Submissions " + time.Now().Format(export.DateLayout)
	url, err := s.opts.Sheets.Export(c.UserContext(), title, subs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"url": url, "rows": len(subs)})
}

// oauthStates holds single-use OAuth state values.
type oauthStates struct {
	ttl time.Duration

	mu     sync.Mutex
	issued map[string]time.Time
}

func newOAuthStates(ttl time.Duration) *oauthStates {
	return &oauthStates{ttl: ttl, issued: make(map[string]time.Time)}
}

func (o *oauthStates) issue() string {
	state := uuid.NewString()
	now := time.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, t := range o.issued {
		if now.Sub(t) > o.ttl {
			delete(o.issued, k)
		}
	}
	o.issued[state] = now
	return state
}

func (o *oauthStates) consume(state string) bool {
	if state == "" {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.issued[state]
	delete(o.issued, state)
	return ok && time.Since(t) <= o.ttl
}
