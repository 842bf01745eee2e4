package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"github.com/teslashibe/go-wastesnap/pkg/camera"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/hub"
	"github.com/teslashibe/go-wastesnap/pkg/intake"
)

// photoView describes a held capture result.
type photoView struct {
	Tier      capture.Tier `json:"tier"`
	Quality   float64      `json:"quality"`
	SizeBytes int          `json:"size_bytes"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	MIMEType  string       `json:"mime_type"`
	URL       string       `json:"url"`
}

// sessionView is the JSON state of a capture session.
type sessionView struct {
	Session    string        `json:"session"`
	Phase      capture.Phase `json:"phase"`
	Stream     string        `json:"stream,omitempty"`
	Generation uint64        `json:"generation"`
	Photo      *photoView    `json:"photo,omitempty"`
}

func viewOf(sess *capture.Session) sessionView {
	v := sessionView{
		Session:    sess.ID(),
		Phase:      sess.Phase(),
		Stream:     sess.StreamID(),
		Generation: sess.Generation(),
	}
	if r := sess.Result(); r != nil {
		v.Photo = &photoView{
			Tier:      r.Tier(),
			Quality:   r.Quality(),
			SizeBytes: r.Size(),
			Width:     r.Width(),
			Height:    r.Height(),
			MIMEType:  r.MIMEType(),
			URL:       "/api/capture/" + sess.ID() + "/photo",
		}
	}
	return v
}

// handleIntake validates the form and stores it as the draft of a new
// capture session.
func (s *Server) handleIntake(c *fiber.Ctx) error {
	var form intake.FormData
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid form body")
	}
	form, err := intake.Parse(form)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	if err := s.opts.Drafts.Put(id, form); err != nil {
		return err
	}
	s.logger.Debug("draft stored", "session", id)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": id,
		"next":    "/capture/" + id,
	})
}

func (s *Server) session(c *fiber.Ctx) (*capture.Session, error) {
	sess, ok := s.sessions.get(c.Params("id"))
	if !ok {
		return nil, errNoSession
	}
	return sess, nil
}

// handleStart opens the camera for a session that has a draft.
func (s *Server) handleStart(c *fiber.Ctx) error {
	// The id outlives the request as a registry key.
	id := utils.CopyString(c.Params("id"))
	if _, err := s.opts.Drafts.Get(id); err != nil {
		return err
	}

	sess := s.sessions.open(id)
	if err := sess.Start(c.UserContext()); err != nil {
		s.publish(hub.Event{Type: "error", Session: id, Error: toAPIError(err).Message})
		return err
	}
	return c.JSON(viewOf(sess))
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(viewOf(sess))
}

// handleShoot captures and compresses the current frame.
func (s *Server) handleShoot(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	if !s.shoot.Allow() {
		return newAPIError(fiber.StatusTooManyRequests, "Camera Error", "Please wait a moment before taking another photo.")
	}

	result, err := sess.Capture(c.UserContext())
	if err != nil {
		if !errors.Is(err, capture.ErrStaleCapture) {
			s.publish(hub.Event{Type: "error", Session: sess.ID(), Error: toAPIError(err).Message})
		}
		return err
	}

	s.publish(hub.Event{
		Type:      "captured",
		Session:   sess.ID(),
		Phase:     capture.PhaseCaptured.String(),
		Tier:      result.Tier().String(),
		SizeBytes: result.Size(),
	})
	s.hub.BroadcastBinary(sess.ID(), result.Bytes())
	return c.JSON(viewOf(sess))
}

// handlePhoto serves the held WebP preview.
func (s *Server) handlePhoto(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	result := sess.Result()
	if result == nil {
		return newAPIError(fiber.StatusNotFound, "Not Found", "No photo captured.")
	}
	c.Set(fiber.HeaderContentType, result.MIMEType())
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(result.Bytes())
}

func (s *Server) handleRetake(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	if err := sess.Retake(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(viewOf(sess))
}

// handleConfirm hands the photo and draft to the submission service and
// ends the session.
func (s *Server) handleConfirm(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	sub, err := s.opts.Submissions.Confirm(c.UserContext(), sess.ID(), sess.Result())
	if err != nil {
		return err
	}

	s.publish(hub.Event{Type: "submitted", Session: sess.ID()})
	s.sessions.close(sess.ID())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Your submission has been recorded.",
		"submission": sub,
	})
}

// handleDiscard releases the camera and forgets the session.
func (s *Server) handleDiscard(c *fiber.Ctx) error {
	if !s.sessions.close(c.Params("id")) {
		return errNoSession
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(s.camera.GetConfigJSON())
}

// handleSetCameraConfig applies a partial update. New settings apply to the
// next acquisition.
func (s *Server) handleSetCameraConfig(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.logger.Info("camera config updated", "config", s.camera.GetConfig())
	return c.JSON(s.camera.GetConfigJSON())
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets": camera.PresetNames(),
		"current": s.camera.GetConfig(),
	})
}
