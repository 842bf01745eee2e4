package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-wastesnap/pkg/admin"
	"github.com/teslashibe/go-wastesnap/pkg/capture"
	"github.com/teslashibe/go-wastesnap/pkg/export"
	"github.com/teslashibe/go-wastesnap/pkg/intake"
	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

// apiError is the JSON error body. Title and Message are shown to the user.
type apiError struct {
	Status   int               `json:"-"`
	Title    string            `json:"title"`
	Message  string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Message)
}

func newAPIError(status int, title, message string) *apiError {
	return &apiError{Status: status, Title: title, Message: message}
}

var (
	errCameraUnavailable = newAPIError(fiber.StatusServiceUnavailable, "Camera Error", "Unable to access camera. Please allow camera permissions.")
	errCompression       = newAPIError(fiber.StatusInternalServerError, "Camera Error", "Image compression failed.")
	errMissingData       = &apiError{Status: fiber.StatusConflict, Title: "Missing Data", Message: "Please fill in the form first.", Redirect: "/"}
	errNoSession         = newAPIError(fiber.StatusNotFound, "Not Found", "Capture session not found.")
)

// toAPIError maps domain errors to responses.
func toAPIError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	var ve *intake.ValidationError
	if errors.As(err, &ve) {
		return &apiError{
			Status:  fiber.StatusUnprocessableEntity,
			Title:   "Validation Error",
			Message: "Please fix the highlighted fields.",
			Fields:  ve.Fields,
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return newAPIError(fe.Code, "Error", fe.Message)
	}

	switch {
	case errors.Is(err, intake.ErrMissingFormData):
		return errMissingData
	// A failed capture can carry a failed re-acquire too; the capture
	// failure is reported.
	case errors.Is(err, capture.ErrCompressionFailed), errors.Is(err, submission.ErrBadPhoto):
		return errCompression
	case errors.Is(err, capture.ErrCameraUnavailable):
		return errCameraUnavailable
	case errors.Is(err, capture.ErrNotStreaming):
		return newAPIError(fiber.StatusConflict, "Camera Error", "Camera is not ready.")
	case errors.Is(err, capture.ErrStaleCapture):
		return newAPIError(fiber.StatusConflict, "Camera Error", "The photo was discarded. Please try again.")
	case errors.Is(err, capture.ErrSessionClosed):
		return newAPIError(fiber.StatusGone, "Camera Error", "This capture session has ended.")
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(fiber.StatusGatewayTimeout, "Camera Error", "Capture timed out. Please try again.")
	case errors.Is(err, submission.ErrNoPhoto):
		return newAPIError(fiber.StatusConflict, "Missing Data", "Please take a photo first.")
	case errors.Is(err, submission.ErrUploadFailed), errors.Is(err, submission.ErrSaveFailed):
		return newAPIError(fiber.StatusBadGateway, "Submission Failed", "Your submission could not be saved. Please try again.")
	case errors.Is(err, submission.ErrNotFound):
		return newAPIError(fiber.StatusNotFound, "Not Found", "Submission not found.")
	case errors.Is(err, admin.ErrInvalidCredentials):
		return newAPIError(fiber.StatusUnauthorized, "Login Failed", "Invalid email or password.")
	case errors.Is(err, admin.ErrNotAdmin):
		return newAPIError(fiber.StatusForbidden, "Access Denied", "You do not have admin privileges.")
	case errors.Is(err, admin.ErrNoToken), errors.Is(err, admin.ErrInvalidToken), errors.Is(err, admin.ErrExpiredToken):
		return newAPIError(fiber.StatusUnauthorized, "Access Denied", "Please sign in again.")
	case errors.Is(err, export.ErrSheetsNotConnected):
		return newAPIError(fiber.StatusConflict, "Not Connected", "Connect a Google account first.")
	}
	return newAPIError(fiber.StatusInternalServerError, "Error", "Something went wrong.")
}

// handleError is the fiber error handler.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	ae := toAPIError(err)
	if ae.Status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", ae.Status,
			"error", err)
	}
	return c.Status(ae.Status).JSON(ae)
}
