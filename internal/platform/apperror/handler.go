package apperror

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code      Code     `json:"code"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	RequestID string   `json:"request_id,omitempty"`
}

// HTTPErrorHandler renders normalized errors and logs them at a level that
// follows their severity.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		appErr := Normalize(err)
		rid, _ := c.Get("request_id").(string)

		evt := logEvent(logger, appErr.Severity)
		if appErr.Err != nil {
			evt = evt.Err(appErr.Err)
		}
		evt.
			Str("request_id", rid).
			Str("code", string(appErr.Code)).
			Str("severity", string(appErr.Severity)).
			Int("status", appErr.Status).
			Str("path", c.Request().URL.Path).
			Msg(appErr.Message)

		body := errorBody{Error: errorPayload{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Severity:  appErr.Severity,
			RequestID: rid,
		}}
		// internal details never leave the server
		if appErr.Status >= http.StatusInternalServerError {
			body.Error.Message = DefaultMessage(appErr.Code)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(appErr.Status)
		} else {
			werr = c.JSON(appErr.Status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("failed to write error response")
		}
	}
}

func logEvent(logger zerolog.Logger, sev Severity) *zerolog.Event {
	switch sev {
	case SeverityCritical:
		return logger.Error().Bool("alert", true)
	case SeverityHigh:
		return logger.Error()
	case SeverityMedium:
		return logger.Warn()
	default:
		return logger.Info()
	}
}
