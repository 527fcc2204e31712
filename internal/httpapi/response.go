package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the envelope for every failed request.
type ErrorResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    []*AppError `json:"data"`
}

// AppErrorResponse writes an application error. Anything that is not an
// *AppError becomes a bare 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("Something went wrong")
	}
	return c.JSON(appErr.Status, ErrorResponse{
		Status:  appErr.Status,
		Message: http.StatusText(appErr.Status),
		Data:    []*AppError{appErr},
	})
}

// SuccessResponse writes a 200 with the payload as the body.
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// errorHandler renders errors escaping handlers, including echo's own 404/405.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		err = fromHTTPError(he)
	}
	_ = AppErrorResponse(c, err)
}

func fromHTTPError(he *echo.HTTPError) *AppError {
	text := http.StatusText(he.Code)
	switch he.Code {
	case http.StatusNotFound:
		return NotFoundError(text)
	case http.StatusMethodNotAllowed:
		return NewAppError("ERR_METHOD_NOT_ALLOWED", "", text, he.Code)
	case http.StatusUnsupportedMediaType:
		return NewAppError("ERR_UNSUPPORTED_MEDIA_TYPE", "", text, he.Code)
	case http.StatusRequestEntityTooLarge:
		return NewAppError("ERR_TOO_LARGE", "", text, he.Code)
	default:
		return NewAppError("ERR_HTTP", "", text, he.Code)
	}
}
