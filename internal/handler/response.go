package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/imaging"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
	"github.com/shinyyama/snaplist-backend/internal/service"
)

const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	internalMessage        = "internal server error"
	defaultValidationError = "request validation failed"
)

type errorPayload struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

func (r ErrorResponse) WithDetails(details interface{}) ErrorResponse {
	r.Error.Details = details
	return r
}

type Pagination struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

type DataResponse struct {
	Data       interface{} `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

func respondData(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, DataResponse{Data: data})
}

// FieldError is one entry of a VALIDATION_ERROR details list.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func validationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, FieldError{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// respondError maps domain errors onto the public taxonomy. Anything
// unrecognized is logged and reduced to INTERNAL_ERROR.
func respondError(c echo.Context, err error) error {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger := reqctx.Logger(c.Request().Context())
		logger.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, body)
}

func classify(err error) (int, ErrorResponse) {
	var httpErr *echo.HTTPError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, NewErrorResponse(CodeNotFound, "resource not found")
	case errors.Is(err, service.ErrNoImages),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrEmptyReorder),
		errors.Is(err, service.ErrUnknownImage),
		errors.Is(err, imaging.ErrUnsupportedMediaType),
		errors.Is(err, imaging.ErrPayloadTooLarge):
		return http.StatusBadRequest, NewErrorResponse(CodeBadRequest, err.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, service.ErrStatusReserved):
		return http.StatusBadRequest, NewErrorResponse(CodeInvalidTransition, err.Error())
	case errors.Is(err, model.ErrInvalidStatus):
		return http.StatusBadRequest, NewErrorResponse(CodeValidation, err.Error())
	case validationDetails(err) != nil:
		return http.StatusBadRequest, NewErrorResponse(CodeValidation, defaultValidationError).WithDetails(validationDetails(err))
	case errors.As(err, &httpErr):
		return httpErr.Code, NewErrorResponse(codeForStatus(httpErr.Code), httpMessage(httpErr))
	default:
		return http.StatusInternalServerError, NewErrorResponse(CodeInternal, internalMessage)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusRequestEntityTooLarge:
		return CodePayloadTooLarge
	default:
		if status >= 500 {
			return CodeInternal
		}
		return CodeBadRequest
	}
}

func httpMessage(e *echo.HTTPError) string {
	if e.Code >= 500 {
		return internalMessage
	}
	if s, ok := e.Message.(string); ok {
		return s
	}
	return strings.ToLower(http.StatusText(e.Code))
}

// HTTPErrorHandler renders router and middleware errors in the same envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		status, _ := classify(err)
		_ = c.NoContent(status)
		return
	}
	_ = respondError(c, err)
}

// RequestValidator adapts validator/v10 to echo.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := ai.RegisterValidations(v); err != nil {
		panic(err)
	}
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

var errUnauthenticated = echo.NewHTTPError(http.StatusUnauthorized, "authentication required")

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

// currentUser returns the uid set by the auth middleware.
func currentUser(c echo.Context) (string, error) {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return "", errUnauthenticated
	}
	return uid, nil
}

func currentEmail(c echo.Context) *string {
	if email, ok := c.Get("email").(string); ok && email != "" {
		return &email
	}
	return nil
}
