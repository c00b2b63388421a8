package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/elalerce/records/internal/platform/envelope"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.List)
	api.GET("/patients/:id", h.Get)
	api.POST("/patients", h.Create)
	api.PUT("/patients/:id", h.Update)
}

func (h *Handler) List(c echo.Context) error {
	f, err := ParseFilter(c.QueryParams(), h.svc.Location())
	if err != nil {
		return httpError(err)
	}
	records, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, records)
}

func (h *Handler) Get(c echo.Context) error {
	r, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, r)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := decodeBody(c, &in); err != nil {
		return err
	}
	r, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusCreated, r)
}

func (h *Handler) Update(c echo.Context) error {
	var p Patch
	if err := decodeBody(c, &p); err != nil {
		return err
	}
	r, err := h.svc.Update(c.Request().Context(), c.Param("id"), p)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, r)
}

// decodeBody reads a JSON object strictly: unknown fields, wrongly typed
// values and trailing data are validation failures rather than ignored.
func decodeBody(c echo.Context, dst interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		if errors.Is(err, io.EOF) {
			return &envelope.Error{Status: http.StatusUnprocessableEntity, Message: "request body is required", Err: err}
		}
		return &envelope.Error{Status: http.StatusUnprocessableEntity, Message: bodyErrorMessage(err), Err: err}
	}
	// The body must hold exactly one JSON value.
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return &envelope.Error{Status: http.StatusUnprocessableEntity, Message: "request body must contain a single JSON object", Err: err}
	}
	return nil
}

func bodyErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field %s must be of type %s", typeErr.Field, typeErr.Type)
	}
	return "malformed JSON body: " + err.Error()
}

// httpError maps the record contract's failures onto HTTP statuses.
func httpError(err error) error {
	var verr *ValidationError
	var ee *envelope.Error
	switch {
	case errors.As(err, &ee):
		return ee
	case errors.As(err, &verr):
		return &envelope.Error{Status: http.StatusUnprocessableEntity, Message: verr.Error(), Fields: verr.Fields, Err: err}
	case errors.Is(err, ErrConflict):
		return &envelope.Error{Status: http.StatusConflict, Message: ErrConflict.Error(), Err: err}
	case errors.Is(err, ErrNotFound):
		return &envelope.Error{Status: http.StatusNotFound, Message: ErrNotFound.Error(), Err: err}
	default:
		return &envelope.Error{Status: http.StatusInternalServerError, Message: "store failure", Err: err}
	}
}
