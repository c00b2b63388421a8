package patient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/elalerce/records/internal/platform/envelope"
)

type testBody struct {
	OK     bool              `json:"ok"`
	Data   json.RawMessage   `json:"data"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService())
	e := echo.New()
	return h, e
}

// newTestServer mounts the handler the way the server does, including the
// envelope error handler, so status codes can be asserted end to end.
func newTestServer() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = envelope.ErrorHandler(zerolog.Nop())
	NewHandler(newTestService()).RegisterRoutes(e.Group("/api"))
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, testBody) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out testBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, out
}

func decodeRecord(t *testing.T, raw json.RawMessage) Record {
	t.Helper()
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return r
}

func decodeList(t *testing.T, raw json.RawMessage) []Record {
	t.Helper()
	var rs []Record
	if err := json.Unmarshal(raw, &rs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return rs
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var ee *envelope.Error
	if !errors.As(err, &ee) {
		t.Fatalf("expected *envelope.Error, got %v", err)
	}
	return ee.Status
}

const anaBody = `{"nationalId":"1-9","fullName":"Ana Perez","age":30,"sex":"F","admissionDate":"2024-01-10","diagnosis":"Flu"}`

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(anaBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var body testBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !body.OK {
		t.Error("expected ok=true")
	}
	r := decodeRecord(t, body.Data)
	if r.ID == "" || r.FullName != "Ana Perez" || r.Reviewed {
		t.Errorf("unexpected record: %+v", r)
	}
}

func TestHandler_Create_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing fields", `{"fullName":"Ana"}`},
		{"unknown field", `{"nationalId":"1-9","fullName":"Ana","age":30,"sex":"F","admissionDate":"2024-01-10","diagnosis":"Flu","ward":"B"}`},
		{"wrong type", `{"nationalId":"1-9","fullName":"Ana","age":"thirty","sex":"F","admissionDate":"2024-01-10","diagnosis":"Flu"}`},
		{"malformed json", `{"nationalId":`},
		{"empty body", ``},
		{"trailing value", anaBody + `{"fullName":"Eve"}`},
		{"trailing garbage", anaBody + ` x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, e := newTestHandler()
			req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.Create(c)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := statusOf(t, err); got != http.StatusUnprocessableEntity {
				t.Errorf("expected 422, got %d", got)
			}
		})
	}
}

func TestHandler_Get(t *testing.T) {
	h, e := newTestHandler()
	created, _ := h.svc.Create(context.Background(), validInput())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/patients/:id")
	c.SetParamNames("id")
	c.SetParamValues(created.ID)

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body testBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if r := decodeRecord(t, body.Data); r.ID != created.ID {
		t.Errorf("expected id %s, got %s", created.ID, r.ID)
	}
}

func TestHandler_Get_Errors(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"malformed id", "not-an-id", http.StatusUnprocessableEntity},
		{"unknown id", "9b2f4c1e-0000-4000-8000-000000000000", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, e := newTestHandler()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)

			err := h.Get(c)
			if got := statusOf(t, err); got != tt.status {
				t.Errorf("expected %d, got %d", tt.status, got)
			}
		})
	}
}

func TestHandler_List_InvalidQuery(t *testing.T) {
	e := newTestServer()
	for _, q := range []string{
		"sex=X",
		"ageRange=abc",
		"ageRange=60-20",
		"dateFrom=yesterday",
		"dateFrom=2024-02-01&dateTo=2024-01-01",
		"sortKey=shoe-size",
	} {
		status, body := do(t, e, http.MethodGet, "/api/patients?"+q, "")
		if status != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", q, status)
		}
		if body.OK || len(body.Fields) == 0 {
			t.Errorf("%s: expected field errors, got %+v", q, body)
		}
	}
}

func TestHandler_List_EmptyStore(t *testing.T) {
	e := newTestServer()
	status, body := do(t, e, http.MethodGet, "/api/patients", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if string(body.Data) != "[]" {
		t.Errorf("expected empty array, got %s", body.Data)
	}
}

func TestHandler_StoreFailureIsOpaque(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = envelope.ErrorHandler(zerolog.Nop())
	svc := NewService(&failingRepo{err: errors.New("dial tcp 10.0.0.5:5432: connection refused")}, time.UTC)
	NewHandler(svc).RegisterRoutes(e.Group("/api"))

	status, body := do(t, e, http.MethodGet, "/api/patients", "")
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if strings.Contains(body.Error, "10.0.0.5") {
		t.Errorf("store detail leaked to client: %q", body.Error)
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	e := newTestServer()

	status, body := do(t, e, http.MethodPost, "/api/patients", anaBody)
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", status, body.Error)
	}
	created := decodeRecord(t, body.Data)

	status, body = do(t, e, http.MethodGet, "/api/patients?text=ana", "")
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	if list := decodeList(t, body.Data); len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("text=ana: expected the created record, got %+v", list)
	}

	_, body = do(t, e, http.MethodGet, "/api/patients?sex=M", "")
	if list := decodeList(t, body.Data); len(list) != 0 {
		t.Errorf("sex=M: expected no records, got %d", len(list))
	}

	status, body = do(t, e, http.MethodPut, "/api/patients/"+created.ID, `{"age":31}`)
	if status != http.StatusOK {
		t.Fatalf("update: expected 200, got %d (%s)", status, body.Error)
	}
	if u := decodeRecord(t, body.Data); u.Age != 31 || u.FullName != "Ana Perez" {
		t.Errorf("update: unexpected record %+v", u)
	}

	status, body = do(t, e, http.MethodGet, "/api/patients/"+created.ID, "")
	if status != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", status)
	}
	if g := decodeRecord(t, body.Data); g.Age != 31 {
		t.Errorf("get: expected age 31, got %d", g.Age)
	}

	status, body = do(t, e, http.MethodPost, "/api/patients", anaBody)
	if status != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", status)
	}
	if body.OK {
		t.Error("duplicate: expected ok=false")
	}

	_, body = do(t, e, http.MethodGet, "/api/patients", "")
	if list := decodeList(t, body.Data); len(list) != 1 {
		t.Errorf("expected one stored record after rejected duplicate, got %d", len(list))
	}
}

func TestHandler_Update_Errors(t *testing.T) {
	e := newTestServer()
	_, body := do(t, e, http.MethodPost, "/api/patients", anaBody)
	created := decodeRecord(t, body.Data)

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"invalid value", "/api/patients/" + created.ID, `{"sex":"Z"}`, http.StatusUnprocessableEntity},
		{"unknown field", "/api/patients/" + created.ID, `{"id":"x"}`, http.StatusUnprocessableEntity},
		{"unknown record", "/api/patients/9b2f4c1e-0000-4000-8000-000000000000", `{"age":3}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, e, http.MethodPut, tt.target, tt.body)
			if status != tt.status {
				t.Errorf("expected %d, got %d", tt.status, status)
			}
		})
	}
}

func TestHandler_Update_TrailingDataLeavesRecordUnchanged(t *testing.T) {
	e := newTestServer()
	_, body := do(t, e, http.MethodPost, "/api/patients", anaBody)
	created := decodeRecord(t, body.Data)
	target := "/api/patients/" + created.ID

	status, body := do(t, e, http.MethodPut, target, `{"age":31}{"diagnosis":"Asma"}`)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if body.OK || body.Error == "" {
		t.Errorf("expected an error envelope, got %+v", body)
	}

	_, body = do(t, e, http.MethodGet, target, "")
	if got := decodeRecord(t, body.Data); got.Age != 30 || got.Diagnosis != "Flu" {
		t.Errorf("record changed by rejected update: %+v", got)
	}

	// Trailing whitespace is not a second value.
	status, _ = do(t, e, http.MethodPut, target, "{\"age\":31}\n")
	if status != http.StatusOK {
		t.Errorf("expected 200 with trailing newline, got %d", status)
	}
}

func TestHandler_List_SortAndFilter(t *testing.T) {
	e := newTestServer()
	for _, b := range []string{
		`{"nationalId":"1","fullName":"Carla","age":70,"sex":"F","admissionDate":"2024-03-01","diagnosis":"Asma"}`,
		`{"nationalId":"2","fullName":"ángel","age":65,"sex":"M","admissionDate":"2024-01-15","diagnosis":"Gripe"}`,
		`{"nationalId":"3","fullName":"Beto","age":66,"sex":"M","admissionDate":"2024-02-20","diagnosis":"Gripe"}`,
	} {
		if status, body := do(t, e, http.MethodPost, "/api/patients", b); status != http.StatusCreated {
			t.Fatalf("seed: %d %s", status, body.Error)
		}
	}

	_, body := do(t, e, http.MethodGet, "/api/patients?ageRange=65-%2B&sortKey=name-asc", "")
	list := decodeList(t, body.Data)
	var names []string
	for _, r := range list {
		names = append(names, r.FullName)
	}
	if strings.Join(names, ",") != "ángel,Beto,Carla" {
		t.Errorf("unexpected order: %v", names)
	}

	_, body = do(t, e, http.MethodGet, "/api/patients?text=gripe&dateTo=2024-01-15&sortKey=admission-desc", "")
	list = decodeList(t, body.Data)
	if len(list) != 1 || list[0].FullName != "ángel" {
		t.Errorf("expected only ángel, got %+v", list)
	}
}

func TestHandler_StoreStatusErrorPassesThrough(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = envelope.ErrorHandler(zerolog.Nop())
	unavailable := envelope.NewError(http.StatusServiceUnavailable, "store not ready")
	NewHandler(NewService(&failingRepo{err: unavailable}, time.UTC)).RegisterRoutes(e.Group("/api"))

	code, body := do(t, e, http.MethodGet, "/api/patients", "")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body.Error != "store not ready" {
		t.Errorf("unexpected message %q", body.Error)
	}
}
