package ward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/nir/leitos/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *MemoryStore, *echo.Echo) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	return NewHandler(svc), repo, echo.New()
}

func asUser(req *http.Request, name string, roles ...string) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), "u-1", name, roles))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func assertHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_GetAdmissionDetails(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/?id=a2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetAdmissionDetails(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := decode(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	leito := body["leito"].(map[string]interface{})
	if leito["nome"] != "Leito 201" {
		t.Errorf("leito = %v", leito)
	}
	paciente := body["paciente"].(map[string]interface{})
	if paciente["nome"] != "João Santos Souza" {
		t.Errorf("paciente = %v", paciente)
	}
}

func TestHandler_GetAdmissionDetails_PathParam(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	assertHTTPError(t, h.GetAdmissionDetails(c), http.StatusNotFound)
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, repo, e := newTestHandler(t)

	body := `{"paciente_id":"p2","nome":"New Name","cpf":"1","sus":"2","nasc":"19650820","sexo":"Masculino","mae":"M","telefone":"T","endereco":"E"}`
	req := asUser(jsonRequest(http.MethodPost, "/", body), "Dra. Luiza", "physician")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || decode(t, rec)["success"] != true {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}

	p, _ := repo.GetPatient(context.Background(), "p2")
	if p.EditedBy != "Dra. Luiza" {
		t.Errorf("edited by = %q", p.EditedBy)
	}
	b, _ := repo.GetBed(context.Background(), "b4")
	if strPtrVal(b.CurrentPatientName) != "New Name" {
		t.Errorf("bed name = %q", strPtrVal(b.CurrentPatientName))
	}
}

func TestHandler_UpdatePatient_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown patient", `{"paciente_id":"p404","nome":"X","sexo":"Feminino"}`, http.StatusNotFound},
		{"bad birth date", `{"paciente_id":"p1","nome":"X","sexo":"Feminino","nasc":"15/05/1980"}`, http.StatusBadRequest},
		{"malformed body", `{"paciente_id":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, e := newTestHandler(t)
			req := asUser(jsonRequest(http.MethodPost, "/", tt.body), "Admin", "admin")
			rec := httptest.NewRecorder()
			assertHTTPError(t, h.UpdatePatient(e.NewContext(req, rec)), tt.code)
		})
	}
}

func TestHandler_DischargePatient(t *testing.T) {
	h, repo, e := newTestHandler(t)

	body := `{"admissao_id":"a3","leito_id":"b6","paciente_id":"p3","tipo_alta":"Transferido","data_evento":"10/03/2024 12:00","detalhes_texto":"HGV"}`
	req := asUser(jsonRequest(http.MethodPost, "/", body), "Enf. Carla", "nurse")
	rec := httptest.NewRecorder()

	if err := h.DischargePatient(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decode(t, rec)["success"] != true {
		t.Errorf("body = %s", rec.Body.String())
	}
	a, _ := repo.GetAdmission(context.Background(), "a3")
	if a.Status != StatusTransferido {
		t.Errorf("status = %s", a.Status)
	}

	rec = httptest.NewRecorder()
	req = asUser(jsonRequest(http.MethodPost, "/", body), "Enf. Carla", "nurse")
	assertHTTPError(t, h.DischargePatient(e.NewContext(req, rec)), http.StatusConflict)
}

func TestHandler_ListBeds(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/?categoria=observacao&limit=1", nil)
	rec := httptest.NewRecorder()
	if err := h.ListBeds(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := decode(t, rec)
	if body["total"] != float64(2) {
		t.Errorf("total = %v", body["total"])
	}
	if data := body["data"].([]interface{}); len(data) != 1 {
		t.Errorf("page size = %d", len(data))
	}
	if body["has_more"] != true {
		t.Errorf("has_more = %v", body["has_more"])
	}

	req = httptest.NewRequest(http.MethodGet, "/?categoria=uti", nil)
	rec = httptest.NewRecorder()
	assertHTTPError(t, h.ListBeds(e.NewContext(req, rec)), http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodGet, "/?status=Quebrado", nil)
	rec = httptest.NewRecorder()
	assertHTTPError(t, h.ListBeds(e.NewContext(req, rec)), http.StatusBadRequest)
}

func TestHandler_GetPatient(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("p3")
	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := decode(t, rec)["paciente"].(map[string]interface{})
	if p["name"] != "Francisca Ferreira" {
		t.Errorf("paciente = %v", p)
	}
}

func TestHandler_RoutesEnforceRoles(t *testing.T) {
	h, _, e := newTestHandler(t)
	api := e.Group("/nir/v1")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(asUser(c.Request(), "Recepção", "registrar"))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	body := `{"admissao_id":"a1","leito_id":"b1","paciente_id":"p1","tipo_alta":"Alta"}`
	req := jsonRequest(http.MethodPost, "/nir/v1/alta", body)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("registrar discharge: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nir/v1/get-admissao-detalhes?id=a1", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("registrar details: expected 200, got %d", rec.Code)
	}
}
