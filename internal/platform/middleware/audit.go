package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nir/leitos/internal/platform/auth"
)

// AuditEntry records who touched which ward resource.
type AuditEntry struct {
	UserID      string
	UserName    string
	UserRoles   []string
	Resource    string
	PatientID   string
	AdmissionID string
	Action      string
	IPAddress   string
	Path        string
	Method      string
	Timestamp   time.Time
	RequestID   string
	StatusCode  int
}

// AuditRecorder persists audit entries next to the structured log line.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every request under prefix with the caller identity and the
// patient or admission it concerns. Request bodies are not inspected, so
// for the POST routes the ids come from the bound query only.
func Audit(logger zerolog.Logger, prefix string, recorders ...AuditRecorder) echo.MiddlewareFunc {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, prefix) {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserName:   auth.UserNameFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Resource:   resourceOf(strings.TrimPrefix(req.URL.Path, prefix)),
				Action:     actionOf(req.Method),
				IPAddress:  c.RealIP(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: c.Response().Status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.PatientID, entry.AdmissionID = subjectOf(c, entry.Resource)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("user_name", entry.UserName).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("admission_id", entry.AdmissionID).
				Str("action", entry.Action).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("ward_access")

			return err
		}
	}
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceOf returns the first path segment after the API prefix.
func resourceOf(rest string) string {
	seg, _, _ := strings.Cut(rest, "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}

func subjectOf(c echo.Context, resource string) (patientID, admissionID string) {
	switch resource {
	case "pacientes":
		patientID = c.Param("id")
	case "admissoes":
		admissionID = c.Param("id")
	case "get-admissao-detalhes":
		admissionID = c.QueryParam("id")
	}
	if patientID == "" {
		patientID = c.QueryParam("paciente_id")
	}
	if admissionID == "" {
		admissionID = c.QueryParam("admissao_id")
	}
	return patientID, admissionID
}
