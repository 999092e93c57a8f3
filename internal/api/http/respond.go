package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	authmw "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/observability"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

// PasswordHeader carries the lesson password on player requests.
const PasswordHeader = "X-Lesson-Password"

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(code lesson.Code) int {
	switch code {
	case lesson.CodeNotFound:
		return http.StatusNotFound
	case lesson.CodeInvalid:
		return http.StatusBadRequest
	case lesson.CodeConflict:
		return http.StatusConflict
	case lesson.CodeForbidden, lesson.CodeUnavailable:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps engine errors to statuses. Integrity and internal errors
// are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "code": string(lesson.CodeInvalid)})
		return
	}
	code := lesson.CodeOf(err)
	status := statusOf(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		observability.Logger(r.Context(), slog.Default()).ErrorContext(r.Context(), "request failed",
			slog.String("code", string(code)), slog.Any("err", err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": string(code)})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(errBadRequest, "bad json: "+err.Error())
	}
	return nil
}

// pathID parses a numeric URL parameter; negative values are allowed for
// page ids such as the end-of-lesson jump.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errBadRequest, "%s must be an integer", name)
	}
	return id, nil
}

// actorFrom builds the engine actor from the authenticated request.
func actorFrom(r *http.Request) lesson.Actor {
	id, _ := authmw.UserIDFromContext(r.Context())
	return lesson.Actor{UserID: id, Role: lesson.Role(rbac.RoleFromContext(r.Context()))}
}

// isSelf reports whether {userID} is the caller.
func isSelf(r *http.Request) bool {
	id, err := pathID(r, "userID")
	if err != nil {
		return false
	}
	me, ok := authmw.UserIDFromContext(r.Context())
	return ok && me == id
}
