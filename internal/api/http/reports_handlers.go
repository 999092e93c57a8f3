package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// GET /lessons/{lessonID}/users/{userID}/report
func UserReportHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		userID, err := pathID(r, "userID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		rep, err := eng.UserReport(r.Context(), lessonID, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// DELETE /lessons/{lessonID}/users/{userID}/retries  {"retries":[0,2]}
func DeleteRetriesHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		userID, err := pathID(r, "userID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req struct {
			Retries []int `json:"retries"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := eng.DeleteRetries(r.Context(), lessonID, userID, req.Retries); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type overrideReq struct {
	lesson.Override
	Password *string `json:"password,omitempty"` // "" clears the lesson password for the user
}

// PUT /lessons/{lessonID}/users/{userID}/override
func PutOverrideHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		userID, err := pathID(r, "userID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req overrideReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.LessonID, req.UserID = lessonID, userID
		if err := eng.PutOverride(r.Context(), req.Override, req.Password); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /lessons/{lessonID}/attempts/{attemptID}/essay  {"score":3,"response":"..."}
func GradeEssayHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		attemptID, err := pathID(r, "attemptID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req struct {
			Score    int    `json:"score"`
			Response string `json:"response"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := eng.GradeEssay(r.Context(), lessonID, attemptID, req.Score, req.Response)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /lessons/{lessonID}/regrade
func RegradeHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		n, err := eng.RepublishGrades(r.Context(), lessonID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"published": n})
	}
}

// POST /lessons/{lessonID}/reset
func ResetLessonHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := eng.ResetLesson(r.Context(), lessonID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
