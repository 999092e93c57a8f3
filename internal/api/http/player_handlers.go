package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// GET /lessons/{lessonID}/play/{pageID}
// pageID 0 starts (or resumes at) the first page; -9 ends the lesson.
func ViewPageHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		pageID, err := pathID(r, "pageID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := eng.View(r.Context(), lesson.ViewRequest{
			LessonID: lessonID,
			PageID:   pageID,
			Actor:    actorFrom(r),
			Password: r.Header.Get(PasswordHeader),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /lessons/{lessonID}/play/{pageID}  {"answer_ids":[3]} or {"text":"..."}
func SubmitAnswerHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		pageID, err := pathID(r, "pageID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var sub lesson.Submission
		if err := decodeJSON(r, &sub); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := eng.Submit(r.Context(), lesson.AnswerRequest{
			LessonID:   lessonID,
			PageID:     pageID,
			Actor:      actorFrom(r),
			Password:   r.Header.Get(PasswordHeader),
			Submission: sub,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /lessons/{lessonID}/finish
func FinishHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := eng.Finish(r.Context(), lessonID, actorFrom(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type timerReq struct {
	Action string `json:"action"` // "start", "stop" or "" for a heartbeat
	lesson.HeartbeatOptions
}

// POST /lessons/{lessonID}/timer
func TimerHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req timerReq
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
		}
		actor := actorFrom(r)
		switch req.Action {
		case "start":
			t, err := eng.StartTimer(r.Context(), lessonID, actor.UserID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, t)
		case "stop":
			if err := eng.StopTimer(r.Context(), lessonID, actor.UserID); err != nil {
				writeError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case "":
			hb, err := eng.Heartbeat(r.Context(), lessonID, actor, req.HeartbeatOptions)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, hb)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}
	}
}

// GET /lessons/{lessonID}/progress
func ProgressHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := eng.Progress(r.Context(), lessonID, actorFrom(r).UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"progress": p})
	}
}
