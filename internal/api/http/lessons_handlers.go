package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
)

// POST /lessons
func CreateLessonHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in lesson.LessonInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		in.ID = 0
		l, err := eng.CreateLesson(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

// GET /lessons/{lessonID}
func GetLessonHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		l, err := eng.GetLesson(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// PUT /lessons/{lessonID}
func UpdateLessonHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var in lesson.LessonInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		in.ID = id
		l, err := eng.UpdateLesson(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// GET /lessons/{lessonID}/pages
func ListPagesHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		pages, err := eng.LoadAllPages(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pages)
	}
}

type createPageReq struct {
	lesson.PageWithAnswers
	AfterID int64 `json:"after_id"` // 0 inserts at the start
}

// POST /lessons/{lessonID}/pages
func CreatePageHandler(eng *lesson.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID, err := pathID(r, "lessonID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req createPageReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := eng.CreatePage(r.Context(), lessonID, req.AfterID, req.Page, req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// PUT /lessons/{lessonID}/pages/{pageID}
func UpdatePageHandler(eng *lesson.Engine) http.HandlerFunc {
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
		var req lesson.PageWithAnswers
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.ID = pageID
		p, err := eng.UpdatePage(r.Context(), lessonID, req.Page, req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// DELETE /lessons/{lessonID}/pages/{pageID}
func DeletePageHandler(eng *lesson.Engine) http.HandlerFunc {
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
		if err := eng.DeletePage(r.Context(), lessonID, pageID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /lessons/{lessonID}/pages/{pageID}/move  {"after_id": 12}
func MovePageHandler(eng *lesson.Engine) http.HandlerFunc {
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
		var req struct {
			AfterID int64 `json:"after_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := eng.ResortPages(r.Context(), lessonID, pageID, req.AfterID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /lessons/{lessonID}/pages/{pageID}/duplicate
func DuplicatePageHandler(eng *lesson.Engine) http.HandlerFunc {
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
		p, err := eng.DuplicatePage(r.Context(), lessonID, pageID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}
