package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	authmw "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/observability"
	"github.com/mind-engage/mindengage-lessons/internal/ratelimit"
	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

// Deps are the collaborators the API is built from.
type Deps struct {
	Engine      *lesson.Engine
	Auth        *authmw.AuthService
	Logger      *slog.Logger
	Limiter     *ratelimit.Limiter // answer submissions per user; nil disables
	CORSOrigins []string
	DevLogin    bool
	Ready       func(r *http.Request) error
}

// NewRouter mounts every route of the lesson API.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(0, 0)
	}
	eng := d.Engine

	r := chi.NewRouter()
	r.Use(middleware.RealIP, observability.RequestLogger(d.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", PasswordHeader, observability.RequestIDHeader},
		ExposedHeaders:   []string{"Content-Length", observability.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	// Local login for development only
	if d.DevLogin {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth))
	}

	perUser := d.Limiter.Middleware(func(r *http.Request) string {
		id, _ := authmw.UserIDFromContext(r.Context())
		return strconv.FormatInt(id, 10)
	})

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))

		// Authoring
		pr.With(rbac.Require(rbac.PermLessonEdit)).Post("/lessons", CreateLessonHandler(eng))
		pr.Route("/lessons/{lessonID}", func(lr chi.Router) {
			lr.With(rbac.Require(rbac.PermLessonView)).Get("/", GetLessonHandler(eng))
			lr.With(rbac.Require(rbac.PermLessonEdit)).Put("/", UpdateLessonHandler(eng))

			lr.Group(func(er chi.Router) {
				er.Use(rbac.Require(rbac.PermLessonEdit))
				er.Get("/pages", ListPagesHandler(eng))
				er.Post("/pages", CreatePageHandler(eng))
				er.Put("/pages/{pageID}", UpdatePageHandler(eng))
				er.Delete("/pages/{pageID}", DeletePageHandler(eng))
				er.Post("/pages/{pageID}/move", MovePageHandler(eng))
				er.Post("/pages/{pageID}/duplicate", DuplicatePageHandler(eng))
				er.Put("/users/{userID}/override", PutOverrideHandler(eng))
				er.Post("/regrade", RegradeHandler(eng))
				er.Post("/reset", ResetLessonHandler(eng))
			})

			// Player
			lr.With(rbac.Require(rbac.PermLessonView)).Get("/play/{pageID}", ViewPageHandler(eng))
			lr.With(rbac.Require(rbac.PermAttemptSubmit), perUser).Post("/play/{pageID}", SubmitAnswerHandler(eng))
			lr.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/finish", FinishHandler(eng))
			lr.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/timer", TimerHandler(eng))
			lr.With(rbac.Require(rbac.PermLessonView)).Get("/progress", ProgressHandler(eng))

			// Reports and grading
			lr.With(rbac.RequireOwnerOr(rbac.PermGradeView, isSelf)).Get("/users/{userID}/report", UserReportHandler(eng))
			lr.With(rbac.Require(rbac.PermRetryDelete)).Delete("/users/{userID}/retries", DeleteRetriesHandler(eng))
			lr.With(rbac.Require(rbac.PermEssayGrade)).Post("/attempts/{attemptID}/essay", GradeEssayHandler(eng))
		})
	})

	return r
}
