package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/directory"
	"github.com/DoyleJ11/hackathon-judging/internal/hub"
	"github.com/DoyleJ11/hackathon-judging/internal/judging"
	"github.com/DoyleJ11/hackathon-judging/internal/roster"
	"github.com/DoyleJ11/hackathon-judging/internal/ws"
)

type Deps struct {
	Event         *config.Event
	Service       *judging.Service
	Directory     directory.Directory
	Confirmations Confirmations
	Verifier      *roster.Verifier // nil when no roster is configured
	Hub           *hub.Hub
	Log           *zap.Logger
	PlannerLogDir string
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Confirmations, d.Log))

	// Directory
	r.Route("/teams", func(r chi.Router) {
		r.Get("/", ListTeams(d.Directory))
		r.Post("/", CreateTeam(d.Directory))
		r.Post("/{team}/members", AddMember(d.Directory))
		r.Delete("/{team}/members/{member}", RemoveMember(d.Directory))
		r.Put("/{team}/tracks", SetTracks(d.Directory))
	})
	r.Post("/verify", Verify(d.Verifier))

	// Judging
	r.Post("/plan/{algorithm}", RunPlanner(d.Service, d.PlannerLogDir))
	r.Get("/queue", DownloadQueue(d.Service))
	r.Put("/queue", UploadQueue(d.Service))
	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Post("/advance", RoomCommand(d.Event, d.Service, (*judging.Service).Advance))
		r.Post("/skip", RoomCommand(d.Event, d.Service, (*judging.Service).Skip))
		r.Post("/ping", RoomCommand(d.Event, d.Service, (*judging.Service).Ping))
		r.Post("/next", RoomCommand(d.Event, d.Service, (*judging.Service).SetNext))
	})
	r.Get("/status", Status(d.Service))
	r.Get("/status/{room}", Status(d.Service))
	r.Get("/confirmations", PendingConfirmations(d.Confirmations))
	r.Post("/confirmations/{round}", Answer(d.Confirmations, d.Log))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("operator", r.Header.Get(HeaderOperator)),
			)
		})
	}
}
