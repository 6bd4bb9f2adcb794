package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/unl5k/race-timing-system/handlers"
	"github.com/unl5k/race-timing-system/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	competitionHandler *handlers.CompetitionHandler,
	registrationHandler *handlers.RegistrationHandler,
	resultsHandler *handlers.ResultsHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Post("/auth/login", authHandler.Login)

	router.Route("/competitions", func(r chi.Router) {
		// Публичные маршруты просмотра
		r.Get("/", competitionHandler.ListActive)
		r.Get("/{competitionID}/status", competitionHandler.GetStatus)
		r.Get("/{competitionID}/results", resultsHandler.CompetitionResults)

		// Управление жизненным циклом только для авторизованных судей
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate([]byte(jwtSecret)))

			r.Post("/{competitionID}/start", competitionHandler.Start)
			r.Post("/{competitionID}/stop", competitionHandler.Stop)
			r.Put("/{competitionID}/logo", competitionHandler.UploadLogo)
		})
	})

	router.Route("/teams", func(r chi.Router) {
		r.Get("/{teamID}", resultsHandler.TeamDetail)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate([]byte(jwtSecret)))

			r.Post("/{teamID}/records", registrationHandler.RegisterRecords)
			r.Get("/{teamID}/records/status", registrationHandler.RecordsStatus)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate([]byte(jwtSecret)))

		r.Get("/me", authHandler.Me)
	})

	// WebSocket: судья аутентифицируется токеном в query string уже после
	// апгрейда, поэтому HTTP middleware здесь не используется.
	router.Get("/ws/judges/{judgeID}", webSocketHandler.ServeJudge)
	router.Get("/ws/competitions/{competitionID}", webSocketHandler.ServeViewer)
}
