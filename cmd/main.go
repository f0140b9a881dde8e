package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/insurelane/surveyd/config"
	"github.com/insurelane/surveyd/database"
	"github.com/insurelane/surveyd/internal/apperror"
	"github.com/insurelane/surveyd/internal/cache"
	sessionctrl "github.com/insurelane/surveyd/internal/controller/session"
	surveyctrl "github.com/insurelane/surveyd/internal/controller/survey"
	"github.com/insurelane/surveyd/internal/logger"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/repository"
	"github.com/insurelane/surveyd/internal/service"
	"github.com/insurelane/surveyd/internal/sessionstate"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// @title Insurance Survey API
// @version 1.0
// @description Survey engine for insurance comparison: questionnaires, session lifecycle, recovery and graceful degradation.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
func main() {
	logger.Init()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			database.NewRedisClient,
			cache.NewRedisCache,
			sessionstate.NewSelector,
			apperror.NewHandler,
			NewGinEngine,
		),

		fx.Provide(
			repository.NewCategoryRepository,
			repository.NewTemplateRepository,
			repository.NewQuestionRepository,
			repository.NewDependencyRepository,
			repository.NewSessionRepository,
			repository.NewResponseRepository,
		),

		fx.Provide(
			service.NewResponseValidator,
			service.NewProgressService,
			service.NewSurveyEngine,
			service.NewSessionService,
			service.NewRecoveryService,
			service.NewDegradationService,
		),

		fx.Provide(
			surveyctrl.NewSurveyController,
			sessionctrl.NewSessionController,
		),

		fx.Invoke(RegisterRoutesAndStartServer),
		fx.Invoke(AutoMigrateDB),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
}

func NewGinEngine() *gin.Engine {
	r := gin.New()

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("user_agent", param.Request.UserAgent()).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// URL: http://localhost:PORT/swagger/index.html
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// RegisterRoutesAndStartServer wires the API groups and manages the HTTP
// server's lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	surveyController *surveyctrl.SurveyController,
	sessionController *sessionctrl.SessionController,
) {
	api := router.Group("/api/v1")
	surveyController.RegisterRoutes(api)
	sessionController.RegisterRoutes(api)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Survey API server starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

func AutoMigrateDB(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.Category{},
		&model.SurveyTemplate{},
		&model.SurveyQuestion{},
		&model.TemplateQuestion{},
		&model.QuestionDependency{},
		&model.Session{},
		&model.SurveyResponse{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
