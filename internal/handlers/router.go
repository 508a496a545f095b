package handlers

import (
	"net/http"

	"aprenda/internal/config"
	"aprenda/internal/observability"
	"aprenda/internal/services"
	"aprenda/internal/tasks"
	"aprenda/internal/version"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// Services bundles everything the router needs
type Services struct {
	Adaptive     services.AdaptiveService
	Explanations services.ExplanationService
	Insights     services.InsightsService
	InsightStore services.InsightService
	Plans        services.StudyPlanService
	Topics       services.TopicService
	Users        services.UserService
	Interactions services.LLMInteractionService
	Dispatcher   *tasks.Dispatcher
}

// NewRouter builds the gin engine with all routes and middleware wired
func NewRouter(cfg *config.Config, logger *observability.Logger, svc *Services) *gin.Engine {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.GinMiddlewareWithErrorHandling(cfg.OpenTelemetry.ServiceName))
	router.Use(corsMiddleware(cfg))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	learning := NewLearningHandler(svc.Adaptive, logger)
	explanations := NewExplanationHandler(svc.Explanations, logger)
	insights := NewInsightsHandler(svc.Insights, svc.InsightStore, svc.Dispatcher, logger)
	plans := NewStudyPlanHandler(svc.Plans, svc.Dispatcher, logger)
	taskStatus := NewTaskHandler(svc.Dispatcher, logger)
	catalog := NewCatalogHandler(svc.Topics, logger)
	users := NewUserHandler(svc.Users, logger)
	interactions := NewInteractionHandler(svc.Interactions, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version.Version,
			"commit":  version.Commit,
		})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/users", users.CreateUser)

		v1.GET("/subjects/:id", catalog.GetSubject)
		v1.GET("/subjects/:id/topics", catalog.ListTopics)
		v1.GET("/topics/:id", catalog.GetTopic)

		authed := v1.Group("")
		authed.Use(RequireUser())
		{
			authed.GET("/me", users.GetCurrentUser)

			authed.GET("/topics/:id/questions", learning.GetNextQuestions)
			authed.POST("/answers", learning.SubmitAnswer)
			authed.GET("/recommendations", learning.GetRecommendations)
			authed.GET("/performance", learning.GetPerformanceAnalysis)

			authed.GET("/questions/:id/explanation", explanations.GetExplanation)
			authed.GET("/interactions", interactions.ListInteractions)

			authed.POST("/analysis", insights.AnalyzePerformance)
			authed.POST("/analysis/async", insights.AnalyzePerformanceAsync)
			authed.GET("/insights/latest", insights.GetLatestInsight)

			authed.POST("/study-plans", plans.GeneratePlan)
			authed.GET("/study-plans", plans.ListPlans)
			authed.GET("/study-plans/:id", plans.GetPlan)
			authed.POST("/study-plans/:id/archive", plans.ArchivePlan)
			authed.POST("/sessions/:id/complete", plans.CompleteSession)
			authed.POST("/sessions/:id/reschedule", plans.RescheduleSession)

			authed.GET("/tasks/:id", taskStatus.GetTaskStatus)
		}
	}

	return router
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, UserIDHeader, "Accept-Language")
	return cors.New(corsConfig)
}
