package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/metrics"
	"github.com/sami157/dining-management-server/middlewares"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/workflow"
	"github.com/sirupsen/logrus"
)

// api holds the workflows the HTTP handlers delegate to.
type api struct {
	logger  *logrus.Logger
	finance *workflow.FinanceWorkflow
	members *workflow.MemberWorkflow
	meals   *workflow.MealWorkflow
	loc     *time.Location
	now     func() time.Time
}

type routerDeps struct {
	settings    config.Settings
	logger      *logrus.Logger
	ping        func(ctx context.Context) error
	finance     *workflow.FinanceWorkflow
	members     *workflow.MemberWorkflow
	meals       *workflow.MealWorkflow
	rateLimiter *middlewares.RateLimiter
	loc         *time.Location
	now         func() time.Time
}

func corsConfig(s config.Settings) cors.Config {
	cfg := cors.DefaultConfig()
	// Production requires an explicit allowlist; an empty one denies all.
	if s.IsProduction() {
		cfg.AllowOrigins = s.CorsAllowedOrigins
		if len(cfg.AllowOrigins) == 0 {
			cfg.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	cfg.AllowCredentials = !cfg.AllowAllOrigins
	return cfg
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func healthHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
				return
			}
		}
		c.Status(http.StatusNoContent)
	}
}

func newRouter(d routerDeps) *gin.Engine {
	if d.now == nil {
		d.now = time.Now
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	a := &api{
		logger:  d.logger,
		finance: d.finance,
		members: d.members,
		meals:   d.meals,
		loc:     d.loc,
		now:     d.now,
	}

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(metrics.GinMiddleware())
	r.Use(cors.New(corsConfig(d.settings)))
	if d.rateLimiter != nil {
		r.Use(d.rateLimiter.Middleware())
	}
	r.Use(middlewares.ErrorLogger(d.logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", healthHandler(d.ping))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	staff := middlewares.RequireRoles(models.UserRoleAdmin, models.UserRoleManager)
	adminOnly := middlewares.RequireRoles(models.UserRoleAdmin)

	authed := r.Group("/api", middlewares.AuthMiddleware(d.members, d.logger))

	users := authed.Group("/users")
	users.POST("/create", staff, a.createMember())
	users.GET("", staff, a.listMembers())
	users.GET("/profile", a.getProfile())
	users.PUT("/profile", a.updateProfile())
	users.GET("/role", a.getRoleByEmail())
	users.PUT("/role/:userId", staff, a.updateRole())
	users.PUT("/fixed-deposit/:userId", adminOnly, a.updateFixedDeposit())
	users.PUT("/mosque-fee/:userId", adminOnly, a.updateMosqueFee())
	users.PUT("/active/:userId", adminOnly, a.setActive())
	users.POST("/token/:userId", adminOnly, a.issueToken())

	meals := authed.Group("/meals")
	meals.POST("/schedules/generate", staff, a.generateSchedules())
	meals.POST("/schedules/bulk-update", staff, a.bulkUpdateSchedules())
	meals.GET("/schedules", a.listSchedules())
	meals.PUT("/schedules/:scheduleId", staff, a.updateSchedule())
	meals.GET("/available", a.availableMeals())
	meals.POST("/register", a.registerMeal())
	meals.PUT("/register/:registrationId", a.updateRegistration())
	meals.DELETE("/register/cancel/:registrationId", a.cancelRegistration())
	meals.GET("/registrations/me", a.myRegistrations())
	meals.GET("/total", a.totalMeals())

	finance := authed.Group("/finance")
	finance.POST("/deposits/add", staff, a.addDeposit())
	finance.GET("/deposits", staff, a.listDeposits())
	finance.PUT("/deposits/:depositId", staff, a.updateDeposit())
	finance.DELETE("/deposits/:depositId", staff, a.deleteDeposit())
	finance.POST("/expenses/add", staff, a.addExpense())
	finance.GET("/expenses", staff, a.listExpenses())
	finance.PUT("/expenses/:expenseId", staff, a.updateExpense())
	finance.DELETE("/expenses/:expenseId", staff, a.deleteExpense())
	finance.GET("/balances", staff, a.listBalances())
	finance.GET("/balances/:userId", a.getBalance())
	finance.GET("/meal-rate", a.mealRate())
	finance.POST("/finalize", staff, a.finalizeMonth())
	finance.POST("/finalize/undo", staff, a.undoFinalization())
	finance.GET("/finalizations", a.listFinalizations())
	finance.GET("/finalization/:month", a.getFinalization())
	finance.GET("/finalization/:month/export", staff, a.exportFinalization())

	r.NoRoute(customNotFoundHandler)
	return r
}
