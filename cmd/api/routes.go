package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/handler"
	"github.com/noah-isme/school-admin-api/internal/middleware"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/pkg/config"
	"github.com/noah-isme/school-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-admin-api/pkg/middleware/cors"
	"github.com/noah-isme/school-admin-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/school-admin-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth       *handler.AuthHandler
	users      *handler.UserHandler
	academic   *handler.AcademicHandler
	classes    *handler.ClassHandler
	subjects   *handler.SubjectHandler
	students   *handler.StudentHandler
	enrollment *handler.EnrollmentHandler
	scores     *handler.ScoreHandler
	grades     *handler.GradeHandler
	finance    *handler.FinanceHandler
	documents  *handler.DocumentHandler
	audit      *handler.AuditHandler
	ops        *handler.MetricsHandler
	tokens     middleware.TokenValidator
}

const (
	admin   = models.RoleAdmin
	teacher = models.RoleTeacher
	student = models.RoleStudent
	finance = models.RoleFinance
)

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.ops.Health)
	r.GET("/ready", h.ops.Ready)
	r.GET("/metrics", h.ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	loginLimiter := ratelimit.NewPerIP(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst)
	api.POST("/auth/login", loginLimiter.Middleware(), h.auth.Login)
	api.POST("/auth/refresh", h.auth.Refresh)

	// Signed token in the query string authorises the download.
	api.GET("/documents/:id/download", h.documents.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.tokens))

	auth := secured.Group("/auth")
	auth.POST("/logout", h.auth.Logout)
	auth.POST("/change-password", h.auth.ChangePassword)
	auth.GET("/me", h.auth.Me)

	users := secured.Group("/users")
	users.GET("", middleware.RequireRoles(admin), h.users.List)
	users.POST("", middleware.RequireRoles(admin), h.users.Create)
	users.GET("/:id", middleware.RBAC(string(admin), middleware.RoleSelf), h.users.Get)
	users.PUT("/:id", middleware.RequireRoles(admin), h.users.Update)
	users.DELETE("/:id", middleware.RequireRoles(admin), h.users.Delete)

	academicWrite := middleware.RequireRoles(admin)

	years := secured.Group("/academic-years")
	years.GET("", h.academic.ListYears)
	years.GET("/:id", h.academic.GetYear)
	years.POST("", academicWrite, h.academic.CreateYear)
	years.PUT("/:id", academicWrite, h.academic.UpdateYear)
	years.DELETE("/:id", academicWrite, h.academic.DeleteYear)
	years.POST("/:id/activate", academicWrite, h.academic.ActivateYear)

	semesters := secured.Group("/semesters")
	semesters.GET("", h.academic.ListSemesters)
	semesters.GET("/:id", h.academic.GetSemester)
	semesters.POST("", academicWrite, h.academic.CreateSemester)
	semesters.PUT("/:id", academicWrite, h.academic.UpdateSemester)
	semesters.DELETE("/:id", academicWrite, h.academic.DeleteSemester)
	semesters.POST("/:id/activate", academicWrite, h.academic.ActivateSemester)

	levels := secured.Group("/grade-levels")
	levels.GET("", h.academic.ListGradeLevels)
	levels.POST("", academicWrite, h.academic.CreateGradeLevel)
	levels.PUT("/:id", academicWrite, h.academic.UpdateGradeLevel)
	levels.DELETE("/:id", academicWrite, h.academic.DeleteGradeLevel)

	classes := secured.Group("/classes")
	classes.GET("", h.classes.List)
	classes.GET("/:id", h.classes.Get)
	classes.GET("/:id/students", middleware.RequireRoles(admin, teacher), h.classes.Roster)
	classes.POST("", academicWrite, h.classes.Create)
	classes.PUT("/:id", academicWrite, h.classes.Update)
	classes.DELETE("/:id", academicWrite, h.classes.Delete)

	subjects := secured.Group("/subjects")
	subjects.GET("", h.subjects.List)
	subjects.GET("/:id", h.subjects.Get)
	subjects.POST("", academicWrite, h.subjects.Create)
	subjects.PUT("/:id", academicWrite, h.subjects.Update)
	subjects.DELETE("/:id", academicWrite, h.subjects.Delete)

	students := secured.Group("/students")
	students.GET("/me", middleware.RequireRoles(student), h.students.Me)
	students.GET("", middleware.RequireRoles(admin, teacher, finance), h.students.List)
	students.GET("/:id", middleware.RequireRoles(admin, teacher, finance), h.students.Get)
	students.POST("", middleware.RequireRoles(admin), h.students.Create)
	students.PUT("/:id", middleware.RequireRoles(admin), h.students.Update)
	students.DELETE("/:id", middleware.RequireRoles(admin), h.students.Deactivate)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", middleware.RequireRoles(admin, teacher), h.enrollment.List)
	enrollments.POST("", middleware.RequireRoles(admin), h.enrollment.Enroll)
	enrollments.POST("/:id/transfer", middleware.RequireRoles(admin), h.enrollment.Transfer)
	enrollments.POST("/:id/withdraw", middleware.RequireRoles(admin), h.enrollment.Withdraw)

	scores := secured.Group("/scores")
	scores.Use(middleware.RequireRoles(admin, teacher))
	scores.GET("", h.scores.List)
	scores.GET("/:id", h.scores.Get)
	scores.POST("", h.scores.Create)
	scores.PUT("/:id", h.scores.Update)
	scores.DELETE("/:id", h.scores.Delete)

	grades := secured.Group("/grades")
	reportCardRoles := middleware.RequireRoles(admin, teacher, student)
	gradebookRoles := middleware.RequireRoles(admin, teacher)
	grades.GET("/report-card", reportCardRoles, h.grades.ReportCard)
	grades.GET("/report-card/export", reportCardRoles, h.grades.ExportReportCard)
	grades.GET("/gradebook", gradebookRoles, h.grades.Gradebook)
	grades.GET("/gradebook/export", gradebookRoles, h.grades.ExportGradebook)

	fin := secured.Group("/finance")
	fin.Use(middleware.RequireRoles(admin, finance))
	fin.GET("/transactions", h.finance.ListTransactions)
	fin.POST("/transactions", h.finance.CreateTransaction)
	fin.GET("/summary", h.finance.Summary)
	fin.GET("/invoices", h.finance.ListInvoices)
	fin.POST("/invoices", h.finance.CreateInvoice)
	fin.POST("/invoices/bulk", h.finance.BulkCreateInvoices)
	fin.GET("/invoices/:id", h.finance.GetInvoice)
	fin.POST("/invoices/:id/pay", h.finance.PayInvoice)
	fin.POST("/invoices/:id/cancel", h.finance.CancelInvoice)

	documents := secured.Group("/documents")
	documents.GET("", h.documents.List)
	documents.GET("/:id", h.documents.Get)
	documents.POST("", middleware.RequireRoles(admin, teacher), h.documents.Upload)
	documents.DELETE("/:id", middleware.RequireRoles(admin), h.documents.Delete)

	secured.GET("/audit-logs", middleware.RequireRoles(admin), h.audit.List)

	return r
}
