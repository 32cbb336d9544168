package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/school-admin-api/api/swagger"
	"github.com/noah-isme/school-admin-api/internal/handler"
	"github.com/noah-isme/school-admin-api/internal/repository"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/migrations"
	"github.com/noah-isme/school-admin-api/pkg/cache"
	"github.com/noah-isme/school-admin-api/pkg/config"
	"github.com/noah-isme/school-admin-api/pkg/database"
	"github.com/noah-isme/school-admin-api/pkg/jobs"
	"github.com/noah-isme/school-admin-api/pkg/logger"
	"github.com/noah-isme/school-admin-api/pkg/storage"
)

const (
	shutdownTimeout   = 15 * time.Second
	auditDrainTimeout = 10 * time.Second
)

// @title School Admin API
// @version 1.0.0
// @description School administration backend: academics, enrollment, scores, grade reports, finance and documents.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, migrations.FS); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logr.Info("database migrated")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, "school-admin")
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), nil, logr)
	auditQueue := jobs.NewQueue("audit", auditSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.Buffer,
		MaxRetries: cfg.Audit.Retries,
		RetryDelay: time.Second,
		Logger:     logr,
	})
	auditSvc.AttachQueue(auditQueue)

	userRepo := repository.NewUserRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	gradeLevelRepo := repository.NewGradeLevelRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return fmt.Errorf("init document storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           []string{cfg.JWT.Issuer},
	})
	userSvc := service.NewUserService(userRepo, auditSvc, validate, logr)
	yearSvc := service.NewAcademicYearService(yearRepo, auditSvc, validate, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, yearRepo, auditSvc, validate, logr)
	gradeLevelSvc := service.NewGradeLevelService(gradeLevelRepo, auditSvc, validate)
	classSvc := service.NewClassService(classRepo, gradeLevelRepo, yearRepo, userRepo, enrollmentRepo, cacheSvc, auditSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, gradeLevelRepo, cacheSvc, auditSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, auditSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, classRepo, auditSvc, validate, logr)
	scoreSvc := service.NewScoreService(scoreRepo, enrollmentRepo, subjectRepo, semesterRepo, classRepo, auditSvc, validate, logr)
	gradeSvc := service.NewGradeReportService(scoreRepo, studentRepo, enrollmentRepo, classRepo, subjectRepo, semesterRepo, metrics, logr)
	financeSvc := service.NewFinanceService(transactionRepo, invoiceRepo, studentRepo, enrollmentRepo, classRepo, auditSvc, validate, logr)
	documentSvc := service.NewDocumentService(documentRepo, files, signer, studentRepo, classRepo, auditSvc, validate, logr, service.DocumentServiceConfig{
		MaxFileSize:  cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Documents.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})

	checks := map[string]handler.Pinger{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	router := newRouter(cfg, logr, metrics, routeHandlers{
		auth:       handler.NewAuthHandler(authSvc),
		users:      handler.NewUserHandler(userSvc),
		academic:   handler.NewAcademicHandler(yearSvc, semesterSvc, gradeLevelSvc),
		classes:    handler.NewClassHandler(classSvc),
		subjects:   handler.NewSubjectHandler(subjectSvc),
		students:   handler.NewStudentHandler(studentSvc),
		enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		scores:     handler.NewScoreHandler(scoreSvc),
		grades:     handler.NewGradeHandler(gradeSvc),
		finance:    handler.NewFinanceHandler(financeSvc),
		documents:  handler.NewDocumentHandler(documentSvc),
		audit:      handler.NewAuditHandler(auditSvc),
		ops:        handler.NewMetricsHandler(metrics, checks),
		tokens:     authSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auditQueue.Run(gctx, auditDrainTimeout)
	})
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
