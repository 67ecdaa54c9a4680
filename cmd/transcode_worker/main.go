package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"video_processor_worker/internal/transcode/api/handlers"
	"video_processor_worker/internal/transcode/api/router"
	"video_processor_worker/internal/transcode/app"
	"video_processor_worker/internal/transcode/repository"
	"video_processor_worker/pkg/config"
	"video_processor_worker/pkg/database"
	"video_processor_worker/pkg/logger"
	testtool "video_processor_worker/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerLogPath)
	defer logger.Log.Sync()
	logger.Log.SetDebugMode(!config.IsProduction())

	cfg, err := config.LoadConfig[config.Transcode](config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerYAMLPath, config.DefaultTranscode())
	if err != nil {
		logger.Log.Fatal("讀取設定失敗", zap.Error(err))
	}

	if _, err := exec.LookPath(cfg.Worker.FFmpegPath); err != nil {
		logger.Log.Fatal("找不到 ffmpeg", zap.String("path", cfg.Worker.FFmpegPath), zap.Error(err))
	}

	// 1. 連線 PostgreSQL
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database, cfg.PostgreSQL.Port)
	pgConn := database.Connection{
		ConnectStr: dsn,

		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	db, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
			zap.Error(err),
		)
	}

	// 自動遷移影片資料表
	videoRepo := repository.NewVideoRepo(db)
	if err := videoRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("資料表遷移失敗", zap.Error(err))
	}

	// 轉碼紀錄 (audit) 走 pgx pool
	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to create pgx pool", zap.Error(err))
	}
	defer pool.Close()

	attemptRepo := repository.NewAttemptRepo(pool)
	if err := attemptRepo.EnsureSchema(context.Background()); err != nil {
		logger.Log.Fatal("建立 transcode_attempt 資料表失敗", zap.Error(err))
	}
	reporters := app.Reporters{app.AttemptReporter{Repo: attemptRepo}}
	var reportRepo repository.ReportRepo

	// 2. 初始化 MinIO 客戶端，raw / processed 各一個 bucket
	newMinIO := func(bucket string) *database.MinIOClient {
		mc, err := database.NewMinIOConnection(database.MinIOConnection{
			Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
			User:       cfg.MinIO.User,
			Password:   cfg.MinIO.Password,
			BucketName: bucket,
			UseSSL:     cfg.MinIO.UseSSL,

			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: cfg.MinIO.RetryInterval,
		})
		if err != nil {
			logger.Log.Fatal(
				"Unable to connect to minio after retries",
				zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MinIO.Host, cfg.MinIO.Port)),
				zap.String("bucket", bucket),
				zap.Error(err),
			)
		}
		return mc
	}
	rawStore := newMinIO(cfg.MinIO.RawBucket)
	processedStore := newMinIO(cfg.MinIO.ProcessedBucket)

	// 3. RabbitMQ
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port)
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: cfg.RabbitMQ.RetryInterval,
	})
	if err != nil {
		logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
	}
	defer conn.Close()

	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, cfg.RabbitMQ.RetryInterval)
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	defer rabbitChannel.Close()

	rabbitRepo := database.NewRabbitRepository(rabbitChannel)
	for _, q := range []string{cfg.RabbitMQ.Queue, cfg.RabbitMQ.DeadLetterQueue} {
		if q == "" {
			continue
		}
		if err := rabbitRepo.DeclareQueue(q); err != nil {
			logger.Log.Fatal("Queue Declare failed", zap.String("queue", q), zap.Error(err))
		}
	}

	// 4. 選用元件：redis job lock / kafka 事件 / mongo 診斷紀錄
	jobLock := repository.NewNopJobLock()
	if cfg.Redis.Addr != "" || len(cfg.Redis.SentinelAddrs) > 0 {
		rdb, err := database.NewRedisClient(context.Background(), database.RedisConnection{
			Addr:          cfg.Redis.Addr,
			MasterName:    cfg.Redis.MasterName,
			SentinelAddrs: cfg.Redis.SentinelAddrs,
			DB:            cfg.Redis.RedisDB,
		})
		if err != nil {
			logger.Log.Fatal("Redis 連線失敗", zap.Error(err))
		}
		defer rdb.Close()
		jobLock = repository.NewRedisJobLock(rdb, cfg.Worker.LockTTL)
	}

	if cfg.Kafka.Enabled {
		kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: cfg.Kafka.RetryInterval,
		})
		if err != nil {
			logger.Log.Fatal("Kafka Writer 建立失敗", zap.Error(err))
		}
		defer kafkaWriter.Close()
		reporters = append(reporters, app.KafkaReporter{Writer: kafkaWriter})
	}

	if cfg.Mongo.Enabled {
		mongoDB, err := database.NewMongoDB(context.Background(), database.Connection{
			ConnectStr:    cfg.Mongo.URI,
			RetryCount:    cfg.Mongo.RetryCount,
			RetryInterval: cfg.Mongo.RetryDelay,
		}, cfg.Mongo.Database)
		if err != nil {
			logger.Log.Fatal("MongoDB 連線失敗", zap.Error(err))
		}
		defer mongoDB.Close(context.Background())
		reportRepo = repository.NewReportRepo(mongoDB.Database, cfg.Mongo.Collection)
		reporters = append(reporters, app.DiagnosticsReporter{Repo: reportRepo})
	}

	// 5. 組裝 pipeline
	w := cfg.Worker
	pipeline := app.NewPipeline(app.PipelineDeps{
		Resolver:        app.NewResolver(videoRepo, w.DBTimeout),
		Lock:            jobLock,
		Workspaces:      app.NewWorkspaces(w.ScratchDir),
		Stager:          app.NewStager(rawStore, w.StorageTimeout),
		Executor:        app.NewExecutor(app.FFmpegRunner{Path: w.FFmpegPath}, w.MaxParallelRenditions, w.TranscodeTimeout),
		Publisher:       app.NewPublisher(processedStore, w.StorageTimeout),
		Finalizer:       app.NewFinalizer(videoRepo, w.DBTimeout),
		Reporter:        reporters,
		ThumbnailOffset: w.ThumbnailOffset,
		ReportTimeout:   w.DBTimeout,
	})

	consumer := app.NewConsumer(rabbitRepo, pipeline, app.ConsumerOptions{
		QueueName:       cfg.RabbitMQ.Queue,
		DeadLetterQueue: cfg.RabbitMQ.DeadLetterQueue,
		ConsumerTag:     fmt.Sprintf("%s-%s", config.EnvConfig.TranscodeWorker, uuid.NewString()[:8]),
		MaxJobs:         w.MaxConcurrentJobs,
		RequeueDelay:    w.RequeueDelay,
	})

	// 6. gRPC health + 管理 API
	grpcServer, healthServer := database.NewGRPCHealthServer()
	go func() {
		if err := database.ServeGRPC(grpcServer, cfg.IP+":"+cfg.Port); err != nil {
			logger.Log.Error("gRPC health server stopped", zap.Error(err))
		}
	}()

	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.TranscodeWorkerLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log file", zap.Error(err))
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))
	router.RegisterRoutes(r, &handlers.AdminHandler{
		VideoRepo:     videoRepo,
		AttemptRepo:   attemptRepo,
		ReportRepo:    reportRepo,
		Processed:     processedStore,
		Worker:        consumer,
		PresignExpiry: cfg.MinIO.PresignExpiry,
	})
	go func() {
		if err := r.Listen(cfg.IP + ":" + cfg.HTTPPort); err != nil {
			logger.Log.Error("admin api stopped", zap.Error(err))
		}
	}()

	if pprofApp := testtool.StartPprof(cfg.Pprof); pprofApp != nil {
		defer pprofApp.Shutdown()
	}

	// 7. 開始消費，收到 SIGINT/SIGTERM 停止拉新訊息，等進行中的 job 結束
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	logger.Log.Info("transcode worker started",
		zap.String("queue", cfg.RabbitMQ.Queue),
		zap.Int("max_jobs", w.MaxConcurrentJobs),
		zap.String("grpc", cfg.IP+":"+cfg.Port),
		zap.String("http", cfg.IP+":"+cfg.HTTPPort),
	)

	select {
	case <-ctx.Done():
	case err := <-consumerErr:
		if err != nil {
			logger.Log.Error("consumer stopped", zap.Error(err))
		} else {
			logger.Log.Error("consumer stopped: delivery channel closed")
		}
	}
	stop()

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	logger.Log.Info("shutting down, waiting for in-flight jobs", zap.Int64("in_flight", consumer.InFlight()))
	consumer.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Log.Warn("admin api shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Log.Info("transcode worker stopped")
}
