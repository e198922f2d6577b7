package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yyy-OPS/SciDataExtractor/config"
	"github.com/yyy-OPS/SciDataExtractor/handler"
	"github.com/yyy-OPS/SciDataExtractor/middleware"
	"github.com/yyy-OPS/SciDataExtractor/service"
	"github.com/yyy-OPS/SciDataExtractor/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting SciDataExtractor server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化Redis，连接失败时不使用缓存
	var cache service.LayerCache
	if cfg.Redis.Enabled {
		redisService := service.NewRedisService(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisService.Ping(pingCtx)
		cancel()
		if err != nil {
			utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
			_ = redisService.Close()
		} else {
			utils.Logger.Info("redis connected successfully")
			cache = redisService
			defer redisService.Close()
		}
	}

	// 会话与服务
	store := service.NewSessionStore(&cfg.Session)
	go store.Run(ctx)

	queue := service.NewWorkQueue(cfg.GrabCut.MaxConcurrent, time.Duration(cfg.GrabCut.QueueTimeout)*time.Second)
	layerService := service.NewLayerService(store, queue, &cfg.Segment, &cfg.GrabCut, cache)
	extractService := service.NewExtractService(store, queue, &cfg.Tracer, &cfg.Extract)

	sessionHandler := handler.NewSessionHandler(&cfg.Upload, store)
	layerHandler := handler.NewLayerHandler(store, layerService)
	extractHandler := handler.NewExtractHandler(extractService)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  Version,
			"sessions": store.Len(),
			"cache":    cache != nil,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	handler.RegisterRoutes(r.Group("/api/v1"), sessionHandler, layerHandler, extractHandler)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	utils.Logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error("server shutdown failed", zap.Error(err))
	}
}
