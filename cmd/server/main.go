// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"medimate-go/internal/bootstrap"
	"medimate-go/internal/config"
	"medimate-go/internal/handler"
	"medimate-go/internal/pipeline"
	"medimate-go/internal/repository"
	"medimate-go/internal/service"
	"medimate-go/pkg/database"
	"medimate-go/pkg/kafka"
	"medimate-go/pkg/llm"
	"medimate-go/pkg/log"
	"medimate-go/pkg/metrics"
	"medimate-go/pkg/retry"
	"medimate-go/pkg/tika"
	"medimate-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if err := cfg.Validate(); err != nil {
		log.Fatal("配置校验失败", err)
	}

	ctx := context.Background()
	m := metrics.New()

	// 3. 初始化外部客户端
	policy := retry.FromConfig(cfg.Retry)
	embedders, closeCache, err := bootstrap.NewEmbedders(cfg)
	if err != nil {
		log.Fatal("Embedding 客户端初始化失败", err)
	}
	defer closeCache()
	llmClient := llm.NewClient(cfg.OpenAI, cfg.Timeouts.Generation, policy)
	tikaClient := tika.NewClient(cfg.Tika, cfg.Timeouts.Extraction)

	// 4. 初始化目录存储与会话存储
	medicineRepo, closeStore, err := bootstrap.OpenMedicineRepository(ctx, cfg)
	if err != nil {
		log.Fatal("目录存储初始化失败", err)
	}
	defer closeStore()

	var conversationRepo repository.ConversationRepository
	redisCtx, cancelRedis := context.WithTimeout(ctx, cfg.Timeouts.Redis)
	rdb, err := database.NewRedis(redisCtx, cfg.Database.Redis)
	cancelRedis()
	if err != nil {
		log.Warnf("Redis 不可用, 会话记录将保存在进程内: %v", err)
		conversationRepo = repository.NewMemoryConversationRepository(cfg.Conversation.TTL, cfg.Conversation.MaxMessages)
	} else {
		defer rdb.Close()
		conversationRepo = repository.NewConversationRepository(rdb, cfg.Conversation.TTL, cfg.Conversation.MaxMessages)
	}

	objects := bootstrap.OpenObjectStore(ctx, cfg)
	publisher := kafka.NewPublisher(cfg.Kafka)
	defer publisher.Close()

	// 5. 在开始监听之前构建目录索引
	catalogIndex := loadCatalogIndex(ctx, cfg, embedders, medicineRepo, objects)
	defer catalogIndex.Close()
	m.SetCatalogSize(catalogIndex.Len())

	// 6. 初始化 Service 与处方处理管道
	sessionSecret := cfg.Session.Secret
	if sessionSecret == "" {
		log.Warnf("未配置 session.secret, 使用随机密钥, 重启后旧会话令牌将失效")
		sessionSecret = token.GenerateRandomString(32)
	}
	jwtManager := token.NewJWTManager(sessionSecret, cfg.Session.ExpireHours)

	extractionModel := cfg.OpenAI.ExtractionModel
	if extractionModel == "" {
		extractionModel = cfg.OpenAI.ChatModel
	}
	processor := pipeline.NewProcessor(
		pipeline.NewIngestor(tikaClient, cfg.Chunking, cfg.Timeouts.Extraction),
		embedders.Query,
		service.NewExtractionService(llmClient, cfg.Extraction, extractionModel, cfg.Timeouts.Generation),
		service.NewRecommendationService(catalogIndex, medicineRepo, cfg.Recommendation, cfg.Timeouts.Store),
		m,
	)

	var archive service.ObjectPutter
	if cfg.Prescription.Archive && objects != nil {
		archive = objects
	}
	prescriptionService := service.NewPrescriptionService(processor, archive, publisher)
	chatService := service.NewChatService(llmClient, conversationRepo, jwtManager, cfg.Conversation, cfg.OpenAI.ChatModel, cfg.Timeouts.Redis)

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(
		handler.NewChatHandler(chatService, prescriptionService, cfg.Prescription.MaxUploadMB),
		handler.NewChatStreamHandler(chatService),
		handler.NewHistoryHandler(chatService),
		m,
	)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
