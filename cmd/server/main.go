// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"formfill-go/internal/chunker"
	"formfill-go/internal/config"
	"formfill-go/internal/contextstore"
	"formfill-go/internal/extractor"
	"formfill-go/internal/handler"
	"formfill-go/internal/pipeline"
	"formfill-go/internal/repository"
	"formfill-go/internal/service"
	"formfill-go/internal/suggestion"
	"formfill-go/pkg/database"
	"formfill-go/pkg/embedding"
	"formfill-go/pkg/es"
	"formfill-go/pkg/kafka"
	"formfill-go/pkg/llm"
	"formfill-go/pkg/log"
	"formfill-go/pkg/storage"
	"formfill-go/pkg/tika"
	"formfill-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、ES 与 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.AutoMigrate(database.DB); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	contextRepo := repository.NewContextRepository(database.DB)
	formRepo := repository.NewFormRepository(database.DB)
	docRepo := repository.NewDocumentRepository(database.DB)
	excerptCache := repository.NewExcerptCache(database.RDB)

	// 5. 初始化外部客户端与核心组件 (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, time.Hour)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	objectStore := storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)
	store := contextstore.New(
		contextRepo,
		es.NewContextIndex(es.ESClient, cfg.Elasticsearch.IndexName),
		embeddingClient.Dimensions(),
		contextstore.WithCandidateMultiplier(cfg.Retrieval.CandidateMultiplier),
	)
	generator := suggestion.NewGenerator(llmClient, embeddingClient, store, cfg.LLM.Prompt, cfg.Retrieval)

	// 6. 初始化 Service
	formService := service.NewFormService(
		extractor.New(),
		embeddingClient,
		store,
		generator,
		formRepo,
		docRepo,
		excerptCache,
		cfg.Retrieval,
		cfg.Refine,
	)
	documentService := service.NewDocumentService(docRepo, store, objectStore, producer, excerptCache)
	contextService := service.NewContextService(embeddingClient, store)

	// 7. 初始化文档处理管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(
		objectStore,
		tikaClient,
		chunker.New(cfg.Chunker),
		embeddingClient,
		store,
		docRepo,
		llmClient,
		excerptCache,
	)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, database.RDB)

	// 7.1 预导入 seed 目录中的文档，已导入的同名文件跳过
	go seedDocuments(consumerCtx, cfg.Seed, documentService)

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(jwtManager, handler.Handlers{
		Form:     handler.NewFormHandler(formService),
		Document: handler.NewDocumentHandler(documentService, cfg.Server.StatusPollInterval),
		Context:  handler.NewContextHandler(contextService),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	stopConsumer()
	log.Info("服务已优雅关闭")
}

// seedDocuments 扫描目录下的文件并通过标准上传流程导入（按文件名幂等）。
func seedDocuments(ctx context.Context, seed config.SeedConfig, docService service.DocumentService) {
	if seed.Dir == "" || seed.UserID == 0 {
		return
	}
	info, err := os.Stat(seed.Dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", seed.Dir)
		return
	}

	existing := map[string]struct{}{}
	if docs, err := docService.List(ctx, seed.UserID); err == nil {
		for _, d := range docs {
			existing[d.FileName] = struct{}{}
		}
	}

	walkErr := filepath.Walk(seed.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if _, ok := existing[info.Name()]; ok {
			log.Infof("seedDocuments: 已存在，跳过: %s", info.Name())
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			log.Warnf("seedDocuments: 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()

		doc, err := docService.Upload(ctx, seed.UserID, service.UploadRequest{
			FileName: info.Name(),
			Size:     info.Size(),
			Content:  f,
		})
		if err != nil {
			log.Warnf("seedDocuments: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("seedDocuments: 导入完成并已进入处理队列: %s (documentID=%s)", info.Name(), doc.DocumentID)
		return nil
	})
	if walkErr != nil {
		log.Warnf("seedDocuments: 遍历目录发生错误: %v", walkErr)
	}
}
