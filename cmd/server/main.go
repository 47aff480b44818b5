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

	"edu-rag-go/internal/app"
	"edu-rag-go/internal/config"
	"edu-rag-go/internal/handler"
	"edu-rag-go/internal/middleware"
	"edu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 组装数据库、存储、模型客户端、索引和各层服务
	a, err := app.New(ctx, &cfg)
	if err != nil {
		log.Fatal("初始化应用失败", err)
	}
	defer a.Close()

	// 4. 加载向量索引，损坏时按配置重建
	if err := a.Indexes.Open(ctx); err != nil {
		log.Fatal("加载向量索引失败", err)
	}

	// 5. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := a.StartConsumer(ctx); err != nil {
			log.Error("Kafka 消费者异常退出", err)
		}
	}()

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	handler.RegisterRoutes(r, handler.Handlers{
		Documents: handler.NewDocumentHandler(a.Ingest),
		Summaries: handler.NewSummaryHandler(a.Summaries),
		Chat:      handler.NewChatHandler(a.Chat, a.JWT),
		Admin:     handler.NewAdminHandler(a.Health, a.Indexes),
	}, a.JWT)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者，被中断的单元会记为 failed，之后可以手动重新触发
	stop()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}
