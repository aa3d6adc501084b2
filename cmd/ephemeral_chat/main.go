package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ephemeral_chat/internal/config"
	"ephemeral_chat/internal/dao/gormstore"
	"ephemeral_chat/internal/dao/memory"
	myredis "ephemeral_chat/internal/dao/redis"
	"ephemeral_chat/internal/gateway/websocket"
	"ephemeral_chat/internal/handler"
	"ephemeral_chat/internal/https_server"
	"ephemeral_chat/internal/infrastructure/logger"
	"ephemeral_chat/internal/infrastructure/mq"
	"ephemeral_chat/internal/infrastructure/worker"
	"ephemeral_chat/internal/localstate"
	"ephemeral_chat/internal/service"
	"ephemeral_chat/internal/store"
	"ephemeral_chat/pkg/util/snowflake"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.Mode, conf.AppName); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()
	zap.L().Info("日志初始化成功", zap.String("app", conf.AppName))

	snowflake.Init(conf.MachineID)

	ctx := context.Background()

	// 3. 存储后端
	backend, closeBackend, err := openBackend(ctx, conf)
	if err != nil {
		zap.L().Fatal("open store backend failed", zap.String("backend", conf.Backend), zap.Error(err))
	}
	zap.L().Info("存储后端初始化成功", zap.String("backend", conf.Backend))

	// 4. 变更事件镜像（可选）
	var opts []store.Option
	var pool *worker.Pool
	var feed *mq.ChangeFeed
	if conf.FeedMode == "kafka" {
		pool = worker.NewPool("change-feed", conf.Workers, conf.Buffer)
		feed = mq.NewChangeFeed(mq.NewKafkaWriter(&conf.KafkaConfig), pool, conf.KafkaConfig.Timeout*time.Second)
		opts = append(opts, store.WithObserver(feed.Observe))
		zap.L().Info("Kafka 变更镜像已开启", zap.String("topic", conf.ChangeTopic))
	}
	st := store.New(backend, opts...)

	// 5. 引擎（依赖注入）
	msgValidator := validator.New()
	if err := handler.InitTrans("zh", msgValidator); err != nil {
		zap.L().Fatal("init validator trans failed", zap.Error(err))
	}
	svc := service.NewServices(st, localstate.NewFileStore(conf.LocalStatePath), conf.LifecycleConfig, msgValidator)

	// 6. 身份
	me, err := svc.Identity.Boot(ctx)
	if err != nil {
		zap.L().Fatal("identity boot failed", zap.Error(err))
	}
	zap.L().Info("身份已激活", zap.String("user", me.ID), zap.String("name", me.DisplayName))

	if conf.DeepLink != "" {
		cleaned, err := svc.DeepLink.Consume(ctx, conf.DeepLink, me.ID)
		if err != nil {
			zap.L().Warn("consume deep link failed", zap.Error(err))
		} else {
			zap.L().Info("deep link consumed", zap.String("url", cleaned))
		}
	}

	svc.Sweeper.Start()

	// 7. 本地接口
	hub := websocket.NewHub()
	engine := https_server.Init(&conf.MainConfig, handler.NewHandlers(svc, hub))
	server := https_server.NewServer(&conf.MainConfig, engine)
	server.Start()

	// 等待信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("http shutdown", zap.Error(err))
	}
	// 连接关闭时各自的视图随之关闭
	hub.CloseAll()
	svc.Close(shutdownCtx)

	if feed != nil {
		pool.Close()
		if err := feed.Close(); err != nil {
			zap.L().Warn("close change feed", zap.Error(err))
		}
	}
	if err := closeBackend.Close(); err != nil {
		zap.L().Warn("close store backend", zap.Error(err))
	}
	zap.L().Info("服务器已关闭")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openBackend 按 storeConfig.backend 选择存储实现
func openBackend(ctx context.Context, conf *config.Config) (store.Backend, io.Closer, error) {
	switch conf.Backend {
	case "redis":
		client, err := myredis.NewClient(ctx, &conf.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return myredis.NewDocumentStore(client, conf.KeyPrefix), client, nil
	case "mysql", "sqlite":
		var db *gorm.DB
		var err error
		if conf.Backend == "sqlite" {
			db, err = gormstore.OpenSQLite(conf.SqlitePath)
		} else {
			db, err = gormstore.OpenMySQL(&conf.MysqlConfig)
		}
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return gormstore.NewStore(db), sqlDB, nil
	default:
		return memory.NewBackend(), closerFunc(func() error { return nil }), nil
	}
}
