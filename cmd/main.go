package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pot-code/course-player/internal/course"
	infra "github.com/pot-code/course-player/internal/infrastructure"
	"github.com/pot-code/course-player/internal/infrastructure/auth"
	"github.com/pot-code/course-player/internal/infrastructure/driver"
	"github.com/pot-code/course-player/internal/infrastructure/logging"
	"github.com/pot-code/course-player/internal/infrastructure/uuid"
	"github.com/pot-code/course-player/internal/interfaces/rest"
	"github.com/pot-code/course-player/internal/playback"
	"github.com/pot-code/course-player/internal/resume"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	checkCatalogCredential(option.Catalog.Token, logger)

	kv, err := openKeyValueDB(option, logger)
	if err != nil {
		logger.Fatal("Failed to open resume storage", zap.String("resume.backend", option.Resume.Backend), zap.Error(err))
	}
	defer kv.Close()

	CatalogClient := course.NewCatalogClient(&course.CatalogConfig{
		BaseURL: option.Catalog.BaseURL,
		Token:   option.Catalog.Token,
		Timeout: option.Catalog.Timeout,
	}, logger)
	CourseUseCase := course.NewCourseUseCase(CatalogClient, option.Catalog.PageSize, logger)
	ResumeStore := resume.NewKVStore(kv, logger)
	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	SessionManager := playback.NewManager(CourseUseCase, ResumeStore, UUIDGenerator, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if option.SessionTimeout > 0 {
		go SessionManager.RunReaper(ctx, reapInterval(option.SessionTimeout), option.SessionTimeout)
	}

	app := rest.NewServer(option, kv, CourseUseCase, ResumeStore, SessionManager, logger)
	go func() {
		logger.Info("Server started", zap.String("server.address", fmt.Sprintf("%s:%d", option.Host, option.Port)))
		if err := rest.Serve(app, option); err != nil {
			logger.Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server gracefully", zap.Error(err))
	}
	SessionManager.Shutdown(shutdownCtx)
	logger.Info("Server stopped")
}

func reapInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval < time.Second {
		return time.Second
	}
	if interval > time.Minute {
		return time.Minute
	}
	return interval
}

// checkCatalogCredential warns about an expired or soon to expire catalog credential
func checkCatalogCredential(token string, logger *zap.Logger) {
	claims, err := auth.InspectCredential(token)
	if err != nil {
		logger.Debug("Catalog credential is opaque, skip expiry check")
		return
	}
	remaining, expires := claims.TimeRemaining(time.Now())
	switch {
	case !expires:
	case remaining == 0:
		logger.Warn("Catalog credential has expired, catalog requests will fail")
	case remaining < 7*24*time.Hour:
		logger.Warn("Catalog credential expires soon", zap.Duration("remaining", remaining))
	default:
		logger.Debug("Catalog credential", zap.Duration("remaining", remaining), zap.String("platform", claims.Platform))
	}
}

func openKeyValueDB(option *infra.AppConfig, logger *zap.Logger) (driver.KeyValueDB, error) {
	switch option.Resume.Backend {
	case infra.BackendRedis:
		rdb := driver.NewRedisClient(&driver.RedisConfig{
			Host:     option.KVStore.Host,
			Port:     option.KVStore.Port,
			Password: option.KVStore.Password,
			DB:       option.KVStore.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx); err != nil {
			// resume degrades to absent until redis comes back
			logger.Warn("Redis is unreachable", zap.Error(err))
		}
		return rdb, nil
	case infra.BackendMySQL, infra.BackendPostgres:
		conn, err := driver.GetDBConnection(&driver.DBConfig{
			Driver:   option.Resume.Backend,
			Host:     option.Database.Host,
			MaxConn:  option.Database.MaxConn,
			Password: option.Database.Password,
			Port:     option.Database.Port,
			Protocol: option.Database.Protocol,
			Query:    option.Database.Query,
			Schema:   option.Database.Schema,
			User:     option.Database.User,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("Create SQL connection instance", zap.String("db.driver", option.Resume.Backend),
			zap.String("db.schema", option.Database.Schema),
			zap.String("db.host", option.Database.Host),
		)
		kv, err := driver.NewSQLKeyValue(conn)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := kv.EnsureSchema(ctx); err != nil {
			kv.Close()
			return nil, fmt.Errorf("failed to create kv table: %w", err)
		}
		return kv, nil
	default:
		return driver.NewMemoryKV(), nil
	}
}
