package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"

	"smart-todos/internal/api"
	"smart-todos/internal/auth"
	"smart-todos/internal/bot"
	"smart-todos/internal/config"
	"smart-todos/internal/repository"
	"smart-todos/internal/service"
	"smart-todos/internal/session"
)

const (
	shutdownTimeout = 30 * time.Second
	jobTimeout      = 30 * time.Second
	sweepInterval   = 10 * time.Second
	limiterWindow   = time.Minute
	subtaskTimeout  = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	jwtCfg := auth.DefaultJWTConfig(cfg.SecretKey)
	jwtCfg.AccessTokenDuration = cfg.AccessTokenTTL
	authSvc := service.NewAuthService(userRepo, taskRepo, auth.NewJWTManager(jwtCfg), auth.NewPasswordHasher())
	categorySvc := service.NewCategoryService(categoryRepo)
	taskSvc := service.NewTaskService(taskRepo, categorySvc)
	subtaskSvc := service.NewSubtaskService(cfg.OpenAIBaseURL, subtaskTimeout)
	reminderSvc := service.NewReminderService(taskRepo)

	if cfg.SeedDemo {
		seedCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if err := authSvc.EnsureDemo(seedCtx); err != nil {
			log.Printf("seed demo data: %v", err)
		}
		cancel()
	}

	scheduler := service.NewSchedulerService(time.Local, jobTimeout)

	var (
		limiter     api.Limiter
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		limiter = api.NewRedisLimiter(redisClient, cfg.LoginRateLimit, limiterWindow, "smart-todos:auth:")
		log.Printf("[info] auth rate limit: redis %s, %d per %s", cfg.RedisAddr, cfg.LoginRateLimit, limiterWindow)
	} else {
		memory := api.NewMemoryLimiter(cfg.LoginRateLimit, limiterWindow)
		limiter = memory
		if _, err := scheduler.ScheduleInterval("limiter-cleanup", limiterWindow, func(context.Context) error {
			if n := memory.Cleanup(); n > 0 {
				log.Printf("[info] dropped %d idle rate limit buckets", n)
			}
			return nil
		}); err != nil {
			log.Fatalf("schedule limiter cleanup: %v", err)
		}
		log.Printf("[info] auth rate limit: in memory, %d per %s", cfg.LoginRateLimit, limiterWindow)
	}

	server := api.NewServer(authSvc, taskSvc, categorySvc, subtaskSvc, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AuthLimiter:    limiter,
		AccessLog:      true,
	})

	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg.TelegramToken, authSvc, session.NewLocalBackend(authSvc, taskSvc, subtaskSvc), reminderSvc)
		if err != nil {
			log.Fatalf("bot: %v", err)
		}
		if _, err := scheduler.ScheduleInterval("digest", cfg.DigestInterval, telegramBot.SendOverdueDigests); err != nil {
			log.Fatalf("schedule digests: %v", err)
		}
		if _, err := scheduler.ScheduleInterval("session-sweep", sweepInterval, func(context.Context) error {
			telegramBot.SweepSessions(time.Now())
			return nil
		}); err != nil {
			log.Fatalf("schedule session sweep: %v", err)
		}
	} else {
		log.Println("[info] TELEGRAM_TOKEN is not set, the bot is disabled")
	}

	scheduler.Start()
	log.Printf("[info] scheduler started with %d jobs", scheduler.Entries())

	go func() {
		if err := server.Listen(cfg.HTTPAddr); err != nil {
			log.Fatalf("http: %v", err)
		}
	}()

	botCtx, stopBot := context.WithCancel(context.Background())
	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(botCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("bot stopped with error: %v", err)
			}
		}()
	}

	log.Println("Smart Todos started.")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
			"scheduler": func(ctx context.Context) error {
				return scheduler.Stop(ctx)
			},
			"bot": func(ctx context.Context) error {
				stopBot()
				return nil
			},
			"database": func(ctx context.Context) error {
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						log.Printf("close redis: %v", err)
					}
				}
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("Shutdown complete with code %d.", exitCode)
	os.Exit(exitCode)
}
