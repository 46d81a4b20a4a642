package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/qcom/phoneauth/internal/clock"
	"github.com/qcom/phoneauth/internal/config"
	"github.com/qcom/phoneauth/internal/handlers"
	"github.com/qcom/phoneauth/internal/middleware"
	"github.com/qcom/phoneauth/internal/notify"
	"github.com/qcom/phoneauth/internal/repository"
	"github.com/qcom/phoneauth/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()
	clk := clock.New()

	var dynamoClient *dynamodb.Client
	if cfg.Stores.OTP == config.StoreDynamoDB || cfg.Stores.User == config.StoreDynamoDB {
		dynamoClient, err = initDynamoDB(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize DynamoDB")
		}
	}

	otpStore, closeStore, err := initOTPStore(ctx, cfg, dynamoClient, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP store")
	}
	defer closeStore()

	var userStore repository.UserStore
	if cfg.Stores.User == config.StoreDynamoDB {
		userStore = repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	} else {
		userStore = repository.NewMemoryUserStore()
	}

	var notifier notify.Notifier
	if cfg.Notifier == config.NotifierTwilio {
		notifier = notify.NewTwilioNotifier(cfg.Twilio, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	jwtService, err := service.NewJWTService(&cfg.JWT, clk, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}
	otpService := service.NewOTPService(otpStore, notifier, clk, service.CryptoDigits{}, &cfg.OTP, logger)
	authService := service.NewAuthService(otpService, jwtService, userStore, clk, logger)

	authHandlers := handlers.NewAuthHandlers(authService, cfg, logger)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, !cfg.IsProduction(), logger)
	router := handlers.NewRouter(authHandlers, authMiddleware, cfg.Server.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":       cfg.Server.Port,
			"env":        cfg.Env,
			"otp_store":  cfg.Stores.OTP,
			"user_store": cfg.Stores.User,
			"notifier":   cfg.Notifier,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}

func initOTPStore(ctx context.Context, cfg *config.Config, dynamoClient *dynamodb.Client, logger *logrus.Logger) (repository.OTPStore, func(), error) {
	switch cfg.Stores.OTP {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Endpoint, err)
		}
		logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis client initialized")
		return repository.NewRedisOTPStore(client, logger), func() { client.Close() }, nil
	case config.StoreDynamoDB:
		return repository.NewDynamoOTPStore(dynamoClient, cfg.DynamoDB.TableName, logger), func() {}, nil
	default:
		return repository.NewMemoryOTPStore(), func() {}, nil
	}
}
