package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"insights-agent/handler"
	"insights-agent/internal/envcfg"
	"insights-agent/internal/integrations/rediscache"
	"insights-agent/internal/integrations/s3blob"
	"insights-agent/internal/repository"
	"insights-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	tableName := envcfg.MustString("DYNAMODB_TABLE")
	resultsBucket := envcfg.MustString("RESULTS_BUCKET")
	redisAddr := envcfg.MustString("REDIS_ADDR")
	maxConversations := envcfg.Int("MAX_CONVERSATIONS", 50)
	cacheTTL := envcfg.Duration("CACHE_TTL", time.Hour)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), tableName, maxConversations)
	if err != nil {
		slog.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}
	blobs, err := s3blob.New(awss3.NewFromConfig(cfg), resultsBucket)
	if err != nil {
		slog.Error("failed to create blob store", "err", err)
		os.Exit(1)
	}
	cache, err := rediscache.NewFromAddr(redisAddr)
	if err != nil {
		slog.Error("failed to create result cache", "err", err)
		os.Exit(1)
	}

	// ---- Service ----
	format, err := usecase.NewFormatService(store, blobs, cache, cacheTTL)
	if err != nil {
		slog.Error("failed to create format service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	formatter, err := handler.NewFormatter(format)
	if err != nil {
		slog.Error("failed to create formatter handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(formatter.Handle)
}
