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
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"insights-agent/handler"
	"insights-agent/internal/envcfg"
	"insights-agent/internal/integrations/paramstore"
	"insights-agent/internal/integrations/rediscache"
	"insights-agent/internal/integrations/s3blob"
	"insights-agent/internal/integrations/sqsqueue"
	"insights-agent/internal/integrations/translator"
	"insights-agent/internal/repository"
	"insights-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	tableName := envcfg.MustString("DYNAMODB_TABLE")
	queueURL := envcfg.MustString("SQS_QUEUE_URL")
	resultsBucket := envcfg.MustString("RESULTS_BUCKET")
	redisAddr := envcfg.MustString("REDIS_ADDR")
	paramPrefix := envcfg.MustString("PARAM_PREFIX")
	maxConversations := envcfg.Int("MAX_CONVERSATIONS", 50)
	historyContext := envcfg.Int("HISTORY_CONTEXT_LIMIT", 30)
	historyPage := envcfg.Int("HISTORY_PAGE_LIMIT", 20)
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
	params, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	translate, err := translator.NewClient(params, paramPrefix)
	if err != nil {
		slog.Error("failed to create translator", "err", err)
		os.Exit(1)
	}
	queue, err := sqsqueue.New(awssqs.NewFromConfig(cfg), queueURL)
	if err != nil {
		slog.Error("failed to create dispatch queue", "err", err)
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

	// ---- Services ----
	submit, err := usecase.NewSubmitService(store, translate, queue, historyContext)
	if err != nil {
		slog.Error("failed to create submit service", "err", err)
		os.Exit(1)
	}
	results, err := usecase.NewResultService(store, blobs, cache, historyPage, cacheTTL)
	if err != nil {
		slog.Error("failed to create result service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	api, err := handler.NewAPI(submit, results)
	if err != nil {
		slog.Error("failed to create API handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(api.Handle)
}
