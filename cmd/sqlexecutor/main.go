package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsathena "github.com/aws/aws-sdk-go-v2/service/athena"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"insights-agent/handler"
	"insights-agent/internal/envcfg"
	"insights-agent/internal/integrations/athena"
	"insights-agent/internal/integrations/invoker"
	"insights-agent/internal/integrations/s3blob"
	"insights-agent/internal/repository"
	"insights-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	tableName := envcfg.MustString("DYNAMODB_TABLE")
	resultsBucket := envcfg.MustString("RESULTS_BUCKET")
	athenaDatabase := envcfg.MustString("ATHENA_DATABASE")
	athenaWorkgroup := os.Getenv("ATHENA_WORKGROUP")
	formatterFunction := envcfg.MustString("RESULT_FORMATTER_FUNCTION")
	maxConversations := envcfg.Int("MAX_CONVERSATIONS", 50)
	pollInterval := envcfg.Duration("POLL_INTERVAL", 500*time.Millisecond)
	maxPollAttempts := envcfg.Int("MAX_POLL_ATTEMPTS", 20)
	maxResultRows := envcfg.Int("MAX_RESULT_ROWS", 1000)

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
	engine, err := athena.New(
		awsathena.NewFromConfig(cfg),
		athenaDatabase,
		athenaWorkgroup,
		s3blob.Location(resultsBucket, "athena-results"),
	)
	if err != nil {
		slog.Error("failed to create execution engine", "err", err)
		os.Exit(1)
	}
	blobs, err := s3blob.New(awss3.NewFromConfig(cfg), resultsBucket)
	if err != nil {
		slog.Error("failed to create blob store", "err", err)
		os.Exit(1)
	}
	formatterInvoker, err := invoker.New(awslambda.NewFromConfig(cfg), formatterFunction)
	if err != nil {
		slog.Error("failed to create formatter invoker", "err", err)
		os.Exit(1)
	}

	// ---- Service ----
	execute, err := usecase.NewExecuteService(store, engine, blobs, formatterInvoker, usecase.ExecuteConfig{
		PollInterval:    pollInterval,
		MaxPollAttempts: maxPollAttempts,
		MaxResultRows:   int32(maxResultRows),
	})
	if err != nil {
		slog.Error("failed to create execute service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	executor, err := handler.NewExecutor(execute)
	if err != nil {
		slog.Error("failed to create executor handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(executor.Handle)
}
