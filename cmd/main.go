package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"gemchat/handler"
	"gemchat/internal/gateway"
	"gemchat/internal/integrations/gemini"
	"gemchat/internal/integrations/paramstore"
	"gemchat/internal/repository"
)

func main() {
	ctx := context.Background()
	log := slog.Default()

	// ---- Configuration (read only here) ----
	archiveTable := mustEnv("ARCHIVE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	archiveClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), archiveTable)
	if err != nil {
		slog.Error("failed to create archive client", "err", err)
		os.Exit(1)
	}
	geminiClient, err := gemini.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Gemini client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	svc, err := gateway.NewService(ssmClient, geminiClient, archiveClient, paramPrefix, log)
	if err != nil {
		slog.Error("failed to create gateway service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(svc, log)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
