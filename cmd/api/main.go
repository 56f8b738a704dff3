// Command api is the Lambda entry point.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/notely/notely/internal/app"
	"github.com/notely/notely/internal/config"
	"github.com/notely/notely/internal/logging"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, false)

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}
	lambda.Start(application.HandleRequest)
}
