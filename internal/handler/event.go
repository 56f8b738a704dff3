package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/notely/notely/internal/audit"
)

// EventHandler serves the audit trail.
type EventHandler struct {
	log       audit.Log
	jwtSecret string
}

func NewEventHandler(l audit.Log, jwtSecret string) *EventHandler {
	return &EventHandler{log: l, jwtSecret: jwtSecret}
}

// ListEvents handles GET /events, newest first.
func (h *EventHandler) ListEvents(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return failure(err, "list events"), nil
	}
	list, err := h.log.List(ctx, userID)
	if err != nil {
		return failure(err, "list events"), nil
	}
	return jsonResponse(http.StatusOK, list), nil
}
