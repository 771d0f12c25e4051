// Package roomws implements the room application's WebSocket service: a
// durable connection registry and a room-scoped message router behind the
// three API Gateway routes ($connect, $disconnect, $default).
package roomws

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	roomcli "github.com/douglasnaphas/room-app-1/room-cli"
	"github.com/douglasnaphas/room-app-1/room-ws/connectiondao"
	"github.com/douglasnaphas/room-app-1/room-ws/publish"
)

// Handler handles WebSocket API Gateway events for the room application.
type Handler struct {
	Connections ConnectionStore
	Broadcaster *Broadcaster
	Events      *publish.Publisher // optional firehose mirror, nil to disable
	Metrics     *roomcli.Metrics   // optional CloudWatch delivery metrics, nil to disable
	Logger      zerolog.Logger
	ConnTTL     time.Duration // TTL backstop for connection records (default 2 hours)
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()

	switch req.RequestContext.RouteKey {
	case "$connect":
		return h.handleConnect(ctx, logger, req)
	case "$disconnect":
		return h.handleDisconnect(ctx, logger, req)
	case "$default":
		return h.handleMessage(ctx, logger, req)
	default:
		logger.Warn().Str("route", req.RequestContext.RouteKey).Msg("unknown route")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}
}

// handleConnect registers the new connection in the store. A rejected
// handshake means nothing was written; an accepted handshake means the store
// confirmed the write. There is no state in between.
func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connID := req.RequestContext.ConnectionID
	endpoint := fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)

	// The original frontend sends capitalized query params.
	roomCode := queryParam(req.QueryStringParameters, "roomCode", "RoomCode")
	displayName := queryParam(req.QueryStringParameters, "displayName", "name", "Name")

	if roomCode == "" {
		logger.Warn().Msg("missing room code, rejecting handshake")
		return events.APIGatewayProxyResponse{StatusCode: 400, Body: "roomCode is required"}, nil
	}

	ttl := h.ConnTTL
	if ttl == 0 {
		ttl = 2 * time.Hour
	}

	conn := connectiondao.Connection{
		ConnectionID: connID,
		RoomCode:     roomCode,
		DisplayName:  displayName,
		Endpoint:     endpoint,
		ConnectedAt:  time.Now().Unix(),
		TTL:          time.Now().Add(ttl).Unix(),
	}

	if err := h.Connections.Put(ctx, conn); err != nil {
		logger.Error().Err(err).Msg("failed to store connection")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	logger.Info().Str("room", roomCode).Msg("connection established")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

// handleDisconnect is best effort: the transport is already gone, so a store
// failure is logged and swallowed. Delete is idempotent under duplicate
// close notifications.
func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connID := req.RequestContext.ConnectionID

	if err := h.Connections.Delete(ctx, connID); err != nil {
		logger.Error().Err(err).Msg("failed to delete connection")
	}

	logger.Info().Msg("connection closed")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

// handleMessage resolves the sender's room and fans the event out to every
// member, the sender included. Clients do not locally echo their own
// messages; they rely on receiving them back.
func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connID := req.RequestContext.ConnectionID
	start := time.Now()

	conn, err := h.Connections.Get(ctx, connID)
	if err != nil {
		if errors.Is(err, connectiondao.ErrNotFound) {
			logger.Warn().Msg("no record for sender, dropping event")
			return events.APIGatewayProxyResponse{StatusCode: 410}, nil
		}
		logger.Error().Err(err).Msg("failed to resolve sender")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	event := NewEvent(*conn, req.Body)
	data, err := event.Marshal()
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal event")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	if h.Events != nil {
		if err := h.Events.Send(ctx, conn.RoomCode, event); err != nil {
			logger.Warn().Err(err).Msg("failed to mirror event to stream")
		}
	}

	delivery, err := h.Broadcaster.Broadcast(ctx, conn.RoomCode, data)
	if err != nil {
		logger.Error().Err(err).Str("room", conn.RoomCode).Msg("failed to broadcast")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	logger.Info().
		Str("room", conn.RoomCode).
		Int("targets", delivery.Targets).
		Int("delivered", delivery.Delivered).
		Int("evicted", delivery.Evicted).
		Int("dropped", delivery.Dropped).
		Msg("event broadcast")

	if h.Metrics != nil {
		op := map[roomcli.DimensionName]string{roomcli.OperationNameDimension: "broadcast"}
		h.Metrics.Event(ctx, roomcli.EventsReceivedMetric, op)
		h.Metrics.Gauge(ctx, roomcli.EventsDeliveredMetric, float64(delivery.Delivered), op)
		h.Metrics.Gauge(ctx, roomcli.ConnectionsEvictedMetric, float64(delivery.Evicted), op)
		h.Metrics.Gauge(ctx, roomcli.EventsDroppedMetric, float64(delivery.Dropped), op)
		h.Metrics.Timing(ctx, roomcli.BroadcastTimeMetric, start, op)
	}

	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

// Start runs the handler in lambda mode, or in console mode reads serialized
// gateway events from stdin, one JSON document per line.
func (h *Handler) Start() error {
	if !roomcli.CommonOpts.Console {
		lambda.Start(h.HandleEvent)
		return nil
	}
	return h.handleConsole()
}

func (h *Handler) handleConsole() error {
	ctx := h.Logger.WithContext(context.Background())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req events.APIGatewayWebsocketProxyRequest
		if err := json.Unmarshal(line, &req); err != nil {
			h.Logger.Warn().Err(err).Msg("skipping malformed event")
			continue
		}

		resp, err := h.HandleEvent(ctx, req)
		if err != nil {
			h.Logger.Error().Err(err).Str("route", req.RequestContext.RouteKey).Msg("handler failed")
			continue
		}
		h.Logger.Info().Int("status", resp.StatusCode).Str("route", req.RequestContext.RouteKey).Msg("event handled")
	}
	return scanner.Err()
}

func queryParam(params map[string]string, names ...string) string {
	for _, name := range names {
		if v := params[name]; v != "" {
			return v
		}
	}
	return ""
}
