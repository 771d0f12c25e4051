package roomws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// ErrGone indicates the target connection no longer exists at the gateway.
var ErrGone = errors.New("connection gone")

// Sender delivers a payload to a live connection through the transport
// gateway. The router never holds a socket handle; this is its only way to
// reach a client.
type Sender interface {
	Send(ctx context.Context, endpoint, connectionID string, data []byte) error
}

// GatewaySender posts payloads through the API Gateway Management API,
// caching one client per callback endpoint.
type GatewaySender struct {
	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func (s *GatewaySender) Send(ctx context.Context, endpoint, connectionID string, data []byte) error {
	client := s.client(endpoint)

	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	if err != nil {
		if isGoneException(err) {
			return fmt.Errorf("connection %v: %w", connectionID, ErrGone)
		}
		return fmt.Errorf("posting to connection %v: %w", connectionID, err)
	}
	return nil
}

func (s *GatewaySender) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	s.mu.RLock()
	if client, ok := s.clients[endpoint]; ok {
		s.mu.RUnlock()
		return client
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := s.clients[endpoint]; ok {
		return client
	}

	if s.clients == nil {
		s.clients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}

	sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
	client := apigatewaymanagementapi.New(sess)
	s.clients[endpoint] = client
	return client
}

// isGoneException checks if the error is a GoneException (HTTP 410),
// indicating the WebSocket connection no longer exists.
func isGoneException(err error) bool {
	return strings.Contains(err.Error(), "GoneException") ||
		strings.Contains(err.Error(), "410")
}
