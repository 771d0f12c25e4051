package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	roomcli "github.com/douglasnaphas/room-app-1/room-cli"
	roomddb "github.com/douglasnaphas/room-app-1/room-ddb"
	roomrest "github.com/douglasnaphas/room-app-1/room-rest"
	roomws "github.com/douglasnaphas/room-app-1/room-ws"
	"github.com/douglasnaphas/room-app-1/room-ws/connectiondao"
)

var service = roomcli.NewService("room-admin")

func main() {
	app := roomcli.App(
		service,
		action,
		append(
			append(roomcli.CommonFlags, roomcli.PortFlag(8080)),
			roomddb.DDBFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

// adminStore is what the admin API needs from the connections table: the
// registry contract plus the room count query.
type adminStore interface {
	roomws.ConnectionStore
	Count(ctx context.Context, roomCode string) (int64, error)
}

type server struct {
	store       adminStore
	broadcaster *roomws.Broadcaster
}

func action(_ *cli.Context) error {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := roomddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	var dao *connectiondao.DAO
	if roomddb.DDBOpts.TableName != "" {
		dao = connectiondao.New(api, roomddb.DDBOpts.TableName)
	} else {
		dao = connectiondao.Build(api, roomcli.CommonOpts.Env)
	}

	s := &server{
		store: dao,
		broadcaster: &roomws.Broadcaster{
			Connections: dao,
			Sender:      &roomws.GatewaySender{},
			Logger:      roomcli.Logger(service),
		},
	}

	routes := chi.NewRouter()
	roomrest.Middlewares(service, routes)
	s.register(routes)

	return roomrest.Webserver(service, routes)
}

func (s *server) register(routes chi.Router) {
	routes.Get("/rooms/{roomCode}/connections", s.listConnections)
	routes.Get("/rooms/{roomCode}/count", s.countConnections)
	routes.Post("/rooms/{roomCode}/events", s.broadcastEvent)
	routes.Delete("/connections/{connectionID}", s.evictConnection)
}

func (s *server) listConnections(w http.ResponseWriter, req *http.Request) {
	roomCode := chi.URLParam(req, "roomCode")

	conns, err := s.store.ListByRoom(req.Context(), roomCode)
	if err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("room", roomCode).Msg("failed to list connections")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, map[string]interface{}{"room": roomCode, "connections": conns})
}

func (s *server) countConnections(w http.ResponseWriter, req *http.Request) {
	roomCode := chi.URLParam(req, "roomCode")

	count, err := s.store.Count(req.Context(), roomCode)
	if err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("room", roomCode).Msg("failed to count connections")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, map[string]interface{}{"room": roomCode, "count": count})
}

// broadcastEvent injects a server-originated event into a room, delivered
// with the same fan-out semantics as a member message.
func (s *server) broadcastEvent(w http.ResponseWriter, req *http.Request) {
	roomCode := chi.URLParam(req, "roomCode")

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}

	event := roomws.NewServerEvent(roomCode, string(body))
	data, err := event.Marshal()
	if err != nil {
		http.Error(w, "unable to build event", http.StatusBadRequest)
		return
	}

	delivery, err := s.broadcaster.Broadcast(req.Context(), roomCode, data)
	if err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("room", roomCode).Msg("failed to broadcast")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, delivery)
}

func (s *server) evictConnection(w http.ResponseWriter, req *http.Request) {
	connectionID := chi.URLParam(req, "connectionID")

	if err := s.store.Delete(req.Context(), connectionID); err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("connection_id", connectionID).Msg("failed to evict connection")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}
