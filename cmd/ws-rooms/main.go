package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/urfave/cli/v2"

	roomcli "github.com/douglasnaphas/room-app-1/room-cli"
	roomddb "github.com/douglasnaphas/room-app-1/room-ddb"
	roomws "github.com/douglasnaphas/room-app-1/room-ws"
	"github.com/douglasnaphas/room-app-1/room-ws/connectiondao"
	"github.com/douglasnaphas/room-app-1/room-ws/publish"
)

var service = roomcli.NewService("ws-rooms")

func main() {
	app := roomcli.App(
		service,
		action,
		append(
			append(roomcli.CommonFlags, roomddb.DDBFlags...),
			roomws.WSFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := roomcli.Logger(service)

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

	var store roomws.ConnectionStore = dao
	if roomcli.CommonOpts.Dry {
		store = &roomws.DryStore{Store: dao, Logger: logger}
	}

	var events *publish.Publisher
	if roomws.WSOpts.EventStream != "" {
		events = publish.New(kinesis.New(sess), roomws.WSOpts.EventStream)
	}

	metrics := roomcli.NewMetrics(service, cloudwatch.New(sess))

	handler := &roomws.Handler{
		Connections: store,
		Broadcaster: &roomws.Broadcaster{
			Connections:  store,
			Sender:       &roomws.GatewaySender{},
			Logger:       logger,
			Concurrency:  roomws.WSOpts.Concurrency,
			MaxRetries:   roomws.WSOpts.MaxRetries,
			RetryBackoff: roomws.WSOpts.RetryBackoff,
		},
		Events:  events,
		Metrics: &metrics,
		Logger:  logger,
		ConnTTL: roomws.WSOpts.ConnTTL,
	}

	return handler.Start()
}
