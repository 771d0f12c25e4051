package roomws

import (
	"time"

	roomcli "github.com/douglasnaphas/room-app-1/room-cli"
	"github.com/urfave/cli/v2"
)

var WSOpts struct {
	ConnTTL      time.Duration
	Concurrency  int
	MaxRetries   int
	RetryBackoff time.Duration
	EventStream  string
}

var ConnTTLFlag = roomcli.DurationFlag("conn-ttl", "TTL backstop for connection records", &WSOpts.ConnTTL, 2*time.Hour)
var ConcurrencyFlag = roomcli.IntFlag("broadcast-concurrency", "Maximum concurrent sends during a fan-out", &WSOpts.Concurrency, 50)
var MaxRetriesFlag = roomcli.IntFlag("send-retries", "How many times to retry a transient send failure", &WSOpts.MaxRetries, 2)
var RetryBackoffFlag = roomcli.DurationFlag("send-retry-backoff", "Backoff between send retries", &WSOpts.RetryBackoff, 100*time.Millisecond)
var EventStreamFlag = roomcli.StringFlag("event-stream", "Kinesis stream to mirror room events to (disabled when empty)", &WSOpts.EventStream)

var WSFlags = []cli.Flag{
	ConnTTLFlag,
	ConcurrencyFlag,
	MaxRetriesFlag,
	RetryBackoffFlag,
	EventStreamFlag,
}
