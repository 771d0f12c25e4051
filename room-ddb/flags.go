package roomddb

import (
	roomcli "github.com/douglasnaphas/room-app-1/room-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	TableName  string
}

var DAXClusterFlag = roomcli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var TableNameFlag = roomcli.StringFlag("table-name", "Override for the connections table name", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	TableNameFlag,
}
