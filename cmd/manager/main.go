package main

import (
	"log"
	"os"
	"time"

	"github.com/hamba/cmd"
	"gopkg.in/urfave/cli.v2"
)

import _ "github.com/joho/godotenv/autoload"

const (
	flagHTTPAddr         = "http-addr"
	flagServiceAddr      = "service-addr"
	flagNodeID           = "node-id"
	flagEtcdEndpoints    = "etcd-endpoints"
	flagEtcdPrefix       = "etcd-prefix"
	flagAdminToken       = "admin-token"
	flagHeartbeatTimeout = "heartbeat-timeout"
	flagSSLEnabled       = "ssl"
	flagHealthLimit      = "health-limit"
	flagHealthTimeout    = "health-timeout"
)

var version = "¯\\_(ツ)_/¯"

var commands = []*cli.Command{
	{
		Name:  "server",
		Usage: "Run the manager server",
		Flags: cmd.Flags{
			&cli.StringFlag{
				Name:    flagHTTPAddr,
				Usage:   "The address to bind the admin API on.",
				Value:   ":8080",
				EnvVars: []string{"MANAGER_HTTP_ADDR"},
			},
			&cli.StringFlag{
				Name:    flagServiceAddr,
				Usage:   "The address this manager advertises to the cluster.",
				EnvVars: []string{"MANAGER_SERVICE_ADDR"},
			},
			&cli.StringFlag{
				Name:    flagNodeID,
				Usage:   "The unique id of this manager node.",
				EnvVars: []string{"MANAGER_NODE_ID"},
			},
			&cli.StringSliceFlag{
				Name:    flagEtcdEndpoints,
				Usage:   "The etcd endpoints to connect to.",
				Value:   cli.NewStringSlice("127.0.0.1:2379"),
				EnvVars: []string{"MANAGER_ETCD_ENDPOINTS"},
			},
			&cli.StringFlag{
				Name:    flagEtcdPrefix,
				Usage:   "The etcd key prefix.",
				Value:   "/manager",
				EnvVars: []string{"MANAGER_ETCD_PREFIX"},
			},
			&cli.StringFlag{
				Name:    flagAdminToken,
				Usage:   "The administrative bearer token.",
				EnvVars: []string{"MANAGER_ADMIN_TOKEN"},
			},
			&cli.DurationFlag{
				Name:    flagHeartbeatTimeout,
				Usage:   "The agent heartbeat timeout.",
				Value:   5 * time.Second,
				EnvVars: []string{"MANAGER_HEARTBEAT_TIMEOUT"},
			},
			&cli.BoolFlag{
				Name:    flagSSLEnabled,
				Usage:   "Whether the service address is served over TLS.",
				EnvVars: []string{"MANAGER_SSL"},
			},
			&cli.IntFlag{
				Name:    flagHealthLimit,
				Usage:   "The maximum number of concurrent agent health probes.",
				Value:   4,
				EnvVars: []string{"MANAGER_HEALTH_LIMIT"},
			},
			&cli.DurationFlag{
				Name:    flagHealthTimeout,
				Usage:   "The per-probe health check timeout.",
				Value:   10 * time.Second,
				EnvVars: []string{"MANAGER_HEALTH_TIMEOUT"},
			},
		}.Merge(cmd.CommonFlags),
		Action: runServer,
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "manager",
		Version:  version,
		Commands: commands,
	}
}

func main() {
	app := newApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
