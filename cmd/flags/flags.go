package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"github.com/yakrover/agent-registry/common"
	"github.com/yakrover/agent-registry/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String("metrics-addr")
	enablePprof := cCtx.Bool("pprof")
	drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var RpcAddrFlag = &cli.StringFlag{
	Name:  "rpc-addr",
	Value: "http://127.0.0.1:8545",
	Usage: "address to connect to RPC",
}

var RegistryAddrFlag = &cli.StringFlag{
	Name:     "registry-addr",
	Required: true,
	Usage:    "Identity registry contract address. 40-char hex string, 0x prefix optional",
}

var ChainIDFlag = &cli.Uint64Flag{
	Name:  "chain-id",
	Value: 1,
	Usage: "chain id of the network the registry lives on",
}

var PrivateKeyFlag = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex-encoded ECDSA private key of the owner account",
	EnvVars: []string{"REGISTRY_PRIVATE_KEY"},
}

var StoreURIFlag = &cli.StringSliceFlag{
	Name:  "store-uri",
	Value: cli.NewStringSlice("ipfs://127.0.0.1:5001"),
	Usage: "content store backend URI (repeatable): ipfs://host:port, file:///dir, s3://bucket/prefix, vault://host:port/mount/path",
}

var IndexURLFlag = &cli.StringFlag{
	Name:  "index-url",
	Usage: "base URL of the secondary index; empty disables index acceleration",
}

var IndexCacheTTLFlag = &cli.DurationFlag{
	Name:  "index-cache-ttl",
	Value: 30 * time.Second,
	Usage: "TTL for cached index search results, 0 disables caching",
}

var ConfirmTimeoutFlag = &cli.DurationFlag{
	Name:  "confirm-timeout",
	Value: 2 * time.Minute,
	Usage: "how long to wait for a submitted ledger write to confirm",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
