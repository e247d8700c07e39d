package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"github.com/yakrover/agent-registry/cmd/flags"
	"github.com/yakrover/agent-registry/contentstore"
	"github.com/yakrover/agent-registry/discovery"
	"github.com/yakrover/agent-registry/httpserver"
	"github.com/yakrover/agent-registry/index"
	"github.com/yakrover/agent-registry/interfaces"
	"github.com/yakrover/agent-registry/ledger"
)

var serverFlags []cli.Flag = append([]cli.Flag{
	flags.RpcAddrFlag,
	flags.RegistryAddrFlag,
	flags.ChainIDFlag,
	flags.StoreURIFlag,
	flags.IndexURLFlag,
	flags.IndexCacheTTLFlag,
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	flags.LogServiceFlagFn("discovery-server"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "discovery-server",
		Usage: "Serve capability-based entity discovery over the registry",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
			logger.Info("Connecting to ledger RPC", "address", rpcAddress)
			ethClient, err := ethclient.Dial(rpcAddress)
			if err != nil {
				logger.Error("Failed to dial RPC", "err", err)
				return err
			}

			registryAddr := ethcommon.HexToAddress(cCtx.String(flags.RegistryAddrFlag.Name))
			ledgerClient, err := ledger.NewOnchainLedgerClient(ethClient, registryAddr, cCtx.Uint64(flags.ChainIDFlag.Name), logger)
			if err != nil {
				logger.Error("Failed to create ledger client", "err", err)
				return err
			}

			storeFactory := contentstore.NewStoreFactory(logger)
			store, err := storeFactory.CreateMultiStore(cCtx.StringSlice(flags.StoreURIFlag.Name))
			if err != nil {
				logger.Error("Failed to create content store", "err", err)
				return err
			}
			store = contentstore.NewRetryingStore(store, logger)

			var indexReader interfaces.IndexReader = &index.StaticIndexReader{}
			if indexURL := cCtx.String(flags.IndexURLFlag.Name); indexURL != "" {
				indexReader = index.NewHTTPIndexReader(indexURL, cCtx.Duration(flags.IndexCacheTTLFlag.Name), logger)
			} else {
				logger.Info("No index configured, all queries go to the ledger")
			}

			resolver := discovery.NewResolver(indexReader, ledgerClient, store, logger)
			handler := httpserver.NewHandler(resolver, logger)

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			server := httpserver.New(cfg, handler)

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
