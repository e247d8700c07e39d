package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"github.com/yakrover/agent-registry/cmd/flags"
	"github.com/yakrover/agent-registry/contentstore"
	"github.com/yakrover/agent-registry/discovery"
	"github.com/yakrover/agent-registry/index"
	"github.com/yakrover/agent-registry/interfaces"
	"github.com/yakrover/agent-registry/ledger"
)

var flagFilter = &cli.StringSliceFlag{
	Name:  "filter",
	Usage: "attribute filter as key=value (repeatable); all pairs must match",
}
var flagEntityID = &cli.StringFlag{
	Name:  "entity-id",
	Usage: "entity id in <chain>:<sequence> form",
}

func main() {
	app := &cli.App{
		Name:  "discover",
		Usage: "Find entities in the agent registry by attribute",
		Flags: []cli.Flag{
			flags.RpcAddrFlag,
			flags.RegistryAddrFlag,
			flags.ChainIDFlag,
			flags.StoreURIFlag,
			flags.IndexURLFlag,
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
			flags.LogServiceFlagFn("discover"),
		},
		Commands: []*cli.Command{
			{
				Name:        "find",
				Usage:       "Find entities matching an attribute filter",
				Description: "Results reflect current ledger state; the index only accelerates the query.",
				Flags:       []cli.Flag{flagFilter},
				Action:      runFind,
			},
			{
				Name:   "get",
				Usage:  "Resolve one entity by id",
				Flags:  []cli.Flag{flagEntityID},
				Action: runGet,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(cCtx *cli.Context) (*discovery.Resolver, error) {
	logger := flags.SetupLogger(cCtx)

	ethClient, err := ethclient.Dial(cCtx.String(flags.RpcAddrFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not dial RPC: %w", err)
	}

	registryAddr := ethcommon.HexToAddress(cCtx.String(flags.RegistryAddrFlag.Name))
	ledgerClient, err := ledger.NewOnchainLedgerClient(ethClient, registryAddr, cCtx.Uint64(flags.ChainIDFlag.Name), logger)
	if err != nil {
		return nil, fmt.Errorf("could not create ledger client: %w", err)
	}

	storeFactory := contentstore.NewStoreFactory(logger)
	store, err := storeFactory.CreateMultiStore(cCtx.StringSlice(flags.StoreURIFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not create content store: %w", err)
	}
	store = contentstore.NewRetryingStore(store, logger)

	var indexReader interfaces.IndexReader = &index.StaticIndexReader{}
	if indexURL := cCtx.String(flags.IndexURLFlag.Name); indexURL != "" {
		indexReader = index.NewHTTPIndexReader(indexURL, 0, logger)
	}

	return discovery.NewResolver(indexReader, ledgerClient, store, logger), nil
}

func runFind(cCtx *cli.Context) error {
	resolver, err := setup(cCtx)
	if err != nil {
		return err
	}

	filter := make(map[string]string)
	for _, pair := range cCtx.StringSlice(flagFilter.Name) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		filter[key] = value
	}

	results, err := resolver.Find(cCtx.Context, filter)
	if err != nil {
		return fmt.Errorf("find failed: %w", err)
	}

	return printJSON(results)
}

func runGet(cCtx *cli.Context) error {
	resolver, err := setup(cCtx)
	if err != nil {
		return err
	}

	entityID, err := interfaces.ParseEntityID(cCtx.String(flagEntityID.Name))
	if err != nil {
		return err
	}

	resolved, err := resolver.ResolveEntity(cCtx.Context, entityID)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	return printJSON(resolved)
}

func printJSON(v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
