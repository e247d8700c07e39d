package main

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"github.com/yakrover/agent-registry/cmd/flags"
	"github.com/yakrover/agent-registry/contentstore"
	"github.com/yakrover/agent-registry/interfaces"
	"github.com/yakrover/agent-registry/ledger"
	"github.com/yakrover/agent-registry/sequencer"
	"github.com/yakrover/agent-registry/workflow"
)

var flagDocument = &cli.StringFlag{
	Name:  "document",
	Usage: "path to the capability document JSON file",
}
var flagAttribute = &cli.StringSliceFlag{
	Name:  "attribute",
	Usage: "attribute to commit as key=value (repeatable); an empty value clears the key",
}
var flagEntityID = &cli.StringFlag{
	Name:  "entity-id",
	Usage: "entity id in <chain>:<sequence> form",
}
var flagRegistrationFile = &cli.StringFlag{
	Name:  "registration-file",
	Usage: "path to persist the registration record; an existing record is resumed instead of starting over",
}

func main() {
	app := &cli.App{
		Name:  "registrar",
		Usage: "Register and maintain entities in the agent registry",
		Flags: []cli.Flag{
			flags.RpcAddrFlag,
			flags.RegistryAddrFlag,
			flags.ChainIDFlag,
			flags.PrivateKeyFlag,
			flags.StoreURIFlag,
			flags.ConfirmTimeoutFlag,
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
			flags.LogServiceFlagFn("registrar"),
		},
		Commands: []*cli.Command{
			{
				Name:        "register",
				Usage:       "Register a new entity",
				Description: "Publishes the capability document, mints the entity, and commits its attributes.",
				Flags:       []cli.Flag{flagDocument, flagAttribute, flagRegistrationFile},
				Action:      runRegister,
			},
			{
				Name:        "resume",
				Usage:       "Resume a registration for an already-minted entity",
				Description: "Continues at the attribute step; the entity is never minted again.",
				Flags:       []cli.Flag{flagDocument, flagAttribute, flagEntityID},
				Action:      runResume,
			},
			{
				Name:        "update",
				Usage:       "Publish a new capability document for an entity",
				Description: "Publishes the document and repoints the entity, committing attribute changes in the same batch.",
				Flags:       []cli.Flag{flagDocument, flagAttribute, flagEntityID},
				Action:      runUpdate,
			},
			{
				Name:        "apply-attributes",
				Usage:       "Reconcile an entity's attributes toward the given values",
				Description: "Reads each attribute first and only writes the keys that differ.",
				Flags:       []cli.Flag{flagAttribute, flagEntityID},
				Action:      runApplyAttributes,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// env holds the wired clients one command invocation operates with.
type env struct {
	owner    interfaces.Account
	ledger   interfaces.Ledger
	workflow *workflow.Workflow
	log      *slog.Logger
}

func setup(cCtx *cli.Context) (*env, error) {
	logger := flags.SetupLogger(cCtx)

	privateKeyHex := strings.TrimPrefix(cCtx.String(flags.PrivateKeyFlag.Name), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("--%s is required", flags.PrivateKeyFlag.Name)
	}
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("could not parse private key: %w", err)
	}

	ethClient, err := ethclient.Dial(cCtx.String(flags.RpcAddrFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not dial RPC: %w", err)
	}

	chainID := cCtx.Uint64(flags.ChainIDFlag.Name)
	registryAddr := ethcommon.HexToAddress(cCtx.String(flags.RegistryAddrFlag.Name))
	ledgerClient, err := ledger.NewOnchainLedgerClient(ethClient, registryAddr, chainID, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create ledger client: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("could not create transactor: %w", err)
	}
	ledgerClient.SetTransactOpts(auth)

	storeFactory := contentstore.NewStoreFactory(logger)
	store, err := storeFactory.CreateMultiStore(cCtx.StringSlice(flags.StoreURIFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not create content store: %w", err)
	}
	store = contentstore.NewRetryingStore(store, logger)

	seq := sequencer.New(ledgerClient, cCtx.Duration(flags.ConfirmTimeoutFlag.Name), logger)

	var owner interfaces.Account
	copy(owner[:], auth.From[:])

	return &env{
		owner:    owner,
		ledger:   ledgerClient,
		workflow: workflow.New(store, ledgerClient, seq, logger),
		log:      logger,
	}, nil
}

func runRegister(cCtx *cli.Context) error {
	e, err := setup(cCtx)
	if err != nil {
		return err
	}

	attrs, err := parseAttributes(cCtx.StringSlice(flagAttribute.Name))
	if err != nil {
		return err
	}

	regFile := cCtx.String(flagRegistrationFile.Name)

	var reg *workflow.Registration
	if regFile != "" {
		if reg, err = loadRegistration(regFile); err != nil {
			return err
		}
	}
	if reg == nil {
		doc, err := loadDocument(cCtx.String(flagDocument.Name))
		if err != nil {
			return err
		}
		reg = workflow.NewRegistration(e.owner, doc, attrs)
	} else {
		e.log.Info("Resuming registration from file",
			"registration", reg.ID, "state", string(reg.State))
	}

	runErr := e.workflow.Run(cCtx.Context, reg)
	if regFile != "" {
		if err := saveRegistration(regFile, reg); err != nil {
			e.log.Error("Failed to persist registration record", "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	return printJSON(reg)
}

func runResume(cCtx *cli.Context) error {
	e, err := setup(cCtx)
	if err != nil {
		return err
	}

	entityID, err := interfaces.ParseEntityID(cCtx.String(flagEntityID.Name))
	if err != nil {
		return err
	}

	doc, err := loadDocument(cCtx.String(flagDocument.Name))
	if err != nil {
		return err
	}

	attrs, err := parseAttributes(cCtx.StringSlice(flagAttribute.Name))
	if err != nil {
		return err
	}

	reg := workflow.ResumeRegistration(e.owner, entityID, doc, attrs)
	if err := e.workflow.Run(cCtx.Context, reg); err != nil {
		return err
	}

	return printJSON(reg)
}

func runUpdate(cCtx *cli.Context) error {
	e, err := setup(cCtx)
	if err != nil {
		return err
	}

	entityID, err := interfaces.ParseEntityID(cCtx.String(flagEntityID.Name))
	if err != nil {
		return err
	}

	doc, err := loadDocument(cCtx.String(flagDocument.Name))
	if err != nil {
		return err
	}

	attrs, err := parseAttributes(cCtx.StringSlice(flagAttribute.Name))
	if err != nil {
		return err
	}

	pointer, err := e.workflow.Update(cCtx.Context, e.owner, entityID, doc, attrs)
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"entity_id": entityID.String(),
		"pointer":   pointer.String(),
	})
}

func runApplyAttributes(cCtx *cli.Context) error {
	e, err := setup(cCtx)
	if err != nil {
		return err
	}

	entityID, err := interfaces.ParseEntityID(cCtx.String(flagEntityID.Name))
	if err != nil {
		return err
	}

	attrs, err := parseAttributes(cCtx.StringSlice(flagAttribute.Name))
	if err != nil {
		return err
	}
	if len(attrs) == 0 {
		return fmt.Errorf("--%s is required at least once", flagAttribute.Name)
	}

	return e.workflow.ApplyAttributes(cCtx.Context, e.owner, entityID, attrs)
}

func parseAttributes(pairs []string) (map[string]string, error) {
	attrs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected key=value", pair)
		}
		attrs[key] = value
	}
	return attrs, nil
}

func loadDocument(path string) (*interfaces.CapabilityDocument, error) {
	if path == "" {
		return nil, fmt.Errorf("--%s is required", flagDocument.Name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read capability document: %w", err)
	}
	return interfaces.DecodeCapabilityDocument(data)
}

func loadRegistration(path string) (*workflow.Registration, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read registration file: %w", err)
	}

	var reg workflow.Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("could not parse registration file: %w", err)
	}
	return &reg, nil
}

func saveRegistration(path string, reg *workflow.Registration) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printJSON(v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
