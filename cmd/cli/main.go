package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	walletsdk "github.com/tessera-cash/wallet-sdk"
	"github.com/tessera-cash/wallet-sdk/store"
	"github.com/tessera-cash/wallet-sdk/types"
	"github.com/tessera-cash/wallet-sdk/wallet"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	DatadirEnvVar = "TESSERA_WALLET_DATADIR"
)

var (
	Version      string
	walletClient walletsdk.WalletClient
)

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "Tessera CLI"
	app.Usage = "tessera wallet command line interface"
	app.Commands = append(
		app.Commands,
		&initCommand,
		&configCommand,
		&receiveCommand,
		&balanceCommand,
		&sendCommand,
		&recordsCommand,
		&certificatesCommand,
		&dumpCommand,
	)
	app.Flags = []cli.Flag{datadirFlag}
	app.Before = func(ctx *cli.Context) error {
		client, err := getWalletClient(ctx)
		if err != nil {
			return fmt.Errorf("error initializing wallet client: %v", err)
		}
		walletClient = client
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

var (
	datadirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Specify the data directory",
		Value:   defaultDatadir(),
		EnvVars: []string{DatadirEnvVar},
	}
	passwordFlag = &cli.StringFlag{
		Name:  "password",
		Usage: "password to unlock the wallet",
	}
	urlFlag = &cli.StringFlag{
		Name:     "server-url",
		Usage:    "the url of the server to connect to",
		Required: true,
	}
	groupIdFlag = &cli.StringFlag{
		Name:  "group-id",
		Usage: "settlement group the account is affiliated with",
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "network to use",
		Value: "mainnet",
	}
	toFlag = &cli.StringFlag{
		Name:  "to",
		Usage: "recipient capsule address",
	}
	amountFlag = &cli.Uint64Flag{
		Name:  "amount",
		Usage: "amount to send",
	}
	currencyFlag = &cli.StringFlag{
		Name:  "currency",
		Usage: "currency of the amount",
	}
	targetsFlag = &cli.StringFlag{
		Name:  "targets",
		Usage: "JSON encoded targets of the payment",
	}
	withEventFeedFlag = &cli.BoolFlag{
		Name:  "with-event-feed",
		Usage: "subscribe to the push event stream",
		Value: true,
	}
)

var (
	initCommand = cli.Command{
		Name:   "init",
		Usage:  "Initialize the wallet",
		Action: func(ctx *cli.Context) error { return initWallet(ctx) },
		Flags: []cli.Flag{
			urlFlag, groupIdFlag, networkFlag, passwordFlag, withEventFeedFlag,
		},
	}
	configCommand = cli.Command{
		Name:   "config",
		Usage:  "Print the wallet configuration",
		Action: func(ctx *cli.Context) error { return printConfig(ctx) },
	}
	receiveCommand = cli.Command{
		Name:   "receive",
		Usage:  "Print the account address",
		Action: func(ctx *cli.Context) error { return receive(ctx) },
	}
	balanceCommand = cli.Command{
		Name:   "balance",
		Usage:  "Print the available balance",
		Action: func(ctx *cli.Context) error { return balance(ctx) },
		Flags:  []cli.Flag{currencyFlag},
	}
	sendCommand = cli.Command{
		Name:   "send",
		Usage:  "Build, sign and submit a payment",
		Action: func(ctx *cli.Context) error { return send(ctx) },
		Flags:  []cli.Flag{toFlag, amountFlag, currencyFlag, targetsFlag, passwordFlag},
	}
	recordsCommand = cli.Command{
		Name:   "records",
		Usage:  "List the account records",
		Action: func(ctx *cli.Context) error { return listRecords(ctx) },
	}
	certificatesCommand = cli.Command{
		Name:   "certificates",
		Usage:  "List the account transfer certificates",
		Action: func(ctx *cli.Context) error { return listCertificates(ctx) },
	}
	dumpCommand = cli.Command{
		Name:   "dump",
		Usage:  "Print the wallet private key",
		Action: func(ctx *cli.Context) error { return dump(ctx) },
		Flags:  []cli.Flag{passwordFlag},
	}
)

func initWallet(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	return walletClient.Init(ctx.Context, walletsdk.InitArgs{
		ServerUrl:     ctx.String(urlFlag.Name),
		GroupId:       ctx.String(groupIdFlag.Name),
		Network:       ctx.String(networkFlag.Name),
		WalletType:    wallet.SingleKeyWallet,
		ClientType:    walletsdk.RestClient,
		Password:      string(password),
		WithEventFeed: ctx.Bool(withEventFeedFlag.Name),
	})
}

func printConfig(ctx *cli.Context) error {
	cfg, err := walletClient.GetConfigData(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(cfg)
}

func receive(ctx *cli.Context) error {
	address, err := walletClient.Receive(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"address": address})
}

func balance(ctx *cli.Context) error {
	amount, err := walletClient.GetAvailableBalance(
		ctx.Context, "", ctx.String(currencyFlag.Name),
	)
	if err != nil {
		return err
	}
	return printJSON(map[string]uint64{"available": amount})
}

func send(ctx *cli.Context) error {
	targetsJSON := ctx.String(targetsFlag.Name)
	to := ctx.String(toFlag.Name)
	amount := ctx.Uint64(amountFlag.Name)
	currency := ctx.String(currencyFlag.Name)
	if targetsJSON == "" && (to == "" || amount == 0) {
		return fmt.Errorf("missing destination, use --to and --amount or --targets")
	}

	var targets []types.PaymentTarget
	if targetsJSON != "" {
		parsed, err := parseTargets(targetsJSON)
		if err != nil {
			return err
		}
		targets = parsed
	} else {
		targets = []types.PaymentTarget{{To: to, Amount: amount, Currency: currency}}
	}

	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	if err := walletClient.Unlock(ctx.Context, string(password)); err != nil {
		return err
	}

	payload, err := walletClient.BuildAndSign(ctx.Context, types.PaymentRequest{
		Targets: targets,
	})
	if err != nil {
		return err
	}

	result, err := walletClient.Submit(ctx.Context, payload)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"draftId":  payload.DraftId,
		"accepted": result.Accepted,
	})
}

func listRecords(ctx *cli.Context) error {
	spendable, spent, err := walletClient.ListRecords(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"spendable": spendable, "spent": spent})
}

func listCertificates(ctx *cli.Context) error {
	certificates, err := walletClient.ListCertificates(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"certificates": certificates})
}

func dump(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	if err := walletClient.Unlock(ctx.Context, string(password)); err != nil {
		return err
	}
	key, err := walletClient.Dump(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"privateKey": key})
}

func getWalletClient(ctx *cli.Context) (walletsdk.WalletClient, error) {
	dataDir := ctx.String(datadirFlag.Name)
	sdkRepository, err := store.NewStore(store.Config{
		ConfigStoreType:  types.FileStore,
		AppDataStoreType: types.KVStore,
		BaseDir:          dataDir,
	})
	if err != nil {
		return nil, err
	}

	cfgData, err := sdkRepository.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}

	commandName := ctx.Args().First()
	if commandName != "init" && commandName != "" && cfgData == nil {
		return nil, fmt.Errorf("CLI not initialized, run 'init' cmd to initialize")
	}

	client, err := walletsdk.LoadWalletClient(sdkRepository)
	if err != nil {
		if errors.Is(err, walletsdk.ErrNotInitialized) {
			return walletsdk.NewWalletClient(sdkRepository)
		}
		return nil, err
	}
	return client, nil
}

func parseTargets(targetsJSON string) ([]types.PaymentTarget, error) {
	list := make([]map[string]interface{}, 0)
	if err := json.Unmarshal([]byte(targetsJSON), &list); err != nil {
		return nil, err
	}

	targets := make([]types.PaymentTarget, 0, len(list))
	for _, v := range list {
		target := types.PaymentTarget{}
		if to, ok := v["to"].(string); ok {
			target.To = to
		}
		if amount, ok := v["amount"].(float64); ok {
			target.Amount = uint64(amount)
		}
		if currency, ok := v["currency"].(string); ok {
			target.Currency = currency
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func readPassword(ctx *cli.Context) ([]byte, error) {
	password := []byte(ctx.String("password"))
	if len(password) == 0 {
		fmt.Print("unlock your wallet with password: ")
		var err error
		password, err = term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return nil, err
		}
	}
	return password, nil
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}

func defaultDatadir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tessera-cli"
	}
	return filepath.Join(home, ".tessera-cli")
}
