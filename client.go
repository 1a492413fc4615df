package walletsdk

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tessera-cash/wallet-sdk/capsule"
	"github.com/tessera-cash/wallet-sdk/gateway"
	restgateway "github.com/tessera-cash/wallet-sdk/gateway/rest"
	"github.com/tessera-cash/wallet-sdk/internal/utils"
	"github.com/tessera-cash/wallet-sdk/locker"
	"github.com/tessera-cash/wallet-sdk/signer"
	"github.com/tessera-cash/wallet-sdk/synchronizer"
	"github.com/tessera-cash/wallet-sdk/types"
	"github.com/tessera-cash/wallet-sdk/wallet"
	singlekeywallet "github.com/tessera-cash/wallet-sdk/wallet/singlekey"
	walletstore "github.com/tessera-cash/wallet-sdk/wallet/singlekey/store"
)

const (
	RestClient = "rest"
)

var (
	supportedWallets = utils.SupportedType[struct{}]{
		wallet.SingleKeyWallet: {},
	}
	supportedClients = utils.SupportedType[func(string) (gateway.TransportClient, error)]{
		RestClient: restgateway.NewClient,
	}
)

type walletClient struct {
	*types.Config
	store     types.Store
	wallet    wallet.WalletService
	transport gateway.TransportClient
	signer    *signer.Signer
	locks     *locker.Manager
	sync      *synchronizer.Service

	muDrafts sync.Mutex
	drafts   map[string][]string
}

// NewWalletClient returns an uninitialized client bound to the given store.
// Init must be called before any other operation.
func NewWalletClient(sdkStore types.Store, opts ...ClientOption) (WalletClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData != nil {
		return nil, ErrAlreadyInitialized
	}

	client := &walletClient{
		store:  sdkStore,
		drafts: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// LoadWalletClient restores an initialized client from its persisted
// configuration and starts the account synchronizer.
func LoadWalletClient(sdkStore types.Store, opts ...ClientOption) (WalletClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData == nil {
		return nil, ErrNotInitialized
	}

	if cfgData.PollInterval <= 0 {
		cfgData.PollInterval = 5 * time.Second
	}

	client := &walletClient{
		Config: cfgData,
		store:  sdkStore,
		drafts: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.transport == nil {
		client.transport, err = getClient(cfgData.ClientType, cfgData.ServerUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to setup transport client: %s", err)
		}
	}
	if client.wallet == nil {
		client.wallet, err = getWallet(sdkStore.ConfigStore(), cfgData)
		if err != nil {
			return nil, fmt.Errorf("failed to setup wallet: %s", err)
		}
	}

	if err := client.startServices(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *walletClient) GetVersion() string {
	return Version
}

func (a *walletClient) GetConfigData(_ context.Context) (*types.Config, error) {
	if a.Config == nil {
		return nil, ErrNotInitialized
	}
	return a.Config, nil
}

func (a *walletClient) Init(ctx context.Context, args InitArgs) error {
	if a.Config != nil {
		return ErrAlreadyInitialized
	}
	if err := args.validate(); err != nil {
		return err
	}

	cfg := args.toConfig(a.store.ConfigStore().GetType())

	var err error
	if a.transport == nil {
		a.transport, err = getClient(cfg.ClientType, cfg.ServerUrl)
		if err != nil {
			return fmt.Errorf("failed to setup transport client: %s", err)
		}
	}
	if a.wallet == nil {
		a.wallet, err = getWallet(a.store.ConfigStore(), &cfg)
		if err != nil {
			return fmt.Errorf("failed to setup wallet: %s", err)
		}
	}

	if _, err := a.wallet.Create(ctx, args.Password); err != nil {
		return fmt.Errorf("failed to create wallet: %s", err)
	}

	if cfg.GroupId != "" {
		info, err := a.transport.GetGroupInfo(ctx, cfg.GroupId)
		if err != nil {
			return fmt.Errorf("failed to resolve settlement group: %s", err)
		}
		if !info.IsAffiliated {
			log.Warnf(
				"group %s does not recognize this account as affiliated", cfg.GroupId,
			)
		}
	}

	if err := a.store.ConfigStore().AddData(ctx, cfg); err != nil {
		return err
	}
	a.Config = &cfg

	return a.startServices(ctx)
}

func (a *walletClient) IsLocked(_ context.Context) bool {
	if a.wallet == nil {
		return true
	}
	return a.wallet.IsLocked()
}

func (a *walletClient) Unlock(ctx context.Context, password string) error {
	if err := a.safeCheck(); err != nil {
		return err
	}
	_, err := a.wallet.Unlock(ctx, password)
	return err
}

func (a *walletClient) Lock(ctx context.Context) error {
	if err := a.safeCheck(); err != nil {
		return err
	}
	return a.wallet.Lock(ctx)
}

func (a *walletClient) Receive(ctx context.Context) (string, error) {
	if err := a.safeCheck(); err != nil {
		return "", err
	}
	addresses, err := a.wallet.GetAddresses(ctx)
	if err != nil {
		return "", err
	}
	if len(addresses) == 0 {
		return "", fmt.Errorf("wallet has no addresses")
	}
	return addresses[0], nil
}

func (a *walletClient) BuildAndSign(
	ctx context.Context, request types.PaymentRequest, opts ...Option,
) (*types.SignedPayload, error) {
	if err := a.safeCheck(); err != nil {
		return nil, err
	}
	if a.wallet.IsLocked() {
		return nil, fmt.Errorf("wallet is locked")
	}
	if len(request.Targets) == 0 {
		return nil, fmt.Errorf("missing payment targets")
	}

	options := &PaymentOptions{}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	preferCertificates := a.GroupId != ""
	if options.PreferCertificates != nil {
		preferCertificates = *options.PreferCertificates
	}
	senders := request.Senders
	if len(options.Senders) > 0 {
		senders = options.Senders
	}

	// Targets are verified before any hold is taken, so a forged capsule
	// never leaves lock side effects.
	for _, target := range request.Targets {
		if target.Amount == 0 {
			return nil, fmt.Errorf("amount must be greater than 0")
		}
		if err := a.verifyCapsule(ctx, target.To); err != nil {
			return nil, err
		}
	}

	inputsByCurrency, changeAddress, err := a.spendableInputs(ctx, senders)
	if err != nil {
		return nil, err
	}

	draftId := uuid.NewString()
	timestamp := time.Now().Unix()

	heldIds := make([]string, 0)
	releaseAll := func() {
		for _, id := range heldIds {
			a.locks.Release(id, draftId)
		}
	}

	targetsByCurrency := utils.GroupBy(
		request.Targets, func(t types.PaymentTarget) string { return t.Currency },
	)

	txs := make([]types.Transaction, 0, len(targetsByCurrency))
	for currency, targets := range targetsByCurrency {
		var amount uint64
		for _, target := range targets {
			amount += target.Amount
		}

		selected, change, err := a.selectAndLock(
			draftId, inputsByCurrency[currency], amount, preferCertificates,
		)
		if err != nil {
			releaseAll()
			return nil, err
		}
		for _, input := range selected {
			heldIds = append(heldIds, input.LockId)
		}

		tx := buildTransaction(targets, selected, change, changeAddress, a.Fees, timestamp)
		if err := a.signer.SignTransaction(ctx, &tx); err != nil {
			releaseAll()
			return nil, err
		}
		txs = append(txs, tx)
	}

	payload := &types.SignedPayload{DraftId: draftId}
	if a.isAffiliated(ctx) && len(txs) == 1 {
		payload.Direct = &txs[0]
	} else {
		wrapper := &types.AggregateWrapper{Txs: txs, Timestamp: timestamp}
		if err := a.signer.SignAggregate(ctx, wrapper); err != nil {
			releaseAll()
			return nil, err
		}
		payload.Aggregate = wrapper
	}

	a.muDrafts.Lock()
	a.drafts[draftId] = heldIds
	a.muDrafts.Unlock()

	return payload, nil
}

func (a *walletClient) Submit(
	ctx context.Context, payload *types.SignedPayload,
) (*types.SubmissionResult, error) {
	if err := a.safeCheck(); err != nil {
		return nil, err
	}
	if payload == nil || (payload.Direct == nil && payload.Aggregate == nil) {
		return nil, fmt.Errorf("missing signed payload")
	}

	lockIds := a.draftLockIds(payload)

	// Holds may have expired while the payload waited. Retake them before
	// transmitting; a hold lost to a newer draft means the selection is
	// stale and the payload must be rebuilt.
	for _, id := range lockIds {
		if a.locks.Reacquire(id, payload.DraftId) {
			continue
		}
		for _, held := range lockIds {
			a.locks.Release(held, payload.DraftId)
		}
		a.forgetDraft(payload.DraftId)
		return nil, fmt.Errorf(
			"%w: hold on %s lost before submission, rebuild the draft",
			ErrRecordRaceLost, id,
		)
	}

	var (
		result *types.SubmissionResult
		err    error
	)
	if payload.Direct != nil {
		endpoint := ""
		if a.GroupId != "" {
			info, infoErr := a.transport.GetGroupInfo(ctx, a.GroupId)
			if infoErr != nil {
				return nil, infoErr
			}
			endpoint = info.SettlementEndpoint
		}
		result, err = a.transport.SubmitTransaction(ctx, endpoint, payload.Direct)
	} else {
		result, err = a.transport.SubmitAggregate(ctx, payload.Aggregate)
	}
	if err != nil {
		// Transient failure: holds stay in place so the caller can retry
		// the same payload.
		return nil, err
	}

	if result.Accepted {
		for _, id := range lockIds {
			a.locks.PromoteToSubmitted(id)
		}
		a.forgetDraft(payload.DraftId)
		return result, nil
	}

	for _, id := range lockIds {
		a.locks.Release(id, payload.DraftId)
	}
	a.forgetDraft(payload.DraftId)
	return result, SubmissionRejectedError{Reason: result.Reason}
}

func (a *walletClient) CancelDraft(_ context.Context, draftId string) error {
	if err := a.safeCheck(); err != nil {
		return err
	}

	a.muDrafts.Lock()
	lockIds, ok := a.drafts[draftId]
	delete(a.drafts, draftId)
	a.muDrafts.Unlock()

	if !ok {
		return fmt.Errorf("unknown draft %s", draftId)
	}
	for _, id := range lockIds {
		a.locks.Release(id, draftId)
	}
	return nil
}

func (a *walletClient) GetAvailableBalance(
	ctx context.Context, address, currency string,
) (uint64, error) {
	if err := a.safeCheck(); err != nil {
		return 0, err
	}

	var senders []string
	if address != "" {
		senders = []string{address}
	}
	inputsByCurrency, _, err := a.spendableInputs(ctx, senders)
	if err != nil {
		return 0, err
	}

	var balance uint64
	for _, input := range inputsByCurrency[currency] {
		balance += input.Amount
	}
	return balance, nil
}

func (a *walletClient) ListRecords(
	ctx context.Context,
) (spendable, spent []types.Record, err error) {
	if err := a.safeCheck(); err != nil {
		return nil, nil, err
	}
	return a.store.RecordStore().GetAllRecords(ctx)
}

func (a *walletClient) ListCertificates(ctx context.Context) ([]types.Certificate, error) {
	if err := a.safeCheck(); err != nil {
		return nil, err
	}
	return a.store.CertificateStore().GetAllCertificates(ctx)
}

func (a *walletClient) GetRecordEventChannel(_ context.Context) <-chan types.RecordEvent {
	return a.store.RecordStore().GetEventChannel()
}

func (a *walletClient) GetCertificateEventChannel(
	_ context.Context,
) <-chan types.CertificateEvent {
	return a.store.CertificateStore().GetEventChannel()
}

func (a *walletClient) IsSynced(_ context.Context) <-chan types.SyncEvent {
	return a.sync.SyncEventChannel()
}

func (a *walletClient) Dump(ctx context.Context) (string, error) {
	if err := a.safeCheck(); err != nil {
		return "", err
	}
	return a.wallet.Dump(ctx)
}

func (a *walletClient) Reset(ctx context.Context) {
	a.store.Clean(ctx)
}

func (a *walletClient) Stop() {
	if a.sync != nil {
		a.sync.Stop()
	}
	if a.transport != nil {
		a.transport.Close()
	}
	a.store.Close()
}

func (a *walletClient) safeCheck() error {
	if a.Config == nil {
		return ErrNotInitialized
	}
	return nil
}

func (a *walletClient) startServices(ctx context.Context) error {
	lockOpts := make([]locker.Option, 0, 2)
	if a.DraftHoldDuration > 0 {
		lockOpts = append(lockOpts, locker.WithDraftHoldDuration(a.DraftHoldDuration))
	}
	if a.SubmittedHoldDuration > 0 {
		lockOpts = append(
			lockOpts, locker.WithSubmittedHoldDuration(a.SubmittedHoldDuration),
		)
	}
	a.locks = locker.NewManager(lockOpts...)
	a.signer = signer.New(a.wallet)

	address, err := a.Receive(ctx)
	if err != nil {
		return err
	}

	syncSvc, err := synchronizer.NewService(
		a.transport, a.store, a.locks, address, a.PollInterval, a.WithEventFeed,
	)
	if err != nil {
		return err
	}
	if err := syncSvc.Start(ctx); err != nil {
		return err
	}
	a.sync = syncSvc
	return nil
}

// verifyCapsule checks the capsule's group signature against the directory
// key of its issuing group.
func (a *walletClient) verifyCapsule(ctx context.Context, capsuleAddr string) error {
	groupId, _, err := capsule.Decode(capsuleAddr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAddressVerificationFailed, err)
	}

	info, err := a.transport.GetGroupInfo(ctx, groupId)
	if err != nil {
		return err
	}
	pubBytes, err := hex.DecodeString(info.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: malformed group key: %s", ErrAddressVerificationFailed, err)
	}
	groupPub, err := capsule.ParsePublicKey(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAddressVerificationFailed, err)
	}
	if !capsule.Verify(capsuleAddr, groupPub) {
		return fmt.Errorf("%w: %s", ErrAddressVerificationFailed, capsuleAddr)
	}
	return nil
}

// spendableInputs gathers unheld records and redeemable certificates,
// optionally restricted to the given sender addresses, grouped by currency.
func (a *walletClient) spendableInputs(
	ctx context.Context, senders []string,
) (map[string][]types.SpendableInput, string, error) {
	allowed := make(map[string]struct{}, len(senders))
	for _, sender := range senders {
		allowed[sender] = struct{}{}
	}
	permitted := func(address, lockId string) bool {
		if a.locks.IsHeld(lockId) != locker.HoldNone {
			return false
		}
		if len(allowed) == 0 {
			return true
		}
		_, ok := allowed[address]
		return ok
	}

	records, err := a.store.RecordStore().GetSpendableRecords(ctx)
	if err != nil {
		return nil, "", err
	}
	certificates, err := a.store.CertificateStore().GetAllCertificates(ctx)
	if err != nil {
		return nil, "", err
	}

	inputs := make([]types.SpendableInput, 0, len(records)+len(certificates))
	for _, record := range records {
		if permitted(record.Address, record.Outpoint.String()) {
			inputs = append(inputs, record.ToInput())
		}
	}
	for _, certificate := range certificates {
		if certificate.IsRedeemable() && permitted(certificate.Address, certificate.Id) {
			inputs = append(inputs, certificate.ToInput())
		}
	}

	changeAddress := ""
	if len(senders) > 0 {
		changeAddress = senders[0]
	} else {
		changeAddress, err = a.Receive(ctx)
		if err != nil {
			return nil, "", err
		}
	}

	return utils.GroupBy(inputs, func(i types.SpendableInput) string {
		return i.Currency
	}), changeAddress, nil
}

// selectAndLock runs coin selection over unheld candidates and acquires a
// draft hold on every pick. Acquisition is all-or-nothing: a single conflict
// releases the holds taken in that attempt and selection is retried once
// against the refreshed lock state before giving up with ErrRecordRaceLost.
func (a *walletClient) selectAndLock(
	draftId string, candidates []types.SpendableInput, amount uint64,
	preferCertificates bool,
) ([]types.SpendableInput, uint64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		unheld := make([]types.SpendableInput, 0, len(candidates))
		for _, candidate := range candidates {
			if a.locks.IsHeld(candidate.LockId) == locker.HoldNone {
				unheld = append(unheld, candidate)
			}
		}

		selected, change, err := utils.CoinSelect(
			unheld, amount, a.Fees, preferCertificates,
		)
		if err != nil {
			return nil, 0, err
		}

		acquired := make([]string, 0, len(selected))
		conflict := false
		for _, input := range selected {
			if !a.locks.AcquireDraft(input.LockId, draftId) {
				conflict = true
				break
			}
			acquired = append(acquired, input.LockId)
		}
		if !conflict {
			return selected, change, nil
		}

		for _, id := range acquired {
			a.locks.Release(id, draftId)
		}
		log.Debugf("draft %s lost a record race, re-selecting", draftId)
	}
	return nil, 0, ErrRecordRaceLost
}

func (a *walletClient) isAffiliated(ctx context.Context) bool {
	if a.GroupId == "" {
		return false
	}
	info, err := a.transport.GetGroupInfo(ctx, a.GroupId)
	if err != nil {
		log.WithError(err).Warn("failed to resolve group affiliation")
		return false
	}
	return info.IsAffiliated
}

// draftLockIds resolves the lock ids held by the payload's draft. Payloads
// built by another process fall back to their input outpoints, which misses
// certificate lock ids; locally built drafts are always tracked.
func (a *walletClient) draftLockIds(payload *types.SignedPayload) []string {
	a.muDrafts.Lock()
	defer a.muDrafts.Unlock()
	if ids, ok := a.drafts[payload.DraftId]; ok {
		return ids
	}
	return payload.LockIds()
}

func (a *walletClient) forgetDraft(draftId string) {
	a.muDrafts.Lock()
	defer a.muDrafts.Unlock()
	delete(a.drafts, draftId)
}

func buildTransaction(
	targets []types.PaymentTarget, selected []types.SpendableInput,
	change uint64, changeAddress string, fees types.FeeInfo, timestamp int64,
) types.Transaction {
	inputs := make([]types.TxInput, 0, len(selected))
	for _, input := range selected {
		inputs = append(inputs, types.TxInput{
			Txid:     input.Origin.Txid,
			VOut:     input.Origin.VOut,
			Position: input.Position,
			Amount:   input.Amount,
			Currency: input.Currency,
			Address:  input.Address,
		})
	}

	outputs := make([]types.TxOutput, 0, len(targets)+1)
	for _, target := range targets {
		outputs = append(outputs, types.TxOutput{
			Address:  target.To,
			Amount:   target.Amount,
			Currency: target.Currency,
		})
	}
	if change > 0 {
		outputs = append(outputs, types.TxOutput{
			Address:  changeAddress,
			Amount:   change,
			Currency: targets[0].Currency,
			IsChange: true,
		})
	}

	return types.Transaction{
		Inputs:    inputs,
		Outputs:   outputs,
		Fee:       fees.For(len(selected)),
		Timestamp: timestamp,
	}
}

func getClient(
	clientType, serverUrl string,
) (gateway.TransportClient, error) {
	factory, ok := supportedClients[clientType]
	if !ok {
		return nil, fmt.Errorf(
			"unsupported client type %s, supported: %s", clientType, supportedClients,
		)
	}
	return factory(serverUrl)
}

func getWallet(
	configStore types.ConfigStore, cfg *types.Config,
) (wallet.WalletService, error) {
	switch cfg.WalletType {
	case wallet.SingleKeyWallet:
		return getSingleKeyWallet(configStore)
	default:
		return nil, fmt.Errorf(
			"unsupported wallet type %s, supported: %s", cfg.WalletType, supportedWallets,
		)
	}
}

func getSingleKeyWallet(configStore types.ConfigStore) (wallet.WalletService, error) {
	walletStore, err := getWalletStore(configStore)
	if err != nil {
		return nil, err
	}
	return singlekeywallet.NewWallet(walletStore)
}

func getWalletStore(configStore types.ConfigStore) (walletstore.WalletStore, error) {
	if datadir := configStore.GetDatadir(); datadir != "" {
		return walletstore.NewFileWalletStore(datadir)
	}
	return walletstore.NewInMemoryWalletStore(), nil
}

func (args InitArgs) validate() error {
	if args.ServerUrl == "" {
		return fmt.Errorf("missing server url")
	}
	if args.Network == "" {
		return fmt.Errorf("missing network")
	}
	if args.Password == "" {
		return fmt.Errorf("missing password")
	}
	if !supportedWallets.Supports(args.WalletType) {
		return fmt.Errorf(
			"unsupported wallet type %s, supported: %s", args.WalletType, supportedWallets,
		)
	}
	if !supportedClients.Supports(args.ClientType) {
		return fmt.Errorf(
			"unsupported client type %s, supported: %s", args.ClientType, supportedClients,
		)
	}
	return nil
}

func (args InitArgs) toConfig(storeType string) types.Config {
	pollInterval := time.Duration(args.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return types.Config{
		ServerUrl:             args.ServerUrl,
		GroupId:               args.GroupId,
		Network:               args.Network,
		WalletType:            args.WalletType,
		ClientType:            args.ClientType,
		StoreType:             storeType,
		WithEventFeed:         args.WithEventFeed,
		PollInterval:          pollInterval,
		DraftHoldDuration:     time.Duration(args.DraftHoldDuration) * time.Second,
		SubmittedHoldDuration: time.Duration(args.SubmittedHoldDuration) * time.Second,
		Fees:                  args.Fees,
	}
}
