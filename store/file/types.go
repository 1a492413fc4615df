package filestore

import (
	"strconv"
	"time"

	"github.com/tessera-cash/wallet-sdk/types"
)

type feeData struct {
	BaseFee     string `json:"base_fee"`
	PerInputFee string `json:"per_input_fee"`
}

type storeData struct {
	ServerUrl             string  `json:"server_url"`
	GroupId               string  `json:"group_id"`
	Network               string  `json:"network"`
	WalletType            string  `json:"wallet_type"`
	ClientType            string  `json:"client_type"`
	StoreType             string  `json:"store_type"`
	WithEventFeed         string  `json:"with_event_feed"`
	PollInterval          string  `json:"poll_interval"`
	DraftHoldDuration     string  `json:"draft_hold_duration"`
	SubmittedHoldDuration string  `json:"submitted_hold_duration"`
	Fees                  feeData `json:"fees"`
}

func (d storeData) isEmpty() bool {
	return d.ServerUrl == "" && d.Network == ""
}

func (d storeData) decode() types.Config {
	withEventFeed, _ := strconv.ParseBool(d.WithEventFeed)
	pollInterval, _ := strconv.Atoi(d.PollInterval)
	draftHold, _ := strconv.Atoi(d.DraftHoldDuration)
	submittedHold, _ := strconv.Atoi(d.SubmittedHoldDuration)
	baseFee, _ := strconv.ParseUint(d.Fees.BaseFee, 10, 64)
	perInputFee, _ := strconv.ParseUint(d.Fees.PerInputFee, 10, 64)

	return types.Config{
		ServerUrl:             d.ServerUrl,
		GroupId:               d.GroupId,
		Network:               d.Network,
		WalletType:            d.WalletType,
		ClientType:            d.ClientType,
		StoreType:             d.StoreType,
		WithEventFeed:         withEventFeed,
		PollInterval:          time.Duration(pollInterval) * time.Second,
		DraftHoldDuration:     time.Duration(draftHold) * time.Second,
		SubmittedHoldDuration: time.Duration(submittedHold) * time.Second,
		Fees: types.FeeInfo{
			BaseFee:     baseFee,
			PerInputFee: perInputFee,
		},
	}
}

func encodeData(data types.Config) storeData {
	return storeData{
		ServerUrl:             data.ServerUrl,
		GroupId:               data.GroupId,
		Network:               data.Network,
		WalletType:            data.WalletType,
		ClientType:            data.ClientType,
		StoreType:             data.StoreType,
		WithEventFeed:         strconv.FormatBool(data.WithEventFeed),
		PollInterval:          strconv.Itoa(int(data.PollInterval.Seconds())),
		DraftHoldDuration:     strconv.Itoa(int(data.DraftHoldDuration.Seconds())),
		SubmittedHoldDuration: strconv.Itoa(int(data.SubmittedHoldDuration.Seconds())),
		Fees: feeData{
			BaseFee:     strconv.FormatUint(data.Fees.BaseFee, 10),
			PerInputFee: strconv.FormatUint(data.Fees.PerInputFee, 10),
		},
	}
}
