package indexer

import (
	"time"

	"github.com/NethermindEth/juno/core/felt"

	"betIndexer/internal/codec"
	"betIndexer/internal/decoder"
	"betIndexer/internal/model"
)

func buildBetRecord(ev model.RawEvent, contract *felt.Felt, bet *model.BetEvent, p decoder.Profile) model.BetRecord {
	rec := model.BetRecord{
		BlockNumber:     ev.BlockNumber,
		TransactionHash: codec.FeltHex(ev.TransactionHash),
		FromAddress:     emitter(ev, contract),
		ContractAddress: codec.FeltHex(contract),
		Profile:         p.Name,
		Direction:       bet.Direction,
		Amount:          codec.ToFixedPoint(bet.Amount, p.AmountDecimals),
		HasClaimed:      bet.HasClaimed,
		ClaimableAmount: codec.ToFixedPoint(bet.ClaimableAmount, p.AmountDecimals),
		NoProbability:   codec.ToFixedPoint(bet.Odds.NoProbability, p.OddsDecimals),
		YesProbability:  codec.ToFixedPoint(bet.Odds.YesProbability, p.OddsDecimals),
	}
	if bet.UserAddress != nil {
		user := codec.FeltHex(bet.UserAddress)
		rec.UserAddress = &user
	}
	return rec
}

func buildDecodeError(ev model.RawEvent, contract *felt.Felt, profile string, cause error, recordedAt time.Time) model.DecodeError {
	data := make([]string, 0, len(ev.Data))
	for _, f := range ev.Data {
		if f == nil {
			data = append(data, "")
			continue
		}
		data = append(data, f.String())
	}
	return model.DecodeError{
		BlockNumber:     ev.BlockNumber,
		TransactionHash: codec.FeltHex(ev.TransactionHash),
		FromAddress:     emitter(ev, contract),
		ContractAddress: codec.FeltHex(contract),
		Profile:         profile,
		Data:            data,
		Error:           cause.Error(),
		RecordedAt:      recordedAt.UTC().Format(time.RFC3339Nano),
	}
}

// emitter falls back to the queried contract when the node omits from_address.
func emitter(ev model.RawEvent, contract *felt.Felt) string {
	if ev.FromAddress != nil {
		return codec.FeltHex(ev.FromAddress)
	}
	return codec.FeltHex(contract)
}
