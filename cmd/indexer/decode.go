package main

import (
	"encoding/json"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"betIndexer/internal/codec"
	"betIndexer/internal/config"
	"betIndexer/internal/decoder"
)

type decodedBet struct {
	Profile         string  `json:"profile"`
	Direction       bool    `json:"bet"`
	Amount          string  `json:"amount"`
	HasClaimed      bool    `json:"has_claimed"`
	ClaimableAmount string  `json:"claimable_amount"`
	NoProbability   string  `json:"no_probability"`
	YesProbability  string  `json:"yes_probability"`
	UserAddress     *string `json:"user_address,omitempty"`
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <felt>...",
		Short: "Decode a raw BetPlace payload and print it as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDecode,
	}
	cmd.Flags().String("profile", decoder.ProfileV2.Name, "payload decoding profile (v1, v2, v3)")
	cmd.Flags().Int32("amount-decimals", -1, "amount scale override, -1 keeps the profile default")
	cmd.Flags().Int32("odds-decimals", -1, "odds scale override, -1 keeps the profile default")
	return cmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dec, err := decoder.New(decoder.Config{
		Profile:        cfg.Profile,
		AmountDecimals: cfg.AmountDecimals,
		OddsDecimals:   cfg.OddsDecimals,
	})
	if err != nil {
		return err
	}

	data := make([]*felt.Felt, 0, len(args))
	for _, arg := range args {
		f, err := codec.ParseFelt(arg)
		if err != nil {
			return err
		}
		data = append(data, f)
	}

	bet, err := dec.Decode(data)
	if err != nil {
		logger.Warn("decode failed", zap.Int("fields", len(data)), zap.Error(err))
		return err
	}

	p := dec.Profile()
	out := decodedBet{
		Profile:         p.Name,
		Direction:       bet.Direction,
		Amount:          codec.FormatFixed(codec.ToFixedPoint(bet.Amount, p.AmountDecimals), p.AmountDecimals),
		HasClaimed:      bet.HasClaimed,
		ClaimableAmount: codec.FormatFixed(codec.ToFixedPoint(bet.ClaimableAmount, p.AmountDecimals), p.AmountDecimals),
		NoProbability:   codec.FormatFixed(codec.ToFixedPoint(bet.Odds.NoProbability, p.OddsDecimals), p.OddsDecimals),
		YesProbability:  codec.FormatFixed(codec.ToFixedPoint(bet.Odds.YesProbability, p.OddsDecimals), p.OddsDecimals),
	}
	if bet.UserAddress != nil {
		user := codec.FeltHex(bet.UserAddress)
		out.UserAddress = &user
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
