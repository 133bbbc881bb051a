package config

import (
	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the offline decode command.
type DecodeConfig struct {
	Profile        string
	AmountDecimals int32
	OddsDecimals   int32
	LogLevel       string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return DecodeConfig{}, err
	}

	return DecodeConfig{
		Profile:        v.GetString("profile"),
		AmountDecimals: v.GetInt32("amount-decimals"),
		OddsDecimals:   v.GetInt32("odds-decimals"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
