package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// DefaultDepositCurrencies is the built-in registry of currencies the
// address pool serves, in effect when no currencies file is configured.
var DefaultDepositCurrencies = []string{"BTC", "ETH", "USDT"}

type CurrencyConfig struct {
	Code    string `yaml:"code"`
	Network string `yaml:"network"`
}

type CurrenciesConfig struct {
	Currencies []CurrencyConfig `yaml:"currencies"`
}

// LoadCurrencyConfig reads the deposit-currency registry from a yaml file.
// An empty path selects the built-in registry.
func LoadCurrencyConfig(currenciesFile string) ([]string, error) {
	if currenciesFile == "" {
		return DefaultDepositCurrencies, nil
	}

	var currenciesPath string
	if filepath.IsAbs(currenciesFile) {
		currenciesPath = currenciesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		currenciesPath = filepath.Join(wd, currenciesFile)
	}

	data, err := os.ReadFile(currenciesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", currenciesFile, err)
	}

	var config CurrenciesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", currenciesFile, err)
	}

	if len(config.Currencies) == 0 {
		return nil, fmt.Errorf("%s lists no currencies", currenciesFile)
	}

	codes := make([]string, len(config.Currencies))
	for i, currency := range config.Currencies {
		if currency.Code == "" {
			return nil, fmt.Errorf("currency at index %d missing code", i)
		}
		codes[i] = currency.Code
	}

	return codes, nil
}
