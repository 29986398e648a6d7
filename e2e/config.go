package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RelayAddr is the deployed relay base URL (http://host:port); the
	// suite is skipped when unset.
	RelayAddr string `envconfig:"RELAY_ADDR"`
	// Two pre-issued credentials for distinct identities.
	AliceToken string `envconfig:"E2E_ALICE_TOKEN"`
	BobToken   string `envconfig:"E2E_BOB_TOKEN"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
