package test

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SANTA_TEST_STORAGE selects the snapshot backend the bot runs on
	Storage string `envconfig:"SANTA_TEST_STORAGE" default:"badger"`
	// SANTA_TEST_COLOURS enables colorized step headers
	Colours bool `envconfig:"SANTA_TEST_COLOURS" default:"true"`
	// SANTA_TEST_TRANSCRIPT logs every message the bot sends
	Transcript bool `envconfig:"SANTA_TEST_TRANSCRIPT" default:"false"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
