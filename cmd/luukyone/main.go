// Command luukyone runs the Luu Kyone Telegram bot.
package main

import (
	"log"

	corecmd "github.com/KyawPh/luu-kyone-bot-sub000/core/cmd"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := app.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatal(err)
	}
}
