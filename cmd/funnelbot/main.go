package main

import (
	"log"
	"os"

	corecmd "github.com/m3rciful/funnelbot/core/cmd"
	"github.com/m3rciful/funnelbot/internal/app"
	"github.com/m3rciful/funnelbot/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		Args:              os.Args[1:],
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		EnvFiles:          []string{".env"},
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.Bootstrap(cfg.(*config.Config))
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
