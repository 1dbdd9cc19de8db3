package main

import (
	"fmt"
	"log"
	"os"

	corecmd "ordergate/core/cmd"
	"ordergate/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			appCfg, ok := cfg.(*app.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", cfg)
			}
			return app.New(appCfg)
		},
	})
	if err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}
