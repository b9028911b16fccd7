package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/kruthika/companion/internal/config"
)

// dumpconfig prints the effective configuration with secrets masked.
func main() {
	configFile := flag.String("config", "", "path to companion.yaml")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Generation.APIKey = mask(cfg.Generation.APIKey)
	cfg.Admin.Session.JWTSecret = mask(cfg.Admin.Session.JWTSecret)
	cfg.Admin.Local.PasswordHash = mask(cfg.Admin.Local.PasswordHash)
	cfg.Database.URL = mask(cfg.Database.URL)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		log.Fatalf("encode config: %v", err)
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
