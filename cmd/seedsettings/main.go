package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/auth"
	"github.com/kruthika/companion/internal/config"
	"github.com/kruthika/companion/internal/database"
	"github.com/kruthika/companion/internal/db"
	"github.com/kruthika/companion/internal/settings"
)

// seedsettings writes the default persona, media assets and ad settings into
// app_configurations, or prints an admin password hash with -hash-password.
func main() {
	configFile := flag.String("config", "", "path to companion.yaml")
	overwrite := flag.Bool("overwrite", false, "replace records that already exist")
	hashPassword := flag.String("hash-password", "", "print the argon2id hash of this password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.Database.Enabled() {
		log.Fatalf("database.url is required")
	}
	ctx := context.Background()

	if err := database.RunMigrations(ctx, cfg.Database); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	store := settings.NewPostgresStore(db.New(pool))
	seeds := []struct {
		key   string
		value any
	}{
		{cfg.Conversation.ProfileKey, settings.DefaultProfile()},
		{cfg.Conversation.MediaAssetsKey, settings.DefaultMediaAssets()},
		{cfg.Ads.SettingsKey, ads.DefaultSettings()},
	}
	for _, seed := range seeds {
		if !*overwrite {
			if _, err := store.Get(ctx, seed.key); err == nil {
				log.Printf("skip %s: already present", seed.key)
				continue
			}
		}
		if _, err := settings.Save(ctx, store, seed.key, seed.value); err != nil {
			log.Fatalf("seed %s: %v", seed.key, err)
		}
		log.Printf("seeded %s", seed.key)
	}
}
