package main

import (
	"context"
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/remittance-middleware/pkg/config"
	"github.com/chainsafe/remittance-middleware/pkg/migrations/settlementdb"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	mghelper "github.com/chainsafe/remittance-middleware/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.api.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.LoadAPIServer(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for settlement database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, settlementdb.Migrations)
	if err := mghelper.RunMigrations(ctx, migrator, flag.Args()...); err != nil {
		mghelper.Exitf(err.Error())
	}
}
