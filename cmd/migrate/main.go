package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/gurkanbulca/collabdesk/internal/config"
	"github.com/gurkanbulca/collabdesk/internal/database"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, err := database.NewMongoClient(ctx, database.MongoConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer client.Disconnect(context.Background())

		log.Println("Creating MongoDB indexes...")
		if err := database.EnsureMongoIndexes(ctx, client.Database(cfg.Mongo.Database)); err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}

	case config.DriverPostgres:
		db, err := database.NewPostgresDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		log.Println("Running database migrations...")
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

	default:
		log.Fatalf("Unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	log.Println("Migrations completed successfully")
}
