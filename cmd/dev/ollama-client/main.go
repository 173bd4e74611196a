// Command ollama-client checks a local Ollama backend and runs the local
// diagnosis strategy once against it, printing the coerced analysis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dbfs "github.com/garnizeh/fixbuddy/db"
	"github.com/garnizeh/fixbuddy/internal/agent"
	"github.com/garnizeh/fixbuddy/internal/config"
	"github.com/garnizeh/fixbuddy/internal/db"
	sqlite "github.com/garnizeh/fixbuddy/internal/repository/sqlite"
	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/ollama"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	image := flag.String("image", "", "Optional photo of the item")
	flag.Parse()
	_ = godotenv.Load()

	description := strings.Join(flag.Args(), " ")
	if description == "" {
		description = "My wooden chair wobbles when I sit on it"
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	od := ollama.DefaultConfig()
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = od.BaseURL
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = od.Model
	}
	if cfg.Ollama.Timeout <= 0 {
		cfg.Ollama.Timeout = 2 * time.Minute
	}

	ctx := context.Background()
	client, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if err := client.Health(ctx); err != nil {
		log.Fatalf("ollama at %s is not reachable: %v", cfg.Ollama.BaseURL, err)
	}
	modelsAvail, err := client.ListModels(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("ollama %s, %d models installed, using %s\n", cfg.Ollama.BaseURL, len(modelsAvail), client.Model())

	// schemas and templates come from the seeds, so an in-memory store is enough
	database, err := db.New(ctx, ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		log.Fatal(err)
	}
	repo := sqlite.New(database, nil)
	loader, err := agent.NewLoader(ctx, repo)
	if err != nil {
		log.Fatal(err)
	}

	in := agent.Input{
		Description: description,
		Profile:     models.Profile{Experience: models.ExperienceBeginner, Language: "en", RiskTolerance: "low"},
	}
	if *image != "" {
		b, err := os.ReadFile(*image)
		if err != nil {
			log.Fatal(err)
		}
		in.Image = b
		in.ImageMIME = http.DetectContentType(b)
	}

	local := agent.NewSingleCall(agent.StrategyLocal, agent.NewOllamaGenerator(client),
		agent.NewPrompts(repo, "v1"), agent.NewParser(loader, "v1"), cfg.Ollama.Timeout)

	start := time.Now()
	a, err := local.Run(ctx, in)
	if err != nil {
		log.Fatalf("local strategy failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
	}
	out, _ := json.MarshalIndent(agent.Coerce(a), "", "  ")
	fmt.Printf("%s\n(%s)\n", out, time.Since(start).Round(time.Millisecond))
}
