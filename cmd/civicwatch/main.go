// Command civicwatch fetches Kenyan news feeds, has each article analyzed
// by the AI service, and serves the results.
//
// Usage:
//
//	civicwatch serve               HTTP API (/analyze, /ask, /recommend)
//	civicwatch cli                 Interactive shell
//	civicwatch analyze             One analysis cycle, report on stdout
//	civicwatch analyze --publish   Same, then post the report to Telegram
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const usage = `civicwatch - civic news analysis for Kenya

Usage:
  civicwatch <command> [flags]

Commands:
  serve       Run the HTTP API
  cli         Interactive shell: analyze news, then ask questions
  analyze     Run one analysis cycle and print the report as JSON

Environment:
  GEMINI_API_KEY            Gemini API key (required; GOOGLE_API_KEY also accepted)
  GEMINI_MODEL              Model name (default: gemini-2.0-flash)
  CIVICWATCH_ADDR           Listen address for serve (default: :5000)
  CIVICWATCH_CACHE_BACKEND  file, sqlite or postgres (default: file)
  CIVICWATCH_DATA_DIR       Cache directory (default: ./cache)
  CIVICWATCH_POSTGRES_DSN   Connection string for the postgres backend
  CIVICWATCH_LOG_LEVEL      debug, info, warn or error
  TELEGRAM_BOT_TOKEN        Bot token for analyze --publish
  TELEGRAM_CHAT_ID          Chat to publish to

A .env file in the working directory is loaded first.
Run 'civicwatch <command> -h' for command-specific flags.
`

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "cli":
		err = runCLI(args)
	case "analyze":
		err = runAnalyze(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "civicwatch: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "civicwatch %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
