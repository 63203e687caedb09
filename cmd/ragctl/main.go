package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ragctl",
		Usage: "Operate the document chat retrieval pipeline",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Chunk, embed and store a document synchronously",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Owner user id; empty for anonymous",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a question against a chat session's document",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Aliases:  []string{"s"},
						Usage:    "Chat session id",
						Required: true,
					},
				},
			},
			{
				Name:   "reset",
				Usage:  "Drop and recreate the vector table",
				Action: resetCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the reset",
					},
				},
			},
			{
				Name:   "models",
				Usage:  "Probe every configured generation candidate",
				Action: modelsCommand,
			},
			{
				Name:   "events",
				Usage:  "Tail pipeline events from NATS",
				Action: eventsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "subject",
						Usage: "Subject filter",
						Value: "events.>",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
