package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lookout/internal"
	"github.com/starford/lookout/internal/service"
	"github.com/starford/lookout/internal/submit"
	pkgconfig "github.com/starford/lookout/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// withService runs fn against a freshly opened service and prints its
// result as JSON. Logs go to stderr so stdout stays machine-readable.
func withService(fn func(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
		if err != nil {
			return err
		}
		defer app.Close()

		out, err := fn(ctx, cmd, app.Service)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}

func lookup(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error) {
	return svc.Lookup(ctx, cmd.String("phone"))
}

func sightings(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error) {
	return svc.Sightings(ctx, cmd.String("phone"))
}

func board(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error) {
	lv, sv, err := svc.Cached(ctx, cmd.String("phone"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"lookup": lv, "sightings": sv}, nil
}

// markFound loads the caller's reports first when --phone is given so the
// cached copy is updated too.
func markFound(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error) {
	if phone := cmd.String("phone"); phone != "" {
		if _, err := svc.Lookup(ctx, phone); err != nil {
			return nil, err
		}
	}
	return svc.MarkFound(ctx, cmd.Args().First())
}

func markResolved(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error) {
	if phone := cmd.String("phone"); phone != "" {
		if _, err := svc.Sightings(ctx, phone); err != nil {
			return nil, err
		}
	}
	return svc.MarkResolved(ctx, cmd.Args().First())
}

func report(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error) {
	return svc.SubmitReport(ctx, service.ReportRequest{
		ReportForm: submit.ReportForm{
			Subject:      submit.Subject(cmd.String("type")),
			Name:         cmd.String("name"),
			Description:  cmd.String("description"),
			Phone:        cmd.String("phone"),
			Location:     locationFlags(cmd),
			MissingSince: cmd.String("missing-since"),
			Reward:       cmd.String("reward"),
			Photo:        cmd.String("photo"),
		},
		UseLatestPhoto:     cmd.Bool("latest-photo"),
		UseCurrentLocation: cmd.Bool("here"),
	})
}

func sight(ctx context.Context, cmd *cli.Command, svc *service.Service) (any, error) {
	return svc.SubmitSighting(ctx, service.SightingRequest{
		SightingForm: submit.SightingForm{
			Subject:     submit.Subject(cmd.String("type")),
			Description: cmd.String("description"),
			Phone:       cmd.String("phone"),
			Location:    locationFlags(cmd),
			Photo:       cmd.String("photo"),
		},
		UseLatestPhoto:     cmd.Bool("latest-photo"),
		UseCurrentLocation: cmd.Bool("here"),
	})
}

func locationFlags(cmd *cli.Command) *submit.Location {
	if !cmd.IsSet("lat") || !cmd.IsSet("lon") {
		return nil
	}
	return &submit.Location{Lat: cmd.Float("lat"), Lon: cmd.Float("lon")}
}

func phoneFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "phone",
		Aliases:  []string{"p"},
		Usage:    "Contact phone number",
		Required: required,
		Sources:  cli.EnvVars("LOOKOUT_PHONE"),
	}
}

func formFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "pet or person", Value: "pet"},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Description"},
		phoneFlag(false),
		&cli.FloatFlag{Name: "lat", Usage: "Latitude"},
		&cli.FloatFlag{Name: "lon", Usage: "Longitude"},
		&cli.BoolFlag{Name: "here", Usage: "Use the configured device location"},
		&cli.StringFlag{Name: "photo", Usage: "Photo path or file:// URI"},
		&cli.BoolFlag{Name: "latest-photo", Usage: "Attach the newest photo from the inbox"},
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "lookout",
		Usage:  "Look up missing person and pet reports by phone, file reports and sightings",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and event stream",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:   "lookup",
				Usage:  "Show own reports and match candidates for a phone",
				Flags:  []cli.Flag{phoneFlag(true)},
				Action: withService(lookup),
			},
			{
				Name:   "sightings",
				Usage:  "Show sightings submitted from a phone",
				Flags:  []cli.Flag{phoneFlag(true)},
				Action: withService(sightings),
			},
			{
				Name:   "board",
				Usage:  "Show the cached lists for a phone without calling the backend",
				Flags:  []cli.Flag{phoneFlag(true)},
				Action: withService(board),
			},
			{
				Name:      "mark-found",
				Usage:     "Mark an own report as found",
				ArgsUsage: "<report-id>",
				Flags:     []cli.Flag{phoneFlag(false)},
				Action:    withService(markFound),
			},
			{
				Name:      "mark-resolved",
				Usage:     "Mark a sighting as resolved",
				ArgsUsage: "<sighting-id>",
				Flags:     []cli.Flag{phoneFlag(false)},
				Action:    withService(markResolved),
			},
			{
				Name:  "report",
				Usage: "File a missing person or pet report",
				Flags: append(formFlags(),
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Name of the missing person or pet"},
					&cli.StringFlag{Name: "missing-since", Usage: "Date in YYYY-MM-DD format"},
					&cli.StringFlag{Name: "reward", Usage: "Optional reward"},
				),
				Action: withService(report),
			},
			{
				Name:   "sight",
				Usage:  "Report a sighting",
				Flags:  formFlags(),
				Action: withService(sight),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
