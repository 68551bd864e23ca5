package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository/postgres"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
	"github.com/urfave/cli/v2"
)

func newProductFlag() *cli.Int64Flag {
	return &cli.Int64Flag{
		Name:     "product",
		Aliases:  []string{"p"},
		Usage:    "Product id",
		Required: true,
	}
}

func newHorizonFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "horizon",
		Usage: "Forecast horizon in days (0 uses FORECAST_DEFAULT_HORIZON)",
	}
}

func main() {
	app := &cli.App{
		Name:  "replenish",
		Usage: "Forecast demand, optimize stock policies and generate purchase orders",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply or roll back database migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Usage:   "Directory containing migration files",
						Value:   "scripts/migrations",
						EnvVars: []string{"DB_MIGRATIONS_PATH"},
					},
				},
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "Apply all pending migrations",
						Action: func(c *cli.Context) error {
							db, err := openDB()
							if err != nil {
								return err
							}
							defer db.Close()
							return postgres.Migrate(db, c.String("dir"))
						},
					},
					{
						Name:  "down",
						Usage: "Roll back migrations",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "steps", Usage: "Number of migrations to roll back", Value: 1},
						},
						Action: func(c *cli.Context) error {
							db, err := openDB()
							if err != nil {
								return err
							}
							defer db.Close()
							if err := postgres.MigrateDown(db, c.String("dir"), c.Int("steps")); err != nil {
								return err
							}
							if err := clearForecastCache(c.Context, openForecastCache(config.Load().Cache)); err != nil {
								logger.Log.Warn().Err(err).Msg("rolled back migrations but cache still holds old entries")
							}
							return nil
						},
					},
				},
			},
			{
				Name:  "cache",
				Usage: "Manage the forecast cache",
				Subcommands: []*cli.Command{
					{
						Name:  "clear",
						Usage: "Drop every cached forecast and optimization",
						Action: func(c *cli.Context) error {
							return clearForecastCache(c.Context, openForecastCache(config.Load().Cache))
						},
					},
				},
			},
			{
				Name:  "forecast",
				Usage: "Forecast demand for one product",
				Flags: []cli.Flag{
					newProductFlag(),
					newHorizonFlag(),
					&cli.StringFlag{
						Name:  "algorithm",
						Usage: "Algorithm to force (auto picks one from the series)",
						Value: string(domain.AlgorithmAuto),
					},
					&cli.BoolFlag{
						Name:  "seasonality",
						Usage: "Apply the product's active seasonality profile",
					},
				},
				Action: func(c *cli.Context) error {
					w, err := wire(c.Context)
					if err != nil {
						return err
					}
					defer w.Close()

					f, err := w.forecasts.RunForecast(c.Context, service.ForecastRequest{
						ProductID:   c.Int64("product"),
						Horizon:     c.Int("horizon"),
						Algorithm:   domain.Algorithm(c.String("algorithm")),
						Seasonality: c.Bool("seasonality"),
					})
					if err != nil {
						return err
					}
					return printJSON(f)
				},
			},
			{
				Name:  "optimize",
				Usage: "Compute EOQ, reorder point and safety stock for one product",
				Flags: []cli.Flag{
					newProductFlag(),
					&cli.Int64Flag{Name: "forecast-id", Usage: "Forecast to optimize from (defaults to the latest)"},
					&cli.Float64Flag{Name: "service-level", Usage: "Target service level in (0,1)"},
					&cli.IntFlag{Name: "lead-time", Usage: "Lead time override in days"},
				},
				Action: func(c *cli.Context) error {
					w, err := wire(c.Context)
					if err != nil {
						return err
					}
					defer w.Close()

					req := service.OptimizeRequest{
						ProductID:  c.Int64("product"),
						ForecastID: c.Int64("forecast-id"),
					}
					if c.IsSet("service-level") {
						sl := c.Float64("service-level")
						req.ServiceLevel = &sl
					}
					if c.IsSet("lead-time") {
						lt := c.Int("lead-time")
						req.Costs.LeadTimeDays = &lt
					}
					res, err := w.optimizations.Optimize(c.Context, req)
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name:  "batch",
				Usage: "Run forecast, optimization and purchase orders for a set of alerts",
				Flags: []cli.Flag{
					&cli.Int64SliceFlag{
						Name:     "alert",
						Aliases:  []string{"a"},
						Usage:    "Alert id (repeatable)",
						Required: true,
					},
					newHorizonFlag(),
					&cli.BoolFlag{Name: "no-progress", Usage: "Disable progress bars"},
				},
				Action: func(c *cli.Context) error {
					w, err := wire(c.Context)
					if err != nil {
						return err
					}
					defer w.Close()

					if !c.Bool("no-progress") {
						w.orchestrator.OnProgress(newProgressReporter(os.Stderr).Report)
					}
					res, err := w.orchestrator.RunBatchPipeline(c.Context, c.Int64Slice("alert"), c.Int("horizon"))
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name:  "scan",
				Usage: "Evaluate stock levels and stale forecasts once",
				Action: func(c *cli.Context) error {
					w, err := wire(c.Context)
					if err != nil {
						return err
					}
					defer w.Close()

					res, err := w.scheduler.RunOnce(c.Context)
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("replenish failed")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
