package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/AngelCh415/marketing-datagen/internal/config"
	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/generator"
	"github.com/AngelCh415/marketing-datagen/internal/predict"
	"github.com/AngelCh415/marketing-datagen/internal/sink"
	"github.com/AngelCh415/marketing-datagen/internal/validate"
)

func generationFlags(users int) []cli.Flag {
	d := generator.DefaultParams()
	return []cli.Flag{
		&cli.IntFlag{Name: "days", Value: d.Days, Usage: "simulated days"},
		&cli.IntFlag{Name: "users", Value: users, Usage: "target number of installs"},
		&cli.IntFlag{Name: "campaigns", Value: d.Campaigns, Usage: "campaigns per channel"},
		&cli.Int64Flag{Name: "seed", Value: d.Seed, EnvVars: []string{"SEED"}},
		&cli.StringFlag{Name: "start", Value: d.StartDate.Format("2006-01-02"), Usage: "first simulated day (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "events", EnvVars: []string{"EVENTS_FILE"}, Usage: "golden event descriptors (YAML); built-in set when empty"},
		&cli.StringSliceFlag{Name: "channel-campaigns", Usage: "per-channel campaign counts, e.g. Meta=0,TikTok=3"},
		&cli.IntFlag{Name: "batch", Value: d.BatchSize, Usage: "users per write batch"},
	}
}

func paramsFrom(c *cli.Context) (generator.Params, error) {
	p := generator.DefaultParams()
	p.Days = c.Int("days")
	p.Users = c.Int("users")
	p.Campaigns = c.Int("campaigns")
	p.Seed = c.Int64("seed")
	p.BatchSize = c.Int("batch")

	start, err := time.Parse("2006-01-02", c.String("start"))
	if err != nil {
		return p, fmt.Errorf("%w: start: %v", generator.ErrInvalidParams, err)
	}
	p.StartDate = start

	overrides, err := generator.ParseChannelCampaigns(c.StringSlice("channel-campaigns"))
	if err != nil {
		return p, err
	}
	if len(overrides) > 0 {
		p.ChannelCampaigns = overrides
	}

	if path := c.String("events"); path != "" {
		set, err := events.LoadFile(path)
		if err != nil {
			return p, err
		}
		p.Events = &set
	}
	return p, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", " ")
	return enc.Encode(v)
}

func generateCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	flags := append(generationFlags(generator.DefaultUsers),
		&cli.StringFlag{Name: "driver", Value: cfg.DatabaseDriver, Usage: "sqlite, postgres or mysql"},
		&cli.StringFlag{Name: "dsn", Value: cfg.DatabaseURL, Usage: "database path or connection string"},
	)
	return &cli.Command{
		Name:  "generate",
		Usage: "generate the dataset into a database",
		Flags: flags,
		Action: func(c *cli.Context) error {
			p, err := paramsFrom(c)
			if err != nil {
				return err
			}
			g, err := generator.New(p, log)
			if err != nil {
				return err
			}
			s, err := sink.Open(c.Context, c.String("driver"), c.String("dsn"), log)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Migrate(c.Context); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			rep, err := g.Run(c.Context, s)
			if err != nil {
				return err
			}
			log.Info("dataset written", "driver", c.String("driver"), "digest", rep.Digest)
			return printJSON(rep)
		},
	}
}

func validateCommand(log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "generate in memory and check every dataset property",
		Flags: generationFlags(generator.DefaultUsers),
		Action: func(c *cli.Context) error {
			p, err := paramsFrom(c)
			if err != nil {
				return err
			}
			g, err := generator.New(p, log)
			if err != nil {
				return err
			}
			chk := validate.NewChecker(g.Events(), p.Days)
			if _, err := g.Run(c.Context, chk); err != nil {
				return err
			}
			res := chk.Result()
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.OK() {
				return cli.Exit(fmt.Sprintf("%d properties violated", len(res.Counts)), 1)
			}
			return nil
		},
	}
}

func trainCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	def := predict.DefaultTrainConfig()
	flags := append(generationFlags(20000),
		&cli.StringFlag{Name: "model", Value: cfg.ModelPath, Usage: "where to write the LTV model"},
		&cli.IntFlag{Name: "hidden", Value: def.Hidden},
		&cli.IntFlag{Name: "iterations", Value: def.Iterations},
		&cli.Float64Flag{Name: "learning-rate", Value: def.LearningRate},
		&cli.IntFlag{Name: "samples", Value: def.MaxSamples, Usage: "users sampled for training"},
	)
	return &cli.Command{
		Name:  "train",
		Usage: "fit the LTV network on a generated dataset",
		Flags: flags,
		Action: func(c *cli.Context) error {
			p, err := paramsFrom(c)
			if err != nil {
				return err
			}
			g, err := generator.New(p, log)
			if err != nil {
				return err
			}
			col := &generator.Collector{}
			if _, err := g.Run(c.Context, col); err != nil {
				return err
			}
			tc := predict.DefaultTrainConfig()
			tc.Hidden = c.Int("hidden")
			tc.Iterations = c.Int("iterations")
			tc.LearningRate = c.Float64("learning-rate")
			tc.MaxSamples = c.Int("samples")
			tc.Seed = p.Seed
			m, err := predict.Train(col.Users, tc)
			if err != nil {
				return err
			}
			if err := m.Save(c.String("model")); err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			log.Info("model trained", "path", c.String("model"), "samples", m.TrainedOn, "final_error", m.FinalError)
			return nil
		},
	}
}
