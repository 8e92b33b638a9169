package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gigapi/gigapi-dars/accessor"
	"github.com/gigapi/gigapi-dars/catalog"
	"github.com/gigapi/gigapi-dars/config"
	"github.com/gigapi/gigapi-dars/core"
	"github.com/gigapi/gigapi-dars/server"
	"github.com/gigapi/gigapi-dars/slab"
	"github.com/ghetzel/cli"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = `dars`
	app.Usage = `DAP2 server for netCDF and HDF5 files with NcML aggregation`
	app.ArgsUsage = `[data-dir]`
	app.Version = version
	app.EnableBashCompletion = false

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   `config, c`,
			Usage:  `Configuration file (yaml, toml or json)`,
			EnvVar: `DARS_CONFIG`,
		},
		cli.StringFlag{
			Name:  `log-level, L`,
			Usage: `Level of log output verbosity`,
		},
		cli.StringFlag{
			Name:  `address, a`,
			Usage: `The address that the HTTP server should listen on`,
		},
		cli.IntFlag{
			Name:  `port, p`,
			Usage: `The port that the HTTP server should listen on`,
		},
		cli.IntFlag{
			Name:  `flight-port`,
			Usage: `The port of the Arrow Flight server, 0 disables it`,
		},
		cli.BoolFlag{
			Name:  `warm`,
			Usage: `Describe every dataset at startup`,
		},
	}

	app.Before = func(c *cli.Context) error {
		flags := func(cfg *config.Configuration) {
			if c.IsSet(`log-level`) {
				cfg.LogLevel = c.String(`log-level`)
			}
			if c.IsSet(`address`) {
				cfg.Address = c.String(`address`)
			}
			if c.IsSet(`port`) {
				cfg.Port = c.Int(`port`)
			}
			if c.IsSet(`flight-port`) {
				cfg.FlightPort = c.Int(`flight-port`)
			}
			if c.IsSet(`warm`) {
				cfg.Warm = c.Bool(`warm`)
			}
			if len(c.Args()) > 0 {
				cfg.DataDir = c.Args()[0]
			}
		}
		if err := config.InitConfig(c.String(`config`), flags); err != nil {
			return err
		}
		return core.InitLogger(config.Config.LogLevel, config.Config.Development)
	}

	app.Action = func(c *cli.Context) {
		ctx := core.WithDefaultLogger(context.Background(), "main")
		if err := run(ctx, config.Config); err != nil {
			core.Errorf(ctx, "%v", err)
			os.Exit(1)
		}
	}

	app.Run(os.Args)
}

func run(ctx context.Context, cfg *config.Configuration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := accessor.NewPool(accessor.NetCDF{}, cfg.CacheSize)
	if err != nil {
		return err
	}
	defer pool.Purge()

	resolver := slab.NewResolver(pool, cfg.Parallelism)
	cat := catalog.New(afero.NewOsFs(), pool, cfg.Parallelism)
	load := func(cfg *config.Configuration) error {
		if err := cat.Load(ctx, cfg.Datasets, cfg.DataDir); err != nil {
			return err
		}
		if cfg.Warm {
			return cat.Warm(ctx)
		}
		return nil
	}
	if err := load(cfg); err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	config.Watch(func(next *config.Configuration) {
		core.Infof(ctx, "configuration changed, reloading catalog")
		// handles of replaced files must not be reused
		pool.Purge()
		if err := load(next); err != nil {
			core.Errorf(ctx, "reload failed, keeping the previous catalog: %v", err)
		}
	}, func(err error) {
		core.Errorf(ctx, "configuration change rejected: %v", err)
	})

	srv := server.NewServer(cat, resolver, cfg.RequestTimeout)
	srv.RootURL = cfg.RootURL
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		core.Infof(ctx, "DAP2 server running at http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdown)
	})
	if cfg.FlightPort > 0 {
		g.Go(func() error {
			flightServer := server.NewFlightServer(cat, resolver, cfg.RequestTimeout)
			if err := server.StartFlightServer(gctx, cfg.FlightPort, flightServer); err != nil {
				return fmt.Errorf("flight server: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}
