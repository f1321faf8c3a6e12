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

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	leads "github.com/osr-alliance/backend-lib-leads"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(conf *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *conf)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&conf.Addr, "addr", conf.Addr, "listen address")
	flags.StringVar(&conf.RedisAddr, "redis-addr", conf.RedisAddr, "redis address; empty disables the cache")
	flags.DurationVar(&conf.CacheTTL, "cache-ttl", conf.CacheTTL, "how long a lead stays cached")
	flags.BoolVar(&conf.Debug, "debug", conf.Debug, "log every storage call")
	flags.BoolVar(&conf.Seed, "seed", conf.Seed, "start with the sample leads")
	return cmd
}

func newMigrateCmd(conf *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the leads table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if conf.DBDriver == driverMemory {
				return errors.New("nothing to migrate for the memory driver")
			}
			db, err := openDB(cmd.Context(), *conf)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "leads table is up to date")
			return nil
		},
	}
}

func runServe(ctx context.Context, conf Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := newLogger(conf)
	if err != nil {
		return err
	}

	store, closeStore, err := openStorage(ctx, conf, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if conf.Seed {
		seeded, err := leads.Seed(ctx, store)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Infof("seeded %d sample leads", len(seeded))
	}

	router := newRouter(NewLead(store, leads.NewNormalizer()), log)

	srv := &http.Server{
		Handler: router,
		Addr:    conf.Addr,
		// Good practice: enforce timeouts for servers you create!
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", conf.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStorage builds the storage from conf; the returned func closes whatever connections it opened
func openStorage(ctx context.Context, conf Config, log *logrus.Logger) (leads.Storage, func(), error) {
	closers := []func() error{}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.WithError(err).Warn("closing connection")
			}
		}
	}

	sc := &leads.Config{
		CacheTTL:    int(conf.CacheTTL / time.Second),
		ServiceName: conf.ServiceName,
		Debugger:    conf.Debug,
		Logger:      logrus.NewEntry(log),
	}

	if conf.DBDriver != driverMemory {
		db, err := openDB(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		sc.DB = db
	}

	if conf.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		closers = append(closers, rdb.Close)

		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("unable to connect to redis: %w", err)
		}
		sc.Redis = rdb
	}

	s, err := leads.New(sc)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	log.WithFields(logrus.Fields{
		"driver": conf.DBDriver,
		"cache":  conf.RedisAddr != "",
	}).Info("storage ready")
	return s, closeAll, nil
}

// openDB connects to the sql backend and makes sure the leads table exists
func openDB(ctx context.Context, conf Config) (*sqlx.DB, error) {
	if conf.DBDriver != driverPostgres && conf.DBDriver != driverSqlite {
		return nil, fmt.Errorf("unknown db driver %q", conf.DBDriver)
	}
	if conf.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := sqlx.ConnectContext(ctx, conf.DBDriver, conf.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", conf.DBDriver, err)
	}

	if err := leads.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
