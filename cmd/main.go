package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"taskcal/internal/api"
	"taskcal/internal/caldav"
	"taskcal/internal/config"
	"taskcal/internal/google"
	"taskcal/internal/store"
	"taskcal/internal/syncer"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "taskcal",
		Usage: "Schedule jobs with durations estimated from customer requests.",
		Commands: []*cli.Command{
			authCommand(),
			serveCommand(),
			estimateCommand(),
			ingestCommand(),
			syncCommand(),
			exportCommand(),
			publishCommand(),
			calendarsCommand(),
			importCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Link a Google account to a user so events can be synced.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Email of the account to link.", Required: true},
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()
			env.logger.Info("Starting Google authentication flow.")

			u, err := env.store.GetUserByEmail(c.Context, c.String("user"))
			if err != nil {
				return fmt.Errorf("could not find user %s: %w", c.String("user"), err)
			}
			oauthCfg, err := google.OAuthConfig(env.cfg.Google.ClientID, env.cfg.Google.ClientSecret, google.OutOfBandRedirect)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			if _, err := google.Exchange(c.Context, oauthCfg, env.store, u.ID, authCode); err != nil {
				return err
			}

			env.logger.Info("Successfully authenticated and saved token.", "user", u.Email)
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the REST API and the periodic Google Calendar sync.",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := setup(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			pipeline, err := env.pipeline(ctx)
			if err != nil {
				return err
			}

			opts := api.Options{
				EstimateRate:  env.cfg.Estimate.Rate,
				SecureCookies: env.cfg.SecureCookie,
			}
			oauthCfg, err := google.OAuthConfig(env.cfg.Google.ClientID, env.cfg.Google.ClientSecret, env.cfg.Google.RedirectURL)
			if err != nil {
				env.logger.Warn("Google integration disabled", "reason", err)
			}

			scheduler := cron.New(cron.WithLocation(env.cfg.TimeZone))
			if oauthCfg != nil {
				s := env.syncer(oauthCfg, env.cfg.Sync.DryRun)
				opts.OAuth = oauthCfg
				opts.Syncer = s
				opts.Notifier = google.NewNotifier(env.logger, oauthCfg, env.store, env.cfg.TimeZone)
				if env.cfg.Sync.Schedule != "" {
					if _, err := s.Schedule(ctx, scheduler, env.cfg.Sync.Schedule); err != nil {
						return err
					}
				}
			}
			if _, err := scheduler.AddFunc("@hourly", func() {
				n, err := env.store.PruneSessions(ctx)
				if err != nil {
					env.logger.Error("Failed to prune sessions", "error", err)
					return
				}
				env.logger.Debug("Pruned expired sessions", "count", n)
			}); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              env.cfg.HTTPAddr,
				Handler:           api.NewServer(env.logger, env.store, pipeline, opts).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				env.logger.Info("Listening for HTTP requests.", "addr", srv.Addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				scheduler.Start()
				<-ctx.Done()
				env.logger.Info("Shutting down.")
				<-scheduler.Stop().Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:      "estimate",
		Usage:     "Estimate how long a customer request will take.",
		ArgsUsage: "REQUEST...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Record the estimate in this account's history."},
		},
		Action: func(c *cli.Context) error {
			request := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(request) == "" {
				return fmt.Errorf("a request is required")
			}

			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()

			pipeline, err := env.pipeline(c.Context)
			if err != nil {
				return err
			}
			est, err := pipeline.Estimate(c.Context, request)
			if err != nil {
				return err
			}

			if email := c.String("user"); email != "" {
				u, err := env.store.GetUserByEmail(c.Context, email)
				if err != nil {
					return fmt.Errorf("could not find user %s: %w", email, err)
				}
				est.UserID = u.ID
				if err := env.store.InsertEstimate(c.Context, est); err != nil {
					return err
				}
			}

			fmt.Println(est.Duration)
			env.logger.Info("Estimate ready", "minutes", est.Minutes, "attempts", est.Attempts, "sources", est.Sources)
			return nil
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Add reference documents used to ground estimates.",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "Source name to store a single file under. Defaults to the file name."},
		},
		Action: func(c *cli.Context) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("at least one file is required")
			}
			if c.IsSet("source") && len(files) > 1 {
				return fmt.Errorf("--source can only be used with a single file")
			}

			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()

			retriever, err := env.retriever(c.Context)
			if err != nil {
				return err
			}
			for _, file := range files {
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				source := filepath.Base(file)
				if c.IsSet("source") {
					source = c.String("source")
				}
				n, err := retriever.Ingest(c.Context, source, string(b))
				if err != nil {
					return fmt.Errorf("failed to ingest %s: %w", file, err)
				}
				env.logger.Info("Ingested document.", "source", source, "chunks", n)
			}
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Push upcoming events to Google Calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Only sync this account. Defaults to every linked account."},
			&cli.BoolFlag{Name: "once", Usage: "Run the sync cycle once and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds. Overrides --once."},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("watch") && c.Int("watch") <= 0 {
				return fmt.Errorf("--watch must be a positive number of seconds, got %d", c.Int("watch"))
			}

			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()

			dryRun := env.cfg.Sync.DryRun || c.Bool("dry-run")
			if dryRun {
				env.logger.Info("Performing a dry run. No changes will be made.")
			}

			oauthCfg, err := google.OAuthConfig(env.cfg.Google.ClientID, env.cfg.Google.ClientSecret, google.OutOfBandRedirect)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}
			s := env.syncer(oauthCfg, dryRun)

			cycle := s.SyncAll
			if email := c.String("user"); email != "" {
				u, err := env.store.GetUserByEmail(c.Context, email)
				if err != nil {
					return fmt.Errorf("could not find user %s: %w", email, err)
				}
				cycle = func(ctx context.Context) error {
					_, err := s.SyncUser(ctx, u.ID)
					return err
				}
			}

			// --watch flag takes precedence
			if c.IsSet("watch") {
				interval := time.Duration(c.Int("watch")) * time.Second
				env.logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := cycle(c.Context); err != nil {
						env.logger.Error("Sync cycle failed", "error", err)
					}
					select {
					case <-c.Context.Done():
						return nil
					case <-ticker.C:
					}
				}
			}

			env.logger.Info("Running a single sync cycle.")
			if err := cycle(c.Context); err != nil {
				return fmt.Errorf("single sync cycle failed: %w", err)
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a calendar as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Email of the calendar owner.", Required: true},
			&cli.StringFlag{Name: "calendar", Aliases: []string{"c"}, Usage: "Calendar ID.", Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file. Defaults to stdout."},
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()

			u, err := env.store.GetUserByEmail(c.Context, c.String("user"))
			if err != nil {
				return fmt.Errorf("could not find user %s: %w", c.String("user"), err)
			}
			cal, err := env.store.GetCalendar(c.Context, u.ID, c.String("calendar"))
			if err != nil {
				return fmt.Errorf("could not find calendar %s: %w", c.String("calendar"), err)
			}
			events, err := env.store.ListEvents(c.Context, u.ID, store.EventFilter{CalendarID: cal.ID})
			if err != nil {
				return err
			}

			out := os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}
			if err := caldav.Encode(out, cal.Name, events); err != nil {
				return err
			}
			env.logger.Info("Exported calendar.", "calendar", cal.Name, "events", len(events))
			return nil
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish upcoming events to a CalDAV calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Email of the account whose events are published.", Required: true},
			&cli.StringFlag{Name: "calendar", Aliases: []string{"c"}, Usage: "Only publish events of this calendar ID."},
			&cli.IntFlag{Name: "days", Value: 30, Usage: "Publish events starting within the next N days."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be published without making changes."},
			&cli.BoolFlag{Name: "unpublish", Usage: "Remove the selected events from the CalDAV calendar instead."},
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()

			u, err := env.store.GetUserByEmail(c.Context, c.String("user"))
			if err != nil {
				return fmt.Errorf("could not find user %s: %w", c.String("user"), err)
			}
			now := time.Now()
			events, err := env.store.ListEvents(c.Context, u.ID, store.EventFilter{
				CalendarID: c.String("calendar"),
				From:       now,
				To:         now.AddDate(0, 0, c.Int("days")),
			})
			if err != nil {
				return err
			}

			if c.Bool("dry-run") {
				for _, e := range events {
					env.logger.Info("[DRY RUN] Would publish event", "title", e.Title, "start", e.StartTime)
				}
				return nil
			}

			cd := env.cfg.CalDAV
			publisher, err := caldav.NewPublisher(c.Context, env.logger, cd.Endpoint, cd.Username, cd.Password, cd.CalendarName)
			if err != nil {
				return fmt.Errorf("failed to create caldav publisher: %w", err)
			}
			apply := publisher.Publish
			if c.Bool("unpublish") {
				apply = publisher.Remove
			}
			var failed int
			for _, e := range events {
				if err := apply(c.Context, e); err != nil {
					env.logger.Error("Failed to publish event", "title", e.Title, "error", err)
					failed++
				}
			}
			env.logger.Info("Publish finished.", "published", len(events)-failed, "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d events failed to publish", failed, len(events))
			}
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the Google calendars of a linked account.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Email of the linked account.", Required: true},
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()

			client, _, err := env.googleCalendar(c.Context, c.String("user"))
			if err != nil {
				return err
			}
			ids, err := client.DiscoverCalendars(c.Context)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Copy events from a Google calendar into a local calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Email of the linked account.", Required: true},
			&cli.StringFlag{Name: "calendar", Aliases: []string{"c"}, Usage: "Local calendar ID to import into.", Required: true},
			&cli.StringFlag{Name: "google-calendar", Value: google.DefaultCalendar, Usage: "Google calendar ID to read."},
			&cli.IntFlag{Name: "days", Value: 30, Usage: "Import events starting within the next N days."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be imported without making changes."},
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer env.Close()

			client, u, err := env.googleCalendar(c.Context, c.String("user"))
			if err != nil {
				return err
			}
			now := time.Now()
			n, err := syncer.Import(c.Context, env.logger, env.store, client, u.ID, c.String("calendar"),
				c.String("google-calendar"), now, now.AddDate(0, 0, c.Int("days")), c.Bool("dry-run"))
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Printf("Imported %d events\n", n)
			return nil
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
