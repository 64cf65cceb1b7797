package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davarch/pipeline-monitor/internal/application"
	"github.com/davarch/pipeline-monitor/internal/domain"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/cache_fs"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/config"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/credentials_fs"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/git_gogit"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/gitlab_http"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/logging"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/notify_libnotify"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/prompt_console"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath()

		cfg, err := config.Load(path)
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}

		log := logging.New(cfg.Log.Path)
		defer func() { _ = log.Sync() }()

		store := config.NewStore(log, path, cfg)
		gl := gitlab_http.New(log, store.ConnectTimeout())
		git := git_gogit.New(log, cfg.Git.Roots)
		creds := credentials_fs.New(cfg.Credentials.Path)
		cache := cache_fs.New(cfg.Cache.Path)
		note := notify_libnotify.NewSoft()

		resolver := application.NewResolver(log, gl)
		filter := application.NewPipelineFilter(store)
		notifyUC := application.NewNotifyUseCase(log, git, note, filter)

		events := application.Events{
			UntrackedRemoteFound: func(u domain.UntrackedRemote) {
				fmt.Printf("untracked gitlab remote: %s\n", u.URL)
				if u.BestGuess != nil {
					fmt.Printf("  looks like project %q on %s\n", u.BestGuess.ProjectPath, u.BestGuess.Host)
				}
				fmt.Printf("  run `pipeline-monitor track %s` to monitor it or `pipeline-monitor ignore %s` to silence it\n", u.URL, u.URL)
			},
			Reload: notifyUC.OnReload,
		}

		syncer := application.NewSynchronizer(log, store, gl, git, creds, note, resolver, cache, events)
		sched := application.NewScheduler(log, syncer, store)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		prompter := prompt_console.New(log, os.Stdin, os.Stdout)
		go prompter.Serve(ctx, syncer.AuthRequests())

		watchAndReload(ctx, path, log, store, git, sched)
		refreshOnSighup(ctx, log, sched)

		log.Info("start",
			zap.String("version", version),
			zap.Duration("interval", time.Duration(cfg.Monitor.Interval)),
			zap.Strings("roots", cfg.Git.Roots),
			zap.String("cache", cfg.Cache.Path),
		)

		sched.Start(ctx)
		<-ctx.Done()
		sched.Stop()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

// refreshOnSighup maps SIGHUP to a user-triggered refresh, which also
// lifts the transient suppressions.
func refreshOnSighup(ctx context.Context, log *zap.Logger, sched *application.Scheduler) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(ch)
				return
			case <-ch:
				log.Info("refresh requested via SIGHUP")
				sched.TriggerUserRefresh(ctx)
			}
		}
	}()
}

// watchAndReload re-reads the config when the file changes, debounced
// because editors fire several events per save.
func watchAndReload(ctx context.Context, cfgPath string, log *zap.Logger, store *config.Store, git *git_gogit.Provider, sched *application.Scheduler) {
	if cfgPath == "" {
		return
	}

	dir := filepath.Dir(cfgPath)
	base := filepath.Base(cfgPath)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify init failed", zap.Error(err))
		return
	}

	go func() {
		defer func() { _ = w.Close() }()

		var timer *time.Timer
		fire := func() {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				log.Warn("config reload failed", zap.Error(err))
				return
			}
			store.Reload(cfg)
			git.UpdateRoots(cfg.Git.Roots)
			if cfg.Monitor.Enabled {
				sched.Restart(ctx)
				sched.OnRepositoriesReady()
			} else {
				sched.Stop()
			}
		}

		startTimer := func() {
			if timer == nil {
				timer = time.AfterFunc(300*time.Millisecond, fire)
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(300 * time.Millisecond)
		}

		if err := w.Add(dir); err != nil {
			log.Warn("fsnotify add dir failed", zap.String("dir", dir), zap.Error(err))
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					startTimer()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()
}
