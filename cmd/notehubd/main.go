// notehubd is the NoteHub client daemon: it keeps the encrypted local
// replica warm, drains queued offline mutations when the server becomes
// reachable and relays real-time collaboration events.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/notehub/notehub-client/internal/api"
	"github.com/notehub/notehub-client/internal/connectivity"
	"github.com/notehub/notehub-client/internal/events"
	"github.com/notehub/notehub-client/internal/logging"
	"github.com/notehub/notehub-client/internal/models"
	"github.com/notehub/notehub-client/internal/realtime"
	"github.com/notehub/notehub-client/internal/store"
	"github.com/notehub/notehub-client/internal/syncer"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "notehubd",
		Short:   "NoteHub offline-first client daemon",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("server-url", "http://localhost:5000", "NoteHub REST server base URL")
	flags.String("ws-url", "ws://localhost:5000/ws", "NoteHub websocket endpoint")
	flags.String("data-dir", defaultDataDir(), "directory for the local replica database")
	flags.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	flags.String("log-file", "", "log file path (stderr when empty)")
	flags.Int64("user-id", 0, "authenticated user id")
	flags.String("token", "", "session token (prefer NOTEHUB_TOKEN)")
	flags.Duration("probe-interval", 30*time.Second, "server reachability probe interval")

	v.SetEnvPrefix("NOTEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notehub"
	}
	return filepath.Join(home, ".notehub")
}

func newLogger(v *viper.Viper) logging.Logger {
	var out io.Writer = os.Stderr
	if file := v.GetString("log-file"); file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	return logging.New(out, v.GetString("log-level"))
}

// run wires the dependency graph explicitly and blocks until SIGINT/SIGTERM.
func run(ctx context.Context, v *viper.Viper) error {
	log := newLogger(v)

	userID := v.GetInt64("user-id")
	token := v.GetString("token")
	if userID == 0 || token == "" {
		return fmt.Errorf("a session is required: set --user-id and --token (or NOTEHUB_USER_ID / NOTEHUB_TOKEN)")
	}
	session := &api.StaticSession{User: &models.User{ID: userID}, Token: token}

	serverURL := v.GetString("server-url")
	dataDir := v.GetString("data-dir")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage.
	st := store.New(dataDir, session, log)
	if err := st.Init(ctx); err != nil {
		return err
	}
	defer st.Close()

	// Connectivity: assume online until the first probe says otherwise.
	monitor := connectivity.NewMonitor(serverURL+"/api/health", log, connectivity.WithInitialState(true))
	go monitor.StartProbing(ctx, v.GetDuration("probe-interval"))

	// REST client.
	client := api.NewClient(api.ClientOptions{
		BaseURL:   serverURL,
		Session:   session,
		UserAgent: "notehubd/" + version,
	})

	// Sync orchestrator.
	sy := syncer.New(client, st, monitor, log)
	sy.Start(ctx)
	defer sy.Destroy()
	unsub := sy.Subscribe(ctx, func(s syncer.Status) {
		fields := map[string]interface{}{
			"syncing": s.IsSyncing,
			"pending": s.PendingCount,
		}
		if s.Error != "" {
			fields["error"] = s.Error
		}
		log.Info("sync status", fields)
	})
	defer unsub()

	// Real-time channel. An unreachable server is not fatal; the channel
	// reconnects once traffic flows again.
	bus := events.NewBus()
	channel := realtime.NewChannel(v.GetString("ws-url"), session, bus, log)

	// A remote deletion invalidates the local replica immediately; edits
	// are picked up by the next snapshot refresh.
	events.On(bus, func(ev events.NoteDeleted) {
		if err := st.DeleteNote(ctx, ev.NoteID); err != nil {
			log.WarnErr("apply remote note deletion", err)
		}
	})
	events.On(bus, func(ev events.ConnectionStatusChanged) {
		log.Info("channel status", map[string]interface{}{"status": ev.Status})
	})

	if err := channel.Connect(ctx); err != nil {
		log.WarnErr("real-time channel unavailable", err)
	}
	defer channel.Disconnect()

	// Initial drain in case mutations were queued in a previous run.
	go func() {
		if err := sy.Sync(ctx); err != nil {
			log.WarnErr("startup sync failed", err)
		}
	}()

	log.Info("notehubd started", map[string]interface{}{
		"server":   serverURL,
		"data_dir": dataDir,
		"user_id":  userID,
	})

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
