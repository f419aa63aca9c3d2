package main

import (
	"context"
	"fmt"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/server"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "Real-time room based chat server over WebSocket",
	Long: `roomchat serves chat rooms over WebSocket.

Clients connect to /ws?username=<name>&room=<room>, receive the room's recent
history and exchange messages and status updates with everyone in the room.
Settings come from flags, CHAT_* environment variables and an optional config
file, in that order of precedence.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.Flags().String("port", "", "listen address, e.g. :8000")
	rootCmd.Flags().StringSlice("allowed-origins", nil, "browser origins allowed to connect (* for any)")
	rootCmd.Flags().String("default-room", "", "room joined when the client names none")
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := server.NewViper(cfgFile)
	if err != nil {
		return err
	}
	flagKeys := map[string]string{
		"port":            "port",
		"allowed-origins": "allowed_origins",
		"default-room":    "default_room",
	}
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}

	cfg, err := server.LoadConfig(v)
	if err != nil {
		return err
	}

	srv := server.New(cfg, nil)
	log.Printf("Starting roomchat on %s with rooms %v", cfg.Port, roomNames(cfg))

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return srv.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", exitCode)
	}
	return nil
}

func roomNames(cfg server.Config) []string {
	names := make([]string, 0, len(cfg.Rooms))
	for _, rc := range cfg.Rooms {
		names = append(names, rc.Name)
	}
	return names
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
