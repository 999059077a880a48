package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marble-client/internal/channel"
	"marble-client/internal/game"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = "ws://localhost:8080/websocket"
	}
	gameID := os.Getenv("GAME_ID")
	nickname := os.Getenv("NICKNAME")
	if nickname == "" {
		// Roster matching falls back to the player id when no nickname is set.
		nickname = os.Getenv("PLAYER_ID")
	}
	if nickname == "" {
		log.Fatal("NICKNAME or PLAYER_ID is required")
	}

	client := channel.NewClient(channel.Config{
		URL:       serverURL,
		AuthToken: os.Getenv("AUTH_TOKEN"),
	})

	store := game.NewStore(game.Config{
		GameID:  gameID,
		Viewer:  nickname,
		Channel: client,
	})
	detach := store.Bind(client)
	defer detach()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to %s: %v", serverURL, err)
	}
	log.Printf("Connected to %s as %s (game %q)", serverURL, nickname, gameID)

	// Periodically dump a state summary so a headless run stays observable.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logStateSummary(store, client)
			}
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received")

	if err := client.Close(); err != nil {
		log.Printf("Error closing connection: %v", err)
	}
	log.Println("Graceful shutdown complete.")
}

func logStateSummary(store *game.Store, client *channel.Client) {
	st := store.Snapshot()
	summary := struct {
		Phase       game.GamePhase `json:"phase"`
		Turn        int            `json:"turn"`
		Players     int            `json:"players"`
		CurrentIdx  int            `json:"currentPlayerIndex"`
		ModalKind   game.ModalKind `json:"modal"`
		LinkQuality string         `json:"link"`
	}{
		Phase:       st.Phase,
		Turn:        st.CurrentTurn,
		Players:     len(st.Players),
		CurrentIdx:  st.CurrentPlayerIndex,
		ModalKind:   st.Modal.Kind,
		LinkQuality: string(client.CurrentQuality()),
	}
	data, _ := json.Marshal(summary)
	log.Printf("State: %s", data)
}
