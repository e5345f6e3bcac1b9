package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomlink/internal/client"
	"roomlink/internal/core/domain"
	"roomlink/internal/media/pion"
	"roomlink/pkg/config"
	"roomlink/pkg/logger"
)

func main() {
	var (
		serverURL   = flag.String("server", "http://localhost:8080", "signaling server base URL")
		roomID      = flag.String("room", "", "room code or invite link to join (empty creates a new room)")
		videoDevice = flag.String("video-device", "default", "capture device to send from")
		logLevel    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	zapLogger := logger.New(*logLevel)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room := *roomID
	if room == "" {
		created, err := createRoom(ctx, *serverURL)
		if err != nil {
			log.Fatalw("failed to create room", "error", err)
		}
		room = created
		log.Infow("created room", "room", room)
		fmt.Printf("Room code: %s\n", room)
	}

	servers, err := fetchICEServers(ctx, *serverURL)
	if err != nil {
		log.Warnw("failed to fetch ICE servers, continuing without", "error", err)
	}

	cfg := config.DefaultConfig()

	engine, err := pion.NewEngine(pion.EngineConfig{}, zapLogger)
	if err != nil {
		log.Fatalw("failed to create media engine", "error", err)
	}
	defer engine.Close()

	signaling := client.NewSignalingClient(wsURL(*serverURL), zapLogger)
	if err := signaling.Connect(ctx); err != nil {
		log.Fatalw("failed to connect to signaling server", "error", err)
	}
	defer signaling.Close()

	orchestrator := client.NewOrchestrator(signaling, engine, servers, zapLogger)
	orchestrator.OnRoomFull = func() {
		log.Errorw("room is full", "room", room)
		cancel()
	}
	orchestrator.OnLinkFailed = func(id domain.ClientID) {
		log.Errorw("link failed permanently", "peer", id)
	}

	if err := orchestrator.Start(ctx); err != nil {
		log.Fatalw("failed to start orchestrator", "error", err)
	}

	quality := client.NewQualityController(orchestrator, client.QualityConfig{
		SampleInterval: cfg.Quality.SampleInterval,
		DownRatio:      cfg.Quality.DownRatio,
		UpRatio:        cfg.Quality.UpRatio,
		DownStreak:     cfg.Quality.DownStreak,
		UpStreak:       cfg.Quality.UpStreak,
	}, zapLogger)
	orchestrator.OnRosterChange(quality.OnRosterChange)
	quality.Start(ctx)
	defer quality.Stop()

	relay := client.NewRelayDetector(orchestrator, cfg.Relay.ProbeInterval, zapLogger)
	relay.OnChange = func(relayed bool) {
		if relayed {
			fmt.Println("Note: media is being relayed through a TURN server")
		} else {
			fmt.Println("Direct peer connections established")
		}
	}
	orchestrator.OnLinkUp(relay.Probe)
	orchestrator.OnRosterChange(relay.Probe)
	relay.Start(ctx)
	defer relay.Stop()

	if *videoDevice != "default" {
		if err := orchestrator.SwitchCamera(ctx, *videoDevice); err != nil {
			log.Warnw("failed to switch camera, keeping default", "device", *videoDevice, "error", err)
		}
	}

	if err := orchestrator.Join(room); err != nil {
		log.Fatalw("failed to join room", "room", room, "error", err)
	}
	log.Infow("joining room", "room", room)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	orchestrator.Leave()
	orchestrator.Stop()
	log.Info("left room")
}

func createRoom(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/rooms", nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("room creation returned %d", resp.StatusCode)
	}

	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.RoomID, nil
}

func fetchICEServers(ctx context.Context, baseURL string) ([]domain.ICEServer, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL+"/api/v1/turn-credentials", nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("turn-credentials returned %d", resp.StatusCode)
	}

	var body struct {
		ICEServers []domain.ICEServer `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.ICEServers, nil
}

// wsURL converts the HTTP base URL into the websocket endpoint.
func wsURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + "/ws"
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}
