package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nshruti113/ddos-mitigation-engine/internal/config"
	"github.com/nshruti113/ddos-mitigation-engine/internal/firewall"
	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
	"github.com/nshruti113/ddos-mitigation-engine/internal/registry"
	"github.com/nshruti113/ddos-mitigation-engine/internal/rules"
	"github.com/nshruti113/ddos-mitigation-engine/internal/storage"
	"github.com/nshruti113/ddos-mitigation-engine/internal/tracker"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	// Broadcasts come from the event loop and the expiry sweeper while
	// connection handlers add and remove entries, so the client map
	// needs a lock.
	wsClientsMu sync.Mutex
	wsClients   = make(map[wsConn]bool)
)

// wsConn is the slice of *websocket.Conn the hub uses.
type wsConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

func addWSClient(conn wsConn) {
	wsClientsMu.Lock()
	defer wsClientsMu.Unlock()
	wsClients[conn] = true
}

func removeWSClient(conn wsConn) {
	wsClientsMu.Lock()
	defer wsClientsMu.Unlock()
	delete(wsClients, conn)
}

type Server struct {
	cfg      *config.Config
	redis    *storage.RedisClient
	backend  firewall.Backend
	registry *registry.Registry
	tracker  *tracker.Tracker
	router   *gin.Engine
	flows    chan models.Flow
	events   chan models.FlowEvent
}

func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize Redis
	redisClient, err := storage.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// Select the firewall backend for this platform
	backend, err := firewall.NewBackend(cfg.Platform, cfg.InterfaceName, cfg.FirewallEnabled)
	if err != nil {
		return nil, err
	}

	// Wire the escalation pipeline
	banRegistry := registry.New()
	synthesizer := rules.NewSynthesizer(cfg, backend, banRegistry)
	events := make(chan models.FlowEvent, 256)
	flowTracker := tracker.New(cfg, synthesizer, banRegistry, events)

	// Create Gin router
	router := gin.Default()

	server := &Server{
		cfg:      cfg,
		redis:    redisClient,
		backend:  backend,
		registry: banRegistry,
		tracker:  flowTracker,
		router:   router,
		flows:    make(chan models.Flow, 1024),
		events:   events,
	}

	server.setupRoutes()

	return server, nil
}

func (s *Server) setupRoutes() {
	// Enable CORS
	s.router.Use(corsMiddleware())

	// API routes
	api := s.router.Group("/api")
	{
		// Classified flow ingestion
		api.POST("/flows/ingest", s.ingestFlow)

		// Live offender table
		api.GET("/offenders", s.getOffenders)

		// Bans
		api.GET("/bans/active", s.getActiveBans)
		api.GET("/bans/history", s.getBanHistory)

		// Flow event log
		api.GET("/events/recent", s.getRecentEvents)

		// Dashboard stats
		api.GET("/stats/summary", s.getSummaryStats)
	}

	// WebSocket endpoint
	s.router.GET("/ws", s.handleWebSocket)
}

// ingestFlow receives one classified-malicious flow from the upstream
// classifier. Malformed tuples are rejected here, before the tracker.
func (s *Server) ingestFlow(c *gin.Context) {
	var flow models.Flow

	if err := c.ShouldBindJSON(&flow); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !flow.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "incomplete flow tuple"})
		return
	}

	// Hand off to the single processing worker; arrival order is preserved.
	s.flows <- flow

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// getOffenders returns the live offender table
func (s *Server) getOffenders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"offenders": s.tracker.Offenders(),
	})
}

// getActiveBans returns currently installed bans
func (s *Server) getActiveBans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bans": s.registry.Entries(),
	})
}

// getBanHistory returns the mirrored ban history from Redis
func (s *Server) getBanHistory(c *gin.Context) {
	bans, err := s.redis.GetActiveBans()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bans": bans,
	})
}

// getRecentEvents returns flow events from the last 5 minutes
func (s *Server) getRecentEvents(c *gin.Context) {
	events, err := s.redis.GetRecentEvents(300)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
	})
}

// getSummaryStats returns engine summary statistics
func (s *Server) getSummaryStats(c *gin.Context) {
	status := "OBSERVING"
	if s.cfg.FirewallEnabled {
		status = "ENFORCING"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"tracked":         s.tracker.Len(),
		"active_bans":     s.registry.Len(),
		"naughty_count":   s.cfg.NaughtyCount,
		"ban_ttl_minutes": s.cfg.BanTTLMinutes,
	})
}

// handleWebSocket handles WebSocket connections for real-time updates
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	addWSClient(conn)
	defer removeWSClient(conn)

	log.Println("New WebSocket client connected")

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error: %v", err)
			break
		}
	}
}

// broadcastMessage sends a message to all connected WebSocket clients
func broadcastMessage(message interface{}) {
	wsClientsMu.Lock()
	defer wsClientsMu.Unlock()

	for client := range wsClients {
		err := client.WriteJSON(message)
		if err != nil {
			log.Printf("WebSocket write error: %v", err)
			client.Close()
			delete(wsClients, client)
		}
	}
}

// runProcessing consumes classified flows strictly in arrival order.
// One worker owns all tracker mutations.
func (s *Server) runProcessing() {
	log.Println("🔍 Flow processing worker started")

	for flow := range s.flows {
		s.tracker.RecordFlow(flow)
	}
}

// runEventLoop fans processed-flow dispositions out to the log, Redis,
// and connected WebSocket clients.
func (s *Server) runEventLoop() {
	for event := range s.events {
		switch event.Disposition {
		case models.DispositionEscalated:
			log.Printf("⛔ Escalated %s: banned %s (%s)", event.ConnectionKey, event.MatchAddress, event.Direction)
		case models.DispositionInstallFailed:
			log.Printf("⚠️  Rule install failed for %s: %s", event.ConnectionKey, event.Error)
		default:
			log.Printf(" - %s: %s (offenses: %d)", event.Disposition, event.ConnectionKey, event.Offenses)
		}

		if err := s.redis.StoreFlowEvent(event); err != nil {
			log.Printf("Error storing flow event: %v", err)
		}
		if err := s.redis.PublishEvent(event); err != nil {
			log.Printf("Error publishing flow event: %v", err)
		}
		if event.Disposition == models.DispositionEscalated {
			if entry, ok := s.registry.Get(event.MatchAddress, event.Direction); ok {
				if err := s.redis.StoreBan(entry); err != nil {
					log.Printf("Error mirroring ban: %v", err)
				}
			}
		}

		broadcastMessage(map[string]interface{}{
			"type":    "flow_event",
			"payload": event,
		})
	}
}

// runExpirySweep removes bans older than the configured TTL on a cadence
// independent of flow arrival, so bans are never permanent even when the
// classifier goes quiet.
func (s *Server) runExpirySweep() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	log.Println("🧹 Ban expiry sweeper started")

	for range ticker.C {
		removed, err := s.registry.ExpireStaleBans(models.UnixMinute(time.Now()), s.cfg.BanTTLMinutes, s.backend)
		if err != nil {
			log.Printf("Expiry sweep errors (entries retained for retry): %v", err)
		}

		for _, entry := range removed {
			log.Printf("✅ Ban expired: %s (%s)", entry.MatchedAddress, entry.Direction)
			if err := s.redis.RemoveBan(entry.MatchedAddress, entry.Direction); err != nil {
				log.Printf("Error removing mirrored ban: %v", err)
			}

			broadcastMessage(map[string]interface{}{
				"type":    "ban_expired",
				"payload": entry,
			})
		}
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func main() {
	var (
		ifaceName      = flag.String("interface", envOr("DME_INTERFACE", ""), "network interface to protect")
		localIP        = flag.String("local-ip", envOr("DME_LOCAL_IP", ""), "override the interface's IPv4 address")
		naughtyCount   = flag.Int("naughty", envOrInt("DME_NAUGHTY", 10), "malicious flows allowed from a connection before it is banned")
		firewallOn     = flag.Bool("firewall", envOrBool("DME_FIREWALL", false), "enable firewall enforcement (off = observe-only)")
		platform       = flag.String("platform", envOr("DME_PLATFORM", "linux"), "firewall platform")
		banTTL         = flag.Int64("ban-ttl", envOrInt64("DME_BAN_TTL", 60), "ban lifetime in minutes")
		sweepInterval  = flag.Duration("sweep-interval", envOrDuration("DME_SWEEP_INTERVAL", time.Minute), "how often to sweep for expired bans")
		redisAddr      = flag.String("redis", envOr("DME_REDIS", "localhost:6379"), "Redis address")
		listenAddr     = flag.String("listen", envOr("DME_LISTEN", ":8888"), "HTTP listen address")
		listInterfaces = flag.Bool("list-interfaces", false, "list network interfaces and exit")
	)
	flag.Parse()

	if *listInterfaces {
		infos, err := config.ListInterfaces()
		if err != nil {
			log.Fatalf("Failed to list interfaces: %v", err)
		}
		for _, info := range infos {
			fmt.Printf("interface: %s\n", info.Name)
			for _, addr := range info.Addrs {
				fmt.Printf("\tAssociated address: %s\n", addr)
			}
		}
		fmt.Println("Pick one of these interfaces to listen to traffic on, and then rerun the command with it :)")
		return
	}

	localAddrs := map[string]string{}
	if *localIP != "" {
		localAddrs[config.FamilyIPv4] = *localIP
	} else if *ifaceName != "" {
		discovered, err := config.DiscoverInterface(*ifaceName)
		if err != nil {
			log.Fatalf("Failed to resolve interface addresses: %v", err)
		}
		localAddrs = discovered
	}

	cfg := &config.Config{
		InterfaceName:   *ifaceName,
		LocalAddrs:      localAddrs,
		NaughtyCount:    *naughtyCount,
		FirewallEnabled: *firewallOn,
		Platform:        *platform,
		BanTTLMinutes:   *banTTL,
		SweepInterval:   *sweepInterval,
		RedisAddr:       *redisAddr,
		ListenAddr:      *listenAddr,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("🚀 Starting DDoS Mitigation Engine...")

	server, err := NewServer(cfg)
	if err != nil {
		if errors.Is(err, firewall.ErrUnsupportedPlatform) {
			log.Fatalf("Fatal: %v", err)
		}
		log.Fatalf("Failed to create server: %v", err)
	}

	// Start engine loops in background
	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		server.runProcessing()
	}()
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		server.runEventLoop()
	}()
	go server.runExpirySweep()

	// Start server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.router,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server listening on %s (firewall: %s)", cfg.ListenAddr, enforcementLabel(cfg.FirewallEnabled))

	// Block until signalled, then drain: rules left uninstalled are the
	// dangerous failure mode, so queued flows are processed to completion
	// and in-flight installs are never cancelled.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("🛑 Shutting down: draining queued flows...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	// Ingest has stopped; let the worker drain the queue, then flush the
	// remaining events.
	close(server.flows)
	<-procDone
	close(server.events)
	<-eventsDone

	log.Println("✅ Shutdown complete")
}

func enforcementLabel(enabled bool) string {
	if enabled {
		return "enforcing"
	}
	return "observe-only"
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, err := strconv.Atoi(envOr(key, "")); err == nil {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(envOr(key, ""), 10, 64); err == nil {
		return v
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(envOr(key, "")); err == nil {
		return v
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(envOr(key, "")); err == nil {
		return v
	}
	return fallback
}
