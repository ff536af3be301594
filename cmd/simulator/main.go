package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
)

// Simulator plays the role of the upstream classifier: it feeds flows
// already labelled malicious into the engine's ingest API.
type Simulator struct {
	serverURL    string
	localIP      string
	scenario     string
	flowsPerTick int
}

func NewSimulator(serverURL, localIP string) *Simulator {
	return &Simulator{
		serverURL:    serverURL,
		localIP:      localIP,
		flowsPerTick: 5,
	}
}

// GenerateInboundOffender creates repeated inbound flows from a small set
// of attacker IPs, each hammering the same connection identity so the
// naughty count climbs.
func (s *Simulator) GenerateInboundOffender() []models.Flow {
	attackIPs := []string{
		"203.0.113.10", "203.0.113.11", "203.0.113.12",
	}

	targetPorts := []int{22, 80, 443}

	flows := make([]models.Flow, 0, s.flowsPerTick)
	for i := 0; i < s.flowsPerTick; i++ {
		flows = append(flows, models.Flow{
			ID:         uuid.New().String(),
			Timestamp:  time.Now(),
			SourceIP:   attackIPs[rand.Intn(len(attackIPs))],
			DestIP:     s.localIP,
			SourcePort: rand.Intn(65535-1024) + 1024,
			DestPort:   targetPorts[rand.Intn(len(targetPorts))],
			Protocol:   "TCP",
		})
	}

	return flows
}

// GenerateOutboundOffender simulates the local host repeatedly contacting
// a command-and-control address, the outbound escalation path.
func (s *Simulator) GenerateOutboundOffender() []models.Flow {
	c2Addrs := []string{
		"198.51.100.20", "198.51.100.21",
	}

	flows := make([]models.Flow, 0, s.flowsPerTick)
	for i := 0; i < s.flowsPerTick; i++ {
		flows = append(flows, models.Flow{
			ID:         uuid.New().String(),
			Timestamp:  time.Now(),
			SourceIP:   s.localIP,
			DestIP:     c2Addrs[rand.Intn(len(c2Addrs))],
			SourcePort: rand.Intn(65535-1024) + 1024,
			DestPort:   4444,
			Protocol:   "TCP",
		})
	}

	return flows
}

// GenerateUDPScan creates inbound UDP flows sweeping many local ports from
// one source, so the offender accumulates a wide port/protocol set.
func (s *Simulator) GenerateUDPScan() []models.Flow {
	flows := make([]models.Flow, 0, s.flowsPerTick)
	for i := 0; i < s.flowsPerTick; i++ {
		flows = append(flows, models.Flow{
			ID:         uuid.New().String(),
			Timestamp:  time.Now(),
			SourceIP:   "192.0.2.66",
			DestIP:     s.localIP,
			SourcePort: rand.Intn(65535-1024) + 1024,
			DestPort:   rand.Intn(1000) + 1,
			Protocol:   "UDP",
		})
	}

	return flows
}

// SendFlow posts one classified flow to the engine
func (s *Simulator) SendFlow(flow models.Flow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return err
	}

	resp, err := http.Post(s.serverURL+"/api/flows/ingest", "application/json",
		bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}

// Run starts the simulator
func (s *Simulator) Run() {
	fmt.Println("🚀 Starting Classified Flow Simulator...")
	fmt.Println("🎯 DEMO MODE: Will cycle through offender scenarios")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	scenarioTicker := time.NewTicker(15 * time.Second) // Switch scenario every 15 seconds
	defer scenarioTicker.Stop()

	scenarios := []string{"INBOUND_OFFENDER", "OUTBOUND_OFFENDER", "UDP_SCAN"}
	currentScenario := 0

	s.scenario = scenarios[0]
	fmt.Printf("⚠️  Running %s scenario\n", s.scenario)

	for {
		select {
		case <-ticker.C:
			var flows []models.Flow

			switch s.scenario {
			case "INBOUND_OFFENDER":
				flows = s.GenerateInboundOffender()
			case "OUTBOUND_OFFENDER":
				flows = s.GenerateOutboundOffender()
			case "UDP_SCAN":
				flows = s.GenerateUDPScan()
			}

			for _, flow := range flows {
				go s.SendFlow(flow)
			}

		case <-scenarioTicker.C:
			currentScenario = (currentScenario + 1) % len(scenarios)
			s.scenario = scenarios[currentScenario]
			fmt.Printf("⚠️  Running %s scenario\n", s.scenario)
		}
	}
}

func main() {
	rand.Seed(time.Now().UnixNano())

	serverURL := "http://localhost:8888"
	localIP := "192.168.1.100"
	simulator := NewSimulator(serverURL, localIP)

	fmt.Println("DDoS Mitigation Engine - Flow Simulator")
	fmt.Println("=======================================")

	simulator.Run()
}
