package firewall

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/coreos/go-iptables/iptables"
	"github.com/hashicorp/go-multierror"

	"github.com/nshruti113/ddos-mitigation-engine/internal/models"
)

const filterTable = "filter"

// IPTablesBackend drops offender traffic with netfilter rules on the
// filter table's INPUT and OUTPUT chains.
type IPTablesBackend struct {
	mu    sync.Mutex
	ipt   *iptables.IPTables
	iface string
}

// NewIPTablesBackend connects to the host's iptables.
func NewIPTablesBackend(iface string) (*IPTablesBackend, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("initializing iptables: %w", err)
	}
	return &IPTablesBackend{ipt: ipt, iface: iface}, nil
}

// InstallRule inserts one drop rule per protocol, matching the offender's
// address on the monitored interface and all accumulated ports for that
// protocol. Rules that already exist are left alone, so installing the
// same descriptor twice is a no-op.
func (b *IPTablesBackend) InstallRule(desc models.RuleDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	chain := chainFor(desc.Direction)
	for protocol, ports := range portsByProtocol(desc.PortMatches) {
		spec := b.ruleSpec(desc, protocol, ports)

		ok, err := b.ipt.Exists(filterTable, chain, spec...)
		if err != nil {
			return fmt.Errorf("checking %s rule for %s: %w", chain, desc.MatchAddress, err)
		}
		if ok {
			continue
		}
		if err := b.ipt.Insert(filterTable, chain, 1, spec...); err != nil {
			return fmt.Errorf("inserting %s rule for %s: %w", chain, desc.MatchAddress, err)
		}
	}

	return nil
}

// RemoveRule deletes every rule on the direction's chain that matches the
// banned address. Returns ErrRuleNotFound when nothing matched, which
// callers treat as success.
func (b *IPTablesBackend) RemoveRule(matchAddress string, direction models.Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	chain := chainFor(direction)
	rules, err := b.ipt.List(filterTable, chain)
	if err != nil {
		return fmt.Errorf("listing %s rules: %w", chain, err)
	}

	var result *multierror.Error
	removed := false
	for _, rule := range rules {
		args := strings.Fields(rule)
		// Listed rules look like "-A CHAIN <spec...>".
		if len(args) < 3 || args[0] != "-A" {
			continue
		}
		if !ruleMatchesAddress(args[2:], matchAddress) {
			continue
		}
		if err := b.ipt.Delete(filterTable, chain, args[2:]...); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		removed = true
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	if !removed {
		return ErrRuleNotFound
	}
	return nil
}

// ruleSpec builds the iptables rule specification for one protocol.
// Inbound rules match the remote source address and the local destination
// ports; outbound rules match the remote destination address and the
// local source ports.
func (b *IPTablesBackend) ruleSpec(desc models.RuleDescriptor, protocol string, ports []int) []string {
	portList := make([]string, len(ports))
	for i, port := range ports {
		portList[i] = strconv.Itoa(port)
	}

	var spec []string
	if desc.Direction == models.DirectionOutbound {
		spec = append(spec, "-o", desc.Interface, "-d", desc.MatchAddress)
		spec = append(spec, "-p", strings.ToLower(protocol),
			"-m", "multiport", "--sports", strings.Join(portList, ","))
	} else {
		spec = append(spec, "-i", desc.Interface, "-s", desc.MatchAddress)
		spec = append(spec, "-p", strings.ToLower(protocol),
			"-m", "multiport", "--dports", strings.Join(portList, ","))
	}
	return append(spec, "-j", desc.Action)
}

// portsByProtocol groups the accumulated port/protocol pairs so each
// protocol gets a single multiport rule.
func portsByProtocol(matches []models.PortProtocol) map[string][]int {
	grouped := make(map[string][]int)
	for _, pm := range matches {
		grouped[pm.Protocol] = append(grouped[pm.Protocol], pm.Port)
	}
	for _, ports := range grouped {
		sort.Ints(ports)
	}
	return grouped
}

func ruleMatchesAddress(spec []string, addr string) bool {
	for i := 0; i < len(spec)-1; i++ {
		if spec[i] != "-s" && spec[i] != "-d" {
			continue
		}
		// iptables lists addresses in CIDR form.
		if spec[i+1] == addr || spec[i+1] == addr+"/32" || spec[i+1] == addr+"/128" {
			return true
		}
	}
	return false
}
