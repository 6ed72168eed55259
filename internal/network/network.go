// Package network applies the per-instance firewall and forwarding
// rules: kernel forwarding flag, NAT masquerade and forward rules
// scoped to the instance's virtual interface, and ruleset persistence.
package network

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rizaleow/ovpn-manager/internal/execx"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// Configurator applies idempotent firewall and forwarding configuration.
type Configurator struct {
	runner     execx.Runner
	rulesFile  string
	sysctlFile string
	logger     *logger.Logger
}

// New creates a Configurator.
func New(runner execx.Runner, rulesFile, sysctlFile string, log *logger.Logger) *Configurator {
	return &Configurator{
		runner:     runner,
		rulesFile:  rulesFile,
		sysctlFile: sysctlFile,
		logger:     log.WithComponent("network"),
	}
}

// EnableForwarding turns on IPv4 forwarding and persists the flag.
func (c *Configurator) EnableForwarding(ctx context.Context) error {
	return c.setForwarding(ctx, "1")
}

// DisableForwarding turns off IPv4 forwarding and persists the flag.
func (c *Configurator) DisableForwarding(ctx context.Context) error {
	return c.setForwarding(ctx, "0")
}

func (c *Configurator) setForwarding(ctx context.Context, value string) error {
	if _, err := c.runner.Run(ctx, "sysctl", "-w", "net.ipv4.ip_forward="+value); err != nil {
		return err
	}
	content := "net.ipv4.ip_forward = " + value + "\n"
	if err := os.MkdirAll(filepath.Dir(c.sysctlFile), 0o755); err != nil {
		return fmt.Errorf("failed to create sysctl drop-in directory: %w", err)
	}
	if err := os.WriteFile(c.sysctlFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to persist forwarding flag: %w", err)
	}
	return nil
}

// SetupNAT installs the masquerade rule for the instance subnet and the
// two forward rules scoped to the instance device. Each rule is checked
// before it is appended, so repeated invocation never duplicates rules.
func (c *Configurator) SetupNAT(ctx context.Context, subnet, mask, device string) error {
	prefix, err := PrefixLength(mask)
	if err != nil {
		return err
	}
	egress, err := c.DefaultInterface(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect egress interface: %w", err)
	}

	cidr := fmt.Sprintf("%s/%d", subnet, prefix)

	if err := c.ensureRule(ctx, []string{"-t", "nat"}, "POSTROUTING",
		"-s", cidr, "-o", egress, "-j", "MASQUERADE"); err != nil {
		return err
	}
	if err := c.ensureRule(ctx, nil, "FORWARD",
		"-i", device, "-o", egress, "-j", "ACCEPT"); err != nil {
		return err
	}
	if err := c.ensureRule(ctx, nil, "FORWARD",
		"-i", egress, "-o", device,
		"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "nat rules ensured",
		"subnet", cidr, "egress", egress, "device", device)
	return nil
}

// ensureRule appends a rule only when the check reports it missing.
func (c *Configurator) ensureRule(ctx context.Context, base []string, chain string, spec ...string) error {
	check := append(append([]string{}, base...), append([]string{"-C", chain}, spec...)...)
	if _, err := c.runner.Run(ctx, "iptables", check...); err == nil {
		return nil // already present
	} else if !apperrors.IsCommand(err) {
		return err
	}

	add := append(append([]string{}, base...), append([]string{"-A", chain}, spec...)...)
	if _, err := c.runner.Run(ctx, "iptables", add...); err != nil {
		return fmt.Errorf("failed to append rule: %w", err)
	}
	return nil
}

// TeardownNAT removes the rules SetupNAT installed, tolerating rules
// that are already gone.
func (c *Configurator) TeardownNAT(ctx context.Context, subnet, mask, device string) error {
	prefix, err := PrefixLength(mask)
	if err != nil {
		return err
	}
	egress, err := c.DefaultInterface(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect egress interface: %w", err)
	}
	cidr := fmt.Sprintf("%s/%d", subnet, prefix)

	deletions := [][]string{
		{"-t", "nat", "-D", "POSTROUTING", "-s", cidr, "-o", egress, "-j", "MASQUERADE"},
		{"-D", "FORWARD", "-i", device, "-o", egress, "-j", "ACCEPT"},
		{"-D", "FORWARD", "-i", egress, "-o", device, "-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
	}
	for _, del := range deletions {
		if _, err := c.runner.Run(ctx, "iptables", del...); err != nil && !apperrors.IsCommand(err) {
			return err
		}
	}
	return nil
}

// ListRules returns the numbered FORWARD chain rules for interactive
// management.
func (c *Configurator) ListRules(ctx context.Context) ([]string, error) {
	result, err := c.runner.Run(ctx, "iptables", "-L", "FORWARD", "--line-numbers", "-n", "-v")
	if err != nil {
		return nil, err
	}

	var rules []string
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Chain") || strings.HasPrefix(line, "num") {
			continue
		}
		rules = append(rules, line)
	}
	return rules, nil
}

// DeleteRule removes the FORWARD rule at the given 1-based index.
func (c *Configurator) DeleteRule(ctx context.Context, index int) error {
	if index < 1 {
		return apperrors.NewValidationError("index", "rule index must be >= 1")
	}
	_, err := c.runner.Run(ctx, "iptables", "-D", "FORWARD", strconv.Itoa(index))
	if err != nil && apperrors.IsCommand(err) {
		return apperrors.NewNotFoundError("rule", strconv.Itoa(index))
	}
	return err
}

// Persist serializes the full ruleset so it survives a reboot.
func (c *Configurator) Persist(ctx context.Context) error {
	result, err := c.runner.Run(ctx, "iptables-save")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.rulesFile), 0o755); err != nil {
		return fmt.Errorf("failed to create rules directory: %w", err)
	}
	if err := os.WriteFile(c.rulesFile, []byte(result.Stdout), 0o640); err != nil {
		return fmt.Errorf("failed to persist ruleset: %w", err)
	}
	return nil
}

// DefaultInterface detects the default egress interface from the
// kernel routing table.
func (c *Configurator) DefaultInterface(ctx context.Context) (string, error) {
	result, err := c.runner.Run(ctx, "ip", "route", "show", "default")
	if err != nil {
		return "", err
	}
	iface := parseDefaultRoute(result.Stdout)
	if iface == "" {
		return "", fmt.Errorf("no default route found")
	}
	return iface, nil
}

// parseDefaultRoute extracts the device from "default via ... dev X ..."
func parseDefaultRoute(output string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		for i := 0; i < len(fields)-1; i++ {
			if fields[i] == "dev" {
				return fields[i+1]
			}
		}
	}
	return ""
}

// PrefixLength computes the CIDR prefix length of a dotted-decimal
// netmask, rejecting non-contiguous masks.
func PrefixLength(mask string) (int, error) {
	parts := strings.Split(mask, ".")
	if len(parts) != 4 {
		return 0, apperrors.NewValidationError("mask", "must be dotted-decimal, e.g. 255.255.255.0")
	}

	var bits uint32
	for _, part := range parts {
		octet, err := strconv.Atoi(part)
		if err != nil || octet < 0 || octet > 255 {
			return 0, apperrors.NewValidationError("mask", "octets must be 0-255")
		}
		bits = bits<<8 | uint32(octet)
	}

	prefix := 0
	seenZero := false
	for i := 31; i >= 0; i-- {
		if bits&(1<<uint(i)) != 0 {
			if seenZero {
				return 0, apperrors.NewValidationError("mask", "mask bits must be contiguous")
			}
			prefix++
		} else {
			seenZero = true
		}
	}
	return prefix, nil
}
