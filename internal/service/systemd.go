// Package service controls the per-instance systemd units that run the
// OpenVPN daemons.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rizaleow/ovpn-manager/internal/execx"
)

// Controller manages systemd template units, one per instance.
type Controller struct {
	runner   execx.Runner
	template string // e.g. "openvpn-server@%s"
}

// NewController creates a Controller that instantiates template per
// instance name.
func NewController(runner execx.Runner, template string) *Controller {
	return &Controller{runner: runner, template: template}
}

// Unit returns the systemd unit name for an instance.
func (c *Controller) Unit(instance string) string {
	return fmt.Sprintf(c.template, instance)
}

// Enable marks the unit to start at boot.
func (c *Controller) Enable(ctx context.Context, instance string) error {
	_, err := c.runner.Run(ctx, "systemctl", "enable", c.Unit(instance))
	return err
}

// Disable removes the unit from boot startup.
func (c *Controller) Disable(ctx context.Context, instance string) error {
	_, err := c.runner.Run(ctx, "systemctl", "disable", c.Unit(instance))
	return err
}

// Start starts the unit.
func (c *Controller) Start(ctx context.Context, instance string) error {
	_, err := c.runner.Run(ctx, "systemctl", "start", c.Unit(instance))
	return err
}

// Stop stops the unit.
func (c *Controller) Stop(ctx context.Context, instance string) error {
	_, err := c.runner.Run(ctx, "systemctl", "stop", c.Unit(instance))
	return err
}

// Restart restarts the unit.
func (c *Controller) Restart(ctx context.Context, instance string) error {
	_, err := c.runner.Run(ctx, "systemctl", "restart", c.Unit(instance))
	return err
}

// IsActive reports whether the unit is currently running. systemctl
// exits non-zero for inactive units, so a command error with output
// still yields a definite answer.
func (c *Controller) IsActive(ctx context.Context, instance string) (bool, error) {
	result, err := c.runner.Run(ctx, "systemctl", "is-active", c.Unit(instance))
	state := strings.TrimSpace(result.Stdout)
	if state == "active" {
		return true, nil
	}
	if state != "" {
		return false, nil
	}
	return false, err
}
