package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-lifecycle"
	lifecyclecmd "github.com/goliatone/go-lifecycle/internal/commands/lifecycle"
	"github.com/google/uuid"
)

var moduleBuilder = func(cfg lifecycle.Config) (*lifecycle.Module, error) {
	return lifecycle.New(cfg)
}

type commandContext struct {
	configFlag *string

	once      sync.Once
	module    *lifecycle.Module
	moduleErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) loadConfig() (lifecycle.Config, error) {
	var path string
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	if path == "" {
		return lifecycle.DefaultConfig(), nil
	}
	return lifecycle.LoadConfig(path)
}

// ensureModule builds the module once per invocation. The CLI always drives
// the go-command handlers, so commands are forced on.
func (c *commandContext) ensureModule() (*lifecycle.Module, error) {
	c.once.Do(func() {
		cfg, err := c.loadConfig()
		if err != nil {
			c.moduleErr = err
			return
		}
		cfg.Commands.Enabled = true
		module, err := moduleBuilder(cfg)
		if err != nil {
			c.moduleErr = fmt.Errorf("initialise lifecycle module: %w", err)
			return
		}
		c.module = module
	})
	return c.module, c.moduleErr
}

func (c *commandContext) close() error {
	if c.module == nil {
		return nil
	}
	err := c.module.Close()
	c.module = nil
	return err
}

func parseHandleID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse handle id %q: %w", value, err)
	}
	return id, nil
}

func parseOptionalTime(flag, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("parse --%s: expected RFC3339 timestamp: %w", flag, err)
	}
	return &parsed, nil
}

func parseRequiredTime(flag, value string) (time.Time, error) {
	parsed, err := parseOptionalTime(flag, value)
	if err != nil {
		return time.Time{}, err
	}
	if parsed == nil {
		return time.Time{}, errors.New("--" + flag + " is required")
	}
	return *parsed, nil
}

func parseOptionalUUID(value string) (uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(value)
}

func (c *commandContext) handlers() (*lifecyclecmd.HandlerSet, error) {
	module, err := c.ensureModule()
	if err != nil {
		return nil, err
	}
	handlers := module.Commands()
	if handlers == nil {
		return nil, errors.New("lifecycle commands are not configured")
	}
	return handlers, nil
}
