// Package preflight checks the environment before the bot starts polling
// and before each attack is launched.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/silver2dream/hardnested-bot/internal/config"
	"github.com/silver2dream/hardnested-bot/internal/state"
)

// CheckResult represents the result of a single check
type CheckResult struct {
	Name    string
	Passed  bool
	Warning bool
	Message string
}

// Checker performs pre-flight checks for a configuration.
type Checker struct {
	cfg *config.Config

	// availableMemory is replaceable in tests.
	availableMemory func() (uint64, error)
}

// NewChecker creates a Checker for cfg.
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{
		cfg:             cfg,
		availableMemory: AvailableMemory,
	}
}

// RunAll executes every check. The error is set when a blocking check fails;
// warnings never block.
func (c *Checker) RunAll() ([]CheckResult, error) {
	var results []CheckResult

	cfgResult := c.CheckConfig()
	results = append(results, cfgResult)
	if !cfgResult.Passed {
		return results, fmt.Errorf("config check failed: %s", cfgResult.Message)
	}

	binResult := c.CheckBinary()
	results = append(results, binResult)
	if !binResult.Passed {
		return results, fmt.Errorf("binary check failed: %s", binResult.Message)
	}

	stateResult := c.CheckStateDir()
	results = append(results, stateResult)
	if !stateResult.Passed {
		return results, fmt.Errorf("state check failed: %s", stateResult.Message)
	}

	results = append(results, c.CheckMemory())
	return results, nil
}

// CheckConfig validates the configuration.
func (c *Checker) CheckConfig() CheckResult {
	errs := c.cfg.Validate()
	if len(errs) > 0 {
		return CheckResult{
			Name:    "Config",
			Passed:  false,
			Message: errs[0].Error(),
		}
	}
	return CheckResult{
		Name:    "Config",
		Passed:  true,
		Message: fmt.Sprintf("%d whitelisted chat(s)", len(c.cfg.Telegram.Whitelist)),
	}
}

// CheckBinary verifies the attack tool exists and is executable.
func (c *Checker) CheckBinary() CheckResult {
	path := c.cfg.Attack.Binary
	info, err := os.Stat(path)
	if err != nil {
		return CheckResult{
			Name:    "Attack Binary",
			Passed:  false,
			Message: err.Error(),
		}
	}
	if info.IsDir() {
		return CheckResult{
			Name:    "Attack Binary",
			Passed:  false,
			Message: fmt.Sprintf("%s is a directory", path),
		}
	}
	if info.Mode().Perm()&0111 == 0 {
		return CheckResult{
			Name:    "Attack Binary",
			Passed:  false,
			Message: fmt.Sprintf("%s is not executable", path),
		}
	}
	return CheckResult{
		Name:    "Attack Binary",
		Passed:  true,
		Message: path,
	}
}

// CheckStateDir verifies the state directory is writable and not held by
// another running instance.
func (c *Checker) CheckStateDir() CheckResult {
	dir := c.cfg.State.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return CheckResult{Name: "State Dir", Passed: false, Message: err.Error()}
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return CheckResult{Name: "State Dir", Passed: false, Message: fmt.Sprintf("not writable: %v", err)}
	}
	probe.Close()
	os.Remove(probe.Name())

	lock := state.NewInstanceLock(dir)
	if lock.IsStale() {
		return CheckResult{
			Name:    "State Dir",
			Passed:  true,
			Warning: true,
			Message: "Stale lock detected, will be cleaned up",
		}
	}
	if _, err := os.Stat(lock.Path()); err == nil {
		if err := lock.Acquire(); err != nil {
			return CheckResult{Name: "State Dir", Passed: false, Message: err.Error()}
		}
		lock.Release()
	}

	abs, _ := filepath.Abs(dir)
	return CheckResult{
		Name:    "State Dir",
		Passed:  true,
		Message: abs,
	}
}

// CheckMemory warns when free memory is below the configured minimum.
func (c *Checker) CheckMemory() CheckResult {
	return MemoryResult(c.availableMemory, c.cfg.Attack.MinFreeMemoryMB)
}

// MemoryResult evaluates free memory against minMB using probe.
func MemoryResult(probe func() (uint64, error), minMB uint64) CheckResult {
	avail, err := probe()
	if err != nil {
		return CheckResult{
			Name:    "Memory",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("could not read memory statistics: %v", err),
		}
	}
	availMB := avail / (1024 * 1024)
	if minMB > 0 && availMB < minMB {
		return CheckResult{
			Name:    "Memory",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%d MB available, attack wants at least %d MB", availMB, minMB),
		}
	}
	return CheckResult{
		Name:    "Memory",
		Passed:  true,
		Message: fmt.Sprintf("%d MB available", availMB),
	}
}

// AvailableMemory returns the bytes of memory available to new processes.
func AvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
