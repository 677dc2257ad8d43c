package chaos

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config controls faults injected on FIX writes
type Config struct {
	Enabled bool
	// Profile, when set, overrides the individual fields below
	Profile string
	// TargetMsgType limits write faults to one MsgType(35), e.g. "D"
	TargetMsgType string
	DropPct       int
	DelayMsMin    int
	DelayMsMax    int
	Seed          int64
	// WindowMs stops injecting faults this long after start; 0 means never
	WindowMs int
}

// LoadConfig loads chaos configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Enabled:       getEnvAsBool("CHAOS_ENABLED", false),
		Profile:       getEnvAsString("CHAOS_PROFILE", ""),
		TargetMsgType: getEnvAsString("CHAOS_TARGET_MSG_TYPE", ""),
		DropPct:       getEnvAsInt("CHAOS_DROP_PCT", 0),
		DelayMsMin:    getEnvAsInt("CHAOS_DELAY_MS_MIN", 0),
		DelayMsMax:    getEnvAsInt("CHAOS_DELAY_MS_MAX", 0),
		Seed:          getEnvAsInt64("CHAOS_SEED", 1),
		WindowMs:      getEnvAsInt("CHAOS_WINDOW_MS", 0),
	}
}

// ApplyProfile overlays a compact profile such as
// "drop-pct=30,delay=50-250,msg=D" onto c. A single delay value fixes both
// bounds. Unknown keys are rejected.
func (c *Config) ApplyProfile(profile string) error {
	for _, part := range strings.Split(profile, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("chaos profile entry %q: missing '='", part)
		}
		switch key {
		case "drop-pct":
			pct, err := strconv.Atoi(val)
			if err != nil || pct < 0 || pct > 100 {
				return fmt.Errorf("chaos profile: invalid drop-pct %q", val)
			}
			c.DropPct = pct
		case "delay":
			lo, hi, found := strings.Cut(val, "-")
			if !found {
				hi = lo
			}
			loMs, err := strconv.Atoi(lo)
			if err != nil {
				return fmt.Errorf("chaos profile: invalid delay min: %w", err)
			}
			hiMs, err := strconv.Atoi(hi)
			if err != nil {
				return fmt.Errorf("chaos profile: invalid delay max: %w", err)
			}
			c.DelayMsMin, c.DelayMsMax = loMs, hiMs
		case "msg":
			c.TargetMsgType = val
		default:
			return fmt.Errorf("chaos profile: unknown key %q", key)
		}
	}
	return nil
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

