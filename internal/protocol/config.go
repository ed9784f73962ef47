// internal/protocol/config.go
package protocol

import (
	"strconv"
	"time"
)

// MaxTerminatorLength is the longest accepted line terminator, e.g. "\r\n"
const MaxTerminatorLength = 2

// SessionConfig represents the serial link settings of one session. It is a
// plain value; sessions with different settings can coexist.
type SessionConfig struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	Timeout     time.Duration `json:"timeout"`
	Terminator  string        `json:"terminator"`
	SettleDelay time.Duration `json:"settle_delay"`
}

// Validate rejects a configuration Open could not work with
func (c SessionConfig) Validate() error {
	if c.Port == "" {
		return &ConfigError{Kind: MissingField, Field: "port"}
	}
	if c.BaudRate <= 0 {
		return &ConfigError{Kind: InvalidValue, Field: "baud_rate", Value: c.BaudRate}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Kind: InvalidValue, Field: "timeout", Value: c.Timeout}
	}
	if c.Terminator == "" || len(c.Terminator) > MaxTerminatorLength {
		return &ConfigError{Kind: InvalidValue, Field: "terminator", Value: strconv.Quote(c.Terminator)}
	}
	if c.SettleDelay < 0 {
		return &ConfigError{Kind: InvalidValue, Field: "settle_delay", Value: c.SettleDelay}
	}
	return nil
}
