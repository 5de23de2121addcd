// Package simconfig loads the TOML configuration for a simulation run:
// endpoint Ack/Nak policy, pacing limits, and an error-injection
// profile. Only cmd/ualinksim depends on this package.
package simconfig

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rosslwheeler/ualink-go/pkg/dlinject"
)

// ErrorProfile names which dlinject.Policy a run should install.
type ErrorProfile string

const (
	ProfileNone     ErrorProfile = "none"
	ProfilePeriodic ErrorProfile = "periodic"
	ProfileBurst    ErrorProfile = "burst"
	ProfileRandom   ErrorProfile = "random"
)

// ErrorKind names which dlinject.ErrorType a periodic or burst profile
// injects.
type ErrorKind string

const (
	ErrorKindCrc          ErrorKind = "crc_corruption"
	ErrorKindPacketDrop   ErrorKind = "packet_drop"
	ErrorKindSequenceDup  ErrorKind = "sequence_dup"
	ErrorKindSequenceSkip ErrorKind = "sequence_skip"
)

// EndpointConfig mirrors the fields of endpoint.Config that a
// simulation run can tune from a file.
type EndpointConfig struct {
	EnableCrcCheck bool
	EnableAckNak   bool
	AckEveryNFlits int
}

// PacingConfig bounds how a run paces its transmit side.
type PacingConfig struct {
	Enabled           bool
	MaxFlitsPerWindow int
	MaxBytesPerWindow int
}

// ErrorInjectionConfig describes the fault profile a run installs on
// its endpoint.
type ErrorInjectionConfig struct {
	Profile ErrorProfile
	Kind    ErrorKind

	// Periodic.
	Period int

	// Burst.
	BurstStart  int
	BurstLength int

	// Random.
	Probability float64
}

// SimulationConfig is the full set of knobs a simulation run reads
// from its TOML file.
type SimulationConfig struct {
	Endpoint      EndpointConfig
	Pacing        PacingConfig
	ErrorInjection ErrorInjectionConfig
}

// DefaultSimulationConfig returns the configuration a run uses unless
// a file overrides it: CRC checking and Ack/Nak on, acking every flit,
// no pacing limit, no error injection.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Endpoint: EndpointConfig{
			EnableCrcCheck: true,
			EnableAckNak:   true,
			AckEveryNFlits: 1,
		},
		ErrorInjection: ErrorInjectionConfig{Profile: ProfileNone},
	}
}

// fileConfig is the on-disk shape of a simulation config file, decoded
// field by field the way loadServiceConfig does: meta.IsDefined guards
// every assignment so an absent key leaves the default untouched
// rather than zeroing it out.
type fileConfig struct {
	EnableCrcCheck *bool  `toml:"enable_crc_check"`
	EnableAckNak   *bool  `toml:"enable_ack_nak"`
	AckEveryNFlits *int   `toml:"ack_every_n_flits"`

	PacingEnabled           *bool `toml:"pacing_enabled"`
	PacingMaxFlitsPerWindow *int  `toml:"pacing_max_flits_per_window"`
	PacingMaxBytesPerWindow *int  `toml:"pacing_max_bytes_per_window"`

	ErrorProfile     *string  `toml:"error_profile"`
	ErrorKind        *string  `toml:"error_kind"`
	ErrorPeriod      *int     `toml:"error_period"`
	ErrorBurstStart  *int     `toml:"error_burst_start"`
	ErrorBurstLength *int     `toml:"error_burst_length"`
	ErrorProbability *float64 `toml:"error_probability"`
}

// Load reads and validates a simulation config from path, applying
// each present key on top of DefaultSimulationConfig.
func Load(path string) (SimulationConfig, error) {
	cfg := DefaultSimulationConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return SimulationConfig{}, fmt.Errorf("load simulation config: %w", err)
	}

	if meta.IsDefined("enable_crc_check") {
		cfg.Endpoint.EnableCrcCheck = *raw.EnableCrcCheck
	}
	if meta.IsDefined("enable_ack_nak") {
		cfg.Endpoint.EnableAckNak = *raw.EnableAckNak
	}
	if meta.IsDefined("ack_every_n_flits") {
		cfg.Endpoint.AckEveryNFlits = *raw.AckEveryNFlits
	}

	if meta.IsDefined("pacing_enabled") {
		cfg.Pacing.Enabled = *raw.PacingEnabled
	}
	if meta.IsDefined("pacing_max_flits_per_window") {
		cfg.Pacing.MaxFlitsPerWindow = *raw.PacingMaxFlitsPerWindow
	}
	if meta.IsDefined("pacing_max_bytes_per_window") {
		cfg.Pacing.MaxBytesPerWindow = *raw.PacingMaxBytesPerWindow
	}

	if meta.IsDefined("error_profile") {
		cfg.ErrorInjection.Profile = ErrorProfile(strings.TrimSpace(*raw.ErrorProfile))
	}
	if meta.IsDefined("error_kind") {
		cfg.ErrorInjection.Kind = ErrorKind(strings.TrimSpace(*raw.ErrorKind))
	}
	if meta.IsDefined("error_period") {
		cfg.ErrorInjection.Period = *raw.ErrorPeriod
	}
	if meta.IsDefined("error_burst_start") {
		cfg.ErrorInjection.BurstStart = *raw.ErrorBurstStart
	}
	if meta.IsDefined("error_burst_length") {
		cfg.ErrorInjection.BurstLength = *raw.ErrorBurstLength
	}
	if meta.IsDefined("error_probability") {
		cfg.ErrorInjection.Probability = *raw.ErrorProbability
	}

	if err := validate(cfg); err != nil {
		return SimulationConfig{}, err
	}
	return cfg, nil
}

// errorKindToType maps a configured ErrorKind onto its dlinject.ErrorType,
// defaulting to ErrCrcCorruption when the kind is empty or unrecognized.
func errorKindToType(kind ErrorKind) dlinject.ErrorType {
	switch kind {
	case ErrorKindPacketDrop:
		return dlinject.ErrPacketDrop
	case ErrorKindSequenceDup:
		return dlinject.ErrSequenceDup
	case ErrorKindSequenceSkip:
		return dlinject.ErrSequenceSkip
	default:
		return dlinject.ErrCrcCorruption
	}
}

// BuildPolicy constructs the dlinject.Policy named by cfg's
// ErrorInjection profile, or nil for ProfileNone.
func BuildPolicy(cfg ErrorInjectionConfig) dlinject.Policy {
	switch cfg.Profile {
	case ProfilePeriodic:
		return dlinject.NewPeriodicPolicy(cfg.Period, errorKindToType(cfg.Kind)).Next
	case ProfileBurst:
		return dlinject.NewBurstPolicy(cfg.BurstStart, cfg.BurstLength, errorKindToType(cfg.Kind)).Next
	case ProfileRandom:
		return dlinject.NewRandomPolicy(cfg.Probability).Next
	default:
		return nil
	}
}

func validate(cfg SimulationConfig) error {
	switch cfg.ErrorInjection.Profile {
	case ProfileNone, ProfilePeriodic, ProfileBurst, ProfileRandom:
	default:
		return fmt.Errorf("simconfig: unknown error_profile %q", cfg.ErrorInjection.Profile)
	}
	if cfg.Endpoint.AckEveryNFlits < 0 {
		return fmt.Errorf("simconfig: ack_every_n_flits must be >= 0, got %d", cfg.Endpoint.AckEveryNFlits)
	}
	if cfg.ErrorInjection.Profile == ProfileRandom {
		if cfg.ErrorInjection.Probability < 0 || cfg.ErrorInjection.Probability > 1 {
			return fmt.Errorf("simconfig: error_probability must be in [0,1], got %v", cfg.ErrorInjection.Probability)
		}
	}
	return nil
}
