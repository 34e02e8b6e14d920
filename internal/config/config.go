// Package config models the export table consumed at startup.
//
// A config file is an ordered list of export descriptors plus optional
// mount-option overrides. The order is significant: batteries run against
// exports in the order they appear.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mount modes.
const (
	ModeReadWrite = "rw"
	ModeReadOnly  = "ro"
)

// Transports.
const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// Config is the top-level harness configuration.
type Config struct {
	// Exports lists the NFS exports to validate, in battery order.
	Exports []Export `yaml:"exports"`

	// Options holds the default mount options applied to every export
	// that doesn't carry its own override. Nil means built-in defaults.
	Options *MountOptions `yaml:"options,omitempty"`
}

// Export describes one NFS export to mount and test.
type Export struct {
	// Vendor and Software identify the filer for the report metadata.
	Vendor   string `yaml:"vendor"`
	Software string `yaml:"software"`

	// Server is the export server hostname or address.
	Server string `yaml:"server"`

	// Export is the remote export path (e.g. /ifs/zones/nfs3_01_rw).
	Export string `yaml:"export"`

	// Mode is "rw" or "ro". Fixed for the lifetime of a session.
	Mode string `yaml:"mode"`

	// Transport is "tcp" or "udp".
	Transport string `yaml:"transport"`

	// Options overrides the config-level mount options for this export.
	Options *MountOptions `yaml:"options,omitempty"`
}

// Source returns the server:/export string handed to mount(8).
func (e *Export) Source() string {
	return e.Server + ":" + e.Export
}

// ReadWrite reports whether the export is mounted read-write.
func (e *Export) ReadWrite() bool {
	return e.Mode == ModeReadWrite
}

// MountOptions holds the NFSv3 tunables that become the -o option string.
//
// Attribute-cache behavior is selected by precedence: noac disables the
// cache entirely, actimeo sets a single bound, and when neither is set the
// four acreg/acdir bounds apply.
type MountOptions struct {
	Rsize        int  `yaml:"rsize"`
	Wsize        int  `yaml:"wsize"`
	Timeo        int  `yaml:"timeo"`   // tenths of a second
	Retrans      int  `yaml:"retrans"`
	Soft         bool `yaml:"soft"`
	Intr         bool `yaml:"intr"`
	Noac         bool `yaml:"noac"`
	Actimeo      int  `yaml:"actimeo,omitempty"` // seconds; 0 means unset
	Acregmin     int  `yaml:"acregmin"`
	Acregmax     int  `yaml:"acregmax"`
	Acdirmin     int  `yaml:"acdirmin"`
	Acdirmax     int  `yaml:"acdirmax"`
	Nosharecache bool `yaml:"nosharecache"`
	Nordirplus   bool `yaml:"nordirplus"`
}

// DefaultMountOptions returns the stock NFSv3 tunables: TCP-friendly 1MiB
// transfer sizes, hard mounts with intr, and the conventional
// attribute-cache bounds.
func DefaultMountOptions() *MountOptions {
	return &MountOptions{
		Rsize:    1048576,
		Wsize:    1048576,
		Timeo:    600,
		Retrans:  2,
		Soft:     false,
		Intr:     true,
		Acregmin: 3,
		Acregmax: 60,
		Acdirmin: 30,
		Acdirmax: 60,
	}
}

// OptionString builds the comma-joined option list for mount(8).
// transport is "tcp" or "udp"; mode is "rw" or "ro" and is appended last.
func (o *MountOptions) OptionString(transport, mode string) string {
	opts := []string{
		"vers=3",
		"proto=" + transport,
		"rsize=" + strconv.Itoa(o.Rsize),
		"wsize=" + strconv.Itoa(o.Wsize),
		"timeo=" + strconv.Itoa(o.Timeo),
		"retrans=" + strconv.Itoa(o.Retrans),
	}

	if o.Soft {
		opts = append(opts, "soft")
	} else {
		opts = append(opts, "hard")
	}

	if o.Intr {
		opts = append(opts, "intr")
	}

	switch {
	case o.Noac:
		opts = append(opts, "noac")
	case o.Actimeo > 0:
		opts = append(opts, "actimeo="+strconv.Itoa(o.Actimeo))
	default:
		opts = append(opts,
			"acregmin="+strconv.Itoa(o.Acregmin),
			"acregmax="+strconv.Itoa(o.Acregmax),
			"acdirmin="+strconv.Itoa(o.Acdirmin),
			"acdirmax="+strconv.Itoa(o.Acdirmax),
		)
	}

	if o.Nosharecache {
		opts = append(opts, "nosharecache")
	}
	if o.Nordirplus {
		opts = append(opts, "nordirplus")
	}

	opts = append(opts, mode)
	return strings.Join(opts, ",")
}

// EffectiveOptions resolves the mount options for an export: the export's
// own override wins, then the config-level default, then the built-ins.
func (c *Config) EffectiveOptions(e *Export) *MountOptions {
	if e.Options != nil {
		return e.Options
	}
	if c.Options != nil {
		return c.Options
	}
	return DefaultMountOptions()
}

// Load reads and parses a config YAML file.
// Unknown fields are rejected so typos surface as load errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that required fields are present and enum fields hold
// known values.
func validate(c *Config) error {
	if len(c.Exports) == 0 {
		return fmt.Errorf("exports list is required and must be non-empty")
	}

	for i := range c.Exports {
		e := &c.Exports[i]
		if e.Server == "" {
			return fmt.Errorf("exports[%d]: server is required", i)
		}
		if e.Export == "" {
			return fmt.Errorf("exports[%d]: export is required", i)
		}
		if !strings.HasPrefix(e.Export, "/") {
			return fmt.Errorf("exports[%d]: export must be an absolute path, got %q", i, e.Export)
		}
		switch e.Mode {
		case ModeReadWrite, ModeReadOnly:
		case "":
			return fmt.Errorf("exports[%d]: mode is required (rw|ro)", i)
		default:
			return fmt.Errorf("exports[%d]: unknown mode %q (must be rw or ro)", i, e.Mode)
		}
		switch e.Transport {
		case TransportTCP, TransportUDP:
		case "":
			e.Transport = TransportTCP
		default:
			return fmt.Errorf("exports[%d]: unknown transport %q (must be tcp or udp)", i, e.Transport)
		}
		if e.Options != nil {
			if err := validateOptions(e.Options); err != nil {
				return fmt.Errorf("exports[%d]: %w", i, err)
			}
		}
	}

	if c.Options != nil {
		if err := validateOptions(c.Options); err != nil {
			return err
		}
	}

	return nil
}

func validateOptions(o *MountOptions) error {
	if o.Rsize <= 0 {
		return fmt.Errorf("rsize must be positive, got %d", o.Rsize)
	}
	if o.Wsize <= 0 {
		return fmt.Errorf("wsize must be positive, got %d", o.Wsize)
	}
	if o.Timeo <= 0 {
		return fmt.Errorf("timeo must be positive, got %d", o.Timeo)
	}
	if o.Retrans < 0 {
		return fmt.Errorf("retrans must be non-negative, got %d", o.Retrans)
	}
	if o.Noac && o.Actimeo > 0 {
		return fmt.Errorf("noac and actimeo are mutually exclusive")
	}
	return nil
}
