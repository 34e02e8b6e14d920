package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exports.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeConfig(t, `
exports:
  - vendor: Dell
    software: PowerScale OneFS 9.10.0.0
    server: onefs002-2.beastmode.local.net
    export: /ifs/ACCESS_ZONES/system/nfs3_01_rw
    mode: rw
    transport: tcp
  - vendor: Dell
    software: PowerScale OneFS 9.10.0.0
    server: onefs002-1.beastmode.local.net
    export: /ifs/ACCESS_ZONES/system/nfs3_01_ro
    mode: ro
    transport: tcp
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Exports, 2)
	assert.Equal(t, "Dell", cfg.Exports[0].Vendor)
	assert.Equal(t, "rw", cfg.Exports[0].Mode)
	assert.True(t, cfg.Exports[0].ReadWrite())
	assert.Equal(t, "ro", cfg.Exports[1].Mode)
	assert.False(t, cfg.Exports[1].ReadWrite())
	assert.Equal(t, "onefs002-2.beastmode.local.net:/ifs/ACCESS_ZONES/system/nfs3_01_rw",
		cfg.Exports[0].Source())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/exports.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, `
exports:
  - server: nas1
    exprot: /vol/a
    mode: rw
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty exports",
			content: "exports: []\n",
			wantErr: "exports list is required",
		},
		{
			name: "missing server",
			content: `
exports:
  - export: /vol/a
    mode: rw
`,
			wantErr: "exports[0]: server is required",
		},
		{
			name: "relative export path",
			content: `
exports:
  - server: nas1
    export: vol/a
    mode: rw
`,
			wantErr: "must be an absolute path",
		},
		{
			name: "bad mode",
			content: `
exports:
  - server: nas1
    export: /vol/a
    mode: readwrite
`,
			wantErr: `unknown mode "readwrite"`,
		},
		{
			name: "bad transport",
			content: `
exports:
  - server: nas1
    export: /vol/a
    mode: rw
    transport: sctp
`,
			wantErr: `unknown transport "sctp"`,
		},
		{
			name: "noac and actimeo together",
			content: `
exports:
  - server: nas1
    export: /vol/a
    mode: rw
options:
  rsize: 65536
  wsize: 65536
  timeo: 600
  retrans: 2
  noac: true
  actimeo: 30
`,
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DefaultTransport(t *testing.T) {
	path := writeConfig(t, `
exports:
  - server: nas1
    export: /vol/a
    mode: rw
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportTCP, cfg.Exports[0].Transport)
}

func TestOptionString_Defaults(t *testing.T) {
	opts := DefaultMountOptions()
	got := opts.OptionString("tcp", "rw")

	assert.Equal(t,
		"vers=3,proto=tcp,rsize=1048576,wsize=1048576,timeo=600,retrans=2,hard,intr,"+
			"acregmin=3,acregmax=60,acdirmin=30,acdirmax=60,rw",
		got)
}

func TestOptionString_AttributeCachePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*MountOptions)
		contains []string
		excludes []string
	}{
		{
			name:     "noac wins over actimeo",
			mutate:   func(o *MountOptions) { o.Noac = true; o.Actimeo = 30 },
			contains: []string{",noac,"},
			excludes: []string{"actimeo=", "acregmin="},
		},
		{
			name:     "actimeo replaces the four bounds",
			mutate:   func(o *MountOptions) { o.Actimeo = 30 },
			contains: []string{",actimeo=30,"},
			excludes: []string{"acregmin=", "acdirmax=", "noac"},
		},
		{
			name:     "bounds are the default",
			mutate:   func(o *MountOptions) {},
			contains: []string{"acregmin=3", "acregmax=60", "acdirmin=30", "acdirmax=60"},
			excludes: []string{"noac", "actimeo="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultMountOptions()
			tt.mutate(opts)
			got := opts.OptionString("tcp", "rw")
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, got, not)
			}
		})
	}
}

func TestOptionString_Flags(t *testing.T) {
	opts := DefaultMountOptions()
	opts.Soft = true
	opts.Intr = false
	opts.Nosharecache = true
	opts.Nordirplus = true

	got := opts.OptionString("udp", "ro")

	assert.Contains(t, got, "proto=udp")
	assert.Contains(t, got, ",soft,")
	assert.NotContains(t, got, "hard")
	assert.NotContains(t, got, "intr")
	assert.Contains(t, got, "nosharecache")
	assert.Contains(t, got, "nordirplus")
	assert.True(t, len(got) > 3 && got[len(got)-3:] == ",ro", "mode token must be last: %s", got)
}

func TestEffectiveOptions(t *testing.T) {
	override := &MountOptions{Rsize: 65536, Wsize: 65536, Timeo: 300, Retrans: 1}
	cfgLevel := &MountOptions{Rsize: 32768, Wsize: 32768, Timeo: 300, Retrans: 1}

	cfg := &Config{
		Exports: []Export{
			{Server: "nas1", Export: "/vol/a", Mode: "rw", Options: override},
			{Server: "nas1", Export: "/vol/b", Mode: "rw"},
		},
		Options: cfgLevel,
	}

	assert.Same(t, override, cfg.EffectiveOptions(&cfg.Exports[0]))
	assert.Same(t, cfgLevel, cfg.EffectiveOptions(&cfg.Exports[1]))

	bare := &Config{Exports: cfg.Exports}
	assert.Equal(t, DefaultMountOptions(), bare.EffectiveOptions(&bare.Exports[1]))
}
