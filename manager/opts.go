package manager

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"supctl/config"
	"supctl/message"
)

const archiveExt = ".hart"

// SvcLoadOpts is a SvcLoad request resolved into typed fields. Optional
// fields left empty by the client stay empty here; defaults are applied
// from config when the spec is written.
type SvcLoadOpts struct {
	ApplicationEnvironment *message.ApplicationEnvironment
	// Binds is nil unless the client specified binds.
	Binds                []message.ServiceBind
	CompositeBinds       map[string][]message.ServiceBind
	ConfigFrom           string
	Force                bool
	Group                string
	SvcEncryptedPassword string
	Topology             *message.Topology
	UpdateStrategy       *message.UpdateStrategy
	Source               message.InstallSource
	// Archive is the artifact path when Source is InstallSourceArchive.
	Archive string
	Ident   message.PackageIdent

	bldrURL     string
	bldrChannel string
}

func NewSvcLoadOpts(m *message.SvcLoad) (SvcLoadOpts, error) {
	opts := SvcLoadOpts{
		ApplicationEnvironment: m.ApplicationEnvironment,
		ConfigFrom:             m.ConfigFrom,
		Force:                  m.Force,
		Group:                  m.Group,
		SvcEncryptedPassword:   m.SvcEncryptedPassword,
		Topology:               m.Topology,
		UpdateStrategy:         m.UpdateStrategy,
		bldrURL:                m.BldrURL,
		bldrChannel:            m.BldrChannel,
	}

	source, ident, err := ParseInstallSource(m.Source)
	if err != nil {
		return SvcLoadOpts{}, err
	}
	opts.Source, opts.Ident = source, ident
	if source == message.InstallSourceArchive {
		opts.Archive = m.Source
	}

	if m.SpecifiedBinds {
		opts.Binds = append([]message.ServiceBind{}, m.Binds...)
		opts.CompositeBinds = make(map[string][]message.ServiceBind, len(m.CompositeBinds))
		for name, list := range m.CompositeBinds {
			opts.CompositeBinds[name] = append([]message.ServiceBind(nil), list.Binds...)
		}
	}
	return opts, nil
}

// BldrURL returns the requested Builder URL or the configured default.
func (o SvcLoadOpts) BldrURL(cfg *config.Manager) string {
	if o.bldrURL != "" {
		return o.bldrURL
	}
	return cfg.BldrURL
}

func (o SvcLoadOpts) BldrChannel(cfg *config.Manager) string {
	if o.bldrChannel != "" {
		return o.bldrChannel
	}
	return cfg.BldrChannel
}

// IntoSpec applies the options onto spec. Group, application environment,
// topology and update strategy keep the value already in spec when the
// client left them unset. Binds, config_from and the service password are
// always replaced, so a forced reload without binds clears them.
func (o SvcLoadOpts) IntoSpec(cfg *config.Manager, spec *ServiceSpec) {
	spec.Ident = o.Ident.String()
	if o.Group != "" {
		spec.Group = o.Group
	}
	if o.ApplicationEnvironment != nil {
		spec.ApplicationEnvironment = o.ApplicationEnvironment.String()
	}
	spec.BldrURL = o.BldrURL(cfg)
	spec.Channel = o.BldrChannel(cfg)
	if o.Topology != nil {
		spec.Topology = o.Topology.String()
	}
	if o.UpdateStrategy != nil {
		spec.UpdateStrategy = o.UpdateStrategy.String()
	}
	spec.Binds = spec.Binds[:0]
	for _, b := range o.Binds {
		spec.Binds = append(spec.Binds, b.String())
	}
	if binds, ok := o.CompositeBinds[o.Ident.Name]; ok {
		spec.Binds = mergeBinds(spec.Binds, binds)
	}
	spec.ConfigFrom = o.ConfigFrom
	spec.SvcEncryptedPassword = o.SvcEncryptedPassword
}

// mergeBinds layers overrides onto binds, keyed by bind name.
func mergeBinds(binds []string, overrides []message.ServiceBind) []string {
	out := make([]string, 0, len(binds)+len(overrides))
	seen := make(map[string]int, len(binds))
	for _, b := range binds {
		name, _, _ := strings.Cut(b, ":")
		seen[name] = len(out)
		out = append(out, b)
	}
	for _, b := range overrides {
		if i, ok := seen[b.Name]; ok {
			out[i] = b.String()
			continue
		}
		seen[b.Name] = len(out)
		out = append(out, b.String())
	}
	return out
}

type SvcStartOpts struct {
	Ident message.PackageIdent
}

func NewSvcStartOpts(m *message.SvcStart) (SvcStartOpts, error) {
	if err := m.Ident.Validate(); err != nil {
		return SvcStartOpts{}, err
	}
	return SvcStartOpts{Ident: m.Ident}, nil
}

// ParseInstallSource reads a SvcLoad source: either a package identifier or
// the path of a .hart artifact named origin-name-version-release-arch-os.hart.
func ParseInstallSource(source string) (message.InstallSource, message.PackageIdent, error) {
	if !strings.HasSuffix(source, archiveExt) {
		ident, err := message.ParsePackageIdent(source)
		if err != nil {
			return 0, message.PackageIdent{}, err
		}
		return message.InstallSourceIdent, ident, nil
	}

	base := strings.TrimSuffix(filepath.Base(source), archiveExt)
	parts := strings.Split(base, "-")
	if len(parts) < 6 {
		return 0, message.PackageIdent{}, errors.Errorf("manager: cannot read package identifier from artifact %q", source)
	}
	n := len(parts)
	ident := message.PackageIdent{
		Origin:  parts[0],
		Name:    strings.Join(parts[1:n-4], "-"),
		Version: parts[n-4],
		Release: parts[n-3],
	}
	if err := ident.Validate(); err != nil {
		return 0, message.PackageIdent{}, err
	}
	return message.InstallSourceArchive, ident, nil
}
