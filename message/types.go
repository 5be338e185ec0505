package message

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"supctl/codec"
)

var (
	ErrInvalidPackageIdent = errors.New("message: invalid package identifier")
	ErrInvalidServiceGroup = errors.New("message: invalid service group")
	ErrInvalidServiceBind  = errors.New("message: invalid service bind")
)

// Topology of a service group.
type Topology int32

const (
	TopologyStandalone Topology = 0
	TopologyLeader     Topology = 1
)

func (t Topology) String() string {
	switch t {
	case TopologyStandalone:
		return "standalone"
	case TopologyLeader:
		return "leader"
	}
	return fmt.Sprintf("Topology(%d)", int32(t))
}

// ParseTopology accepts the lowercase names printed by String.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(s) {
	case "standalone":
		return TopologyStandalone, nil
	case "leader":
		return TopologyLeader, nil
	}
	return 0, fmt.Errorf("message: unknown topology %q", s)
}

// UpdateStrategy controls how a running service picks up new releases.
type UpdateStrategy int32

const (
	UpdateStrategyNone    UpdateStrategy = 0
	UpdateStrategyAtOnce  UpdateStrategy = 1
	UpdateStrategyRolling UpdateStrategy = 2
)

func (s UpdateStrategy) String() string {
	switch s {
	case UpdateStrategyNone:
		return "none"
	case UpdateStrategyAtOnce:
		return "at-once"
	case UpdateStrategyRolling:
		return "rolling"
	}
	return fmt.Sprintf("UpdateStrategy(%d)", int32(s))
}

func ParseUpdateStrategy(s string) (UpdateStrategy, error) {
	switch strings.ToLower(s) {
	case "none":
		return UpdateStrategyNone, nil
	case "at-once":
		return UpdateStrategyAtOnce, nil
	case "rolling":
		return UpdateStrategyRolling, nil
	}
	return 0, fmt.Errorf("message: unknown update strategy %q", s)
}

// InstallSource says whether SvcLoad.Source names a package or an archive.
type InstallSource int32

const (
	InstallSourceIdent   InstallSource = 0
	InstallSourceArchive InstallSource = 1
)

// PackageIdent identifies a package as origin/name[/version[/release]].
type PackageIdent struct {
	Origin  string
	Name    string
	Version string
	Release string
}

// ParsePackageIdent parses "origin/name", "origin/name/version" or
// "origin/name/version/release".
func ParsePackageIdent(s string) (PackageIdent, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 4 {
		return PackageIdent{}, fmt.Errorf("%w: %q", ErrInvalidPackageIdent, s)
	}
	for _, p := range parts {
		if p == "" {
			return PackageIdent{}, fmt.Errorf("%w: %q", ErrInvalidPackageIdent, s)
		}
	}
	ident := PackageIdent{Origin: parts[0], Name: parts[1]}
	if len(parts) > 2 {
		ident.Version = parts[2]
	}
	if len(parts) > 3 {
		ident.Release = parts[3]
	}
	if err := ident.Validate(); err != nil {
		return PackageIdent{}, err
	}
	return ident, nil
}

// Validate checks an ident decoded off the wire. Origin and name are
// required, and no component may contain a path separator or be "." or "..",
// since the name ends up in a file path.
func (p PackageIdent) Validate() error {
	if p.Origin == "" || p.Name == "" {
		return fmt.Errorf("%w: origin and name are required", ErrInvalidPackageIdent)
	}
	if p.Release != "" && p.Version == "" {
		return fmt.Errorf("%w: release without version", ErrInvalidPackageIdent)
	}
	for _, part := range []string{p.Origin, p.Name, p.Version, p.Release} {
		if part == "." || part == ".." || strings.ContainsAny(part, "/\\\x00") {
			return fmt.Errorf("%w: %q", ErrInvalidPackageIdent, part)
		}
	}
	return nil
}

func (p PackageIdent) String() string {
	s := p.Origin + "/" + p.Name
	if p.Version != "" {
		s += "/" + p.Version
		if p.Release != "" {
			s += "/" + p.Release
		}
	}
	return s
}

// FullyQualified reports whether both version and release are set.
func (p PackageIdent) FullyQualified() bool {
	return p.Version != "" && p.Release != ""
}

func (p *PackageIdent) AppendProto(b []byte) []byte {
	b = codec.AppendString(b, 1, p.Origin)
	b = codec.AppendString(b, 2, p.Name)
	b = codec.AppendString(b, 3, p.Version)
	return codec.AppendString(b, 4, p.Release)
}

func (p *PackageIdent) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			p.Origin = string(f.Bytes)
		case 2:
			p.Name = string(f.Bytes)
		case 3:
			p.Version = string(f.Bytes)
		case 4:
			p.Release = string(f.Bytes)
		}
		return nil
	})
}

type ApplicationEnvironment struct {
	Application string
	Environment string
}

// ParseApplicationEnvironment parses "application.environment".
func ParseApplicationEnvironment(s string) (ApplicationEnvironment, error) {
	app, env, ok := strings.Cut(s, ".")
	if !ok || app == "" || env == "" {
		return ApplicationEnvironment{}, fmt.Errorf("message: invalid application environment %q", s)
	}
	return ApplicationEnvironment{Application: app, Environment: env}, nil
}

func (a ApplicationEnvironment) String() string {
	return a.Application + "." + a.Environment
}

func (a *ApplicationEnvironment) AppendProto(b []byte) []byte {
	b = codec.AppendString(b, 1, a.Application)
	return codec.AppendString(b, 2, a.Environment)
}

func (a *ApplicationEnvironment) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			a.Application = string(f.Bytes)
		case 2:
			a.Environment = string(f.Bytes)
		}
		return nil
	})
}

// ServiceGroup is written [app.env#]service.group[@organization].
type ServiceGroup struct {
	Service                string
	Group                  string
	ApplicationEnvironment *ApplicationEnvironment
	Organization           string
}

func ParseServiceGroup(s string) (ServiceGroup, error) {
	var sg ServiceGroup
	rest := s
	if appEnv, tail, ok := strings.Cut(rest, "#"); ok {
		ae, err := ParseApplicationEnvironment(appEnv)
		if err != nil {
			return ServiceGroup{}, fmt.Errorf("%w: %q", ErrInvalidServiceGroup, s)
		}
		sg.ApplicationEnvironment = &ae
		rest = tail
	}
	if head, org, ok := strings.Cut(rest, "@"); ok {
		if org == "" {
			return ServiceGroup{}, fmt.Errorf("%w: %q", ErrInvalidServiceGroup, s)
		}
		sg.Organization = org
		rest = head
	}
	svc, group, ok := strings.Cut(rest, ".")
	if !ok || svc == "" || group == "" {
		return ServiceGroup{}, fmt.Errorf("%w: %q", ErrInvalidServiceGroup, s)
	}
	sg.Service, sg.Group = svc, group
	return sg, nil
}

func (sg ServiceGroup) String() string {
	var b strings.Builder
	if sg.ApplicationEnvironment != nil {
		b.WriteString(sg.ApplicationEnvironment.String())
		b.WriteByte('#')
	}
	b.WriteString(sg.Service)
	b.WriteByte('.')
	b.WriteString(sg.Group)
	if sg.Organization != "" {
		b.WriteByte('@')
		b.WriteString(sg.Organization)
	}
	return b.String()
}

func (sg *ServiceGroup) AppendProto(b []byte) []byte {
	b = codec.AppendString(b, 1, sg.Service)
	b = codec.AppendString(b, 2, sg.Group)
	if sg.ApplicationEnvironment != nil {
		b = codec.AppendMessage(b, 3, sg.ApplicationEnvironment)
	}
	return codec.AppendString(b, 4, sg.Organization)
}

func (sg *ServiceGroup) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			sg.Service = string(f.Bytes)
		case 2:
			sg.Group = string(f.Bytes)
		case 3:
			sg.ApplicationEnvironment = &ApplicationEnvironment{}
			return sg.ApplicationEnvironment.UnmarshalProto(f.Bytes)
		case 4:
			sg.Organization = string(f.Bytes)
		}
		return nil
	})
}

// ServiceBind maps a bind name to the service group that satisfies it,
// written name:service.group.
type ServiceBind struct {
	Name         string
	ServiceGroup ServiceGroup
}

func ParseServiceBind(s string) (ServiceBind, error) {
	name, group, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return ServiceBind{}, fmt.Errorf("%w: %q", ErrInvalidServiceBind, s)
	}
	sg, err := ParseServiceGroup(group)
	if err != nil {
		return ServiceBind{}, fmt.Errorf("%w: %q", ErrInvalidServiceBind, s)
	}
	return ServiceBind{Name: name, ServiceGroup: sg}, nil
}

func (sb ServiceBind) String() string {
	return sb.Name + ":" + sb.ServiceGroup.String()
}

func (sb *ServiceBind) AppendProto(b []byte) []byte {
	b = codec.AppendString(b, 1, sb.Name)
	return codec.AppendMessage(b, 2, &sb.ServiceGroup)
}

func (sb *ServiceBind) UnmarshalProto(b []byte) error {
	return codec.ConsumeFields(b, func(f codec.Field) error {
		switch f.Num {
		case 1:
			sb.Name = string(f.Bytes)
		case 2:
			return sb.ServiceGroup.UnmarshalProto(f.Bytes)
		}
		return nil
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
