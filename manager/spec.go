package manager

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const specExt = ".spec.toml"

type DesiredState string

const (
	DesiredStateUp   DesiredState = "up"
	DesiredStateDown DesiredState = "down"
)

// ServiceSpec is the on-disk record of a loaded service, one file per
// service name in the specs directory.
type ServiceSpec struct {
	Ident                  string       `toml:"ident"`
	Group                  string       `toml:"group"`
	ApplicationEnvironment string       `toml:"application_environment,omitempty"`
	BldrURL                string       `toml:"bldr_url"`
	Channel                string       `toml:"channel"`
	Topology               string       `toml:"topology"`
	UpdateStrategy         string       `toml:"update_strategy"`
	Binds                  []string     `toml:"binds"`
	ConfigFrom             string       `toml:"config_from,omitempty"`
	SvcEncryptedPassword   string       `toml:"svc_encrypted_password,omitempty"`
	Archive                string       `toml:"archive,omitempty"`
	ArchiveChecksum        string       `toml:"archive_checksum,omitempty"`
	DesiredState           DesiredState `toml:"desired_state"`
}

func DefaultServiceSpec() ServiceSpec {
	return ServiceSpec{
		Group:          "default",
		Topology:       "standalone",
		UpdateStrategy: "none",
		Binds:          []string{},
		DesiredState:   DesiredStateDown,
	}
}

func SpecPath(dir, name string) string {
	return filepath.Join(dir, name+specExt)
}

// ReadSpec returns an error satisfying os.IsNotExist when no spec exists.
func ReadSpec(path string) (ServiceSpec, error) {
	spec := DefaultServiceSpec()
	if _, err := toml.DecodeFile(path, &spec); err != nil {
		return ServiceSpec{}, err
	}
	return spec, nil
}

// WriteSpec replaces the spec file atomically.
func WriteSpec(path string, spec ServiceSpec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create specs dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".spec-*")
	if err != nil {
		return errors.Wrap(err, "create spec file")
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(spec); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "encode spec %s", path)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
