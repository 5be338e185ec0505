package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"supctl/config"
	"supctl/ctl"
	"supctl/message"
)

// ServiceLoad records the service spec for opts.Ident. A new spec starts
// with desired state down; a forced reload keeps the previous state.
func ServiceLoad(cfg *config.Manager, req *ctl.Request, opts SvcLoadOpts) error {
	path := SpecPath(cfg.SpecsDir, opts.Ident.Name)
	spec, err := ReadSpec(path)
	switch {
	case err == nil:
		if !opts.Force {
			return message.Errorf(message.ErrConflict,
				"Service already loaded, unload '%s' and try again", spec.Ident)
		}
		fmt.Fprintf(req, "Reloading %s\n", opts.Ident)
	case errors.Is(err, fs.ErrNotExist):
		spec = DefaultServiceSpec()
		fmt.Fprintf(req, "Loading %s\n", opts.Ident)
	default:
		return err
	}

	if opts.Source == message.InstallSourceArchive {
		sum, err := checksumArchive(req, opts.Archive)
		if err != nil {
			return err
		}
		spec.Archive = opts.Archive
		spec.ArchiveChecksum = sum
	}

	opts.IntoSpec(cfg, &spec)
	if err := WriteSpec(path, spec); err != nil {
		return message.Errorf(message.ErrIo, "write spec for %s: %v", opts.Ident, err)
	}

	fmt.Fprintf(req, "The %s service was successfully loaded\n", opts.Ident)
	return req.ReplyComplete(&message.NetOk{})
}

// checksumArchive hashes the artifact, streaming progress to the client.
func checksumArchive(req *ctl.Request, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", message.Errorf(message.ErrNotFound, "artifact %s not found", path)
		}
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	bar := req.ProgressBar(uint64(info.Size()))
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(h, bar), f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ServiceStart marks a loaded service as up. Starting a service that is
// already up succeeds without touching the spec.
func ServiceStart(cfg *config.Manager, req *ctl.Request, opts SvcStartOpts) error {
	path := SpecPath(cfg.SpecsDir, opts.Ident.Name)
	spec, err := ReadSpec(path)
	if errors.Is(err, fs.ErrNotExist) {
		return message.Errorf(message.ErrNotFound,
			"Service not loaded, load '%s' and try again", opts.Ident)
	}
	if err != nil {
		return err
	}

	if opts.Ident.Version != "" {
		loaded, err := message.ParsePackageIdent(spec.Ident)
		if err == nil && !satisfies(opts.Ident, loaded) {
			return message.Errorf(message.ErrConflict,
				"Loaded service %s does not match %s", spec.Ident, opts.Ident)
		}
	}

	if spec.DesiredState == DesiredStateUp {
		fmt.Fprintf(req, "Service %s already started\n", spec.Ident)
		return nil
	}

	fmt.Fprintf(req, "Starting %s\n", spec.Ident)
	spec.DesiredState = DesiredStateUp
	if err := WriteSpec(path, spec); err != nil {
		return message.Errorf(message.ErrIo, "write spec for %s: %v", opts.Ident, err)
	}
	return req.ReplyComplete(&message.NetOk{})
}

// satisfies reports whether loaded matches every part of want that is set.
func satisfies(want, loaded message.PackageIdent) bool {
	if want.Origin != loaded.Origin || want.Name != loaded.Name {
		return false
	}
	if want.Version != "" && want.Version != loaded.Version {
		return false
	}
	return want.Release == "" || want.Release == loaded.Release
}
