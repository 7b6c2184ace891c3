// Package pymeta recovers declared requirement metadata from unpacked
// Python source trees.
//
// A source tree's build description is introspected in a fixed order:
// PKG-INFO (present in sdists), then pyproject.toml, then setup.cfg.
// Before introspection any stale *.egg-info directory left by a previous
// build is removed, since leftover metadata shadows the declared values.
package pymeta

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pipmirror/pipmirror/pkg/errors"
)

// metadataDirSuffix marks stale build-metadata directories inside a tree.
const metadataDirSuffix = ".egg-info"

// Requirement is the declared identity of an unpacked package.
type Requirement struct {
	Name      string
	Version   string
	SourceDir string
}

// String renders the requirement as a pip-style specifier.
func (r *Requirement) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "==" + r.Version
}

// Recover introspects sourceDir's build description and returns the
// declared requirement. Stale build-metadata directories directly inside
// sourceDir are removed first; their absence is not an error.
func Recover(sourceDir string) (*Requirement, error) {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "resolve %s", sourceDir)
	}

	if err := removeStaleMetadata(abs); err != nil {
		return nil, err
	}

	req := &Requirement{SourceDir: abs}
	for _, probe := range []func(string, *Requirement) (bool, error){
		probePkgInfo,
		probePyproject,
		probeSetupCfg,
	} {
		ok, err := probe(abs, req)
		if err != nil {
			return nil, err
		}
		if ok && req.Name != "" {
			return req, nil
		}
	}
	return nil, errors.New(errors.ErrCodeMetadata,
		"no build description with a declared name in %s", abs)
}

// removeStaleMetadata deletes direct children of dir ending in the
// metadata-directory suffix.
func removeStaleMetadata(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "read %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), metadataDirSuffix) {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "remove stale metadata %s", e.Name())
			}
		}
	}
	return nil
}

// probePkgInfo reads the RFC 822 style PKG-INFO headers.
func probePkgInfo(dir string, req *Requirement) (bool, error) {
	f, err := os.Open(filepath.Join(dir, "PKG-INFO"))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeIO, err, "open PKG-INFO in %s", dir)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break // headers end at the first blank line
		}
		if v, ok := strings.CutPrefix(line, "Name: "); ok {
			req.Name = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, "Version: "); ok {
			req.Version = strings.TrimSpace(v)
		}
	}
	if err := scanner.Err(); err != nil {
		return false, errors.Wrap(errors.ErrCodeMetadata, err, "read PKG-INFO in %s", dir)
	}
	return true, nil
}

// pyproject mirrors the subset of pyproject.toml we care about, with the
// poetry table as fallback for pre-PEP 621 projects.
type pyproject struct {
	Project struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func probePyproject(dir string, req *Requirement) (bool, error) {
	path := filepath.Join(dir, "pyproject.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	var pp pyproject
	if _, err := toml.DecodeFile(path, &pp); err != nil {
		return false, errors.Wrap(errors.ErrCodeMetadata, err, "parse %s", path)
	}
	switch {
	case pp.Project.Name != "":
		req.Name = pp.Project.Name
		req.Version = pp.Project.Version
	case pp.Tool.Poetry.Name != "":
		req.Name = pp.Tool.Poetry.Name
		req.Version = pp.Tool.Poetry.Version
	}
	return true, nil
}

// probeSetupCfg scans the [metadata] section of setup.cfg.
func probeSetupCfg(dir string, req *Requirement) (bool, error) {
	f, err := os.Open(filepath.Join(dir, "setup.cfg"))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeIO, err, "open setup.cfg in %s", dir)
	}
	defer f.Close()

	inMetadata := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";"):
			continue
		case strings.HasPrefix(line, "["):
			inMetadata = line == "[metadata]"
		case inMetadata:
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			switch key {
			case "name":
				req.Name = value
			case "version":
				req.Version = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return false, errors.Wrap(errors.ErrCodeMetadata, err, "read setup.cfg in %s", dir)
	}
	return true, nil
}
