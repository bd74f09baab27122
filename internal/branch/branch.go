// Package branch is the Branch Manager (spec §4.6): it coordinates
// multiple physical database files plus an on-disk `.synthdb/` config
// describing branches and the active one. The core itself has no branch
// awareness — this package is the orchestration layer above it, grounded
// on the teacher's `.sync.lock` (github.com/gofrs/flock) pattern for
// guarding concurrent writers to a shared on-disk coordination file.
package branch

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"

	"github.com/russellromney/synthdb/internal/dberr"
)

// DirName is the project-local directory holding branch state.
const DirName = ".synthdb"

// ConfigFileName is the config file inside DirName.
const ConfigFileName = "config"

// DatabasesDirName is where per-branch database files live.
const DatabasesDirName = "databases"

// DefaultBranch is the name of the branch created by InitProject.
const DefaultBranch = "main"

type branchSection struct {
	Database string `toml:"database"`
}

type branchesSection struct {
	Active string `toml:"active"`
}

// config mirrors the on-disk TOML shape: one [branch.<name>] table per
// branch plus a single [branches] table naming the active one.
type config struct {
	Branch   map[string]branchSection `toml:"branch"`
	Branches branchesSection          `toml:"branches"`
}

// Manager operates on one project's `.synthdb/` directory.
type Manager struct {
	root string // project root; .synthdb/ lives directly under it
}

// New returns a Manager rooted at projectRoot.
func New(projectRoot string) *Manager {
	return &Manager{root: projectRoot}
}

func (m *Manager) dir() string        { return filepath.Join(m.root, DirName) }
func (m *Manager) configPath() string   { return filepath.Join(m.dir(), ConfigFileName) }
func (m *Manager) lockPath() string     { return filepath.Join(m.dir(), ".branch.lock") }
func (m *Manager) databasesDir() string { return filepath.Join(m.dir(), DatabasesDirName) }

// InitProject creates the `.synthdb/` directory and writes a default
// config with a single "main" branch, if one doesn't already exist.
func (m *Manager) InitProject() error {
	if _, err := os.Stat(m.configPath()); err == nil {
		return nil
	}
	if err := os.MkdirAll(m.databasesDir(), 0o755); err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	cfg := config{
		Branch: map[string]branchSection{
			DefaultBranch: {Database: filepath.ToSlash(filepath.Join(DirName, DatabasesDirName, DefaultBranch+".db"))},
		},
		Branches: branchesSection{Active: DefaultBranch},
	}
	return m.writeConfig(cfg)
}

func (m *Manager) readConfig() (config, error) {
	var cfg config
	f, err := os.Open(m.configPath())
	if err != nil {
		return cfg, dberr.Wrap(dberr.ErrIO, err)
	}
	defer f.Close()
	if _, err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, dberr.Wrap(dberr.ErrIO, err)
	}
	return cfg, nil
}

func (m *Manager) writeConfig(cfg config) error {
	tmp := m.configPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return dberr.Wrap(dberr.ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	if err := os.Rename(tmp, m.configPath()); err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	return nil
}

// withLock runs fn while holding an exclusive file lock over the
// config, mirroring the teacher's sync.lock guard against concurrent
// writers racing on the same coordination file.
func (m *Manager) withLock(fn func() error) error {
	lock := flock.New(m.lockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	if !locked {
		return dberr.New(dberr.ErrConflict, "another branch operation is in progress")
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// CreateBranch file-copies the source branch's database (defaulting to
// the active branch) to a new file named after name and records it in
// the config.
func (m *Manager) CreateBranch(name, from string) error {
	return m.withLock(func() error {
		cfg, err := m.readConfig()
		if err != nil {
			return err
		}
		if _, exists := cfg.Branch[name]; exists {
			return dberr.New(dberr.ErrNameTaken, "branch %q already exists", name)
		}
		if from == "" {
			from = cfg.Branches.Active
		}
		src, ok := cfg.Branch[from]
		if !ok {
			return dberr.New(dberr.ErrTableNotFound, "branch %q not found", from)
		}

		dstRelPath := filepath.ToSlash(filepath.Join(DirName, DatabasesDirName, name+".db"))
		srcAbs := filepath.Join(m.root, filepath.FromSlash(src.Database))
		dstAbs := filepath.Join(m.root, filepath.FromSlash(dstRelPath))

		if err := copyFile(srcAbs, dstAbs); err != nil {
			return err
		}

		if cfg.Branch == nil {
			cfg.Branch = map[string]branchSection{}
		}
		cfg.Branch[name] = branchSection{Database: dstRelPath}
		return m.writeConfig(cfg)
	})
}

// SetActiveBranch rewrites [branches] active to name, failing if name
// isn't a known branch.
func (m *Manager) SetActiveBranch(name string) error {
	return m.withLock(func() error {
		cfg, err := m.readConfig()
		if err != nil {
			return err
		}
		if _, ok := cfg.Branch[name]; !ok {
			return dberr.New(dberr.ErrTableNotFound, "branch %q not found", name)
		}
		cfg.Branches.Active = name
		return m.writeConfig(cfg)
	})
}

// Info describes one branch entry for listing.
type Info struct {
	Name     string
	Database string
	Active   bool
}

// ListBranches returns every configured branch, sorted by name.
func (m *Manager) ListBranches() ([]Info, error) {
	cfg, err := m.readConfig()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Branch))
	for name := range cfg.Branch {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Info, 0, len(names))
	for _, name := range names {
		out = append(out, Info{
			Name:     name,
			Database: cfg.Branch[name].Database,
			Active:   name == cfg.Branches.Active,
		})
	}
	return out, nil
}

// GetDatabasePath resolves branch's database file to an absolute path
// relative to the project root. An empty branch name resolves the
// active branch.
func (m *Manager) GetDatabasePath(branchName string) (string, error) {
	cfg, err := m.readConfig()
	if err != nil {
		return "", err
	}
	if branchName == "" {
		branchName = cfg.Branches.Active
	}
	b, ok := cfg.Branch[branchName]
	if !ok {
		return "", dberr.New(dberr.ErrTableNotFound, "branch %q not found", branchName)
	}
	return filepath.Join(m.root, filepath.FromSlash(b.Database)), nil
}

// ActiveBranch returns the name of the currently active branch.
func (m *Manager) ActiveBranch() (string, error) {
	cfg, err := m.readConfig()
	if err != nil {
		return "", err
	}
	return cfg.Branches.Active, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	return nil
}
