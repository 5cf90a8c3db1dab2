package repo

import (
	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/object"
)

// Repo represents an opened Git repository.
type Repo struct {
	RootDir string        // work tree root; equal to GitDir for bare repositories
	GitDir  string        // the .git directory (or the repository itself when bare)
	Bare    bool          // core.bare
	Config  *Config       // parsed .git/config
	Store   *object.Store // object database

	log *zap.Logger
}

// Option configures Open and Init.
type Option func(*options)

type options struct {
	log        *zap.Logger
	storeOpts  []object.StoreOption
	ceilingDir string
}

// WithLogger sets the logger for repository discovery and the object store.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithStoreOptions forwards options to the object store.
func WithStoreOptions(opts ...object.StoreOption) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithCeilingDir stops upward discovery once dir has been searched.
func WithCeilingDir(dir string) Option {
	return func(o *options) {
		o.ceilingDir = dir
	}
}

func buildOptions(opts []Option) *options {
	o := &options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newRepo(rootDir, gitDir string, cfg *Config, o *options) *Repo {
	storeOpts := append([]object.StoreOption{object.WithLogger(o.log)}, o.storeOpts...)
	return &Repo{
		RootDir: rootDir,
		GitDir:  gitDir,
		Bare:    cfg.Bare,
		Config:  cfg,
		Store:   object.NewStore(gitDir, storeOpts...),
		log:     o.log,
	}
}
