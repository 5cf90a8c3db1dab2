package revlist

import (
	"bufio"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/object"
	"github.com/odvcencio/revlist/pkg/repo"
	"github.com/odvcencio/revlist/pkg/revparse"
	"github.com/odvcencio/revlist/pkg/revwalk"
)

// Walker is a Walk that can also be drained and released.
// *revwalk.Walker implements it.
type Walker interface {
	Walk
	Next() (object.Hash, error)
	Close() error
}

// Run configures walk from args, then writes every id the walk yields to
// out, one per line. walk is closed before Run returns, whatever the
// outcome. Nothing is written unless every argument was applied.
func Run(res Resolver, walk Walker, args []string, out io.Writer) (err error) {
	defer func() {
		if cerr := walk.Close(); cerr != nil && err == nil {
			err = &Error{Kind: KindTraversal, Action: ActionWalk, Err: cerr}
		}
	}()

	if _, err := Configure(res, walk, args); err != nil {
		return err
	}

	bw := bufio.NewWriter(out)
	for {
		h, err := walk.Next()
		if errors.Is(err, revwalk.ErrDone) {
			break
		}
		if err != nil {
			if ferr := bw.Flush(); ferr != nil {
				return &Error{Kind: KindTraversal, Action: ActionWriteOutput, Err: ferr}
			}
			return &Error{Kind: KindTraversal, Action: ActionWalk, Err: err}
		}
		if _, err := bw.WriteString(string(h) + "\n"); err != nil {
			return &Error{Kind: KindTraversal, Action: ActionWriteOutput, Err: err}
		}
	}
	if err := bw.Flush(); err != nil {
		return &Error{Kind: KindTraversal, Action: ActionWriteOutput, Err: err}
	}
	return nil
}

// Config describes one invocation against a repository on disk.
type Config struct {
	// Dir is where repository discovery starts.
	Dir    string
	Args   []string
	Out    io.Writer
	Logger *zap.Logger
}

// List opens the repository containing cfg.Dir and runs cfg.Args against
// it.
func List(cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r, err := repo.Open(cfg.Dir, repo.WithLogger(log))
	if err != nil {
		return &Error{Kind: KindInitialization, Action: ActionOpenRepository, Err: err}
	}
	walk, err := revwalk.New(r, revwalk.WithLogger(log))
	if err != nil {
		return &Error{Kind: KindInitialization, Action: ActionAllocateWalk, Err: err}
	}

	log.Debug("listing revisions", zap.String("git_dir", r.GitDir), zap.Strings("args", cfg.Args))
	return Run(revparse.New(r, revparse.WithLogger(log)), walk, cfg.Args, cfg.Out)
}
