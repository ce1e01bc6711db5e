package main

import (
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/config"
)

func newCleanCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean [run-id...]",
		Short: "Remove working directories left by previous runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass at least one run id, or --all")
			}
			return a.clean(billy.NewHostFS(), args, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every run directory")
	return cmd
}

// clean removes the working directories of runIDs, or every run directory
// below the runs directory when all is set. The runs directory itself and
// anything in it that is not named like a run are left alone.
func (a *app) clean(fsys fs.Filesystem, runIDs []string, all bool) error {
	var dirs []string
	if all {
		found, err := a.runDirs(fsys)
		if err != nil {
			return err
		}
		dirs = found
	} else {
		for _, id := range runIDs {
			if !isRunID(id) {
				return errors.Wrap("clean", errors.ErrInvalidConfig, fmt.Errorf("invalid run id %q", id))
			}
			dirs = append(dirs, a.cfg.WorkdirFor(id))
		}
	}

	for _, dir := range dirs {
		ok, err := fsys.Exists(dir)
		if err != nil {
			return errors.Wrap("clean", errors.ErrLocalIO, err).WithKey(dir)
		}
		if !ok {
			a.logger.Debug("nothing to clean", "workdir", dir)
			continue
		}
		size, err := fs.DirSize(fsys, dir)
		if err != nil {
			return errors.Wrap("clean", errors.ErrLocalIO, err).WithKey(dir)
		}
		if err := fsys.RemoveAll(dir); err != nil {
			return errors.Wrap("clean", errors.ErrCleanup, err).WithKey(dir)
		}
		a.logger.Info("removed working directory", "workdir", dir, "bytes", size)
	}
	return nil
}

// runDirs lists the run directories directly below the runs directory.
func (a *app) runDirs(fsys fs.Filesystem) ([]string, error) {
	parent := a.runsDir()
	ok, err := fsys.Exists(parent)
	if err != nil {
		return nil, errors.Wrap("clean", errors.ErrLocalIO, err).WithKey(parent)
	}
	if !ok {
		return nil, nil
	}
	entries, err := fsys.ReadDir(parent)
	if err != nil {
		return nil, errors.Wrap("clean", errors.ErrLocalIO, err).WithKey(parent)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || !isRunID(e.Name()) {
			a.logger.Debug("skipping non-run entry", "name", e.Name())
			continue
		}
		dirs = append(dirs, filepath.Join(parent, e.Name()))
	}
	return dirs, nil
}

// isRunID reports whether name is a run ID as issued by run: a UUID in
// canonical form.
func isRunID(name string) bool {
	id, err := uuid.Parse(name)
	return err == nil && id.String() == name
}

// runsDir is the parent of all run working directories.
func (a *app) runsDir() string {
	if a.cfg.Workdir != "" {
		return a.cfg.Workdir
	}
	return filepath.Join(xdg.CacheHome, config.AppName)
}
