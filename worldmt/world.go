package worldmt

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Filename of the settings file within a world directory.
const Filename = "world.mt"

// BackendKey is the Settings entry naming the map database backend.
const BackendKey = "backend"

// World is a world directory and its parsed world.mt Settings.
type World struct {
	Dir      string
	Settings *Settings

	fs afero.Fs
}

// Open the World rooted at |dir|, reading its world.mt through |fs|.
func Open(fs afero.Fs, dir string) (*World, error) {
	var w = &World{Dir: dir, fs: fs}

	var content, err = afero.ReadFile(fs, w.currentPath())
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s", w.currentPath())
	}
	w.Settings = Parse(content)
	return w, nil
}

// Backend returns the name of the World's map backend, and whether one is set.
func (w *World) Backend() (string, bool) {
	var name, ok = w.Settings.Get(BackendKey)
	return name, ok && name != ""
}

// Save atomically replaces world.mt with the current Settings. Content is
// first written in full to a sibling file, which is then renamed over the
// original so that a crash never leaves a partial world.mt.
func (w *World) Save() error {
	var f, err = w.fs.OpenFile(w.nextPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.WithMessage(err, "creating settings file")
	}

	if _, err = f.Write(w.Settings.Bytes()); err != nil {
		err = errors.WithMessage(err, "writing settings file")
	} else if err = f.Sync(); err != nil {
		err = errors.WithMessage(err, "syncing settings file")
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.WithMessage(closeErr, "closing settings file")
	}
	if err == nil {
		if err = w.fs.Rename(w.nextPath(), w.currentPath()); err != nil {
			err = errors.WithMessage(err, "renaming next => current")
		}
	}

	if err != nil {
		if rmErr := w.fs.Remove(w.nextPath()); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithFields(log.Fields{"err": rmErr, "path": w.nextPath()}).
				Warn("failed to cleanup settings temp file")
		}
	}
	return err
}

func (w *World) currentPath() string { return filepath.Join(w.Dir, Filename) }
func (w *World) nextPath() string    { return filepath.Join(w.Dir, Filename+".next") }
