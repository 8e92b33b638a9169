package catalog

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Extensions served from a data directory.
var Extensions = []string{".nc", ".nc4", ".h5", ".hdf5", ".ncml"}

func servable(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// walkFiles lists regular files under root, skipping hidden entries, sorted
// by path.
func walkFiles(fs afero.Fs, root string, keep func(p string) bool) ([]string, error) {
	var out []string
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p != root && hidden(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() && keep(filepath.ToSlash(p)) {
			out = append(out, filepath.ToSlash(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// scanMembers expands one scan element.
func scanMembers(fs afero.Fs, s Scan) ([]string, error) {
	return walkFiles(fs, s.Location, func(p string) bool {
		return strings.HasSuffix(p, s.Suffix) && (s.Ignore == "" || !strings.Contains(p, s.Ignore))
	})
}

// ScanDir publishes every servable file under dir, named by its path
// relative to dir. NcML documents become aggregations.
func ScanDir(fs afero.Fs, dir string) ([]Entry, []error) {
	files, err := walkFiles(fs, dir, servable)
	if err != nil {
		return nil, []error{err}
	}
	var entries []Entry
	var errs []error
	for _, p := range files {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := filepath.ToSlash(rel)
		if strings.EqualFold(path.Ext(p), ".ncml") {
			e, err := loadNcML(fs, p, name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			entries = append(entries, e)
			continue
		}
		entries = append(entries, Entry{Name: name, Path: p})
	}
	return entries, errs
}

func loadNcML(fs afero.Fs, p, name string) (Entry, error) {
	f, err := fs.Open(p)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()
	return ParseNcML(f, name, path.Dir(p))
}
