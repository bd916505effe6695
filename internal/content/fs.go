package content

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
)

// FSStorage serves a local directory. All access goes through os.Root, so
// symlinks pointing outside the served directory cannot be followed.
type FSStorage struct {
	root *os.Root
}

// NewFSStorage opens dir as the served root.
func NewFSStorage(dir string) (*FSStorage, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &FSStorage{root: root}, nil
}

func fsName(name string) string {
	if name == "" {
		return "."
	}
	return path.Clean(name)
}

func (s *FSStorage) Stat(ctx context.Context, name string) (FileInfo, error) {
	info, err := s.root.Stat(fsName(name))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		Dir:     info.IsDir(),
		ModTime: info.ModTime(),
	}, nil
}

func (s *FSStorage) Open(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	return s.root.Open(fsName(name))
}

func (s *FSStorage) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return s.root.ReadFile(fsName(name))
}

func (s *FSStorage) ReadDir(ctx context.Context, name string) ([]FileInfo, error) {
	f, err := s.root.Open(fsName(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			Dir:     entry.IsDir(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Close releases the root directory handle.
func (s *FSStorage) Close() error {
	return s.root.Close()
}
