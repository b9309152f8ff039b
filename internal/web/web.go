package web

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed dist
var dist embed.FS

// FS returns the front-end bundle: dir on disk when set, the embedded bundle otherwise.
func FS(dir string) (fs.FS, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrInvalid}
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(dist, "dist")
}
