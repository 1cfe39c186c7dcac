package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MaxResourceSize caps uploaded resource files at 5MB.
const MaxResourceSize = 5 * 1024 * 1024

// SaveResource persists an uploaded resource file under dir with a
// collision-free name and returns the stored path. The size limit is enforced
// while copying, not trusted from the client-reported header.
func SaveResource(header *multipart.FileHeader, dir string) (string, error) {
	if header.Size > 0 && header.Size > MaxResourceSize {
		return "", fmt.Errorf("file size exceeds %d bytes", MaxResourceSize)
	}

	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := filepath.Base(header.Filename)
	if name == "." || name == "" {
		name = "resource"
	}
	dstPath := filepath.Join(dir, uuid.NewString()+"_"+name)

	out, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	lr := &io.LimitedReader{R: src, N: MaxResourceSize + 1}
	written, err := io.Copy(out, lr)
	if err != nil {
		_ = os.Remove(dstPath)
		return "", err
	}
	if written > MaxResourceSize {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("file size exceeds %d bytes", MaxResourceSize)
	}

	return dstPath, nil
}

// RemoveFileAsync deletes a file in the background. Cleanup must never affect
// the outcome of the operation that triggered it, so failures are only logged.
func RemoveFileAsync(path string) {
	if path == "" {
		return
	}
	go func(p string) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if Sugar != nil {
				Sugar.Warnf("failed to remove resource file %s: %v", p, err)
			}
		}
	}(path)
}
