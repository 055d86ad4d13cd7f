package domain

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// NewObjectKey builds a destination key of the form uploads/{uuid}/{name}.
// Only the base name of the client-supplied filename is kept, so path
// segments smuggled into it can never direct the object elsewhere.
func NewObjectKey(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		name = "file"
	}
	return fmt.Sprintf("uploads/%s/%s", uuid.New().String(), name)
}

// PartCount returns how many parts of partSize cover size bytes, counting a
// short final part.
func PartCount(size, partSize int64) int32 {
	count := size / partSize
	if size%partSize != 0 {
		count++
	}
	return int32(count)
}
