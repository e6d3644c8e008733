package files

import (
	"os"

	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/utils"
)

// Save writes a received transfer into dir under a name that does not
// clobber existing files, and returns the path written. Transfers that fail
// verification are written too; the caller decides how to flag them.
func Save(dir string, rt *transfer.ReceivedTransfer) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", transfer.NewFileError("create directory", dir, err)
	}

	path := utils.GetUniqueFilename(dir, rt.Name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", transfer.NewFileError("create file", rt.Name, err)
	}

	if _, err := f.Write(rt.Data); err != nil {
		f.Close()
		return "", transfer.NewFileError("write", rt.Name, err)
	}
	if err := f.Close(); err != nil {
		return "", transfer.NewFileError("close", rt.Name, err)
	}
	return path, nil
}
