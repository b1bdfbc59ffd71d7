package controller

import "os"

func writeFile(path string) error {
	return os.WriteFile(path, []byte("design"), 0o600)
}
