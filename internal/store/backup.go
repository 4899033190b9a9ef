package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"raffle/internal/models"
)

const (
	backupPrefix = "ledger-"
	backupSuffix = ".json.zst"
)

// WriteBackup writes a zstd-compressed copy of the ledger into dir and
// prunes older backups so that at most keep remain (keep <= 0 keeps all).
func WriteBackup(dir string, participants []models.Participant, now time.Time, keep int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := encodeLedger(participants)
	if err != nil {
		return "", err
	}

	name := backupPrefix + now.UTC().Format("20060102T150405.000000000Z") + backupSuffix
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriter(f)
	zw, err := zstd.NewWriter(bw)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if _, err := zw.Write(b); err != nil {
		_ = zw.Close()
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if keep > 0 {
		if err := pruneBackups(dir, keep); err != nil {
			return path, fmt.Errorf("prune backups: %w", err)
		}
	}
	return path, nil
}

// ReadBackup decodes a backup produced by WriteBackup.
func ReadBackup(path string) ([]models.Participant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	b, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", path, err)
	}
	return decodeLedger(b)
}

// ListBackups returns backup paths in dir, oldest first.
func ListBackups(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, backupPrefix) || !strings.HasSuffix(n, backupSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, n))
	}
	// Timestamped names sort chronologically.
	sort.Strings(out)
	return out, nil
}

func pruneBackups(dir string, keep int) error {
	paths, err := ListBackups(dir)
	if err != nil {
		return err
	}
	if len(paths) <= keep {
		return nil
	}
	for _, p := range paths[:len(paths)-keep] {
		if err := os.Remove(p); err != nil {
			return err
		}
	}
	return nil
}
