package services

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"asteriskgui/internal/database"
	"asteriskgui/internal/models"

	"github.com/otiai10/copy"
	"go.uber.org/zap"
)

const (
	backupGeneratedDir = "generated"
	backupSnapshotsDir = "snapshots"
	backupDatabaseFile = "pbx.db"
)

type SystemPaths struct {
	GeneratedDir string
	SnapshotsDir string
	BackupsDir   string
}

// SystemService owns the editable settings document and full backups of the
// console state.
type SystemService struct {
	db          *database.DB
	paths       SystemPaths
	defaults    models.SystemSettings
	provisioner *Provisioner
	logger      *zap.Logger
	now         func() time.Time
}

func NewSystemService(db *database.DB, paths SystemPaths, defaults models.SystemSettings, provisioner *Provisioner, logger *zap.Logger) *SystemService {
	return &SystemService{
		db:          db,
		paths:       paths,
		defaults:    defaults,
		provisioner: provisioner,
		logger:      logger.Named("system"),
		now:         time.Now,
	}
}

var settingsSections = []string{"asterisk", "security", "paths"}

func (s *SystemService) section(settings *models.SystemSettings, name string) *map[string]any {
	switch name {
	case "asterisk":
		return &settings.Asterisk
	case "security":
		return &settings.Security
	default:
		return &settings.Paths
	}
}

func (s *SystemService) Settings(ctx context.Context) (*models.SystemSettings, error) {
	settings := models.SystemSettings{}
	for _, name := range settingsSections {
		merged := map[string]any{}
		for k, v := range *s.section(&s.defaults, name) {
			merged[k] = v
		}
		*s.section(&settings, name) = merged
	}

	rows, err := s.db.QueryContext(ctx, "SELECT section, value, updated_by, updated_at FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, value string
			updatedBy   sql.NullInt64
			updatedAt   time.Time
		)
		if err := rows.Scan(&name, &value, &updatedBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settings: %w", err)
		}
		stored := map[string]any{}
		if err := json.Unmarshal([]byte(value), &stored); err != nil {
			s.logger.Warn("ignoring unreadable settings section", zap.String("section", name), zap.Error(err))
			continue
		}
		target := s.section(&settings, name)
		for k, v := range stored {
			(*target)[k] = v
		}
		if settings.UpdatedAt == nil || updatedAt.After(*settings.UpdatedAt) {
			at := updatedAt
			settings.UpdatedAt = &at
			if updatedBy.Valid {
				by := updatedBy.Int64
				settings.UpdatedBy = &by
			}
		}
	}
	return &settings, rows.Err()
}

// UpdateSettings shallow-merges each provided section over the current one.
func (s *SystemService) UpdateSettings(ctx context.Context, actor Actor, patch models.SystemSettings) (*models.SystemSettings, error) {
	current, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range settingsSections {
			changes := *s.section(&patch, name)
			if changes == nil {
				continue
			}
			merged := *s.section(current, name)
			for k, v := range changes {
				merged[k] = v
			}
			value, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("failed to encode %s settings: %w", name, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO settings (section, value, updated_by, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(section) DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at`,
				name, string(value), actor.userID(), now,
			)
			if err != nil {
				return fmt.Errorf("failed to save %s settings: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.provisioner.audit.Log(ctx, actor, ActionSystemConfigUpdate, map[string]any{"sections": changedSections(patch)})
	return s.Settings(ctx)
}

func changedSections(patch models.SystemSettings) []string {
	var names []string
	if patch.Asterisk != nil {
		names = append(names, "asterisk")
	}
	if patch.Security != nil {
		names = append(names, "security")
	}
	if patch.Paths != nil {
		names = append(names, "paths")
	}
	return names
}

// Backup writes a tar.gz holding the generated configs, the snapshots and a
// copy of the PBX database, and returns its path.
func (s *SystemService) Backup(ctx context.Context, actor Actor) (string, error) {
	if err := os.MkdirAll(s.paths.BackupsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	staging, err := os.MkdirTemp("", "asteriskgui-backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	dbCopy := filepath.Join(staging, backupDatabaseFile)
	if err := s.db.SnapshotTo(ctx, dbCopy); err != nil {
		return "", err
	}

	name := "backup-" + s.now().UTC().Format("2006-01-02T15-04-05.000Z") + ".tar.gz"
	path := filepath.Join(s.paths.BackupsDir, name)
	tmp := path + ".tmp"
	if err := writeArchive(tmp, map[string]string{
		backupGeneratedDir: s.paths.GeneratedDir,
		backupSnapshotsDir: s.paths.SnapshotsDir,
		backupDatabaseFile: dbCopy,
	}); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}

	s.logger.Info("backup created", zap.String("path", path))
	s.provisioner.audit.Log(ctx, actor, ActionBackupCreated, map[string]any{"backupPath": path})
	return path, nil
}

// Restore unpacks a backup from the backup directory. Generated files and
// snapshots are replaced, PBX tables are reloaded from the archived database,
// and both Asterisk modules are reloaded.
func (s *SystemService) Restore(ctx context.Context, actor Actor, backupPath string) error {
	path, err := s.resolveBackup(backupPath)
	if err != nil {
		return err
	}

	staging, err := os.MkdirTemp("", "asteriskgui-restore-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	err = extractArchive(f, staging)
	f.Close()
	if err != nil {
		return err
	}

	p := s.provisioner
	p.mu.Lock()
	defer p.mu.Unlock()

	if dbCopy := filepath.Join(staging, backupDatabaseFile); fileExists(dbCopy) {
		if err := s.db.RestoreFrom(ctx, dbCopy); err != nil {
			return err
		}
	}
	if dir := filepath.Join(staging, backupGeneratedDir); fileExists(dir) {
		if err := replaceDir(dir, s.paths.GeneratedDir); err != nil {
			return fmt.Errorf("failed to restore generated configs: %w", err)
		}
	}
	if dir := filepath.Join(staging, backupSnapshotsDir); fileExists(dir) {
		if err := copy.Copy(dir, s.paths.SnapshotsDir); err != nil {
			return fmt.Errorf("failed to restore snapshots: %w", err)
		}
	}

	p.reloadAll(ctx, "backup restore")
	p.audit.Log(ctx, actor, ActionBackupRestored, map[string]any{"backupPath": path})
	p.broadcast("backup_restored", map[string]any{"backupPath": filepath.Base(path), "restoredBy": actor.Username})
	s.logger.Info("backup restored", zap.String("path", path))
	return nil
}

// resolveBackup accepts a bare file name or a path, and only if it names an
// archive inside the backup directory.
func (s *SystemService) resolveBackup(backupPath string) (string, error) {
	if backupPath == "" {
		return "", ErrInvalidBackup
	}
	root, err := filepath.Abs(s.paths.BackupsDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve backup directory: %w", err)
	}
	candidate := backupPath
	if !filepath.IsAbs(candidate) && !strings.ContainsAny(candidate, `/\`) {
		candidate = filepath.Join(root, candidate)
	}
	candidate, err = filepath.Abs(candidate)
	if err != nil {
		return "", ErrInvalidBackup
	}
	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || !strings.HasSuffix(candidate, ".tar.gz") {
		return "", ErrInvalidBackup
	}
	if !fileExists(candidate) {
		return "", ErrNotFound
	}
	return candidate, nil
}

func (s *SystemService) ListBackups() ([]models.ConfigFile, error) {
	entries, err := os.ReadDir(s.paths.BackupsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.ConfigFile{}, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	backups := []models.ConfigFile{}
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, models.ConfigFile{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	return backups, nil
}

func writeArchive(dest string, sources map[string]string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gzWriter := gzip.NewWriter(out)
	tarWriter := tar.NewWriter(gzWriter)

	for prefix, src := range sources {
		if err := addToArchive(tarWriter, prefix, src); err != nil {
			return fmt.Errorf("failed to archive %s: %w", prefix, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Sync()
}

func addToArchive(tw *tar.Writer, prefix, src string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, ".tmp") {
			return nil
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(prefix, relPath))

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
}

func extractArchive(r io.Reader, destDir string) error {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		targetPath := filepath.Join(destDir, header.Name)
		if targetPath != destDir && !strings.HasPrefix(targetPath, destDir+string(os.PathSeparator)) {
			return fmt.Errorf("invalid path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			file, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode)&0777)
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			if _, err := io.Copy(file, tarReader); err != nil {
				file.Close()
				return fmt.Errorf("failed to write file: %w", err)
			}
			file.Close()
		}
	}
}

// replaceDir makes dst hold exactly the regular files of src, keeping any
// in-progress .tmp files in dst.
func replaceDir(src, dst string) error {
	entries, err := os.ReadDir(dst)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return copy.Copy(src, dst)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
