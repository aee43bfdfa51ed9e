package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"asteriskgui/internal/models"

	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"go.uber.org/zap"
)

const snapshotMetadataFile = "metadata.json"

// SnapshotService keeps point-in-time copies of the generated config
// directory. Each snapshot is a directory named by its id holding the copied
// files and a metadata document.
type SnapshotService struct {
	generatedDir string
	snapshotsDir string
	logger       *zap.Logger
	now          func() time.Time
}

func NewSnapshotService(generatedDir, snapshotsDir string, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{
		generatedDir: generatedDir,
		snapshotsDir: snapshotsDir,
		logger:       logger.Named("snapshot"),
		now:          time.Now,
	}
}

func (s *SnapshotService) Create(comment, createdBy string) (*models.Snapshot, error) {
	if createdBy == "" {
		createdBy = "system"
	}

	files, err := generatedFiles(s.generatedDir)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		ID:        uuid.NewString(),
		Comment:   comment,
		CreatedBy: createdBy,
		Timestamp: s.now().UTC(),
		Files:     files,
	}
	dir := filepath.Join(s.snapshotsDir, snap.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	for _, name := range files {
		if err := copy.Copy(filepath.Join(s.generatedDir, name), filepath.Join(dir, name)); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to copy %s: %w", name, err)
		}
	}

	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshotMetadataFile), meta, 0644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write snapshot metadata: %w", err)
	}

	s.logger.Info("snapshot created", zap.String("id", snap.ID), zap.String("comment", comment), zap.Int("files", len(files)))
	return snap, nil
}

// List returns all readable snapshots, newest first. Directories without
// valid metadata are skipped.
func (s *SnapshotService) List() ([]models.Snapshot, error) {
	entries, err := os.ReadDir(s.snapshotsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	snaps := []models.Snapshot{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := s.readMetadata(entry.Name())
		if err != nil {
			s.logger.Warn("invalid snapshot", zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		snaps = append(snaps, *snap)
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	return snaps, nil
}

func (s *SnapshotService) Get(id string) (*models.Snapshot, error) {
	if err := validateSnapshotID(id); err != nil {
		return nil, err
	}
	snap, err := s.readMetadata(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return snap, nil
}

// Restore replaces the generated directory with the snapshot contents. Files
// still being written (.tmp) are left alone.
func (s *SnapshotService) Restore(id string) (*models.Snapshot, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.generatedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(s.generatedDir, entry.Name())); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", entry.Name(), err)
		}
	}

	dir := filepath.Join(s.snapshotsDir, id)
	for _, name := range snap.Files {
		if err := copy.Copy(filepath.Join(dir, name), filepath.Join(s.generatedDir, name)); err != nil {
			return nil, fmt.Errorf("failed to restore %s: %w", name, err)
		}
	}

	s.logger.Info("snapshot restored", zap.String("id", id), zap.Int("files", len(snap.Files)))
	return snap, nil
}

func (s *SnapshotService) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.snapshotsDir, id)); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	s.logger.Info("snapshot deleted", zap.String("id", id))
	return nil
}

func (s *SnapshotService) readMetadata(id string) (*models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.snapshotsDir, id, snapshotMetadataFile))
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot metadata: %w", err)
	}
	if snap.Files == nil {
		snap.Files = []string{}
	}
	return &snap, nil
}

func validateSnapshotID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

// generatedFiles lists the regular files of dir that a snapshot should carry.
func generatedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated directory: %w", err)
	}
	files := []string{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}
