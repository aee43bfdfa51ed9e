package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"asteriskgui/internal/models"

	"go.uber.org/zap"
)

type ConfigFileContent struct {
	models.ConfigFile
	Content string `json:"content"`
}

// RawConfigService edits the .conf files in the generated directory
// directly. Every write is preceded by a snapshot.
type RawConfigService struct {
	dir         string
	provisioner *Provisioner
}

func NewRawConfigService(dir string, provisioner *Provisioner) *RawConfigService {
	return &RawConfigService{dir: dir, provisioner: provisioner}
}

func ValidateConfigName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	if !strings.HasSuffix(name, ".conf") {
		return fmt.Errorf("%w: only .conf files are allowed", ErrInvalidName)
	}
	return nil
}

func (s *RawConfigService) List() ([]models.ConfigFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}

	files := []models.ConfigFile{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), ".conf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, models.ConfigFile{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *RawConfigService) Read(name string) (*ConfigFileContent, error) {
	if err := ValidateConfigName(name); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return &ConfigFileContent{
		ConfigFile: models.ConfigFile{Name: name, Size: info.Size(), Modified: info.ModTime()},
		Content:    string(data),
	}, nil
}

func (s *RawConfigService) Write(ctx context.Context, actor Actor, name, content, comment string) (*models.ConfigFile, error) {
	if err := ValidateConfigName(name); err != nil {
		return nil, err
	}

	p := s.provisioner
	p.mu.Lock()
	defer p.mu.Unlock()

	snapComment := "Raw edit: " + name
	if comment != "" {
		snapComment += " - " + comment
	}
	if _, err := p.snapshots.Create(snapComment, actor.Username); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, []byte(content)); err != nil {
		return nil, err
	}
	s.reloadFor(ctx, name)
	p.audit.Log(ctx, actor, ActionConfigFileUpdated, map[string]any{"file": name, "comment": comment})

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return &models.ConfigFile{Name: name, Size: info.Size(), Modified: info.ModTime()}, nil
}

func (s *RawConfigService) Delete(ctx context.Context, actor Actor, name string) error {
	if err := ValidateConfigName(name); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	p := s.provisioner
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.snapshots.Create("Delete config: "+name, actor.Username); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	p.audit.Log(ctx, actor, ActionConfigFileDeleted, map[string]any{"file": name})
	return nil
}

func (s *RawConfigService) reloadFor(ctx context.Context, name string) {
	var err error
	switch name {
	case PJSIPConfFile:
		err = s.provisioner.reloader.ReloadPJSIP(ctx)
	case QueuesConfFile:
		err = s.provisioner.reloader.ReloadQueues(ctx)
	default:
		return
	}
	if err != nil {
		s.provisioner.logger.Warn("reload after config edit failed", zap.String("file", name), zap.Error(err))
	}
}
