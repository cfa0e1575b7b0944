package exportimport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ektropy/realm-authz/internal/constants"
	"go.uber.org/zap"
)

// ServerExport writes the realm's role set to a JSON file under baseDir,
// inside a per-realm subdirectory. File names never clobber earlier exports:
// a numeric suffix is appended until the name is free. Returns the path
// written.
func (g *Gateway) ServerExport(ctx context.Context, realmID, baseDir, fileName string, condensed bool) (string, error) {
	if fileName == "" {
		fileName = constants.DefaultExportFileName
	}

	realm, err := g.dir.GetRealm(realmID)
	if err != nil {
		return "", err
	}

	rep, err := g.ExportRoles(ctx, realmID)
	if err != nil {
		return "", err
	}

	exportDir := filepath.Join(baseDir, realm.Name)
	if err := os.MkdirAll(exportDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path, err := uniqueFileName(exportDir, fileName)
	if err != nil {
		return "", err
	}

	var data []byte
	if condensed {
		data, err = json.Marshal(rep)
	} else {
		data, err = json.MarshalIndent(rep, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}

	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	g.logger.Info("Roles exported to file",
		zap.String("realm_id", realmID),
		zap.String("path", path),
		zap.Bool("condensed", condensed))
	return path, nil
}

// uniqueFileName finds the first unused name.json, name-0.json, name-1.json
// and so on.
func uniqueFileName(dir, name string) (string, error) {
	path := filepath.Join(dir, name+constants.ExportFileExtension)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	for suffix := 0; ; suffix++ {
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", name, suffix, constants.ExportFileExtension))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		if suffix > 10000 {
			return "", fmt.Errorf("no free export file name for %s in %s", name, dir)
		}
	}
}
