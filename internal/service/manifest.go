package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ManifestDir is the directory inside a model directory holding the manifest.
const ManifestDir = "MAR-INF"

var manifestNames = []string{"MANIFEST.json", "MANIFEST.yaml", "MANIFEST.yml", "MANIFEST.toml"}

// Manifest describes a packaged model.
type Manifest struct {
	Runtime string        `json:"runtime" yaml:"runtime" toml:"runtime"`
	Model   ManifestModel `json:"model" yaml:"model" toml:"model"`
}

// ManifestModel is the model section of a manifest.
type ManifestModel struct {
	ModelName      string `json:"modelName" yaml:"modelName" toml:"modelName"`
	ModelVersion   string `json:"modelVersion" yaml:"modelVersion" toml:"modelVersion"`
	SerializedFile string `json:"serializedFile" yaml:"serializedFile" toml:"serializedFile"`
	ModelFile      string `json:"modelFile" yaml:"modelFile" toml:"modelFile"`
	Handler        string `json:"handler" yaml:"handler" toml:"handler"`
}

// Eager reports whether the manifest declares a separate model-definition file,
// which means the service is constructed in the manager process.
func (m Manifest) Eager() bool { return m.Model.ModelFile != "" }

// ReadManifest loads the manifest of modelDir. A model without a manifest gets
// the zero Manifest (scripted).
func ReadManifest(modelDir string) (Manifest, error) {
	var mf Manifest
	for _, name := range manifestNames {
		p := filepath.Join(modelDir, ManifestDir, name)
		b, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return mf, err
		}
		switch ext := strings.ToLower(filepath.Ext(p)); ext {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(b, &mf)
		case ".json":
			err = json.Unmarshal(b, &mf)
		case ".toml":
			err = toml.Unmarshal(b, &mf)
		}
		if err != nil {
			return mf, fmt.Errorf("parse %s: %w", p, err)
		}
		return mf, nil
	}
	return mf, nil
}
