package provider

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/flag-definitions.json
var definitionsSchema string

var schemaLoader = gojsonschema.NewStringLoader(definitionsSchema)

// ErrInvalidDefinitions is returned when a flag file does not match the schema.
var ErrInvalidDefinitions = errors.New("invalid flag definitions")

type definitions struct {
	Flags []model.Flag `json:"flags"`
}

// FilePathProvider reads flag definitions from a JSON or YAML file.
type FilePathProvider struct {
	URI    string
	Logger *logger.Logger
}

func NewFilePathProvider(uri string, log *logger.Logger) *FilePathProvider {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	return &FilePathProvider{URI: uri, Logger: log.Component("provider")}
}

func (fp *FilePathProvider) Fetch(_ context.Context) ([]model.Flag, error) {
	return fp.parse()
}

func (fp *FilePathProvider) Watch(ctx context.Context, fn func([]model.Flag)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory, editors replace files rather than write them in place
	target := filepath.Clean(fp.URI)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("unable to watch %s: %w", fp.URI, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			flags, err := fp.parse()
			if err != nil {
				fp.Logger.Error("unable to reload flag definitions", zap.String("uri", fp.URI), zap.Error(err))
				continue
			}
			fp.Logger.Info("flag definitions updated", zap.String("uri", fp.URI), zap.Int("flags", len(flags)))
			fn(flags)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fp.Logger.Error("file watcher error", zap.Error(err))
		}
	}
}

func (fp *FilePathProvider) parse() ([]model.Flag, error) {
	if fp.URI == "" {
		return nil, errors.New("no filepath string set")
	}
	rawFile, err := os.ReadFile(fp.URI)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", fp.URI, err)
	}

	if ext := strings.ToLower(filepath.Ext(fp.URI)); ext == ".yaml" || ext == ".yml" {
		rawFile, err = yamlToJSON(rawFile)
		if err != nil {
			return nil, err
		}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(rawFile))
	if err != nil {
		return nil, fmt.Errorf("unable to validate %s: %w", fp.URI, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidDefinitions, strings.Join(problems, "; "))
	}

	var doc definitions
	if err := json.Unmarshal(rawFile, &doc); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", fp.URI, err)
	}
	return doc.Flags, nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unable to parse yaml: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to convert yaml: %w", err)
	}
	return b, nil
}
