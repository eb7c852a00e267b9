// Package templates provides embedded templates for plugin scaffolding.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"
)

//go:embed js/*.tmpl lua/*.tmpl
var files embed.FS

// PluginData contains the data used to render plugin templates.
type PluginData struct {
	// ID is the plugin id and directory name (e.g., "my-panel")
	ID string
	// Name is the display name (e.g., "My Panel")
	Name string
	// Author is written into the manifest when set.
	Author string
	// Tier is the requested trust tier.
	Tier int
	// RuntimeVersion is the minimum runtime version the plugin targets.
	RuntimeVersion string
	// Permissions are vault paths and hosts requested in the manifest.
	Read  []string
	Write []string
	Net   []string
}

// entryFiles maps a language to the entry point its templates produce.
var entryFiles = map[string]string{
	"js":  "index.js",
	"lua": "main.lua",
}

// Languages returns the supported scaffold languages.
func Languages() []string {
	return []string{"js", "lua"}
}

// EntryPoint returns the entry file name for lang.
func EntryPoint(lang string) (string, error) {
	entry, ok := entryFiles[lang]
	if !ok {
		return "", fmt.Errorf("unsupported language: %s", lang)
	}
	return entry, nil
}

// Templates returns the parsed templates for lang, named by output file.
func Templates(lang string) (*template.Template, error) {
	if _, err := EntryPoint(lang); err != nil {
		return nil, err
	}

	tmpl := template.New("").Funcs(template.FuncMap{
		"entry": func() string { return entryFiles[lang] },
	})
	err := fs.WalkDir(files, lang, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".tmpl") {
			return nil
		}

		content, err := files.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading template %s: %w", p, err)
		}

		name := strings.TrimSuffix(path.Base(p), ".tmpl")
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Errorf("parsing template %s: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return tmpl, nil
}

// TemplateFiles returns the files a scaffold for lang contains.
func TemplateFiles(lang string) ([]string, error) {
	entry, err := EntryPoint(lang)
	if err != nil {
		return nil, err
	}
	return []string{"manifest.yaml", entry, "README.md"}, nil
}

// Render executes every template for lang and returns file contents by name.
func Render(lang string, data PluginData) (map[string][]byte, error) {
	tmpl, err := Templates(lang)
	if err != nil {
		return nil, err
	}
	names, err := TemplateFiles(lang)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(names))
	for _, name := range names {
		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", name, err)
		}
		out[name] = buf.Bytes()
	}
	return out, nil
}
