package browser

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SelectorSet holds the CSS selectors for a chat page. They are the only
// page-specific knowledge the file helper surface has.
type SelectorSet struct {
	Input     string `yaml:"input"`     // text input; its presence also means "logged in"
	FileInput string `yaml:"fileInput"` // <input type=file> used for attachments
	Messages  string `yaml:"messages"`  // self-authored message entries
	Text      string `yaml:"text"`      // text node inside an entry
	Image     string `yaml:"image"`     // image node inside an entry
	Download  string `yaml:"download"`  // download action for an image entry
}

// FileHelperSelectors returns the selectors for the WeChat file transfer
// assistant web page.
func FileHelperSelectors() SelectorSet {
	return SelectorSet{
		Input:     ".chat-panel__input-container",
		FileInput: ".file-input",
		Messages:  "div.msg-item.mine[item]",
		Text:      ".msg-text",
		Image:     ".msg-image",
		Download:  "a.icon.icon__download",
	}
}

// Merge returns s with every non-empty field of override applied.
func (s SelectorSet) Merge(override SelectorSet) SelectorSet {
	pick := func(base, o string) string {
		if strings.TrimSpace(o) != "" {
			return strings.TrimSpace(o)
		}
		return base
	}
	return SelectorSet{
		Input:     pick(s.Input, override.Input),
		FileInput: pick(s.FileInput, override.FileInput),
		Messages:  pick(s.Messages, override.Messages),
		Text:      pick(s.Text, override.Text),
		Image:     pick(s.Image, override.Image),
		Download:  pick(s.Download, override.Download),
	}
}

func (s SelectorSet) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"input":     s.Input,
		"fileInput": s.FileInput,
		"messages":  s.Messages,
		"text":      s.Text,
		"image":     s.Image,
		"download":  s.Download,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("selectors missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadSelectors reads a YAML override file and merges it over the file
// helper defaults. An empty path returns the defaults.
func LoadSelectors(path string) (SelectorSet, error) {
	defaults := FileHelperSelectors()
	if path == "" {
		return defaults, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorSet{}, fmt.Errorf("read selectors: %w", err)
	}
	var override SelectorSet
	if err := yaml.Unmarshal(data, &override); err != nil {
		return SelectorSet{}, fmt.Errorf("parse selectors %s: %w", path, err)
	}
	merged := defaults.Merge(override)
	if err := merged.Validate(); err != nil {
		return SelectorSet{}, err
	}
	return merged, nil
}
