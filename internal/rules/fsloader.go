package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PhucNguyen204/logwarden/pkg/rule"
)

func isYAML(p string) bool {
	l := strings.ToLower(p)
	return strings.HasSuffix(l, ".yml") || strings.HasSuffix(l, ".yaml")
}

// LoadDirRecursive reads every YAML rule file below root, in lexical order.
// Rules without a name are named after their file.
func LoadDirRecursive(root string) ([]rule.Config, error) {
	var out []rule.Config
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		cfgs, err := rule.ParseYAML(b)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		for i := range cfgs {
			if strings.TrimSpace(cfgs[i].Name) != "" {
				continue
			}
			if len(cfgs) == 1 {
				cfgs[i].Name = base
			} else {
				cfgs[i].Name = fmt.Sprintf("%s-%d", base, i+1)
			}
		}
		out = append(out, cfgs...)
		return nil
	})
	return out, err
}
