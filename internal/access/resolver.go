package access

import (
	"context"
	"path"
	"strings"
)

// EffectiveAccess is the fully resolved decision for one file path. Price
// is only meaningful when Paid is true.
type EffectiveAccess struct {
	Paid  bool
	Price Price
}

// Resolver computes effective access for file paths by folding the
// declaration files of each directory from the served root down to the
// file's parent. Declarations are re-read on every call so live edits take
// effect on the next request.
type Resolver struct {
	fs FS
}

// NewResolver returns a resolver reading declarations through fsys.
func NewResolver(fsys FS) *Resolver {
	return &Resolver{fs: fsys}
}

// Resolve returns the effective access for the file at p (slash-separated,
// relative to the served root). A child directory's explicit settings
// override its ancestors'; unset fields inherit. Paid access with no price
// anywhere in the chain fails with a ConfigError wrapping ErrMissingPrice.
func (r *Resolver) Resolve(ctx context.Context, p string) (EffectiveAccess, error) {
	var merged Config
	for _, dir := range chain(p) {
		cfg, err := LoadConfig(ctx, r.fs, dir)
		if err != nil {
			return EffectiveAccess{}, err
		}
		if cfg == nil {
			continue
		}
		if cfg.Paid != nil {
			merged.Paid = cfg.Paid
		}
		if cfg.BasePrice != nil {
			merged.BasePrice = cfg.BasePrice
		}
	}

	paid := merged.Paid != nil && *merged.Paid
	if !paid {
		return EffectiveAccess{}, nil
	}
	if merged.BasePrice == nil {
		return EffectiveAccess{}, &ConfigError{Path: path.Dir(path.Clean(p)), Err: ErrMissingPrice}
	}
	return EffectiveAccess{Paid: true, Price: *merged.BasePrice}, nil
}

// chain lists the directories from the root down to p's parent, root first.
func chain(p string) []string {
	dir := path.Dir(path.Clean(p))
	dirs := []string{"."}
	if dir == "." || dir == "/" {
		return dirs
	}
	var prefix string
	for _, seg := range strings.Split(dir, "/") {
		if seg == "" {
			continue
		}
		prefix = path.Join(prefix, seg)
		dirs = append(dirs, prefix)
	}
	return dirs
}
