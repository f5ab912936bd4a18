// Package changeset measures a change so it can be classified: files and
// lines touched, which architectural layers the paths fall into, which
// security-sensitive keywords appear, and whether any architecture-critical
// path was modified. It reads the repository with go-git, comparing the
// working tree against HEAD, and never shells out.
package changeset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	gitobject "github.com/go-git/go-git/v5/plumbing/object"
	gitdiff "github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/kberard/vetloop/internal/classify"
	"github.com/kberard/vetloop/internal/types"
)

// UnknownLayer is assigned to paths that match no configured layer prefix.
const UnknownLayer = "unknown"

// Config maps repository paths onto the collector's vocabulary.
type Config struct {
	// Layers maps a layer name to the path prefixes belonging to it, e.g.
	// {"api": ["cmd/", "api/"], "domain": ["internal/core/"]}.
	Layers map[string][]string
	// ArchPaths are path prefixes whose modification flags the change as
	// architecture-affecting regardless of size (build files, schema
	// definitions, public interfaces).
	ArchPaths []string
	// Keywords supplements the built-in security keyword list.
	Keywords []string
}

// Collector turns a repository's pending changes into ChangeMetrics.
type Collector struct {
	cfg        Config
	classifier *classify.Classifier
}

// NewCollector creates a collector. A nil or empty layer map means every
// path lands in the unknown layer, which still counts as one layer.
func NewCollector(cfg Config) *Collector {
	return &Collector{
		cfg:        cfg,
		classifier: classify.NewClassifier(cfg.Keywords),
	}
}

// Collect measures the working tree against HEAD: staged, unstaged, and
// untracked files all count. dir may be any directory inside the repository.
func (c *Collector) Collect(ctx context.Context, dir string) (types.ChangeMetrics, error) {
	var metrics types.ChangeMetrics

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return metrics, fmt.Errorf("opening repository at %s: %w", dir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return metrics, fmt.Errorf("getting worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return metrics, fmt.Errorf("reading worktree status: %w", err)
	}

	headTree, err := headTree(repo)
	if err != nil {
		return metrics, err
	}

	root := wt.Filesystem.Root()
	layers := map[string]bool{}
	keywords := map[string]bool{}

	paths := make([]string, 0, len(status))
	for p := range status {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return metrics, err
		}
		st := status[p]
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}

		metrics.FilesChanged++
		layers[c.layerFor(p)] = true
		if c.isArchPath(p) {
			metrics.ArchitectureFlagged = true
		}
		c.keywordHits(p, keywords)

		oldContent := blobContent(headTree, p)
		newContent, err := workingContent(root, p)
		if err != nil {
			return metrics, err
		}
		metrics.LinesChanged += changedLines(oldContent, newContent)
		c.contentKeywordHits(newContent, keywords)
	}

	metrics.LayersTouched = sortedKeys(layers)
	metrics.KeywordHits = sortedKeys(keywords)
	return metrics, nil
}

// CollectRange measures a committed range (from..to, both commit hashes or
// references resolvable by the repository). Used when reviewing changes that
// already landed rather than a dirty worktree.
func (c *Collector) CollectRange(ctx context.Context, dir, from, to string) (types.ChangeMetrics, error) {
	var metrics types.ChangeMetrics

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return metrics, fmt.Errorf("opening repository at %s: %w", dir, err)
	}

	fromCommit, err := resolveCommit(repo, from)
	if err != nil {
		return metrics, err
	}
	toCommit, err := resolveCommit(repo, to)
	if err != nil {
		return metrics, err
	}

	patch, err := fromCommit.PatchContext(ctx, toCommit)
	if err != nil {
		return metrics, fmt.Errorf("diffing %s..%s: %w", from, to, err)
	}

	layers := map[string]bool{}
	keywords := map[string]bool{}

	for _, stat := range patch.Stats() {
		metrics.FilesChanged++
		metrics.LinesChanged += stat.Addition + stat.Deletion
		layers[c.layerFor(stat.Name)] = true
		if c.isArchPath(stat.Name) {
			metrics.ArchitectureFlagged = true
		}
		c.keywordHits(stat.Name, keywords)
	}
	for _, fp := range patch.FilePatches() {
		for _, chunk := range fp.Chunks() {
			if chunk.Type() == fdiff.Add || chunk.Type() == fdiff.Delete {
				c.contentKeywordHits(chunk.Content(), keywords)
			}
		}
	}

	metrics.LayersTouched = sortedKeys(layers)
	metrics.KeywordHits = sortedKeys(keywords)
	return metrics, nil
}

// layerFor maps a path to its layer by longest matching prefix.
func (c *Collector) layerFor(p string) string {
	p = path.Clean(filepath.ToSlash(p))

	best := UnknownLayer
	bestLen := -1
	for layer, prefixes := range c.cfg.Layers {
		for _, prefix := range prefixes {
			prefix = strings.TrimSuffix(filepath.ToSlash(prefix), "/")
			if prefix == "" {
				continue
			}
			if (p == prefix || strings.HasPrefix(p, prefix+"/")) && len(prefix) > bestLen {
				best = layer
				bestLen = len(prefix)
			}
		}
	}
	return best
}

func (c *Collector) isArchPath(p string) bool {
	p = filepath.ToSlash(p)
	for _, prefix := range c.cfg.ArchPaths {
		prefix = strings.TrimSuffix(filepath.ToSlash(prefix), "/")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func (c *Collector) keywordHits(s string, hits map[string]bool) {
	for _, kw := range c.classifier.Keywords() {
		if strings.Contains(strings.ToLower(s), kw) {
			hits[kw] = true
		}
	}
}

func (c *Collector) contentKeywordHits(content string, hits map[string]bool) {
	lower := strings.ToLower(content)
	for _, kw := range c.classifier.Keywords() {
		if strings.Contains(lower, kw) {
			hits[kw] = true
		}
	}
}

func headTree(repo *git.Repository) (*gitobject.Tree, error) {
	head, err := repo.Head()
	if err != nil {
		// Fresh repository with no commits: everything diffs against empty.
		return nil, nil
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("loading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading HEAD tree: %w", err)
	}
	return tree, nil
}

func resolveCommit(repo *git.Repository, rev string) (*gitobject.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	return commit, nil
}

// blobContent returns the HEAD version of a file, or "" for new files.
func blobContent(tree *gitobject.Tree, p string) string {
	if tree == nil {
		return ""
	}
	file, err := tree.File(filepath.ToSlash(p))
	if err != nil {
		return ""
	}
	content, err := file.Contents()
	if err != nil {
		return ""
	}
	return content
}

func workingContent(root, p string) (string, error) {
	f, err := os.Open(filepath.Join(root, p))
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted file: the whole HEAD version is the change.
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	return string(data), nil
}

// changedLines counts inserted plus deleted lines between two versions.
func changedLines(oldContent, newContent string) int {
	if oldContent == newContent {
		return 0
	}
	total := 0
	for _, d := range gitdiff.Do(oldContent, newContent) {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		total += countLines(d.Text)
	}
	return total
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
