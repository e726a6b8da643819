// Package fmf implements the metatree port over the fmf on-disk format:
// a directory tree of YAML files where node data is inherited from parent
// to child and merged along the way.
//
// The tree root is the closest ancestor directory containing .fmf/version.
// Within the tree, <dir>/main.fmf holds the directory node's own data,
// every other <name>.fmf file defines a child node, and keys starting with
// '/' inside a file define virtual child nodes.
package fmf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/port/metatree"
)

const (
	rootMarker = ".fmf"
	mainFile   = "main.fmf"
	fileSuffix = ".fmf"
)

// Parser implements metatree.Parser for fmf trees.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser { return &Parser{} }

// node is one resolved tree node.
type node struct {
	name   string // slash-separated, "/" for the root
	data   map[string]any
	source string // defining file, relative to the tree root
}

// Tree is a parsed fmf tree. Implements metatree.Tree.
type Tree struct {
	root  string
	nodes map[string]*node
}

// Parse walks the fmf tree reachable from root/treePath and returns a
// handle for lookups. Structural failures are *metadata.MalformedTreeError.
func (p *Parser) Parse(_ context.Context, root, treePath string) (metatree.Tree, error) {
	start := filepath.Join(root, treePath)

	treeRoot, err := findRoot(start, root)
	if err != nil {
		return nil, err
	}

	t := &Tree{root: treeRoot, nodes: make(map[string]*node)}
	if err := t.walk(treeRoot, "/", map[string]any{}); err != nil {
		return nil, err
	}
	return t, nil
}

// findRoot climbs from start towards limit looking for the .fmf marker.
func findRoot(start, limit string) (string, error) {
	dir := filepath.Clean(start)
	limit = filepath.Clean(limit)
	for {
		if _, err := os.Stat(filepath.Join(dir, rootMarker, "version")); err == nil {
			return dir, nil
		}
		if dir == limit || dir == filepath.Dir(dir) {
			return "", &metadata.MalformedTreeError{
				Path:   start,
				Reason: "no fmf tree found (missing .fmf/version)",
			}
		}
		dir = filepath.Dir(dir)
	}
}

// walk builds the node for dir and recurses into its children.
// parentData is the resolved data inherited from the parent node.
func (t *Tree) walk(dir, name string, parentData map[string]any) error {
	raw := map[string]any{}
	source := ""

	mainPath := filepath.Join(dir, mainFile)
	if _, err := os.Stat(mainPath); err == nil {
		raw, err = t.loadFile(mainPath)
		if err != nil {
			return err
		}
		source = t.relSource(mainPath)
	}

	data, err := inherit(parentData, raw)
	if err != nil {
		return &metadata.MalformedTreeError{Path: t.relSource(mainPath), Reason: err.Error()}
	}
	t.nodes[name] = &node{name: name, data: data, source: source}

	if err := t.addVirtual(name, raw, data, source); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &metadata.MalformedTreeError{Path: name, Reason: err.Error()}
	}
	// Sorted for deterministic traversal.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		base := entry.Name()
		if strings.HasPrefix(base, ".") {
			continue
		}
		switch {
		case entry.IsDir():
			if err := t.walk(filepath.Join(dir, base), childName(name, base), data); err != nil {
				return err
			}
		case strings.HasSuffix(base, fileSuffix) && base != mainFile:
			if err := t.addLeaf(filepath.Join(dir, base), childName(name, strings.TrimSuffix(base, fileSuffix)), data); err != nil {
				return err
			}
		}
	}
	return nil
}

// addLeaf creates a node from a standalone .fmf file.
func (t *Tree) addLeaf(path, name string, parentData map[string]any) error {
	raw, err := t.loadFile(path)
	if err != nil {
		return err
	}
	data, err := inherit(parentData, raw)
	if err != nil {
		return &metadata.MalformedTreeError{Path: t.relSource(path), Reason: err.Error()}
	}
	source := t.relSource(path)
	t.nodes[name] = &node{name: name, data: data, source: source}
	return t.addVirtual(name, raw, data, source)
}

// addVirtual creates child nodes from '/'-prefixed keys in raw.
func (t *Tree) addVirtual(name string, raw, data map[string]any, source string) error {
	for k, v := range raw {
		if !strings.HasPrefix(k, "/") {
			continue
		}
		childRaw, ok := v.(map[string]any)
		if !ok {
			return &metadata.MalformedTreeError{
				Path:   source,
				Reason: fmt.Sprintf("virtual node %q must be a mapping, got %T", k, v),
			}
		}
		child := childName(name, strings.TrimPrefix(k, "/"))
		childData, err := inherit(data, childRaw)
		if err != nil {
			return &metadata.MalformedTreeError{Path: source, Reason: err.Error()}
		}
		t.nodes[child] = &node{name: child, data: childData, source: source}
		if err := t.addVirtual(child, childRaw, childData, source); err != nil {
			return err
		}
	}
	return nil
}

// loadFile reads and unmarshals one .fmf file.
func (t *Tree) loadFile(path string) (map[string]any, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the tree walk
	if err != nil {
		return nil, &metadata.MalformedTreeError{Path: t.relSource(path), Reason: err.Error()}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, &metadata.MalformedTreeError{Path: t.relSource(path), Reason: "invalid yaml: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func (t *Tree) relSource(path string) string {
	rel, err := filepath.Rel(t.root, path)
	if err != nil {
		return path
	}
	return rel
}

func childName(parent, base string) string {
	if parent == "/" {
		return "/" + base
	}
	return parent + "/" + base
}

// kindKeys maps an object kind to the attribute that marks a node as an
// object of that kind, matching the tmt convention.
var kindKeys = map[metadata.Kind]string{
	metadata.KindTest:  "test",
	metadata.KindPlan:  "execute",
	metadata.KindStory: "story",
}

// Resolve returns the fully resolved record for the named object of the
// given kind, or *metadata.ObjectNotFoundError.
func (t *Tree) Resolve(_ context.Context, kind metadata.Kind, name string) (*metadata.Record, error) {
	key, ok := kindKeys[kind]
	if !ok {
		return nil, errors.New("unknown object kind: " + string(kind))
	}

	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	n, ok := t.nodes[name]
	if !ok {
		return nil, &metadata.ObjectNotFoundError{Kind: kind, Name: name}
	}
	if _, isKind := n.data[key]; !isKind {
		return nil, &metadata.ObjectNotFoundError{Kind: kind, Name: name}
	}

	return &metadata.Record{
		Data:   copyMap(n.data),
		Source: n.source,
	}, nil
}
