// Package capability models the MCP capability catalog (tools, prompts,
// resources) and the added/removed/unchanged diff computed whenever a fresh
// snapshot is merged in, grounded on
// original_source/src/adapters/tool_mapper.py's CapabilityChange and
// _merge_entries.
package capability

// Tool mirrors an MCP tools/list entry.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// PromptArgument mirrors an MCP prompt argument declaration.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// Prompt mirrors an MCP prompts/list entry.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// Resource mirrors an MCP resources/list entry.
type Resource struct {
	URI         string
	Name        string
	Title       string
	Description string
}

// Change reports the result of merging a fresh capability snapshot into a
// catalog: entries newly present, entries no longer present, and entries
// present in both (by key), in deterministic (sorted-by-first-appearance)
// order.
type Change[T any] struct {
	Added     []T
	Removed   []T
	Unchanged []T
}

// IsEmpty reports whether the change added or removed nothing. Unchanged
// entries alone never count as a change (spec §4.3 P5: round-tripping the
// same sets produces no summary).
func (c Change[T]) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// orderedMap is an insertion-order-preserving map, used so Catalog iteration
// and diffing is deterministic rather than following Go's randomized map
// order.
type orderedMap[T any] struct {
	byKey map[string]T
	order []string
}

func newOrderedMap[T any]() *orderedMap[T] {
	return &orderedMap[T]{byKey: make(map[string]T)}
}

// merge replaces the map's contents with incoming (keyed by keyFn),
// returning the added/removed/unchanged diff against the previous contents.
// This is the Go equivalent of _merge_entries: previous is snapshotted,
// current is cleared and repopulated, then the diff is a set difference of
// keys.
func mergeOrdered[T any](m *orderedMap[T], incoming []T, keyFn func(T) string) Change[T] {
	previous := m.byKey
	previousOrder := m.order

	m.byKey = make(map[string]T, len(incoming))
	m.order = make([]string, 0, len(incoming))
	for _, item := range incoming {
		key := keyFn(item)
		if key == "" {
			continue
		}
		if _, exists := m.byKey[key]; !exists {
			m.order = append(m.order, key)
		}
		m.byKey[key] = item
	}

	var added, unchanged []T
	for _, key := range m.order {
		if _, existed := previous[key]; existed {
			unchanged = append(unchanged, m.byKey[key])
		} else {
			added = append(added, m.byKey[key])
		}
	}
	var removed []T
	for _, key := range previousOrder {
		if _, stillPresent := m.byKey[key]; !stillPresent {
			removed = append(removed, previous[key])
		}
	}
	return Change[T]{Added: added, Removed: removed, Unchanged: unchanged}
}

// Catalog holds the full set of capabilities known for one MCP Client
// connection, keyed the way spec §4.3 requires: tools and prompts by name,
// resources by URI.
type Catalog struct {
	tools     *orderedMap[Tool]
	prompts   *orderedMap[Prompt]
	resources *orderedMap[Resource]
}

// NewCatalog constructs an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tools:     newOrderedMap[Tool](),
		prompts:   newOrderedMap[Prompt](),
		resources: newOrderedMap[Resource](),
	}
}

// Update merges a fresh tools/prompts/resources snapshot into the catalog
// and returns the three diffs, one per capability kind.
func (c *Catalog) Update(tools []Tool, prompts []Prompt, resources []Resource) (Change[Tool], Change[Prompt], Change[Resource]) {
	toolChange := mergeOrdered(c.tools, tools, func(t Tool) string { return t.Name })
	promptChange := mergeOrdered(c.prompts, prompts, func(p Prompt) string { return p.Name })
	resourceChange := mergeOrdered(c.resources, resources, func(r Resource) string { return r.URI })
	return toolChange, promptChange, resourceChange
}

// Tools returns the current tools in stable insertion order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, 0, len(c.tools.order))
	for _, key := range c.tools.order {
		out = append(out, c.tools.byKey[key])
	}
	return out
}

// Prompts returns the current prompts in stable insertion order.
func (c *Catalog) Prompts() []Prompt {
	out := make([]Prompt, 0, len(c.prompts.order))
	for _, key := range c.prompts.order {
		out = append(out, c.prompts.byKey[key])
	}
	return out
}

// Resources returns the current resources in stable insertion order.
func (c *Catalog) Resources() []Resource {
	out := make([]Resource, 0, len(c.resources.order))
	for _, key := range c.resources.order {
		out = append(out, c.resources.byKey[key])
	}
	return out
}

// Tool looks up a tool by name.
func (c *Catalog) Tool(name string) (Tool, bool) {
	t, ok := c.tools.byKey[name]
	return t, ok
}

// Resource looks up a resource by URI.
func (c *Catalog) Resource(uri string) (Resource, bool) {
	r, ok := c.resources.byKey[uri]
	return r, ok
}
