package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quaylabs/agentbridge/capability"
)

func TestUpdateComputesAddedRemovedUnchanged(t *testing.T) {
	cat := capability.NewCatalog()

	toolChange, _, _ := cat.Update([]capability.Tool{{Name: "echo"}}, nil, nil)
	assert.Len(t, toolChange.Added, 1)
	assert.Empty(t, toolChange.Removed)
	assert.Empty(t, toolChange.Unchanged)

	toolChange, _, _ = cat.Update([]capability.Tool{{Name: "echo"}, {Name: "reverse"}}, nil, nil)
	assert.Len(t, toolChange.Added, 1)
	assert.Equal(t, "reverse", toolChange.Added[0].Name)
	assert.Len(t, toolChange.Unchanged, 1)
	assert.Empty(t, toolChange.Removed)

	toolChange, _, _ = cat.Update([]capability.Tool{{Name: "reverse"}}, nil, nil)
	assert.Len(t, toolChange.Removed, 1)
	assert.Equal(t, "echo", toolChange.Removed[0].Name)
}

func TestUpdateSameSetsTwiceProducesEmptyChange(t *testing.T) {
	cat := capability.NewCatalog()
	tools := []capability.Tool{{Name: "echo"}, {Name: "reverse"}}

	cat.Update(tools, nil, nil)
	toolChange, _, _ := cat.Update(tools, nil, nil)

	assert.True(t, toolChange.IsEmpty())
	assert.Len(t, toolChange.Unchanged, 2)
}

func TestResourcesKeyedByURI(t *testing.T) {
	cat := capability.NewCatalog()
	cat.Update(nil, nil, []capability.Resource{{URI: "file://a.md", Name: "a"}})

	r, ok := cat.Resource("file://a.md")
	assert.True(t, ok)
	assert.Equal(t, "a", r.Name)
}

func TestToolsPreserveInsertionOrder(t *testing.T) {
	cat := capability.NewCatalog()
	cat.Update([]capability.Tool{{Name: "z"}, {Name: "a"}, {Name: "m"}}, nil, nil)

	names := make([]string, 0, 3)
	for _, tool := range cat.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)
}
