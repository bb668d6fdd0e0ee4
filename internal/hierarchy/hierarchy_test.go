// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixtureResources() []Resource {
	var out []Resource
	for i := int32(1); i <= 16; i++ {
		node := "node1"
		if i > 8 {
			node = "node2"
		}
		out = append(out, Resource{ID: i, Attributes: map[string]string{"node": node}})
	}
	return out
}

func TestBuildGroupsPartition(t *testing.T) {
	idx := Build("node", fixtureResources())
	groups := idx.Groups()
	assert.Len(t, groups, 2)
	assert.Equal(t, "1-8", groups[0].String())
	assert.Equal(t, "9-16", groups[1].String())
}

func TestGroupOf(t *testing.T) {
	idx := Build("node", fixtureResources())
	assert.Equal(t, "1-8", idx.GroupOf(3).String())
	assert.Equal(t, "9-16", idx.GroupOf(12).String())
	assert.True(t, idx.GroupOf(999).Empty())
}

func TestNaturalOrderingNumericLabels(t *testing.T) {
	resources := []Resource{
		{ID: 1, Attributes: map[string]string{"switch": "10"}},
		{ID: 2, Attributes: map[string]string{"switch": "2"}},
		{ID: 3, Attributes: map[string]string{"switch": "1"}},
	}
	idx := Build("switch", resources)
	groups := idx.Groups()
	require := assert.New(t)
	require.Equal("3", groups[0].String())
	require.Equal("2", groups[1].String())
	require.Equal("1", groups[2].String())
}

func TestSet(t *testing.T) {
	s := NewSet([]string{"node"}, fixtureResources())
	assert.NotNil(t, s.Index("node"))
	assert.Nil(t, s.Index("switch"))
}
