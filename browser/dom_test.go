package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlayPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: []string{}},
		{name: "normalises case and spaces", in: []string{" Chat ", "JIVO"}, want: []string{"chat", "jivo"}},
		{name: "drops empty entries", in: []string{"", "  ", "intercom"}, want: []string{"intercom"}},
		{name: "keeps cyrillic", in: []string{"Поддержк"}, want: []string{"поддержк"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, overlayPatterns(tt.in))
		})
	}
}

func TestSnapshotScriptEmbedsOverlayPatterns(t *testing.T) {
	t.Parallel()

	script := snapshotScript([]string{"Chat", " support "}, 25)
	assert.Contains(t, script, `const ignore = ["chat","support"];`)
	assert.Contains(t, script, "out.length >= 25")
	assert.Contains(t, script, `"`+RefAttribute+`"`)

	assert.Contains(t, snapshotScript(nil, 25), "const ignore = [];")
}

func TestElementKeyMatchesSnapshotKey(t *testing.T) {
	t.Parallel()

	el := Element{Ref: 4, Tag: "a", Href: "https://shop.example/delivery", Text: "Delivery"}
	assert.Equal(t, "href:https://shop.example/delivery", el.Key())

	renumbered := el
	renumbered.Ref = 9
	assert.Equal(t, el.Key(), renumbered.Key())
}
