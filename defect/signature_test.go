package defect

import (
	"strings"
	"testing"

	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/stretchr/testify/assert"
)

func TestSignature(t *testing.T) {
	t.Parallel()

	base := oracle.Defect{Title: "Submit button throws JS error", Pattern: "TypeError"}

	tests := []struct {
		name  string
		other oracle.Defect
		same  bool
	}{
		{name: "identical", other: base, same: true},
		{name: "case and spacing", other: oracle.Defect{Title: "  submit BUTTON   throws js error", Pattern: "typeerror "}, same: true},
		{name: "description and severity ignored", other: oracle.Defect{Title: base.Title, Pattern: base.Pattern, Description: "x", Severity: oracle.SeverityMinor}, same: true},
		{name: "different pattern", other: oracle.Defect{Title: base.Title, Pattern: "ReferenceError"}},
		{name: "different title", other: oracle.Defect{Title: "Cart is empty", Pattern: base.Pattern}},
		{name: "long titles differ only past cap", other: oracle.Defect{Title: strings.Repeat("a", 120) + "b"}, same: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.same, Signature(base) == Signature(tt.other))
		})
	}

	assert.Equal(t,
		Signature(oracle.Defect{Title: strings.Repeat("a", 120) + "b"}),
		Signature(oracle.Defect{Title: strings.Repeat("a", 120) + "c"}),
	)
	assert.Len(t, Signature(base), 64)
}

func TestSignatureSet(t *testing.T) {
	t.Parallel()

	var s SignatureSet
	assert.False(t, s.Has("a"))
	s.Add("a")
	assert.True(t, s.Has("a"))
	assert.Equal(t, 1, s.Len())
	s.Reset()
	assert.False(t, s.Has("a"))
	assert.Equal(t, 0, s.Len())
}

func TestBuildTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "prefixed", title: "Cart total negative", want: "[ui-sentinel] Cart total negative"},
		{name: "already prefixed", title: "[ui-sentinel] Cart", want: "[ui-sentinel] Cart"},
		{name: "empty uses host", title: "", want: "[ui-sentinel] Problem detected on shop.example"},
		{name: "whitespace collapsed", title: "a \n b", want: "[ui-sentinel] a b"},
	}

	for _, tt := range tests {
		got := buildTitle(DefaultSummaryPrefix, oracle.Defect{Title: tt.title}, "https://shop.example/cart")
		assert.Equal(t, tt.want, got, tt.name)
	}

	long := buildTitle(DefaultSummaryPrefix, oracle.Defect{Title: strings.Repeat("я", 400)}, "")
	assert.Len(t, []rune(long), 255)
}
