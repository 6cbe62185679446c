package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/discount-watch/internal/types"
)

func TestClassifier_Classify(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		input string
		want  string
	}{
		{"Пластик PLA для 3D принтера", "PLA"},
		{"pla silk", "PLA"},
		{"PETG прозорий", "PETG"},
		{"PET-G", "PET"},
		{"ABS Black", types.UnknownCategoryName},
		{"", types.UnknownCategoryName},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.input).Name)
		})
	}
}

func TestClassifier_LongestKeywordWins(t *testing.T) {
	c := NewClassifier([]Rule{
		{Category: types.Category{Name: "PLA", Ordinal: 0}, Keywords: []string{"pla"}},
		{Category: types.Category{Name: "PLA_PLUS", Ordinal: 1}, Keywords: []string{"pla+", "pla plus"}},
	})

	assert.Equal(t, "PLA_PLUS", c.Classify("eSUN PLA+ 1.75").Name)
	assert.Equal(t, "PLA", c.Classify("eSUN PLA 1.75").Name)
}

func TestClassifier_NilIsUnknown(t *testing.T) {
	var c *Classifier
	assert.Equal(t, types.UnknownCategory, c.Classify("PLA"))
	assert.Nil(t, c.Categories())

	_, ok := c.Lookup("PLA")
	assert.False(t, ok)
}

func TestClassifier_LookupAndOrder(t *testing.T) {
	c := NewClassifier([]Rule{
		{Category: types.Category{Name: "TPU", Ordinal: 3}, Keywords: []string{"tpu", "flex"}},
		{Category: types.Category{Name: "ABS", Ordinal: 1}, Keywords: []string{" ", "abs"}},
	})

	cat, ok := c.Lookup("tpu")
	assert.True(t, ok)
	assert.Equal(t, 3, cat.Ordinal)

	names := []string{}
	for _, cat := range c.Categories() {
		names = append(names, cat.Name)
	}
	assert.Equal(t, []string{"ABS", "TPU"}, names)
	assert.Equal(t, "TPU", c.Classify("Flex 95A").Name)
}
