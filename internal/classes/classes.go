// Package classes defines the food Class Table used to lay out routed images
// inside destination buckets.
//
// A class's ordinal is part of the on-disk layout: images labelled "Dairy
// product" land under class_01/ in every bucket ever written. Ordinals are
// therefore fixed per TableVersion and new labels may only be appended.
package classes

import (
	"fmt"
)

// TableVersion identifies the ordinal mapping below. Bump it only when
// labels are appended; existing ordinals never move.
const TableVersion = 1

// Class is a stable class ordinal.
type Class int

// Built-in classes, in ordinal order.
const (
	Bread Class = iota
	DairyProduct
	Dessert
	Egg
	FriedFood
	Meat
	NoodlesPasta
	Rice
	Seafood
	Soup
	VegetableFruit
)

// dirPrefix is prepended to the zero-padded ordinal to form the directory name.
const dirPrefix = "class_"

// defaultLabels holds the label text for each built-in class, indexed by ordinal.
var defaultLabels = []string{
	Bread:          "Bread",
	DairyProduct:   "Dairy product",
	Dessert:        "Dessert",
	Egg:            "Egg",
	FriedFood:      "Fried food",
	Meat:           "Meat",
	NoodlesPasta:   "Noodles/Pasta",
	Rice:           "Rice",
	Seafood:        "Seafood",
	Soup:           "Soup",
	VegetableFruit: "Vegetable/Fruit",
}

// Index returns the numeric class index.
func (c Class) Index() int { return int(c) }

// DirName returns the destination directory name, e.g. "class_01".
func (c Class) DirName() string {
	return fmt.Sprintf("%s%02d", dirPrefix, int(c))
}

// Label returns the built-in label for c, or "" if c is outside the default table.
func (c Class) Label() string {
	if c < 0 || int(c) >= len(defaultLabels) {
		return ""
	}
	return defaultLabels[c]
}

func (c Class) String() string {
	if l := c.Label(); l != "" {
		return l
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Table maps label strings to class ordinals. The zero value is an empty table.
type Table struct {
	labels  []string
	byLabel map[string]Class
}

// NewTable builds a table whose ordinals follow the order of labels.
// Empty and duplicate labels are rejected.
func NewTable(labels ...string) (*Table, error) {
	t := &Table{
		labels:  make([]string, 0, len(labels)),
		byLabel: make(map[string]Class, len(labels)),
	}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("class %d: empty label", i)
		}
		if prev, ok := t.byLabel[l]; ok {
			return nil, fmt.Errorf("class %d: label %q already used by class %d", i, l, int(prev))
		}
		t.byLabel[l] = Class(i)
		t.labels = append(t.labels, l)
	}
	return t, nil
}

// Default returns the built-in table at TableVersion.
func Default() *Table {
	t, err := NewTable(defaultLabels...)
	if err != nil {
		panic(err) // built-in labels are unique and non-empty
	}
	return t
}

// Lookup resolves label by exact string match.
func (t *Table) Lookup(label string) (Class, bool) {
	if t == nil {
		return 0, false
	}
	c, ok := t.byLabel[label]
	return c, ok
}

// Labels returns a copy of the table's labels in ordinal order.
func (t *Table) Labels() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// Len returns the number of classes in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.labels)
}
