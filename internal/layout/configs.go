package layout

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/worklets/internal/shareable"
)

// AnimationType selects which layout animation a config drives.
type AnimationType int

const (
	Entering AnimationType = iota + 1
	Exiting
	Layout
	SharedElementTransition
	SharedElementTransitionProgress
)

func (t AnimationType) String() string {
	switch t {
	case Entering:
		return "entering"
	case Exiting:
		return "exiting"
	case Layout:
		return "layout"
	case SharedElementTransition:
		return "shared_element_transition"
	case SharedElementTransitionProgress:
		return "shared_element_transition_progress"
	}
	return fmt.Sprintf("animation_type(%d)", int(t))
}

// ParseAnimationType is the inverse of AnimationType.String.
func ParseAnimationType(s string) (AnimationType, error) {
	for t := Entering; t <= SharedElementTransitionProgress; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown layout animation type %q", s)
}

func (t AnimationType) valid() bool {
	return t >= Entering && t <= SharedElementTransitionProgress
}

func (t AnimationType) shared() bool {
	return t == SharedElementTransition || t == SharedElementTransitionProgress
}

// Configs holds layout animation configs per view tag and type, plus the
// grouping of views that share a transition tag.
//
// Thread-safety: all methods are safe for concurrent use.
type Configs struct {
	mu        sync.Mutex
	byType    map[AnimationType]map[int]shareable.Shareable
	groups    map[string][]int // shared transition tag -> view tags in configure order
	sharedTag map[int]string   // view tag -> shared transition tag
}

// NewConfigs creates an empty config table.
func NewConfigs() *Configs {
	return &Configs{
		byType:    make(map[AnimationType]map[int]shareable.Shareable),
		groups:    make(map[string][]int),
		sharedTag: make(map[int]string),
	}
}

// Configure stores config for tag. Shared element transition configs join
// tag to the group named sharedTransitionTag.
func (c *Configs) Configure(tag int, typ AnimationType, sharedTransitionTag string, config shareable.Shareable) error {
	if !typ.valid() {
		return fmt.Errorf("configure tag %d: %s", tag, typ)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.byType[typ]
	if !ok {
		m = make(map[int]shareable.Shareable)
		c.byType[typ] = m
	}
	m[tag] = config

	if typ.shared() && sharedTransitionTag != "" {
		if prev, ok := c.sharedTag[tag]; ok && prev != sharedTransitionTag {
			c.leaveGroupLocked(tag, prev)
		}
		if !slices.Contains(c.groups[sharedTransitionTag], tag) {
			c.groups[sharedTransitionTag] = append(c.groups[sharedTransitionTag], tag)
		}
		c.sharedTag[tag] = sharedTransitionTag
	}
	return nil
}

// Has reports whether tag has a config of type typ.
func (c *Configs) Has(tag int, typ AnimationType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byType[typ][tag]
	return ok
}

// Get returns the config of type typ for tag.
func (c *Configs) Get(tag int, typ AnimationType) (shareable.Shareable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.byType[typ][tag]
	return cfg, ok
}

// Clear removes every config for tag and takes it out of its shared group.
func (c *Configs) Clear(tag int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.byType {
		delete(m, tag)
	}
	if group, ok := c.sharedTag[tag]; ok {
		c.leaveGroupLocked(tag, group)
		delete(c.sharedTag, tag)
	}
}

// SharedGroup returns the view tags sharing sharedTransitionTag, in the order
// they were configured.
func (c *Configs) SharedGroup(sharedTransitionTag string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.groups[sharedTransitionTag])
}

// Len returns the number of configured (tag, type) pairs.
func (c *Configs) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, m := range c.byType {
		n += len(m)
	}
	return n
}

func (c *Configs) leaveGroupLocked(tag int, group string) {
	tags := c.groups[group]
	if i := slices.Index(tags, tag); i >= 0 {
		tags = slices.Delete(slices.Clone(tags), i, i+1)
	}
	if len(tags) == 0 {
		delete(c.groups, group)
	} else {
		c.groups[group] = tags
	}
}
