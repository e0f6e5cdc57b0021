// Package env provides utilities for dealing with environment variables.
package env

import (
	"sort"
	"strings"
)

// Environment is a map of environment variables.
type Environment struct {
	underlying map[string]string
}

func New() *Environment {
	return &Environment{underlying: map[string]string{}}
}

func FromMap(m map[string]string) *Environment {
	env := &Environment{underlying: make(map[string]string, len(m))}
	for k, v := range m {
		env.Set(k, v)
	}
	return env
}

// Split splits an environment variable (in the form "name=value") into the
// name and value substrings. If there is no '=', or the first '=' is at the
// start, it returns `"", "", false`.
func Split(l string) (name, value string, ok bool) {
	i := strings.IndexRune(l, '=')
	if i <= 0 {
		return "", "", false
	}
	return l[:i], l[i+1:], true
}

// FromSlice creates a new environment from a string slice of KEY=VALUE.
func FromSlice(s []string) *Environment {
	env := New()
	for _, l := range s {
		if k, v, ok := Split(l); ok {
			env.Set(k, v)
		}
	}
	return env
}

// Dump returns a copy of the environment as a map.
func (e *Environment) Dump() map[string]string {
	d := make(map[string]string, len(e.underlying))
	for k, v := range e.underlying {
		d[k] = v
	}
	return d
}

// Get returns the value of a key in the environment.
func (e *Environment) Get(key string) (string, bool) {
	v, ok := e.underlying[key]
	return v, ok
}

// GetOrDefault returns the value of a key, or a default when the key is
// unset or empty.
func (e *Environment) GetOrDefault(key, def string) string {
	if v, ok := e.underlying[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// Exists returns true if the key exists in the environment.
func (e *Environment) Exists(key string) bool {
	_, ok := e.underlying[key]
	return ok
}

// Set sets a key in the environment.
func (e *Environment) Set(key, value string) string {
	e.underlying[key] = value
	return value
}

// SetDefault sets a key only when it is currently unset or empty, and
// returns the effective value.
func (e *Environment) SetDefault(key, value string) string {
	if v, ok := e.underlying[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	e.underlying[key] = value
	return value
}

// Remove a key from the environment and return its value.
func (e *Environment) Remove(key string) string {
	value, ok := e.Get(key)
	if ok {
		delete(e.underlying, key)
	}
	return value
}

// Length returns the number of variables in the environment.
func (e *Environment) Length() int {
	return len(e.underlying)
}

// Merge merges another environment into this one.
func (e *Environment) Merge(other *Environment) {
	if other == nil {
		return
	}
	for k, v := range other.underlying {
		e.Set(k, v)
	}
}

// Copy returns a copy of the environment.
func (e *Environment) Copy() *Environment {
	if e == nil {
		return New()
	}
	c := New()
	for k, v := range e.underlying {
		c.Set(k, v)
	}
	return c
}

// ToSlice returns a sorted slice representation of the environment.
func (e *Environment) ToSlice() []string {
	s := []string{}
	for k, v := range e.underlying {
		s = append(s, k+"="+v)
	}

	// Consistent order (helpful for tests)
	sort.Strings(s)

	return s
}
