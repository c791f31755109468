package handler

import (
	"regexp"
	"strconv"
	"strings"
)

// Resolver maps command input to a user ID. ok is false when the strategy
// does not match; the next one is tried.
type Resolver interface {
	Resolve(input string, members []Member) (userID int64, ok bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(input string, members []Member) (int64, bool)

// Resolve calls f.
func (f ResolverFunc) Resolve(input string, members []Member) (int64, bool) {
	return f(input, members)
}

// ResolverChain tries resolvers in order; the first match wins.
type ResolverChain []Resolver

// DefaultResolvers resolves by raw ID, then mention, then exact name, then
// partial name.
var DefaultResolvers = ResolverChain{
	ResolverFunc(byID),
	ResolverFunc(byMention),
	ResolverFunc(byExactName),
	ResolverFunc(byPartialName),
}

// Resolve returns the first match of the chain.
func (c ResolverChain) Resolve(input string, members []Member) (int64, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, false
	}
	for _, r := range c {
		if id, ok := r.Resolve(input, members); ok {
			return id, true
		}
	}
	return 0, false
}

func byID(input string, _ []Member) (int64, bool) {
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

func byMention(input string, _ []Member) (int64, bool) {
	m := mentionPattern.FindStringSubmatch(input)
	if m == nil {
		return 0, false
	}
	return byID(m[1], nil)
}

func byExactName(input string, members []Member) (int64, bool) {
	name := strings.TrimPrefix(input, "@")
	for _, m := range members {
		if m.Username == name {
			return m.ID, true
		}
	}
	for _, m := range members {
		if (m.Nick != "" && m.Nick == name) || (m.GlobalName != "" && m.GlobalName == name) {
			return m.ID, true
		}
	}
	return 0, false
}

func byPartialName(input string, members []Member) (int64, bool) {
	needle := strings.ToLower(strings.TrimPrefix(input, "@"))
	if needle == "" {
		return 0, false
	}
	for _, m := range members {
		for _, name := range []string{m.Username, m.Nick, m.GlobalName} {
			if name != "" && strings.Contains(strings.ToLower(name), needle) {
				return m.ID, true
			}
		}
	}
	return 0, false
}
