package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var members = []Member{
	{ID: 101, Username: "alice", Nick: "Ally"},
	{ID: 102, Username: "bob", GlobalName: "Bobby Tables"},
	{ID: 103, Username: "alicia"},
}

func TestResolverChain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
		ok    bool
	}{
		{"raw id", "123456789", 123456789, true},
		{"mention", "<@102>", 102, true},
		{"nick mention", "<@!103>", 103, true},
		{"exact username", "alice", 101, true},
		{"exact username with at", "@bob", 102, true},
		{"exact nick", "Ally", 101, true},
		{"exact global name", "Bobby Tables", 102, true},
		{"exact beats partial", "alicia", 103, true},
		{"partial case insensitive", "TABLES", 102, true},
		{"partial picks first member", "ali", 101, true},
		{"no match", "carol", 0, false},
		{"empty", "  ", 0, false},
		{"malformed mention", "<@abc>", 0, false},
		{"negative id", "-5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DefaultResolvers.Resolve(tt.input, members)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverChain_FirstMatchWins(t *testing.T) {
	calls := 0
	chain := ResolverChain{
		ResolverFunc(func(string, []Member) (int64, bool) { calls++; return 0, false }),
		ResolverFunc(func(string, []Member) (int64, bool) { calls++; return 7, true }),
		ResolverFunc(func(string, []Member) (int64, bool) { calls++; return 8, true }),
	}

	id, ok := chain.Resolve("x", nil)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 2, calls)
}
