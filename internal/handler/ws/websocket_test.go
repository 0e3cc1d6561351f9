package ws

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://a.example/", "https://B.example"})

	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://a.example", true},
		{"https://b.example", true},
		{"http://interview.local:8080", true},
		{"https://evil.example", false},
		{"http://a.example", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "http://interview.local:8080/api/ws/s1", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.want, check(r), tc.origin)
	}
}

func TestOriginCheckerWildcard(t *testing.T) {
	check := originChecker([]string{"*"})

	r := httptest.NewRequest("GET", "http://interview.local/api/ws/s1", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, check(r))
}
