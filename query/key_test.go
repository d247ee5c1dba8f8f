package query

import "testing"

func TestKeyPrefixMatching(t *testing.T) {
	cases := []struct {
		key, prefix Key
		want        bool
	}{
		{NewKey("posts", 1, 10), NewKey("posts"), true},
		{NewKey("posts", 1, 10), NewKey("posts", 1), true},
		{NewKey("posts", 1, 10), NewKey("posts", 2), false},
		{NewKey("posts"), NewKey("posts", 1), false},
		{NewKey("postsx"), NewKey("posts"), false},
		{NewKey("tickets"), NewKey("tickets"), true},
	}
	for _, tc := range cases {
		if got := tc.key.HasPrefix(tc.prefix); got != tc.want {
			t.Fatalf("%s.HasPrefix(%s)=%v, want %v", tc.key, tc.prefix, got, tc.want)
		}
	}
}

func TestKeyIdentity(t *testing.T) {
	if NewKey("a/b").id() == NewKey("a", "b").id() {
		t.Fatal("keys with different parts must not collide")
	}
	if !NewKey("posts", 1, 10).Equal(NewKey("posts", "1", "10")) {
		t.Fatal("parameters are compared by their formatted value")
	}
	if NewKey("posts", 1, 10).String() != "posts/1/10" || NewKey("posts", 1).Resource() != "posts" {
		t.Fatal("unexpected key formatting")
	}
}
