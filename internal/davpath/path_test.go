package davpath

import "testing"

func TestClean(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"foo", "/foo"},
		{"/foo/", "/foo"},
		{"/foo//bar", "/foo/bar"},
		{"/foo/./bar", "/foo/bar"},
		{"/foo/../bar", "/bar"},
		{"/../foo", "/foo"},
	}
	for _, tc := range testCases {
		if got := Clean(tc.in); got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHasDotDot(t *testing.T) {
	testCases := []struct {
		in   string
		want bool
	}{
		{"/foo/bar", false},
		{"/foo/../bar", true},
		{"..", true},
		{"/foo/..", true},
		{"/foo...bar", false},
	}
	for _, tc := range testCases {
		if got := HasDotDot(tc.in); got != tc.want {
			t.Errorf("HasDotDot(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInTree(t *testing.T) {
	testCases := []struct {
		path, subtree string
		want          bool
	}{
		{"/a", "/a", true},
		{"/a/b", "/a", true},
		{"/ab", "/a", false},
		{"/a", "/a/b", false},
		{"/", "/", true},
	}
	for _, tc := range testCases {
		if got := InTree(tc.path, tc.subtree); got != tc.want {
			t.Errorf("InTree(%q, %q) = %v, want %v", tc.path, tc.subtree, got, tc.want)
		}
	}
}

func TestIncluded(t *testing.T) {
	testCases := []struct {
		fn, subtree string
		depth       int
		wantRel     string
		wantOK      bool
	}{
		{"/files/a.txt", "/files", -1, "a.txt", true},
		{"/files", "/files", -1, "", true},
		{"/other/a.txt", "/files", -1, "", false},
		{"/files/a/b.txt", "/files", 1, "", false},
	}
	for _, tc := range testCases {
		rel, ok := Included(tc.fn, tc.subtree, tc.depth)
		if ok != tc.wantOK {
			t.Errorf("Included(%q, %q, %d) ok = %v, want %v", tc.fn, tc.subtree, tc.depth, ok, tc.wantOK)
			continue
		}
		if ok && rel != tc.wantRel {
			t.Errorf("Included(%q, %q, %d) rel = %q, want %q", tc.fn, tc.subtree, tc.depth, rel, tc.wantRel)
		}
	}
}
