package storage

import "testing"

const (
	testCIDv0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	testCIDv1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func TestIsValidCID(t *testing.T) {
	cases := []struct {
		name string
		cid  string
		want bool
	}{
		{"v0", testCIDv0, true},
		{"v1 base32", testCIDv1, true},
		{"empty", "", false},
		{"random text", "hello-world", false},
		{"v0 too short", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbd", false},
		{"v0 bad alphabet", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbd0", false},
		{"v1 uppercase", "BAFYBEIGDYRZT5SFP7UDM7HU76UH7Y26NF3EFUYLQABF3OCLGTQY55FBZDI", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidCID(tc.cid); got != tc.want {
				t.Fatalf("IsValidCID(%q) = %v, want %v", tc.cid, got, tc.want)
			}
		})
	}
}

func TestSplitResourcePath(t *testing.T) {
	cid, filename, err := SplitResourcePath(testCIDv1 + "/photo.jpg")
	if err != nil {
		t.Fatalf("SplitResourcePath() error = %v", err)
	}
	if cid != testCIDv1 || filename != "photo.jpg" {
		t.Fatalf("SplitResourcePath() = %q, %q", cid, filename)
	}
}

func TestSplitResourcePathBareCID(t *testing.T) {
	cid, filename, err := SplitResourcePath(testCIDv0)
	if err != nil {
		t.Fatalf("SplitResourcePath() error = %v", err)
	}
	if cid != testCIDv0 || filename != "" {
		t.Fatalf("SplitResourcePath() = %q, %q", cid, filename)
	}
}

func TestSplitResourcePathNested(t *testing.T) {
	cid, filename, err := SplitResourcePath("/" + testCIDv1 + "/dir/inner.txt")
	if err != nil {
		t.Fatalf("SplitResourcePath() error = %v", err)
	}
	if cid != testCIDv1 || filename != "dir/inner.txt" {
		t.Fatalf("SplitResourcePath() = %q, %q", cid, filename)
	}
}

func TestSplitResourcePathRejectsBadCID(t *testing.T) {
	for _, p := range []string{"", "not-a-cid/file.txt", "/"} {
		if _, _, err := SplitResourcePath(p); err == nil {
			t.Fatalf("SplitResourcePath(%q) accepted invalid path", p)
		}
	}
}
