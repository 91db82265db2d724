package image

import "testing"

func TestHashContent_Deterministic(t *testing.T) {
	data := []byte("the same bytes")
	if hashContent(data) != hashContent(data) {
		t.Error("identical bytes must produce identical digests")
	}
	if hashContent(data) == hashContent([]byte("different bytes")) {
		t.Error("different bytes must produce different digests")
	}
}

func TestHashContent_KnownVectors(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte{}, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{[]byte("abc"), "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, c := range cases {
		if got := hashContent(c.in); got != c.want {
			t.Errorf("hashContent(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}
