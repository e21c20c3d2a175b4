package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestFromSeed_Deterministic(t *testing.T) {
	a := FromSeed("pst:b1|src:x.eml|mid:<a@b>|idx:0")
	b := FromSeed("pst:b1|src:x.eml|mid:<a@b>|idx:0")
	if a != b {
		t.Fatalf("FromSeed not deterministic: %s != %s", a, b)
	}

	c := FromSeed("pst:b1|src:x.eml|mid:<a@b>|idx:1")
	if a == c {
		t.Fatalf("different seeds produced the same id %s", a)
	}
}

func TestFromSeed_VersionAndVariant(t *testing.T) {
	for _, seed := range []string{"", "a", "pst:1|src:2|mid:|idx:0", strings.Repeat("x", 4096)} {
		id := FromSeed(seed)
		if got := id[6] >> 4; got != 5 {
			t.Errorf("seed %q: version nibble = %x, want 5", seed, got)
		}
		if got := id[8] >> 6; got != 2 {
			t.Errorf("seed %q: variant bits = %b, want 10", seed, got)
		}
		if id.Version() != 5 {
			t.Errorf("seed %q: uuid.Version() = %d", seed, id.Version())
		}
	}
}

func TestFromSeed_MatchesDigest(t *testing.T) {
	seed := "pst:batch|src:inbox/1.eml|mid:|idx:3"
	sum := sha256.Sum256([]byte(seed))
	want := sum[:16]
	want[6] = (want[6] & 0x0f) | 0x50
	want[8] = (want[8] & 0x3f) | 0x80

	id := FromSeed(seed)
	if hex.EncodeToString(id[:]) != hex.EncodeToString(want) {
		t.Fatalf("FromSeed(%q) = %x, want %x", seed, id[:], want)
	}

	s := id.String()
	if len(s) != 36 || s != strings.ToLower(s) {
		t.Fatalf("unexpected string form %q", s)
	}
	if s[14] != '5' {
		t.Fatalf("string form %q does not carry version 5", s)
	}
}

func TestSeeds(t *testing.T) {
	if got := EmailSeed("b", "dir/f.mbox", "", 2); got != "pst:b|src:dir/f.mbox|mid:|idx:2" {
		t.Errorf("EmailSeed = %q", got)
	}
	if got := AttachmentSeed("b", "e", "h", "n.pdf", 0); got != "pst:b|email:e|hash:h|name:n.pdf|idx:0" {
		t.Errorf("AttachmentSeed = %q", got)
	}
	if EmailID("b", "p", "<m>", 0) != EmailID("b", "p", "<m>", 0) {
		t.Error("EmailID not reproducible")
	}
	if AttachmentID("b", "e", "h", "n", 0) == AttachmentID("b", "e", "h", "n", 1) {
		t.Error("AttachmentID ignores index")
	}
}
