package rsyncversion_test

import (
	"errors"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
)

func TestParseTolerant(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want rsyncversion.ProtocolVersion
	}{
		{"31", 31},
		{"+31", 31},
		{"  31  ", 31},
		{" +31", 31},
	} {
		got, err := rsyncversion.Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseBelowOldest(t *testing.T) {
	_, err := rsyncversion.Parse("27")
	if !errors.Is(err, rsyncversion.ErrUnsupported) {
		t.Fatalf("Parse(27) err = %v, want ErrUnsupported", err)
	}
}

func TestClamp(t *testing.T) {
	for _, tt := range []struct {
		peer    int
		want    rsyncversion.ProtocolVersion
		wantErr bool
	}{
		{31, 31, false},
		{40, rsyncversion.Newest, false},
		{32, rsyncversion.Newest, false},
		{27, 0, true},
		{0, 0, true},
	} {
		got, err := rsyncversion.Clamp(tt.peer)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Clamp(%d) err = %v, wantErr %v", tt.peer, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Errorf("Clamp(%d) = %d, want %d", tt.peer, got, tt.want)
		}
	}
}

func TestOrderingAndWalk(t *testing.T) {
	v := rsyncversion.ProtocolVersion(30)
	if !v.AtLeast(29) {
		t.Errorf("30.AtLeast(29) = false")
	}
	if v.AtLeast(31) {
		t.Errorf("30.AtLeast(31) = true")
	}
	if got := v.OffsetFromOldest(); got != 2 {
		t.Errorf("OffsetFromOldest() = %d, want 2", got)
	}
	if got := v.OffsetFromNewest(); got != 2 {
		t.Errorf("OffsetFromNewest() = %d, want 2", got)
	}
	next, ok := v.Next()
	if !ok || next != 31 {
		t.Errorf("Next() = %d, %v, want 31, true", next, ok)
	}
	prev, ok := v.Prev()
	if !ok || prev != 29 {
		t.Errorf("Prev() = %d, %v, want 29, true", prev, ok)
	}
	if _, ok := rsyncversion.ProtocolVersion(rsyncversion.Newest).Next(); ok {
		t.Errorf("Newest.Next() ok = true, want false")
	}
	if _, ok := rsyncversion.ProtocolVersion(rsyncversion.Oldest).Prev(); ok {
		t.Errorf("Oldest.Prev() ok = true, want false")
	}
}

func TestSupportedDescending(t *testing.T) {
	list := rsyncversion.Supported()
	for i := 1; i < len(list); i++ {
		if list[i-1] <= list[i] {
			t.Fatalf("Supported() not strictly descending at %d: %v", i, list)
		}
	}
	if list[0] != rsyncversion.Newest || list[len(list)-1] != rsyncversion.Oldest {
		t.Fatalf("Supported() = %v, want bounds [%d, %d]", list, rsyncversion.Newest, rsyncversion.Oldest)
	}
}
